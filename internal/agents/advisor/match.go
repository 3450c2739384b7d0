package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents"
	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/logger"
)

const parseErrorNote = "Error parsing analysis"

// MatchAnalysis compares one CV with one job description.
type MatchAnalysis struct {
	Score           float64  `json:"match_score" mapstructure:"-"`
	Strengths       []string `json:"strengths" mapstructure:"strengths"`
	Gaps            []string `json:"gaps" mapstructure:"gaps"`
	Recommendations []string `json:"recommendations" mapstructure:"recommendations"`
	Summary         string   `json:"summary" mapstructure:"summary"`
}

// FallbackAnalysis is returned when the model output cannot be used.
func FallbackAnalysis() *MatchAnalysis {
	return &MatchAnalysis{
		Score:           0,
		Strengths:       []string{parseErrorNote},
		Gaps:            []string{parseErrorNote},
		Recommendations: []string{"Please try again"},
		Summary:         "There was an error generating the structured analysis.",
	}
}

// Match scores how well the CV fits the job. It never fails; problems yield
// FallbackAnalysis.
func (a *Advisor) Match(ctx context.Context, cvText, jobDescription string) *MatchAnalysis {
	if strings.TrimSpace(cvText) == "" || strings.TrimSpace(jobDescription) == "" {
		a.logger.Warn("match requested without cv or job description")
		return FallbackAnalysis()
	}

	req := llm.Prompt("", agents.Render(matchPrompt, map[string]string{
		"CV":  agents.Clip(cvText, MaxCVRunes),
		"JOB": jobDescription,
	}))
	req.JSON = true
	req.Temperature = llm.Temperature(0.2)

	resp, err := a.gen.Generate(ctx, req)
	if err != nil {
		a.logger.Error("match analysis failed", zap.Error(err))
		return FallbackAnalysis()
	}

	analysis, err := ParseMatch(resp.Text)
	if err != nil {
		a.logger.Error("error parsing match analysis",
			zap.Error(err),
			zap.String("response_preview", logger.TruncateForLog(resp.Text, a.maxLogLen)),
		)
		return FallbackAnalysis()
	}

	a.logger.Info("match analysed", zap.Float64("score", analysis.Score))
	return analysis
}

// ParseMatch decodes the model's JSON answer. Fenced or prose-wrapped JSON is
// accepted, list fields may be single strings and the score is clamped to
// 0..100.
func ParseMatch(raw string) (*MatchAnalysis, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse match analysis: %w", err)
	}

	var analysis MatchAnalysis
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       stringifyHook,
		Result:           &analysis,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode match analysis: %w", err)
	}

	score := coerceFloat(data["match_score"])
	if math.IsNaN(score) {
		return nil, fmt.Errorf("match_score is missing or not a number: %v", data["match_score"])
	}
	analysis.Score = math.Max(0, math.Min(100, score))
	return &analysis, nil
}

// stringifyHook lets structured list items decode into strings.
func stringifyHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Map, reflect.Slice:
		return coerceString(data), nil
	}
	return data, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))
	if !strings.HasPrefix(raw, "{") {
		start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
		if start >= 0 && end > start {
			raw = raw[start : end+1]
		}
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
