package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the model provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the model identifier.
	FieldModel = "ai_model"
	// FieldIntent carries the routing decision for a query.
	FieldIntent = "intent"
	// FieldTool names the gateway a router step invoked.
	FieldTool = "tool"
	// FieldLanguage carries the detected query language code.
	FieldLanguage = "language"
	// FieldAgent names the task agent producing a log entry.
	FieldAgent   = "agent"
	FieldLatency = "latency"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger, defaulting to a no-op
// logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the provider and model fields. Empty values are skipped.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the provider and model fields to the logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// ForAgent returns a child logger tagged with the agent name.
func ForAgent(logger *zap.Logger, agent string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldAgent, Value: agent})...)
}

// Latency renders a duration as seconds, which is what dashboards expect.
func Latency(d time.Duration) zap.Field {
	return zap.Float64(FieldLatency, d.Seconds())
}
