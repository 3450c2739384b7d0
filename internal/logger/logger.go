package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	outputs []string
}

// Option tweaks the logger built by New.
type Option func(*options)

// WithOutputs replaces the default stdout sink. The MCP server writes its
// protocol to stdout and logs to stderr instead.
func WithOutputs(paths ...string) Option {
	return func(o *options) {
		if len(paths) > 0 {
			o.outputs = paths
		}
	}
}

func New(json bool, debug bool, opts ...Option) (*zap.Logger, error) {
	o := options{outputs: []string{"stdout"}}
	for _, opt := range opts {
		opt(&o)
	}

	level := zapcore.InfoLevel
	encoding := "console"

	if json {
		encoding = "json"
	}

	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      o.outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "step",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}

	return cfg.Build()
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
