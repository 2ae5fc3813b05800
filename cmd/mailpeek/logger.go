package main

import (
	"go.uber.org/zap"

	"github.com/mailpeek/mailpeek/imap"
)

// zapLogger adapts a zap logger to imap.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) Debug(msg string, args ...any) { z.s.Debugw(msg, args...) }

func (z zapLogger) Info(msg string, args ...any) { z.s.Infow(msg, args...) }

func (z zapLogger) Warn(msg string, args ...any) { z.s.Warnw(msg, args...) }

func (z zapLogger) Error(msg string, args ...any) { z.s.Errorw(msg, args...) }

func (z zapLogger) WithAttrs(args ...any) imap.Logger {
	return zapLogger{s: z.s.With(args...)}
}

// newLogger logs to stderr: human-readable at debug level when verbose,
// JSON at info level otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
