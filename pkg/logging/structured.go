package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger and exposes a slog view of the same configuration
type Logger struct {
	slog *slog.Logger
	zap  *zap.Logger
}

// Config holds logging configuration
type Config struct {
	Level     string
	Format    string // "json" or "console"
	Output    string // "stdout" or "stderr"
	AddCaller bool
	AddStack  bool
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*Logger, error) {
	if config.Format == "" {
		config.Format = "json"
	}
	if config.Output == "" {
		config.Output = "stderr"
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseZapLevel(config.Level)
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if config.Output == "stdout" {
		out = os.Stdout
	}
	slogLogger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseSlogLevel(config.Level),
	}))

	return &Logger{
		slog: slogLogger,
		zap:  zapLogger,
	}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{
		slog: slog.New(slog.NewTextHandler(io.Discard, nil)),
		zap:  zap.NewNop(),
	}
}

// FromZap wraps an existing zap logger, e.g. one built with zaptest/observer
func FromZap(z *zap.Logger) *Logger {
	return &Logger{
		slog: slog.New(slog.NewTextHandler(io.Discard, nil)),
		zap:  z,
	}
}

// OrNop returns l, or a nop logger when l is nil
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// parseSlogLevel parses slog level from string
func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseZapLevel parses zap level from string
func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithRunID adds the evaluation run ID to logger context
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		slog: l.slog.With("run_id", runID),
		zap:  l.zap.With(zap.String("run_id", runID)),
	}
}

// WithTraceID adds trace ID to logger context
func (l *Logger) WithTraceID(ctx context.Context, traceID string) *Logger {
	return &Logger{
		slog: l.slog.With("trace_id", traceID),
		zap:  l.zap.With(zap.String("trace_id", traceID)),
	}
}

// WithFields adds fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	slogAttrs := make([]any, 0, len(fields)*2)
	zapFields := make([]zap.Field, 0, len(fields))

	for key, value := range fields {
		slogAttrs = append(slogAttrs, key, value)
		zapFields = append(zapFields, zap.Any(key, value))
	}

	return &Logger{
		slog: l.slog.With(slogAttrs...),
		zap:  l.zap.With(zapFields...),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zap.Debug(msg, convertToZapFields(args)...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.zap.Info(msg, convertToZapFields(args)...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zap.Warn(msg, convertToZapFields(args)...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.zap.Error(msg, convertToZapFields(args)...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.zap.Fatal(msg, convertToZapFields(args)...)
}

// convertToZapFields converts interface{} args to zap.Field
func convertToZapFields(args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			if err, isErr := args[i+1].(error); isErr {
				fields = append(fields, zap.NamedError(key, err))
				continue
			}
			fields = append(fields, zap.Any(key, args[i+1]))
		}
	}
	return fields
}

// LogInference logs one gateway call
func (l *Logger) LogInference(ctx context.Context, provider, model string, status string, duration time.Duration, tokens int) {
	l.WithFields(map[string]interface{}{
		"provider":    provider,
		"model":       model,
		"status":      status,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
		"tokens":      tokens,
	}).Debug("Inference completed")
}

// LogTestResult logs one executed matrix or probe test
func (l *Logger) LogTestResult(ctx context.Context, main, executor, test string, passed, timedOut bool, duration time.Duration) {
	l.WithFields(map[string]interface{}{
		"main":        main,
		"executor":    executor,
		"test":        test,
		"passed":      passed,
		"timed_out":   timedOut,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}).Info("Test completed")
}

// LogResidency logs a model load or unload
func (l *Logger) LogResidency(ctx context.Context, operation, model string, contextLength int, err error) {
	logger := l.WithFields(map[string]interface{}{
		"operation":      operation,
		"model":          model,
		"context_length": contextLength,
	})
	if err != nil {
		logger.Warn("Residency operation failed", "error", err)
		return
	}
	logger.Info("Residency operation completed")
}

// LogExclusion logs a main model excluded from the rest of a matrix run
func (l *Logger) LogExclusion(ctx context.Context, main, reason string) {
	l.WithFields(map[string]interface{}{
		"main":   main,
		"reason": reason,
	}).Warn("Main model excluded")
}

// LogPersistenceFailure logs a store write that failed; evaluation continues
func (l *Logger) LogPersistenceFailure(ctx context.Context, operation, key string, err error) {
	l.WithFields(map[string]interface{}{
		"operation": operation,
		"key":       key,
	}).Error("Persistence failed", "error", err)
}

// LogRetry logs a retry operation
func (l *Logger) LogRetry(ctx context.Context, provider, model, reason string, attempt int) {
	l.WithFields(map[string]interface{}{
		"provider": provider,
		"model":    model,
		"reason":   reason,
		"attempt":  attempt,
	}).Warn("Request retry")
}

// LogCircuitBreaker logs a circuit breaker state change
func (l *Logger) LogCircuitBreaker(ctx context.Context, name, from, to string) {
	l.WithFields(map[string]interface{}{
		"breaker": name,
		"from":    from,
		"to":      to,
	}).Warn("Circuit breaker state changed")
}

// Sync syncs the logger
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// GetSlog returns the slog logger
func (l *Logger) GetSlog() *slog.Logger {
	return l.slog
}

// GetZap returns the zap logger
func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}
