package logger

import (
	"sync"

	"github.com/mstgnz/paygate/infra/config"
)

var (
	globalLogger *SystemLogger
	once         sync.Once
)

func defaultConfig() SystemLoggerConfig {
	return SystemLoggerConfig{
		EnableConsole: true,
		MinLevel:      LevelInfo,
		Service:       "paygate",
		Version:       "1.0.0",
		Environment:   "development",
	}
}

// InitGlobalLogger initializes the global system logger. A nil sink keeps it console-only.
func InitGlobalLogger(sink EventSink) {
	once.Do(func() {
		cfg := defaultConfig()
		cfg.EnableOpenSearch = sink != nil
		cfg.Environment = config.GetEnv("ENVIRONMENT", "development")
		cfg.MinLevel = levelFor(cfg.Environment, config.GetEnv("LOGGING_LEVEL", ""))

		globalLogger = NewSystemLogger(sink, cfg)
	})
}

// levelFor returns the configured level. Development defaults to debug when none is set.
func levelFor(environment, configured string) LogLevel {
	if configured != "" {
		return ParseLevel(configured)
	}
	if environment == "development" {
		return LevelDebug
	}
	return LevelInfo
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	if globalLogger == nil {
		globalLogger = NewSystemLogger(nil, defaultConfig())
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithProvider creates a context logger with provider
func WithProvider(provider string) *ContextLogger {
	return WithContext(LogContext{Provider: provider})
}
