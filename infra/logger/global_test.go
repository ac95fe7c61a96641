package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetGlobal() {
	globalLogger = nil
	once = sync.Once{}
}

func TestInitGlobalLogger(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	InitGlobalLogger(nil)

	assert.NotNil(t, globalLogger)
	assert.Equal(t, "paygate", globalLogger.service)
	assert.False(t, globalLogger.enableSink)
}

func TestInitGlobalLogger_Level(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOGGING_LEVEL", "warn")

	InitGlobalLogger(&recordingSink{})

	assert.Equal(t, LevelWarn, globalLogger.minLevel)
	assert.True(t, globalLogger.enableSink)
}

func TestInitGlobalLogger_DevelopmentKeepsConfiguredLevel(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("LOGGING_LEVEL", "error")

	InitGlobalLogger(nil)

	assert.Equal(t, LevelError, globalLogger.minLevel)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		configured  string
		want        LogLevel
	}{
		{"development default", "development", "", LevelDebug},
		{"development configured", "development", "warn", LevelWarn},
		{"production default", "production", "", LevelInfo},
		{"production configured", "production", "debug", LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, levelFor(tt.environment, tt.configured))
		})
	}
}

func TestGetGlobalLogger(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	logger := GetGlobalLogger()
	assert.NotNil(t, logger)
	assert.Equal(t, "paygate", logger.service)
	assert.Same(t, logger, GetGlobalLogger())
}

func TestGlobalLoggerConvenienceFunctions(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	InitGlobalLogger(nil)
	globalLogger.enableConsole = false

	Debug("Debug message")
	Info("Info message")
	Warn("Warning message")
	Error("Error message", nil)
	Info("Info with context", LogContext{Provider: "phonepe"})
	WithProvider("phonepe").Info("context logger")
}
