package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentflow/config"
)

func TestInitLogger_JSONFormatByDefault(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "info", Format: "json"})
	assert.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_DebugLevelEnablesDebugLogging(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "debug", Format: "json"})
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "not-a-real-level", Format: "json"})
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_ConsoleFormatBuildsSuccessfully(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "warn", Format: "console"})
	assert.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestInitLogger_EnableCallerStillBuilds(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "error", Format: "json", EnableCaller: true})
	assert.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
}
