package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core)).With(zap.String("component", "sweeper"))

	log.Info("sweep finished", zap.Int("released", 3))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "sweeper", ctx["component"])
		assert.EqualValues(t, 3, ctx["released"])
	}
}

func TestNewZapLogger_FallsBackToInfoOnBadLevel(t *testing.T) {
	log := NewZapLogger(&ZapLoggerConfig{Level: "chatty", Encoding: "json", DisableStacktrace: true})
	zl, ok := log.(*zapLogger)
	if assert.True(t, ok) {
		assert.False(t, zl.Core().Enabled(zapcore.DebugLevel))
		assert.True(t, zl.Core().Enabled(zapcore.InfoLevel))
	}
}
