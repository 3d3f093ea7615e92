package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("debug")
	assert.True(t, Enabled(zapcore.DebugLevel))

	SetLevel("error")
	assert.False(t, Enabled(zapcore.WarnLevel))
	assert.True(t, Enabled(zapcore.ErrorLevel))

	SetLevel("nonsense")
	assert.True(t, Enabled(zapcore.InfoLevel))
	assert.False(t, Enabled(zapcore.DebugLevel))
}

func TestSetFormat(t *testing.T) {
	t.Cleanup(func() { SetFormat("json") })

	assert.NotPanics(t, func() {
		SetFormat("console")
		Info("console output", zap.String("k", "v"))
		With(zap.String("call_id", "1")).Debug("scoped")
	})
}

func TestReplace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))

	Info("captured", zap.String("tool", "generate_image"))
	restore()
	Info("not captured")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "captured", entries[0].Message)
		assert.Equal(t, "generate_image", entries[0].ContextMap()["tool"])
	}
}
