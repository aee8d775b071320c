package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWrapper_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).With(map[string]interface{}{"component": "search"})

	log.Debug("debug", nil)
	log.Info("searching", map[string]interface{}{"query": "пиджак"})
	log.WithError(errors.New("boom")).Warn("retrying", map[string]interface{}{"attempt": 1})
	log.Error("failed", map[string]interface{}{"err": errors.New("x")})

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	ctx := entries[1].ContextMap()
	assert.Equal(t, "search", ctx["component"])
	assert.Equal(t, "пиджак", ctx["query"])

	warnCtx := entries[2].ContextMap()
	assert.Equal(t, "boom", warnCtx["error"])
	assert.EqualValues(t, 1, warnCtx["attempt"])

	assert.Equal(t, "x", entries[3].ContextMap()["err"])
}

func TestComponent_TagsEveryEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapAdapter(zap.New(core)).Component("bucket_resolver")

	log.Info("probing", map[string]interface{}{"product_id": int64(184019230)})
	log.WithFields(map[string]interface{}{"bucket": 15}).Warn("fallback", nil)

	for _, e := range logs.All() {
		assert.Equal(t, "bucket_resolver", e.ContextMap()["component"])
	}
	assert.Equal(t, 2, logs.Len())
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New(tt.level, "json")
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	log.Info("ignored", map[string]interface{}{"k": "v"})
	assert.NotNil(t, log.WithFields(nil))
}
