package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{" DEBUG ", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, levelFromEnv(tt.in))
		})
	}
}

func TestSetLevel(t *testing.T) {
	prev := level.Level()
	t.Cleanup(func() { level.SetLevel(prev) })

	SetLevel("error")
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.WarnLevel))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.ErrorLevel))

	SetLevel("debug")
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}
