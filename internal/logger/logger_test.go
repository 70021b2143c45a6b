package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format  string
		level   string
		enabled zapcore.Level
		wantErr bool
	}{
		{format: "console", level: "debug", enabled: zapcore.DebugLevel},
		{format: "json", level: "warn", enabled: zapcore.WarnLevel},
		{format: "", level: "", enabled: zapcore.DebugLevel},
		{format: "xml", wantErr: true},
		{format: "json", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.level, func(t *testing.T) {
			l, err := NewLogger(tt.format, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			if tt.enabled > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.enabled-1))
			}
		})
	}
}
