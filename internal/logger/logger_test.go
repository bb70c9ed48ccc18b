package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chimerakang/authkit-go/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{"console", config.LoggingConfig{Level: "info", Format: "console"}, false},
		{"json", config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"bad level", config.LoggingConfig{Level: "loud"}, true},
		{"bad format", config.LoggingConfig{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestSlog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Slog(zap.New(core))

	l.WarnContext(context.Background(), "secure storage write failed", "key", "authkit.user")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "secure storage write failed", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "authkit.user", entries[0].ContextMap()["key"])
}
