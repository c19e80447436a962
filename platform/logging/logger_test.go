package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "WARN", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSONAddsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New(Config{
		ServiceName: "transaction",
		Env:         "docker",
		Output:      &buf,
	})
	require.NoError(t, err)

	logger.Info("transaction created")
	Sync(logger)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "transaction created", entry["msg"])
	assert.Equal(t, "transaction", entry["service"])
	assert.Equal(t, "docker", entry["env"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New(Config{ServiceName: "transaction", Env: "docker", Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	require.Empty(t, buf.String())

	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Config{ServiceName: "transaction", Env: "local", Format: "xml"})
	require.Error(t, err)
}
