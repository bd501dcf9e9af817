package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel logrus.Level
		wantErr   bool
	}{
		{name: "defaults", cfg: DefaultConfig(), wantLevel: logrus.InfoLevel},
		{name: "empty config", cfg: Config{}, wantLevel: logrus.InfoLevel},
		{name: "debug json", cfg: Config{Level: "debug", Format: "json"}, wantLevel: logrus.DebugLevel},
		{name: "unknown level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "unknown format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg, &bytes.Buffer{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, log.GetLevel())
		})
	}
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.WithFields(logrus.Fields{"contest_id": "c1", "kind": "score_clamped"}).Warn("data quality warning")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "c1", entry["contest_id"])
	assert.Equal(t, "score_clamped", entry["kind"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "data quality warning", entry["msg"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
