package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: INFO, Format: JSON, Output: &buf, Service: "meeting-booking-api"})

	log.With("request_id", "req-1").Info("Booking failed", "users", []int64{1, 2})

	rec := decode(t, &buf)
	assert.Equal(t, "Booking failed", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "meeting-booking-api", rec["service"])
	assert.NotContains(t, rec, "source")
}

func TestAddSource(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf, AddSource: true}).Info("hello")

	rec := decode(t, &buf)
	src, ok := rec["source"].(map[string]any)
	require.True(t, ok, "expected a source object, got %v", rec["source"])
	assert.True(t, strings.HasSuffix(src["file"].(string), "logger_test.go"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Format: TEXT, Output: &buf})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}
