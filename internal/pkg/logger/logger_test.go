package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureEntry(t *testing.T, emit func()) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	emit()

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestComponentTagging(t *testing.T) {
	log := New("dispatch")
	entry := captureEntry(t, func() {
		log.Info("chunk complete", "batch_id", "b-1")
	})
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "chunk complete", entry["msg"])
	assert.Equal(t, "b-1", entry["batch_id"])
}

func TestRootLoggerOmitsComponent(t *testing.T) {
	entry := captureEntry(t, func() {
		Info("starting")
	})
	_, ok := entry["component"]
	assert.False(t, ok)
}

func TestEmailFieldsRedacted(t *testing.T) {
	log := New("sender")
	entry := captureEntry(t, func() {
		log.Warn("send failed",
			"recipient", "jane.doe@example.edu",
			"error", "mailbox jane.doe@example.edu is full")
	})
	assert.Equal(t, "ja***@example.edu", entry["recipient"])
	// Embedded addresses in generic fields are masked too.
	assert.Equal(t, "mailbox ja***@example.edu is full", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	SetLevel(WARN)
	defer SetLevel(INFO)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	New("api").Info("dropped")
	assert.Zero(t, buf.Len())
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "ja***@example.edu", RedactEmail("jane.doe@example.edu"))
	assert.Equal(t, "***@example.edu", RedactEmail("jd@example.edu"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
