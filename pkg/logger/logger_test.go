package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &out); err != nil {
		return nil
	}
	return out
}

func TestLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	log.Info("award recorded", UserID("user-1"), XPAmount(50))

	line := lastLine(&buf)
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "award recorded", line["message"])
	fields := line["fields"].(map[string]any)
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, float64(50), fields["xp_amount"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "kept")
}

func TestLogger_WithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("event_bus"))

	log.Info("started")

	fields := lastLine(&buf)["fields"].(map[string]any)
	assert.Equal(t, "event_bus", fields["component"])
}

func TestLogger_CallSiteFieldOverridesBound(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(String("source", "bound"))

	log.Info("msg", String("source", "call"))

	fields := lastLine(&buf)["fields"].(map[string]any)
	assert.Equal(t, "call", fields["source"])
}

func TestErrField(t *testing.T) {
	assert.Nil(t, Err(nil).Value)
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
