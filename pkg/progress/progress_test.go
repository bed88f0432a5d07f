package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReporter(t *testing.T) {
	reporter := NewReporter(WithHidden(true))

	if reporter == nil {
		t.Fatal("NewReporter() returned nil")
	}
	if reporter.Event.Status != "initialized" {
		t.Errorf("Initial status = %q, want %q", reporter.Event.Status, "initialized")
	}
	if reporter.Event.Timestamp == "" {
		t.Error("Timestamp should not be empty")
	}
}

func TestReporterBegin(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(WithWriter(&buf))
	reporter.Begin("manifest", "Waiting for first segment")

	if reporter.Bar == nil {
		t.Fatal("Spinner should be initialized")
	}
	if reporter.Event.Status != "waiting" {
		t.Errorf("Status = %q, want %q", reporter.Event.Status, "waiting")
	}
	if reporter.Event.Step != "manifest" {
		t.Errorf("Step = %q, want %q", reporter.Event.Step, "manifest")
	}

	reporter.Tick()
	reporter.Tick()

	event := <-reporter.Updates()
	assert.Equal(t, "Waiting for first segment", event.Stage)
}

func TestReporterFinishClosesUpdates(t *testing.T) {
	reporter := NewReporter(WithHidden(true))
	reporter.Begin("starting", "Starting encoder")
	reporter.Finish("completed", "Stream stopped")

	assert.Nil(t, reporter.Bar)
	assert.Equal(t, "completed", reporter.Event.Status)
	assert.Equal(t, "starting", reporter.Event.Step)

	var events []Event
	for ev := range reporter.Updates() {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "waiting", events[0].Status)
	assert.Equal(t, "completed", events[1].Status)

	// Calls after completion are ignored.
	reporter.Begin("again", "ignored")
	reporter.Finish("failed", "ignored")
	reporter.Tick()
	assert.Equal(t, "completed", reporter.Event.Status)
}

func TestReporterJSON(t *testing.T) {
	reporter := NewReporter(WithHidden(true))
	reporter.Begin("probing", "Checking source")

	jsonStr, err := reporter.JSON()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &event))
	assert.Equal(t, "waiting", event.Status)
	assert.Equal(t, "probing", event.Step)
}

func TestReporterStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	reporter := NewReporter(WithHidden(true), WithStatusFile(path))

	reporter.Begin("starting", "Starting encoder")
	reporter.Finish("streaming", "Serving playlist.m3u8")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "streaming", event.Status)
	assert.Equal(t, "Serving playlist.m3u8", event.Stage)
	assert.GreaterOrEqual(t, event.ElapsedSeconds, 0.0)
}

func TestTrack(t *testing.T) {
	reporter := NewReporter(WithHidden(true))

	err := Track(context.Background(), reporter, "manifest", "Waiting", func(ctx context.Context) error {
		time.Sleep(250 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", reporter.Event.Status)
	assert.Nil(t, reporter.Bar)

	boom := errors.New("boom")
	err = Track(context.Background(), reporter, "starting", "Starting", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "waiting", reporter.Event.Status, "failed phases are finished by the caller")
}

func TestTrackWithoutReporter(t *testing.T) {
	called := false
	err := Track(context.Background(), nil, "s", "s", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
