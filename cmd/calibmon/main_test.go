package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calibmon/internal/domain"
	"calibmon/internal/journal"
)

func TestSessionsCommandMarksLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sesiones/", r.URL.Path)
		assert.Equal(t, "rig-3", r.URL.Query().Get("device_id"))
		_, _ = w.Write([]byte(`[{"id": 7, "modo": "calib"}, {"id": "8", "modo": "normal"}]`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("CALIBMON_CONFIG", "")

	out, err := execute(t, "--backend-url", srv.URL, "--device-id", "rig-3", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "*  8")
	assert.Contains(t, out, "normal")
}

func TestHistoryCommandListsRuns(t *testing.T) {
	home := t.TempDir()
	dbPath := filepath.Join(home, "journal.db")
	t.Setenv("HOME", home)
	t.Setenv("CALIBMON_CONFIG", "")
	t.Setenv("CALIBMON_JOURNAL_PATH", dbPath)

	store, err := journal.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), domain.RunRecord{
		DeviceID:     "rig-1",
		SessionID:    "s-1",
		Outcome:      domain.RunOutcomeConfirmed,
		ModeSwitch:   domain.GuardSucceeded,
		ForceRestart: domain.GuardSucceeded,
		RecordedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}))
	require.NoError(t, store.Close())

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "rig-1")
	assert.Contains(t, out, "confirmed")

	out, err = execute(t, "history", "--device-id", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "no calibration runs recorded")
}

func TestHistoryCommandJournalDisabled(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CALIBMON_CONFIG", "")

	_, err := execute(t, "--no-journal", "history")
	require.EqualError(t, err, "run journal is disabled")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
