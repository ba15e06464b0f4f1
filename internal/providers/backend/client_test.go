package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calibmon/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", RequestTimeout: time.Second})
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{BaseURL: " http://kiosk.local:8765/ "})
	assert.Equal(t, "http://kiosk.local:8765", c.BaseURL())
	assert.Equal(t, 5*time.Second, c.http.Timeout)

	custom := &http.Client{}
	c = NewClient(Config{}, WithHTTPClient(custom))
	assert.Same(t, custom, c.http)
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sesiones/", r.URL.Path)
		assert.Equal(t, "rig-1", r.URL.Query().Get("device_id"))
		_, _ = w.Write([]byte(`[{"id": 41, "modo": "calib"}, {"id": "s-42", "modo": "normal"}]`))
	})

	sessions, err := c.ListSessions(context.Background(), "rig-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionInfo{{ID: "41", Modo: "calib"}, {ID: "s-42", Modo: "normal"}}, sessions)
}

func TestListSessionsRejectsLatestWithoutID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "s-1", "modo": "calib"}, {"modo": "calib"}]`))
	})

	_, err := c.ListSessions(context.Background(), "rig-1")
	require.Error(t, err)
}

func TestListSessionsToleratesOlderEntriesWithoutID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"modo": "calib"}, {"id": null}, {"id": {"bad": 1}}, {"id": 7, "modo": "calib"}]`))
	})

	sessions, err := c.ListSessions(context.Background(), "rig-1")
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	assert.Equal(t, "", sessions[0].ID)
	assert.Equal(t, "", sessions[1].ID)
	assert.Equal(t, "", sessions[2].ID)
	assert.Equal(t, domain.SessionInfo{ID: "7", Modo: "calib"}, sessions[3])
}

func TestProgress(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calib/progress/s 1", r.URL.Path)
		_, _ = w.Write([]byte(`{"good_time": 4.5, "correcta": true}`))
	})

	report, err := c.Progress(context.Background(), "s 1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressReport{GoodTime: 4.5, Correcta: true}, report)
}

func TestProgressMalformed(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"good_time": 4.5}`))
	})

	_, err := c.Progress(context.Background(), "s-1")
	require.ErrorIs(t, err, ErrMalformedProgress)

	c = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err = c.Progress(context.Background(), "s-1")
	require.Error(t, err)
}

func TestDeviceCommands(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SetModeNormal(context.Background(), "rig-1"))
	require.NoError(t, c.ForceRestart(context.Background(), "rig-1"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/calib/mode/rig-1/normal", "/calib/force-restart/rig-1"}, paths)
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device unknown", http.StatusNotFound)
	})

	err := c.ForceRestart(context.Background(), "ghost")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "device unknown", statusErr.Body)
	assert.Contains(t, err.Error(), "POST /calib/force-restart/ghost")
}

func TestRequestHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Progress(ctx, "s-1")
	require.ErrorIs(t, err, context.Canceled)
}
