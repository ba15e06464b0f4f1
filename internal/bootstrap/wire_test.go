package bootstrap

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calibmon/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CALIBMON_CONFIG", "")
	t.Setenv("CALIBMON_LAUNCH_URL", "http://kiosk.local:3000/calibrate?device_id=rig-4&calibracion=1")

	services, err := Build(noopEventSink{}, noopNavigator{}, nil, Overrides{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Close() })

	require.NotNil(t, services.Controller)
	require.NotNil(t, services.Journal)
	assert.Equal(t, "rig-4", services.DeviceID)
	assert.Equal(t, "http://kiosk.local:8765", services.BackendURL)
	assert.Equal(t, "http://kiosk.local:8765", services.Backend.BaseURL())
	assert.Equal(t, "rig-4", services.Controller.Snapshot().DeviceID)
	assert.FileExists(t, filepath.Join(home, ".local", "share", "calibmon", "journal.db"))
}

func TestBuildOverridesWin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CALIBMON_CONFIG", "")
	t.Setenv("CALIBMON_DEVICE_ID", "from-env")
	t.Setenv("CALIBMON_BACKEND_URL", "http://env-backend:9000")

	services, err := Build(noopEventSink{}, noopNavigator{}, nil, Overrides{
		DeviceID:       "from-flag",
		SessionID:      "s-9",
		DisableJournal: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Close() })

	assert.Nil(t, services.Journal)
	assert.Equal(t, "from-flag", services.DeviceID)
	assert.Equal(t, "s-9", services.SessionID)
	assert.Equal(t, "http://env-backend:9000", services.BackendURL)
	assert.Equal(t, "s-9", services.Controller.Snapshot().SessionID)
}

func TestResolveReadsYAMLFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "calibmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calibration:\n  device_id: yaml-rig\nbackend:\n  port: 9100\n"), 0o600))

	t.Setenv("HOME", home)
	t.Setenv("CALIBMON_CONFIG", path)

	rt, err := Resolve(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "yaml-rig", rt.DeviceID)
	assert.Equal(t, "http://localhost:9100", rt.BackendURL)
	assert.Equal(t, domain.DefaultDeviceID, rt.Launch.DeviceID)
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CALIBMON_CONFIG", "")
	t.Setenv("CALIBMON_BACKEND_PORT", "70000")

	_, err := Build(noopEventSink{}, noopNavigator{}, nil, Overrides{})
	require.Error(t, err)
}

func TestBuildFailsOnInvalidLaunchURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CALIBMON_CONFIG", "")

	_, err := Build(noopEventSink{}, noopNavigator{}, nil, Overrides{LaunchURL: "http://[::1"})
	require.Error(t, err)
}

type noopEventSink struct{}

func (noopEventSink) StateChanged(domain.Snapshot, domain.PhaseReason) {}
func (noopEventSink) FrameRendered(image.Image)                        {}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}
