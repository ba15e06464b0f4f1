package ports

import (
	"context"
	"image"

	"calibmon/internal/domain"
)

// SessionDirectory lists the calibration sessions known for a device.
type SessionDirectory interface {
	ListSessions(ctx context.Context, deviceID string) ([]domain.SessionInfo, error)
}

// ProgressSource reports calibration progress for a session.
type ProgressSource interface {
	Progress(ctx context.Context, sessionID string) (domain.ProgressReport, error)
}

// DeviceCommands issues the finalization side effects against a device.
type DeviceCommands interface {
	SetModeNormal(ctx context.Context, deviceID string) error
	ForceRestart(ctx context.Context, deviceID string) error
}

// StreamHandler receives classified messages from a video stream.
type StreamHandler interface {
	OnFrame(payload []byte)
	OnControl(msg domain.ControlMessage)
}

// StreamConnection is a live video stream.
type StreamConnection interface {
	Wait() error
	Close() error
}

// FrameStreamDialer opens the video stream for a device.
type FrameStreamDialer interface {
	Connect(ctx context.Context, deviceID string, handler StreamHandler) (StreamConnection, error)
}

// FrameRenderer paints the latest submitted frame onto its surface.
type FrameRenderer interface {
	Submit(payload []byte)
	Run(ctx context.Context)
	Stats() domain.RenderStats
}

// RunJournal persists the outcome of calibration runs.
type RunJournal interface {
	Record(ctx context.Context, record domain.RunRecord) error
}

// Navigator moves the host away from the calibration view.
type Navigator interface {
	Navigate(target string)
}

// EventSink emits controller state to the UI.
type EventSink interface {
	StateChanged(snapshot domain.Snapshot, reason domain.PhaseReason)
	FrameRendered(frame image.Image)
}
