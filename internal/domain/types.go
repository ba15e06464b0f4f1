package domain

import "time"

// DefaultDeviceID is used when no device is named by the launch URL or config.
const DefaultDeviceID = "demo"

// Phase models the calibration lifecycle.
type Phase string

const (
	PhaseCalibrating Phase = "calibrating"
	PhaseFinalizing  Phase = "finalizing"
	PhaseDone        Phase = "done"
)

// PhaseReason provides a structured reason for published state changes.
type PhaseReason string

const (
	PhaseReasonStarted              PhaseReason = "started"
	PhaseReasonSessionResolved      PhaseReason = "session_resolved"
	PhaseReasonProgressUpdated      PhaseReason = "progress_updated"
	PhaseReasonLeftFrame            PhaseReason = "left_frame"
	PhaseReasonCalibrationComplete  PhaseReason = "calibration_complete"
	PhaseReasonCalibrationRestarted PhaseReason = "calibration_restarted"
	PhaseReasonModeSwitched         PhaseReason = "mode_switched"
	PhaseReasonRebootConfirmed      PhaseReason = "reboot_confirmed"
	PhaseReasonFinalizationStalled  PhaseReason = "finalization_stalled"
	PhaseReasonDeviceChanged        PhaseReason = "device_changed"
	PhaseReasonCompleted            PhaseReason = "completed"
)

// GuardState tracks a one-shot side effect.
type GuardState string

const (
	GuardNotStarted GuardState = "not_started"
	GuardInFlight   GuardState = "in_flight"
	GuardSucceeded  GuardState = "succeeded"
	GuardFailed     GuardState = "failed"
)

// Fired reports whether the guarded call has been issued at least once.
func (g GuardState) Fired() bool {
	return g != "" && g != GuardNotStarted
}

// SessionInfo is one entry of the device's session list.
type SessionInfo struct {
	ID   string `json:"id"`
	Modo string `json:"modo"`
}

// ProgressReport is the backend's view of sustained correct posture.
type ProgressReport struct {
	GoodTime float64 `json:"good_time"`
	Correcta bool    `json:"correcta"`
}

// ControlMessageTypeMode is the only control message kind the stream carries.
const ControlMessageTypeMode = "modo"

// ControlMessage is a structured message embedded in the video stream.
type ControlMessage struct {
	Type        string `json:"type"`
	Calibracion bool   `json:"calibracion"`
}

// IsCalibrationRestart reports whether the message forces calibration to start over.
func (m ControlMessage) IsCalibrationRestart() bool {
	return m.Type == ControlMessageTypeMode && m.Calibracion
}

// Snapshot is the published view of a calibration session.
type Snapshot struct {
	DeviceID              string     `json:"deviceId"`
	SessionID             string     `json:"sessionId,omitempty"`
	Phase                 Phase      `json:"phase"`
	Progress              float64    `json:"progress"`
	InFrame               bool       `json:"inFrame"`
	ModeSwitch            GuardState `json:"modeSwitch"`
	ForceRestart          GuardState `json:"forceRestart"`
	TerminalActionEnabled bool       `json:"terminalActionEnabled"`
	Visible               bool       `json:"visible"`
}

// RunOutcome classifies a journal entry.
type RunOutcome string

const (
	RunOutcomeConfirmed RunOutcome = "confirmed"
	RunOutcomeStalled   RunOutcome = "stalled"
	RunOutcomeCompleted RunOutcome = "completed"
)

// RunRecord is a journal entry written at the end of a calibration run.
type RunRecord struct {
	ID           string     `json:"id"`
	DeviceID     string     `json:"deviceId"`
	SessionID    string     `json:"sessionId"`
	Outcome      RunOutcome `json:"outcome"`
	ModeSwitch   GuardState `json:"modeSwitch"`
	ForceRestart GuardState `json:"forceRestart"`
	RecordedAt   time.Time  `json:"recordedAt"`
}

// RenderStats counts what happened to inbound frames.
type RenderStats struct {
	Drawn      uint64 `json:"drawn"`
	Superseded uint64 `json:"superseded"`
	Failed     uint64 `json:"failed"`
}
