package usecase

import (
	"calibmon/internal/domain"
	"calibmon/internal/ports"
)

// sessionState is owned by the controller loop goroutine.
type sessionState struct {
	deviceID  string
	sessionID string
	phase     domain.Phase
	progress  float64
	inFrame   bool
	dismissed bool
}

func (s *sessionState) snapshot(seq *finalizationSequencer) domain.Snapshot {
	return domain.Snapshot{
		DeviceID:              s.deviceID,
		SessionID:             s.sessionID,
		Phase:                 s.phase,
		Progress:              s.progress,
		InFrame:               s.inFrame,
		ModeSwitch:            seq.modeSwitch.state,
		ForceRestart:          seq.forceRestart.state,
		TerminalActionEnabled: !s.dismissed && s.phase == domain.PhaseDone && seq.rebootConfirmed(),
		Visible:               !s.dismissed,
	}
}

func (s *sessionState) record(seq *finalizationSequencer, outcome domain.RunOutcome) domain.RunRecord {
	return domain.RunRecord{
		DeviceID:     s.deviceID,
		SessionID:    s.sessionID,
		Outcome:      outcome,
		ModeSwitch:   seq.modeSwitch.state,
		ForceRestart: seq.forceRestart.state,
	}
}

// Events posted into the controller loop.

type sessionResolvedEvent struct {
	deviceID  string
	sessionID string
	err       error
}

type pollResultEvent struct {
	generation uint64
	report     domain.ProgressReport
	err        error
}

type controlEvent struct {
	generation uint64
	msg        domain.ControlMessage
}

type finalizationResultEvent struct {
	command finalizeCommand
	err     error
}

type streamOpenedEvent struct {
	generation uint64
	deviceID   string
	conn       ports.StreamConnection
	err        error
}

type streamClosedEvent struct {
	generation uint64
	err        error
}

type changeDeviceRequest struct {
	deviceID string
	reply    chan error
}

type completeResult struct {
	target string
	err    error
}

type completeRequest struct {
	reply chan completeResult
}
