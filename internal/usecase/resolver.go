package usecase

import (
	"context"
	"errors"

	"calibmon/internal/domain"
	"calibmon/internal/ports"
)

var errNoSessions = errors.New("device has no sessions")

// sessionResolver picks the device's most recent session once per arming.
// It is armed at start and on device change; failures are not retried.
type sessionResolver struct {
	directory ports.SessionDirectory
	armed     bool
	inFlight  bool
}

func (r *sessionResolver) shouldRun(state *sessionState) bool {
	return r.armed &&
		!r.inFlight &&
		!state.dismissed &&
		state.sessionID == "" &&
		state.deviceID != ""
}

func (r *sessionResolver) begin() {
	r.armed = false
	r.inFlight = true
}

func (r *sessionResolver) resolve(ctx context.Context, deviceID string) sessionResolvedEvent {
	event := sessionResolvedEvent{deviceID: deviceID}
	sessions, err := r.directory.ListSessions(ctx, deviceID)
	if err != nil {
		event.err = err
		return event
	}
	id, ok := latestSession(sessions)
	if !ok {
		event.err = errNoSessions
		return event
	}
	event.sessionID = id
	return event
}

// latestSession returns the last listed session, the most recently created one.
func latestSession(sessions []domain.SessionInfo) (string, bool) {
	if len(sessions) == 0 {
		return "", false
	}
	id := sessions[len(sessions)-1].ID
	return id, id != ""
}
