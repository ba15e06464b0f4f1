package usecase

import (
	"errors"
	"fmt"

	"calibmon/internal/domain"
)

// ErrIllegalTransition is returned when a cause cannot move the current phase.
var ErrIllegalTransition = errors.New("illegal phase transition")

type transitionCause string

const (
	causeCalibrationComplete transitionCause = "calibration_complete"
	causeRebootConfirmed     transitionCause = "reboot_confirmed"
	causeRestart             transitionCause = "restart"
)

// nextPhase is the only place phase edges are defined. Phases only move
// forward, except that an explicit restart returns any phase to calibrating.
func nextPhase(from domain.Phase, cause transitionCause) (domain.Phase, error) {
	switch cause {
	case causeRestart:
		return domain.PhaseCalibrating, nil
	case causeCalibrationComplete:
		if from == domain.PhaseCalibrating {
			return domain.PhaseFinalizing, nil
		}
	case causeRebootConfirmed:
		if from == domain.PhaseFinalizing {
			return domain.PhaseDone, nil
		}
	}
	return from, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, cause, from)
}
