package usecase

import (
	"context"
	"fmt"

	"calibmon/internal/domain"
	"calibmon/internal/ports"
)

type finalizeCommand string

const (
	commandModeSwitch   finalizeCommand = "mode_switch"
	commandForceRestart finalizeCommand = "force_restart"
)

// oneShot guards a device command so it is issued at most once per controller.
type oneShot struct {
	state domain.GuardState
}

func newOneShot() oneShot {
	return oneShot{state: domain.GuardNotStarted}
}

// arm moves the guard to in-flight and reports whether the caller should issue the command.
func (o *oneShot) arm() bool {
	if o.state.Fired() {
		return false
	}
	o.state = domain.GuardInFlight
	return true
}

func (o *oneShot) settle(err error) {
	if o.state != domain.GuardInFlight {
		return
	}
	if err != nil {
		o.state = domain.GuardFailed
		return
	}
	o.state = domain.GuardSucceeded
}

// finalizationSequencer issues the two device commands that follow a
// completed calibration: the mode switch and the forced restart.
type finalizationSequencer struct {
	commands     ports.DeviceCommands
	modeSwitch   oneShot
	forceRestart oneShot
}

func newFinalizationSequencer(commands ports.DeviceCommands) finalizationSequencer {
	return finalizationSequencer{
		commands:     commands,
		modeSwitch:   newOneShot(),
		forceRestart: newOneShot(),
	}
}

// arm returns the commands that have never been issued, marking them in flight.
func (s *finalizationSequencer) arm() []finalizeCommand {
	var pending []finalizeCommand
	if s.modeSwitch.arm() {
		pending = append(pending, commandModeSwitch)
	}
	if s.forceRestart.arm() {
		pending = append(pending, commandForceRestart)
	}
	return pending
}

// call performs the network request. It touches no loop state and may run
// on any goroutine.
func (s *finalizationSequencer) call(ctx context.Context, command finalizeCommand, deviceID string) error {
	switch command {
	case commandModeSwitch:
		return s.commands.SetModeNormal(ctx, deviceID)
	case commandForceRestart:
		return s.commands.ForceRestart(ctx, deviceID)
	default:
		return fmt.Errorf("unknown finalization command %q", command)
	}
}

func (s *finalizationSequencer) settle(command finalizeCommand, err error) {
	switch command {
	case commandModeSwitch:
		s.modeSwitch.settle(err)
	case commandForceRestart:
		s.forceRestart.settle(err)
	}
}

// rebootConfirmed reports whether the device acknowledged the forced restart.
// The mode switch outcome does not gate completion.
func (s *finalizationSequencer) rebootConfirmed() bool {
	return s.forceRestart.state == domain.GuardSucceeded
}

// stalled reports whether the forced restart failed. Nothing retries it, so
// the terminal action stays disabled for the life of the controller.
func (s *finalizationSequencer) stalled() bool {
	return s.forceRestart.state == domain.GuardFailed
}
