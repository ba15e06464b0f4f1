package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"calibmon/internal/bootstrap"
	"calibmon/internal/domain"
)

const (
	eventState    = "calib:state"
	eventFrame    = "calib:frame"
	eventNavigate = "calib:navigate"
	eventError    = "calib:error"

	frameQuality = 80
)

// Status is the calibration state returned to the frontend.
type Status struct {
	domain.Snapshot
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a, nil, bootstrap.Overrides{})
	if err != nil {
		a.fail(err)
		return
	}
	if err := services.Controller.Start(ctx); err != nil {
		_ = services.Close()
		a.fail(err)
		return
	}
	a.services = services
}

func (a *App) shutdown(context.Context) {
	if err := a.services.Close(); err != nil && a.services.Logger != nil {
		a.services.Logger.Warn("shutdown failed", "error", err)
	}
}

func (a *App) fail(err error) {
	a.bootErr = err
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"message": "Startup failed",
		"detail":  err.Error(),
	})
}

// GetStatus returns the current calibration snapshot.
func (a *App) GetStatus() Status {
	if err := a.requireReady(); err != nil {
		return Status{Message: err.Error()}
	}
	return Status{Snapshot: a.services.Controller.Snapshot(), Ready: true}
}

// Finish runs the terminal action and returns the page the host should open.
func (a *App) Finish() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Controller.Complete(a.ctx)
}

// ChangeDevice points the session at another device.
func (a *App) ChangeDevice(deviceID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.ChangeDevice(a.ctx, deviceID)
}

// GetRuntimeInfo returns non-sensitive runtime details for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if err := a.requireReady(); err != nil {
		return map[string]string{"error": err.Error()}
	}

	rt := a.services.Runtime
	stats := a.services.Renderer.Stats()
	journal := "disabled"
	if a.services.Journal != nil {
		journal = rt.Config.Journal.Path
	}
	return map[string]string{
		"backend":          rt.BackendURL,
		"launchUrl":        rt.Config.Calibration.LaunchURL,
		"pollInterval":     rt.Config.Calibration.PollInterval.String(),
		"journal":          journal,
		"framesDrawn":      strconv.FormatUint(stats.Drawn, 10),
		"framesSuperseded": strconv.FormatUint(stats.Superseded, 10),
		"framesFailed":     strconv.FormatUint(stats.Failed, 10),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits calibration state to the frontend.
func (a *App) StateChanged(snapshot domain.Snapshot, reason domain.PhaseReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]any{
		"snapshot": snapshot,
		"reason":   string(reason),
		"message":  reasonMessage(reason),
	})
}

// FrameRendered emits the drawn surface as a base64 JPEG.
func (a *App) FrameRendered(frame image.Image) {
	if a.ctx == nil {
		return
	}
	encoded, err := encodeFrame(frame)
	if err != nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventFrame, encoded)
}

// Navigate asks the frontend to leave the calibration view.
func (a *App) Navigate(target string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventNavigate, map[string]string{"target": target})
}

func encodeFrame(frame image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: frameQuality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// reasonMessage is the hint shown for a state change. A stalled
// finalization has no message: the only symptom is that the action never
// appears.
func reasonMessage(reason domain.PhaseReason) string {
	switch reason {
	case domain.PhaseReasonStarted:
		return "Waiting for calibration session"
	case domain.PhaseReasonSessionResolved:
		return "Calibration session found"
	case domain.PhaseReasonProgressUpdated:
		return "Calibrating"
	case domain.PhaseReasonLeftFrame:
		return "Out of frame"
	case domain.PhaseReasonCalibrationComplete:
		return "Finishing calibration"
	case domain.PhaseReasonCalibrationRestarted:
		return "Calibration restarted by device"
	case domain.PhaseReasonModeSwitched:
		return "Device switched to normal mode"
	case domain.PhaseReasonRebootConfirmed:
		return "Device restart confirmed"
	case domain.PhaseReasonDeviceChanged:
		return "Device changed"
	case domain.PhaseReasonCompleted:
		return "Calibration complete"
	default:
		return ""
	}
}
