package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"calibmon/internal/domain"
	"calibmon/internal/location"
	"calibmon/internal/logging"
	"calibmon/internal/ports"
	"calibmon/internal/timeutil"
)

var (
	ErrAlreadyStarted         = errors.New("calibration controller already started")
	ErrNotStarted             = errors.New("calibration controller not started")
	ErrControllerStopped      = errors.New("calibration controller stopped")
	ErrTerminalActionDisabled = errors.New("calibration is not finished")
	ErrAlreadyCompleted       = errors.New("calibration already completed")
	ErrInvalidDevice          = errors.New("device id is required")
)

const journalWriteTimeout = 2 * time.Second

// Config controls a calibration session.
type Config struct {
	DeviceID       string
	SessionID      string
	LaunchURL      *url.URL
	PollInterval   time.Duration
	GoodTimeTarget float64
	// OnFinish runs on the loop goroutine when the terminal action is taken.
	OnFinish func()
}

// Dependencies are the controller's collaborators. Navigator, Journal, Clock
// and Logger are optional.
type Dependencies struct {
	Sessions  ports.SessionDirectory
	Progress  ports.ProgressSource
	Commands  ports.DeviceCommands
	Stream    ports.FrameStreamDialer
	Renderer  ports.FrameRenderer
	Events    ports.EventSink
	Navigator ports.Navigator
	Journal   ports.RunJournal
	Clock     timeutil.Clock
	Logger    *logging.Logger
}

// SessionController drives one device through calibration. All session
// state lives on a single loop goroutine; network calls run on helper
// goroutines and report back through the inbox.
type SessionController struct {
	deps Dependencies
	cfg  Config
	log  *logging.Logger

	inbox  chan any
	done   chan struct{}
	cancel context.CancelFunc
	bg     sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	snapMu    sync.RWMutex
	snap      domain.Snapshot
	published bool

	// Loop-owned.
	state     sessionState
	resolver  sessionResolver
	poller    progressPoller
	sequencer finalizationSequencer
	stream    frameStream
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.GoodTimeTarget <= 0 {
		cfg.GoodTimeTarget = defaultGoodTimeTarget
	}
	cfg.DeviceID = strings.TrimSpace(cfg.DeviceID)
	if cfg.DeviceID == "" {
		cfg.DeviceID = domain.DefaultDeviceID
	}

	c := &SessionController{
		deps:  deps,
		cfg:   cfg,
		log:   deps.Logger.With("component", "calibration"),
		inbox: make(chan any, 16),
		done:  make(chan struct{}),
		state: sessionState{
			deviceID:  cfg.DeviceID,
			sessionID: strings.TrimSpace(cfg.SessionID),
			phase:     domain.PhaseCalibrating,
		},
		resolver:  sessionResolver{directory: deps.Sessions},
		poller:    progressPoller{clock: deps.Clock, interval: cfg.PollInterval},
		sequencer: newFinalizationSequencer(deps.Commands),
	}
	c.stream.dialer = deps.Stream
	c.stream.renderer = deps.Renderer
	c.snap = c.state.snapshot(&c.sequencer)
	return c
}

// Start launches the session loop and the renderer. It may be called once.
func (c *SessionController) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.deps.Renderer.Run(runCtx)
	}()
	go c.run(runCtx)
	return nil
}

// Stop cancels outstanding work, closes the stream and waits for every
// helper goroutine. It is safe to call more than once.
func (c *SessionController) Stop() {
	c.lifecycleMu.Lock()
	if !c.started || c.stopped {
		c.lifecycleMu.Unlock()
		return
	}
	c.stopped = true
	c.lifecycleMu.Unlock()

	c.cancel()
	<-c.done
	c.bg.Wait()
}

// Snapshot returns the most recently published state.
func (c *SessionController) Snapshot() domain.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// ChangeDevice points the session at another device. The stream is
// reopened and, if no session is known yet, the session is resolved again.
func (c *SessionController) ChangeDevice(ctx context.Context, deviceID string) error {
	reply := make(chan error, 1)
	if err := c.request(ctx, changeDeviceRequest{deviceID: deviceID, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrControllerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete takes the terminal action: it runs OnFinish, hides the view and
// navigates to the completion target, which it also returns.
func (c *SessionController) Complete(ctx context.Context) (string, error) {
	reply := make(chan completeResult, 1)
	if err := c.request(ctx, completeRequest{reply: reply}); err != nil {
		return "", err
	}
	select {
	case res := <-reply:
		return res.target, res.err
	case <-c.done:
		select {
		case res := <-reply:
			return res.target, res.err
		default:
			return "", ErrControllerStopped
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *SessionController) request(ctx context.Context, ev any) error {
	c.lifecycleMu.Lock()
	started := c.started
	c.lifecycleMu.Unlock()
	if !started {
		return ErrNotStarted
	}

	select {
	case c.inbox <- ev:
		return nil
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a helper goroutine. It reports false once the
// loop has exited.
func (c *SessionController) post(ev any) bool {
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *SessionController) spawn(ctx context.Context, fn func(context.Context)) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(ctx)
	}()
}

func (c *SessionController) run(ctx context.Context) {
	defer close(c.done)
	defer c.teardown(ctx)

	c.log.Info("calibration started", "device", c.state.deviceID, "session", c.state.sessionID)
	c.openStream(ctx)
	c.resolver.armed = true
	c.reconcile(ctx, domain.PhaseReasonStarted)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.poller.ticks():
			c.pollOnce(ctx)
		case ev := <-c.inbox:
			c.handle(ctx, ev)
		}
	}
}

func (c *SessionController) teardown(ctx context.Context) {
	c.poller.stop()
	c.closeStream(ctx)
	c.log.Debug("calibration loop stopped", "device", c.state.deviceID)
}

func (c *SessionController) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case sessionResolvedEvent:
		c.onSessionResolved(ctx, ev)
	case pollResultEvent:
		c.onPollResult(ctx, ev)
	case controlEvent:
		c.onControl(ctx, ev)
	case finalizationResultEvent:
		c.onFinalizationResult(ctx, ev)
	case streamOpenedEvent:
		c.onStreamOpened(ctx, ev)
	case streamClosedEvent:
		c.onStreamClosed(ev)
	case changeDeviceRequest:
		ev.reply <- c.onChangeDevice(ctx, ev.deviceID)
	case completeRequest:
		target, err := c.onComplete(ctx)
		ev.reply <- completeResult{target: target, err: err}
	}
}

// reconcile brings side effects in line with the current state and publishes
// the snapshot if it changed.
func (c *SessionController) reconcile(ctx context.Context, reason domain.PhaseReason) {
	if c.resolver.shouldRun(&c.state) {
		c.launchResolve(ctx)
	}

	c.poller.sync(!c.state.dismissed &&
		c.state.phase == domain.PhaseCalibrating &&
		c.state.sessionID != "")

	if !c.state.dismissed && c.state.phase == domain.PhaseFinalizing {
		for _, command := range c.sequencer.arm() {
			c.launchFinalization(ctx, command)
		}
		if c.sequencer.rebootConfirmed() && c.setPhase(causeRebootConfirmed) == nil {
			reason = domain.PhaseReasonRebootConfirmed
			c.log.Info("device restart confirmed", "device", c.state.deviceID)
			c.recordRun(ctx, domain.RunOutcomeConfirmed)
		}
	}

	c.publish(reason)
}

func (c *SessionController) setPhase(cause transitionCause) error {
	next, err := nextPhase(c.state.phase, cause)
	if err != nil {
		c.log.Warn("phase transition rejected", "error", err)
		return err
	}
	c.state.phase = next
	return nil
}

func (c *SessionController) publish(reason domain.PhaseReason) {
	snap := c.state.snapshot(&c.sequencer)

	c.snapMu.Lock()
	changed := !c.published || snap != c.snap
	c.snap = snap
	c.published = true
	c.snapMu.Unlock()

	if changed {
		c.deps.Events.StateChanged(snap, reason)
	}
}

func (c *SessionController) launchResolve(ctx context.Context) {
	c.resolver.begin()
	deviceID := c.state.deviceID
	c.spawn(ctx, func(ctx context.Context) {
		c.post(c.resolver.resolve(ctx, deviceID))
	})
}

func (c *SessionController) onSessionResolved(ctx context.Context, ev sessionResolvedEvent) {
	c.resolver.inFlight = false

	switch {
	case ev.deviceID != c.state.deviceID:
		c.log.Debug("discarding session lookup for previous device", "device", ev.deviceID)
	case ev.err != nil:
		c.log.Warn("session lookup failed", "device", ev.deviceID, "error", ev.err)
	case c.state.sessionID == "" && !c.state.dismissed:
		c.state.sessionID = ev.sessionID
		c.log.Info("session resolved", "device", ev.deviceID, "session", ev.sessionID)
	}
	c.reconcile(ctx, domain.PhaseReasonSessionResolved)
}

func (c *SessionController) pollOnce(ctx context.Context) {
	generation, ok := c.poller.begin()
	if !ok {
		return
	}
	sessionID := c.state.sessionID
	c.spawn(ctx, func(ctx context.Context) {
		report, err := c.deps.Progress.Progress(ctx, sessionID)
		c.post(pollResultEvent{generation: generation, report: report, err: err})
	})
}

func (c *SessionController) onPollResult(ctx context.Context, ev pollResultEvent) {
	if !c.poller.finish(ev.generation) {
		return
	}
	if ev.err != nil {
		c.log.Debug("progress poll failed", "session", c.state.sessionID, "error", ev.err)
		return
	}
	if c.state.dismissed || c.state.phase != domain.PhaseCalibrating {
		return
	}

	decision := evaluateProgress(ev.report, c.cfg.GoodTimeTarget)
	c.state.progress = decision.progress
	c.state.inFrame = decision.inFrame

	reason := domain.PhaseReasonProgressUpdated
	if !ev.report.Correcta {
		reason = domain.PhaseReasonLeftFrame
	}
	if decision.complete && c.setPhase(causeCalibrationComplete) == nil {
		reason = domain.PhaseReasonCalibrationComplete
		c.log.Info("calibration complete", "device", c.state.deviceID, "session", c.state.sessionID)
	}
	c.reconcile(ctx, reason)
}

func (c *SessionController) onControl(ctx context.Context, ev controlEvent) {
	if c.state.dismissed || !c.stream.current(ev.generation) {
		return
	}
	if err := c.setPhase(causeRestart); err != nil {
		return
	}
	c.state.progress = 0
	c.state.inFrame = false
	c.log.Info("calibration restarted by device", "device", c.state.deviceID)
	c.reconcile(ctx, domain.PhaseReasonCalibrationRestarted)
}

func (c *SessionController) launchFinalization(ctx context.Context, command finalizeCommand) {
	deviceID := c.state.deviceID
	c.log.Debug("issuing finalization command", "command", string(command), "device", deviceID)
	c.spawn(ctx, func(ctx context.Context) {
		err := c.sequencer.call(ctx, command, deviceID)
		c.post(finalizationResultEvent{command: command, err: err})
	})
}

func (c *SessionController) onFinalizationResult(ctx context.Context, ev finalizationResultEvent) {
	c.sequencer.settle(ev.command, ev.err)

	var reason domain.PhaseReason
	switch ev.command {
	case commandModeSwitch:
		reason = domain.PhaseReasonModeSwitched
		if ev.err != nil {
			c.log.Warn("mode switch failed", "device", c.state.deviceID, "error", ev.err)
		}
	case commandForceRestart:
		reason = domain.PhaseReasonRebootConfirmed
		if c.sequencer.stalled() {
			reason = domain.PhaseReasonFinalizationStalled
			c.log.Error("device restart failed; calibration cannot finish", "device", c.state.deviceID, "error", ev.err)
			c.recordRun(ctx, domain.RunOutcomeStalled)
		}
	}
	c.reconcile(ctx, reason)
}

func (c *SessionController) openStream(ctx context.Context) {
	if c.stream.dialer == nil {
		return
	}
	generation, previous := c.stream.advance()
	c.closeConn(ctx, previous)

	deviceID := c.state.deviceID
	handler := &streamHandler{generation: generation, stream: &c.stream, post: c.post}
	c.spawn(ctx, func(ctx context.Context) {
		conn, err := c.stream.dialer.Connect(ctx, deviceID, handler)
		if !c.post(streamOpenedEvent{generation: generation, deviceID: deviceID, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	})
}

func (c *SessionController) closeStream(ctx context.Context) {
	_, previous := c.stream.advance()
	c.closeConn(ctx, previous)
}

func (c *SessionController) closeConn(ctx context.Context, conn ports.StreamConnection) {
	if conn == nil {
		return
	}
	c.spawn(ctx, func(context.Context) {
		if err := conn.Close(); err != nil {
			c.log.Debug("video stream close failed", "error", err)
		}
	})
}

func (c *SessionController) onStreamOpened(ctx context.Context, ev streamOpenedEvent) {
	if ev.err != nil {
		if c.stream.current(ev.generation) {
			c.log.Warn("video stream unavailable", "device", ev.deviceID, "error", ev.err)
		}
		return
	}
	if !c.stream.current(ev.generation) || c.state.dismissed {
		c.closeConn(ctx, ev.conn)
		return
	}

	c.stream.conn = ev.conn
	c.log.Debug("video stream open", "device", ev.deviceID)
	c.spawn(ctx, func(context.Context) {
		err := ev.conn.Wait()
		c.post(streamClosedEvent{generation: ev.generation, err: err})
	})
}

func (c *SessionController) onStreamClosed(ev streamClosedEvent) {
	if !c.stream.current(ev.generation) || c.stream.conn == nil {
		return
	}
	c.stream.conn = nil
	if ev.err != nil {
		c.log.Warn("video stream closed", "device", c.state.deviceID, "error", ev.err)
		return
	}
	c.log.Info("video stream ended", "device", c.state.deviceID)
}

func (c *SessionController) onChangeDevice(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return ErrInvalidDevice
	}
	if c.state.dismissed {
		return ErrAlreadyCompleted
	}
	if deviceID == c.state.deviceID {
		return nil
	}

	c.log.Info("device changed", "from", c.state.deviceID, "to", deviceID)
	c.state.deviceID = deviceID
	c.openStream(ctx)
	if c.state.sessionID == "" {
		c.resolver.armed = true
	}
	c.reconcile(ctx, domain.PhaseReasonDeviceChanged)
	return nil
}

func (c *SessionController) onComplete(ctx context.Context) (string, error) {
	if c.state.dismissed {
		return "", ErrAlreadyCompleted
	}
	if c.state.phase != domain.PhaseDone || !c.sequencer.rebootConfirmed() {
		return "", ErrTerminalActionDisabled
	}

	if c.cfg.OnFinish != nil {
		c.cfg.OnFinish()
	}
	target := location.CompletionTarget(c.cfg.LaunchURL)

	c.state.dismissed = true
	c.closeStream(ctx)
	c.recordRun(ctx, domain.RunOutcomeCompleted)
	c.reconcile(ctx, domain.PhaseReasonCompleted)
	c.log.Info("calibration finished", "device", c.state.deviceID, "target", target)

	if c.deps.Navigator != nil {
		c.deps.Navigator.Navigate(target)
	}
	return target, nil
}

// recordRun writes a journal entry without blocking the loop. The write
// outlives Stop's cancellation so a completed run is not lost.
func (c *SessionController) recordRun(ctx context.Context, outcome domain.RunOutcome) {
	if c.deps.Journal == nil {
		return
	}
	record := c.state.record(&c.sequencer, outcome)
	record.RecordedAt = c.deps.Clock.Now()
	c.spawn(ctx, func(ctx context.Context) {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
		defer cancel()
		if err := c.deps.Journal.Record(writeCtx, record); err != nil {
			c.log.Warn("journal write failed", "outcome", string(outcome), "error", err)
		}
	})
}
