package usecase

import (
	"context"
	"image"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"calibmon/internal/domain"
	"calibmon/internal/ports"
	"calibmon/internal/timeutil"
)

const (
	waitFor  = 2 * time.Second
	pollTick = 5 * time.Millisecond
)

type harness struct {
	clock      *timeutil.ManualClock
	sessions   *fakeDirectory
	progress   *fakeProgress
	commands   *fakeCommands
	dialer     *fakeDialer
	renderer   *fakeRenderer
	events     *fakeEventSink
	navigator  *fakeNavigator
	journal    *fakeJournal
	finished   atomic.Int32
	controller *SessionController
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		clock:     timeutil.NewManualClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		sessions:  &fakeDirectory{sessions: []domain.SessionInfo{{ID: "s-1"}}},
		progress:  &fakeProgress{},
		commands:  &fakeCommands{},
		dialer:    &fakeDialer{},
		renderer:  &fakeRenderer{},
		events:    &fakeEventSink{},
		navigator: &fakeNavigator{},
		journal:   &fakeJournal{},
	}
	if cfg.LaunchURL == nil {
		u, err := url.Parse("http://kiosk.local/?device_id=demo&calibracion=1&forceCalib=1")
		require.NoError(t, err)
		cfg.LaunchURL = u
	}
	cfg.OnFinish = func() { h.finished.Add(1) }

	h.controller = NewSessionController(Dependencies{
		Sessions:  h.sessions,
		Progress:  h.progress,
		Commands:  h.commands,
		Stream:    h.dialer,
		Renderer:  h.renderer,
		Events:    h.events,
		Navigator: h.navigator,
		Journal:   h.journal,
		Clock:     h.clock,
	}, cfg)
	t.Cleanup(h.controller.Stop)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.controller.Start(context.Background()))
}

// poll serves report to the next progress request, ticking until one is made.
func (h *harness) poll(t *testing.T, report domain.ProgressReport) {
	t.Helper()
	h.progress.set(report, nil)
	before := h.progress.callCount()
	require.Eventually(t, func() bool {
		h.clock.Tick()
		return h.progress.callCount() > before
	}, waitFor, pollTick)
}

func (h *harness) waitSnapshot(t *testing.T, match func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return match(h.controller.Snapshot())
	}, waitFor, pollTick)
	return h.controller.Snapshot()
}

func (h *harness) reachDone(t *testing.T) {
	t.Helper()
	h.poll(t, domain.ProgressReport{GoodTime: 10, Correcta: true})
	h.waitSnapshot(t, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseDone })
}

type fakeDirectory struct {
	mu       sync.Mutex
	sessions []domain.SessionInfo
	err      error
	devices  []string
}

func (f *fakeDirectory) ListSessions(_ context.Context, deviceID string) ([]domain.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, deviceID)
	return append([]domain.SessionInfo(nil), f.sessions...), f.err
}

func (f *fakeDirectory) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.devices...)
}

type fakeProgress struct {
	mu       sync.Mutex
	report   domain.ProgressReport
	err      error
	sessions []string
	gate     chan struct{}
}

func (f *fakeProgress) set(report domain.ProgressReport, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report = report
	f.err = err
}

func (f *fakeProgress) Progress(ctx context.Context, sessionID string) (domain.ProgressReport, error) {
	f.mu.Lock()
	f.sessions = append(f.sessions, sessionID)
	report, err, gate := f.report, f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.ProgressReport{}, ctx.Err()
		}
	}
	return report, err
}

func (f *fakeProgress) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeProgress) sessionIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

type fakeCommands struct {
	mu           sync.Mutex
	modeErr      error
	restartErr   error
	modeCalls    []string
	restartCalls []string
	// gate, when set, holds both commands until it is closed.
	gate chan struct{}
}

func (f *fakeCommands) SetModeNormal(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	f.modeCalls = append(f.modeCalls, deviceID)
	err, gate := f.modeErr, f.gate
	f.mu.Unlock()
	return waitGate(ctx, gate, err)
}

func (f *fakeCommands) ForceRestart(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	f.restartCalls = append(f.restartCalls, deviceID)
	err, gate := f.restartErr, f.gate
	f.mu.Unlock()
	return waitGate(ctx, gate, err)
}

func waitGate(ctx context.Context, gate chan struct{}, err error) error {
	if gate == nil {
		return err
	}
	select {
	case <-gate:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCommands) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modeCalls), len(f.restartCalls)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (f *fakeDialer) Connect(_ context.Context, deviceID string, handler ports.StreamHandler) (ports.StreamConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	conn := &fakeConn{deviceID: deviceID, handler: handler, closed: make(chan struct{})}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeDialer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeDialer) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type fakeConn struct {
	deviceID string
	handler  ports.StreamHandler
	closed   chan struct{}
	once     sync.Once
}

func (c *fakeConn) Wait() error {
	<-c.closed
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeRenderer struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeRenderer) Submit(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, payload)
}

func (f *fakeRenderer) Run(ctx context.Context) { <-ctx.Done() }

func (f *fakeRenderer) Stats() domain.RenderStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.RenderStats{Drawn: uint64(len(f.frames))}
}

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type stateEvent struct {
	snapshot domain.Snapshot
	reason   domain.PhaseReason
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []stateEvent
}

func (f *fakeEventSink) StateChanged(snapshot domain.Snapshot, reason domain.PhaseReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{snapshot: snapshot, reason: reason})
}

func (f *fakeEventSink) FrameRendered(image.Image) {}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) sawReason(reason domain.PhaseReason) bool {
	for _, state := range f.snapshotStates() {
		if state.reason == reason {
			return true
		}
	}
	return false
}

type fakeNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (f *fakeNavigator) Navigate(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
}

func (f *fakeNavigator) snapshotTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targets...)
}

type fakeJournal struct {
	mu      sync.Mutex
	records []domain.RunRecord
}

func (f *fakeJournal) Record(_ context.Context, record domain.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeJournal) outcomes() []domain.RunOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RunOutcome, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec.Outcome)
	}
	return out
}
