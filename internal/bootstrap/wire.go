package bootstrap

import (
	"strings"

	"calibmon/internal/config"
	"calibmon/internal/journal"
	"calibmon/internal/location"
	"calibmon/internal/logging"
	"calibmon/internal/ports"
	"calibmon/internal/providers/backend"
	"calibmon/internal/render"
	"calibmon/internal/timeutil"
	"calibmon/internal/usecase"
)

// Overrides are command-line values that take priority over config.
type Overrides struct {
	LaunchURL      string
	DeviceID       string
	SessionID      string
	BackendURL     string
	DisableJournal bool
}

// Runtime is the resolved configuration shared by every entry point.
type Runtime struct {
	Config     config.Config
	Launch     location.Launch
	DeviceID   string
	SessionID  string
	BackendURL string
	Logger     *logging.Logger
}

// Services is the assembled runtime graph.
type Services struct {
	Runtime
	Controller *usecase.SessionController
	Backend    *backend.Client
	Renderer   *render.Renderer
	Journal    *journal.Store
}

// Resolve loads configuration and applies the launch URL and overrides.
func Resolve(overrides Overrides) (Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return Runtime{}, err
	}

	if v := strings.TrimSpace(overrides.LaunchURL); v != "" {
		cfg.Calibration.LaunchURL = v
	}
	if v := strings.TrimSpace(overrides.BackendURL); v != "" {
		cfg.Backend.URL = v
	}
	if overrides.DisableJournal {
		cfg.Journal.Enabled = false
	}

	launch, err := location.Parse(cfg.Calibration.LaunchURL)
	if err != nil {
		return Runtime{}, err
	}

	logger := logging.New()
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger.SetLevel(level)

	rt := Runtime{
		Config:     cfg,
		Launch:     launch,
		DeviceID:   firstNonEmpty(overrides.DeviceID, cfg.Calibration.DeviceID, launch.DeviceID),
		SessionID:  firstNonEmpty(overrides.SessionID, cfg.Calibration.SessionID, launch.SessionID),
		BackendURL: firstNonEmpty(cfg.Backend.URL, launch.BackendBase(cfg.Backend.Port)),
		Logger:     logger,
	}
	return rt, nil
}

// NewBackend returns the HTTP client for the resolved backend.
func (rt Runtime) NewBackend() *backend.Client {
	return backend.NewClient(backend.Config{
		BaseURL:        rt.BackendURL,
		RequestTimeout: rt.Config.Backend.RequestTimeout,
	}, backend.WithLogger(rt.Logger))
}

// OpenJournal opens the run journal, or returns nil when it is disabled.
func (rt Runtime) OpenJournal() (*journal.Store, error) {
	if !rt.Config.Journal.Enabled {
		return nil, nil
	}
	return journal.Open(rt.Config.Journal.Path)
}

// Build wires all dependencies for a calibration session. onFinish may be nil.
func Build(events ports.EventSink, navigator ports.Navigator, onFinish func(), overrides Overrides) (Services, error) {
	rt, err := Resolve(overrides)
	if err != nil {
		return Services{}, err
	}

	store, err := rt.OpenJournal()
	if err != nil {
		rt.Logger.Warn("run journal unavailable", "path", rt.Config.Journal.Path, "error", err)
		store = nil
	}

	client := rt.NewBackend()
	renderer := render.NewRenderer(
		render.NewSurface(rt.Config.Render.Width, rt.Config.Render.Height),
		events.FrameRendered,
		render.WithLogger(rt.Logger),
	)

	deps := usecase.Dependencies{
		Sessions:  client,
		Progress:  client,
		Commands:  client,
		Stream:    backend.NewDialer(rt.BackendURL, rt.Logger),
		Renderer:  renderer,
		Events:    events,
		Navigator: navigator,
		Clock:     timeutil.RealClock{},
		Logger:    rt.Logger,
	}
	if store != nil {
		deps.Journal = store
	}

	controller := usecase.NewSessionController(deps, usecase.Config{
		DeviceID:       rt.DeviceID,
		SessionID:      rt.SessionID,
		LaunchURL:      rt.Launch.URL,
		PollInterval:   rt.Config.Calibration.PollInterval,
		GoodTimeTarget: rt.Config.Calibration.GoodTimeTarget,
		OnFinish:       onFinish,
	})

	return Services{
		Runtime:    rt,
		Controller: controller,
		Backend:    client,
		Renderer:   renderer,
		Journal:    store,
	}, nil
}

// Close stops the controller and releases the journal.
func (s Services) Close() error {
	if s.Controller != nil {
		s.Controller.Stop()
	}
	if s.Journal != nil {
		return s.Journal.Close()
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
