package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBackendPort    = 8765
	DefaultPollInterval   = 800 * time.Millisecond
	DefaultRequestTimeout = 5 * time.Second
	DefaultGoodTimeTarget = 10.0
	DefaultSurfaceSize    = 420
	DefaultLogLevel       = "warn"
)

// Config stores runtime configuration for the calibration monitor.
type Config struct {
	Calibration CalibrationConfig `yaml:"calibration"`
	Backend     BackendConfig     `yaml:"backend"`
	Render      RenderConfig      `yaml:"render"`
	Journal     JournalConfig     `yaml:"journal"`
	Log         LogConfig         `yaml:"log"`
}

type CalibrationConfig struct {
	LaunchURL      string        `yaml:"launch_url"`
	DeviceID       string        `yaml:"device_id"`
	SessionID      string        `yaml:"session_id"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	GoodTimeTarget float64       `yaml:"good_time_target"`
}

type BackendConfig struct {
	URL            string        `yaml:"url"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type RenderConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Calibration: CalibrationConfig{
			LaunchURL:      "http://localhost/",
			PollInterval:   DefaultPollInterval,
			GoodTimeTarget: DefaultGoodTimeTarget,
		},
		Backend: BackendConfig{
			Port:           DefaultBackendPort,
			RequestTimeout: DefaultRequestTimeout,
		},
		Render:  RenderConfig{Width: DefaultSurfaceSize, Height: DefaultSurfaceSize},
		Journal: JournalConfig{Enabled: true},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// Load resolves configuration from defaults, an optional YAML file, and
// environment variables, in increasing priority.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Default()
	cfg.Journal.Path = filepath.Join(home, ".local", "share", "calibmon", "journal.db")

	path := strings.TrimSpace(os.Getenv("CALIBMON_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ".config", "calibmon", "config.yaml")
	}
	if err := loadFile(path, explicit, &cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, required bool, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Calibration.LaunchURL = envOrDefault("CALIBMON_LAUNCH_URL", cfg.Calibration.LaunchURL)
	cfg.Calibration.DeviceID = envOrDefault("CALIBMON_DEVICE_ID", cfg.Calibration.DeviceID)
	cfg.Calibration.SessionID = envOrDefault("CALIBMON_SESSION_ID", cfg.Calibration.SessionID)
	cfg.Calibration.PollInterval = envOrDefaultMillis("CALIBMON_POLL_INTERVAL_MS", cfg.Calibration.PollInterval)
	cfg.Calibration.GoodTimeTarget = envOrDefaultFloat("CALIBMON_GOOD_TIME_TARGET", cfg.Calibration.GoodTimeTarget)

	cfg.Backend.URL = envOrDefault("CALIBMON_BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.Port = envOrDefaultInt("CALIBMON_BACKEND_PORT", cfg.Backend.Port)
	cfg.Backend.RequestTimeout = envOrDefaultMillis("CALIBMON_REQUEST_TIMEOUT_MS", cfg.Backend.RequestTimeout)

	cfg.Render.Width = envOrDefaultInt("CALIBMON_SURFACE_WIDTH", cfg.Render.Width)
	cfg.Render.Height = envOrDefaultInt("CALIBMON_SURFACE_HEIGHT", cfg.Render.Height)

	cfg.Journal.Enabled = envOrDefaultBool("CALIBMON_JOURNAL", cfg.Journal.Enabled)
	cfg.Journal.Path = envOrDefault("CALIBMON_JOURNAL_PATH", cfg.Journal.Path)

	cfg.Log.Level = envOrDefault("CALIBMON_LOG_LEVEL", cfg.Log.Level)
}

// Validate checks that all config values are usable.
func Validate(cfg Config) error {
	if cfg.Calibration.PollInterval <= 0 {
		return ValidationError{Field: "calibration.poll_interval", Message: "must be positive"}
	}
	if cfg.Calibration.GoodTimeTarget <= 0 {
		return ValidationError{Field: "calibration.good_time_target", Message: "must be positive"}
	}
	if cfg.Backend.Port < 1 || cfg.Backend.Port > 65535 {
		return ValidationError{Field: "backend.port", Message: "must be between 1 and 65535"}
	}
	if cfg.Backend.RequestTimeout <= 0 {
		return ValidationError{Field: "backend.request_timeout", Message: "must be positive"}
	}
	if cfg.Render.Width <= 0 || cfg.Render.Height <= 0 {
		return ValidationError{Field: "render", Message: "width and height must be positive"}
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.Path) == "" {
		return ValidationError{Field: "journal.path", Message: "required when the journal is enabled"}
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
