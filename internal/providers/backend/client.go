package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calibmon/internal/domain"
	"calibmon/internal/logging"
)

// Config controls how the calibration backend is reached.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: backend returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: backend returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ErrMalformedProgress is returned when a progress payload lacks required fields.
var ErrMalformedProgress = errors.New("malformed progress response")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.log = logger
	}
}

// Client implements the session directory, progress source and device
// command ports over the backend's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
}

func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSessions returns the device's sessions in backend order, oldest first.
// Only the last entry needs a usable id; earlier ones keep an empty ID when
// theirs is missing or malformed.
func (c *Client) ListSessions(ctx context.Context, deviceID string) ([]domain.SessionInfo, error) {
	query := url.Values{}
	query.Set("device_id", deviceID)

	var payload []sessionDTO
	if err := c.getJSON(ctx, "/sesiones/?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	sessions := make([]domain.SessionInfo, 0, len(payload))
	for i, item := range payload {
		id, err := item.id()
		if err != nil && i == len(payload)-1 {
			return nil, err
		}
		sessions = append(sessions, domain.SessionInfo{ID: id, Modo: item.Modo})
	}
	return sessions, nil
}

// Progress returns the session's current good time and posture flag.
func (c *Client) Progress(ctx context.Context, sessionID string) (domain.ProgressReport, error) {
	var payload progressDTO
	if err := c.getJSON(ctx, "/calib/progress/"+url.PathEscape(sessionID), &payload); err != nil {
		return domain.ProgressReport{}, err
	}
	if payload.GoodTime == nil || payload.Correcta == nil {
		return domain.ProgressReport{}, ErrMalformedProgress
	}
	return domain.ProgressReport{GoodTime: *payload.GoodTime, Correcta: *payload.Correcta}, nil
}

// SetModeNormal switches the device back to its normal operating mode.
func (c *Client) SetModeNormal(ctx context.Context, deviceID string) error {
	return c.post(ctx, "/calib/mode/"+url.PathEscape(deviceID)+"/normal")
}

// ForceRestart asks the backend to close the device's upstream stream.
func (c *Client) ForceRestart(ctx context.Context, deviceID string) error {
	return c.post(ctx, "/calib/force-restart/"+url.PathEscape(deviceID))
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodPost, path)
	return err
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}
	c.log.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode)
	return payload, nil
}

type sessionDTO struct {
	ID   json.RawMessage `json:"id"`
	Modo string          `json:"modo"`
}

// id accepts numeric or string identifiers.
func (s sessionDTO) id() (string, error) {
	raw := bytes.TrimSpace(s.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("session entry without id")
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("invalid session id: %w", err)
		}
		return id, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", fmt.Errorf("invalid session id: %w", err)
	}
	return num.String(), nil
}

type progressDTO struct {
	GoodTime *float64 `json:"good_time"`
	Correcta *bool    `json:"correcta"`
}
