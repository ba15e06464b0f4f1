package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"calibmon/internal/domain"
	"calibmon/internal/logging"
	"calibmon/internal/ports"
)

const closeGrace = time.Second

// Dialer implements ports.FrameStreamDialer against /video/output.
type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
	log     *logging.Logger
}

func NewDialer(baseURL string, logger *logging.Logger) *Dialer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dialer{
		baseURL: strings.TrimSpace(baseURL),
		dialer:  websocket.DefaultDialer,
		log:     logger,
	}
}

// Connect opens the device's video stream. The connection is never retried.
func (d *Dialer) Connect(ctx context.Context, deviceID string, handler ports.StreamHandler) (ports.StreamConnection, error) {
	wsURL, err := buildOutputURL(d.baseURL, deviceID)
	if err != nil {
		return nil, err
	}

	conn, _, err := d.dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to video stream: %w", err)
	}

	session := &streamSession{
		conn:    conn,
		handler: handler,
		log:     d.log.With("device_id", deviceID),
		done:    make(chan struct{}),
	}
	go session.readLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type streamSession struct {
	conn    *websocket.Conn
	handler ports.StreamHandler
	log     *logging.Logger
	done    chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closing   atomic.Bool
}

func (s *streamSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace),
		)
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// setErr records the first read failure. Normal closes from the peer and
// errors caused by our own Close are not failures.
func (s *streamSession) setErr(err error) {
	if err == nil || s.closing.Load() || isNormalClose(err) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("failed to read video stream: %w", err)
	}
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}

func (s *streamSession) readLoop() {
	defer close(s.done)

	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return
		}

		if kind == websocket.TextMessage {
			if msg, ok := decodeControl(payload); ok {
				s.handler.OnControl(msg)
				continue
			}
		}
		s.handler.OnFrame(payload)
	}
}

// decodeControl recognises the calibration-restart message. Anything else,
// including malformed JSON and {"type":"modo","calibracion":false}, is left
// for the frame path.
func decodeControl(payload []byte) (domain.ControlMessage, bool) {
	var msg domain.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.ControlMessage{}, false
	}
	if !msg.IsCalibrationRestart() {
		return domain.ControlMessage{}, false
	}
	return msg, true
}

func buildOutputURL(base string, deviceID string) (string, error) {
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	outputURL, err := url.Parse(base + "/video/output")
	if err != nil {
		return "", fmt.Errorf("invalid backend base URL: %w", err)
	}
	if outputURL.Scheme != "ws" && outputURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid backend base URL %q: unsupported scheme", base)
	}

	query := outputURL.Query()
	query.Set("device_id", deviceID)
	outputURL.RawQuery = query.Encode()
	return outputURL.String(), nil
}
