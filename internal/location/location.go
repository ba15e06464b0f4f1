// Package location reads the calibration launch URL and computes where the
// host navigates once calibration completes.
package location

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"calibmon/internal/domain"
)

const (
	ParamDeviceID   = "device_id"
	ParamSessionID  = "session_id"
	ParamCalibrate  = "calibracion"
	ParamForceCalib = "forceCalib"
)

// Launch is the parsed launch URL together with the identifiers it seeds.
type Launch struct {
	URL       *url.URL
	DeviceID  string
	SessionID string
}

// Parse reads device_id and session_id from raw. A missing device id falls
// back to domain.DefaultDeviceID.
func Parse(raw string) (Launch, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "http://localhost/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Launch{}, fmt.Errorf("invalid launch url: %w", err)
	}

	query := u.Query()
	deviceID := strings.TrimSpace(query.Get(ParamDeviceID))
	if deviceID == "" {
		deviceID = domain.DefaultDeviceID
	}

	return Launch{
		URL:       u,
		DeviceID:  deviceID,
		SessionID: strings.TrimSpace(query.Get(ParamSessionID)),
	}, nil
}

// Host returns the launch URL's hostname, or localhost when it has none.
func (l Launch) Host() string {
	if l.URL == nil || l.URL.Hostname() == "" {
		return "localhost"
	}
	return l.URL.Hostname()
}

// BackendBase returns the backend origin on the launch host at port.
func (l Launch) BackendBase(port int) string {
	return "http://" + net.JoinHostPort(l.Host(), strconv.Itoa(port))
}

// CompletionTarget drops the calibration query parameters from u and points
// it at the root path. The result is a path plus optional query.
func CompletionTarget(u *url.URL) string {
	if u == nil {
		return "/"
	}
	query := u.Query()
	query.Del(ParamCalibrate)
	query.Del(ParamForceCalib)

	target := "/"
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}
