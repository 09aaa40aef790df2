package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rcstation/internal/backend"
)

// ErrNoDevice means the backend answered but there is not exactly one
// device to work with. Callers treat it as "nothing connected".
var ErrNoDevice = errors.New("no device")

// StatusSource is the part of the backend client the poller needs.
type StatusSource interface {
	DeviceStatus(ctx context.Context) (backend.DeviceStatus, error)
}

type Poller struct {
	src     StatusSource
	timeout time.Duration
	log     *slog.Logger
}

func NewPoller(src StatusSource, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		src:     src,
		timeout: timeout,
		log:     logger.With("component", "poller"),
	}
}

// Poll fetches and normalizes the current device status. It returns
// ErrNoDevice (wrapped with the backend message) when the response does not
// describe exactly one device, and any other error for transport or decode
// failures, which are transient.
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.src.DeviceStatus(ctx)
	if err != nil {
		p.log.Debug("poll_failed", "error", err)
		return Snapshot{}, fmt.Errorf("device status: %w", err)
	}
	return Normalize(raw)
}

// Normalize maps a raw device_status payload to a Snapshot.
func Normalize(raw backend.DeviceStatus) (Snapshot, error) {
	if !raw.Success {
		return Snapshot{}, noDevice(raw.Message)
	}
	if raw.DeviceCount != 1 {
		return Snapshot{}, noDevice(fmt.Sprintf("device_count=%d", raw.DeviceCount))
	}
	serial := strings.TrimSpace(raw.Serial)
	if serial == "" {
		return Snapshot{}, noDevice("empty serial")
	}

	return Snapshot{
		Serial:        serial,
		PresentCount:  raw.DeviceCount,
		TestsOK:       bool(raw.TestsOK),
		CalibrationOK: bool(raw.CalibrationOK),
		ProgTime:      seconds(raw.ProgTime),
		CalibTime:     seconds(raw.CalibTime),
		Status:        strings.TrimSpace(raw.Status),
	}, nil
}

func noDevice(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrNoDevice
	}
	return fmt.Errorf("%w: %s", ErrNoDevice, reason)
}

func seconds(n backend.Number) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
