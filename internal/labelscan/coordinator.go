package labelscan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rcstation/internal/backend"
)

// Service is the label-printing and scan-confirmation backend.
type Service interface {
	PrintLabel(ctx context.Context, serial string) (backend.PrintResponse, error)
	CheckScanStatus(ctx context.Context, barcode string) (backend.ScanStatus, error)
}

type PrintResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Barcode string `json:"barcode,omitempty"`
}

// ReadyFunc is called once when the tracked barcode reaches "ready".
type ReadyFunc func(barcode string, status backend.ScanStatus)

type Stats struct {
	PrintRequests uint64 `json:"print_requests"`
	LoopsStarted  uint64 `json:"loops_started"`
	LoopsStopped  uint64 `json:"loops_stopped"`
	LoopsDone     uint64 `json:"loops_done"`
	Checks        uint64 `json:"checks"`
	CheckErrors   uint64 `json:"check_errors"`
}

// Ended is the number of loops that finished, by completion or cancellation.
func (s Stats) Ended() uint64 {
	return s.LoopsStopped + s.LoopsDone
}

// Coordinator prints labels and tracks their scan confirmation. At most one
// scan loop runs at a time.
type Coordinator struct {
	svc      Service
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	loopID  uint64
	cancel  context.CancelFunc
	barcode string
	stats   Stats
}

func New(svc Service, interval, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		svc:      svc,
		interval: interval,
		timeout:  timeout,
		log:      logger.With("component", "labelscan"),
	}
}

// Print cancels any outstanding scan loop, then sends the print request.
// A rejected print (success=false) is returned as a result, not an error.
func (c *Coordinator) Print(ctx context.Context, serial string) (PrintResult, error) {
	serial = strings.TrimSpace(serial)
	c.StopScan()

	c.mu.Lock()
	c.stats.PrintRequests++
	c.mu.Unlock()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.svc.PrintLabel(ctx, serial)
	if err != nil {
		c.log.Warn("print_failed", "serial", serial, "error", err)
		return PrintResult{}, fmt.Errorf("print label %s: %w", serial, err)
	}
	if !resp.Success {
		c.log.Warn("print_rejected", "serial", serial, "message", resp.Message)
		return PrintResult{Success: false, Message: resp.Message}, nil
	}
	c.log.Info("label_printed", "serial", serial)
	return PrintResult{Success: true, Message: resp.Message, Barcode: serial}, nil
}

// StartScan begins polling scan status for barcode, replacing any previous
// loop. The loop stops itself once the barcode is ready, or on StopScan or
// parent cancellation.
func (c *Coordinator) StartScan(parent context.Context, barcode string, onReady ReadyFunc) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return
	}

	c.mu.Lock()
	c.stopLocked()
	ctx, cancel := context.WithCancel(parent)
	c.loopID++
	id := c.loopID
	c.cancel = cancel
	c.barcode = barcode
	c.stats.LoopsStarted++
	c.mu.Unlock()

	c.log.Debug("scan_loop_started", "barcode", barcode, "loop", id)
	go c.scanLoop(ctx, id, barcode, onReady)
}

// StopScan cancels the active loop and reports whether there was one.
func (c *Coordinator) StopScan() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Coordinator) stopLocked() bool {
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.barcode = ""
	c.stats.LoopsStopped++
	return true
}

// Active returns the barcode being tracked, if any.
func (c *Coordinator) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.barcode, c.cancel != nil
}

// Check performs a single scan status request.
func (c *Coordinator) Check(ctx context.Context, barcode string) (backend.ScanStatus, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	st, err := c.svc.CheckScanStatus(ctx, barcode)
	c.mu.Lock()
	c.stats.Checks++
	if err != nil {
		c.stats.CheckErrors++
	}
	c.mu.Unlock()
	return st, err
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) scanLoop(ctx context.Context, id uint64, barcode string, onReady ReadyFunc) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := c.Check(ctx, barcode)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Debug("scan_check_failed", "barcode", barcode, "error", err)
			}
			continue
		}
		if !st.Ready() {
			continue
		}

		if !c.finish(id) {
			return
		}
		c.log.Info("label_scanned", "barcode", barcode, "status", st.Status)
		if onReady != nil {
			onReady(barcode, st)
		}
		return
	}
}

// finish retires loop id after a terminal status. It returns false when the
// loop was already replaced or stopped.
func (c *Coordinator) finish(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loopID != id || c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.barcode = ""
	c.stats.LoopsDone++
	return true
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
