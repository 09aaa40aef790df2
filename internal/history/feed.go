// Package history keeps a periodically refreshed view of completed items.
package history

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rcstation/internal/backend"
)

type Source interface {
	ScannedItems(ctx context.Context) (backend.ScannedItems, error)
}

type Item struct {
	Barcode   string `json:"barcode"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type State struct {
	Items         []Item    `json:"items"`
	LastRefreshAt time.Time `json:"last_refresh_at"`
	LastRefreshOK bool      `json:"last_refresh_ok"`
	LastError     string    `json:"last_error,omitempty"`
	Refreshes     uint64    `json:"refreshes"`
	Failures      uint64    `json:"failures"`
}

// Feed never touches workflow state; a failed refresh keeps the previous
// items and is retried on the next tick.
type Feed struct {
	src      Source
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	trigger  chan struct{}

	mu    sync.RWMutex
	state State
}

func NewFeed(src Source, interval, timeout time.Duration, logger *slog.Logger) *Feed {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		src:      src,
		interval: interval,
		timeout:  timeout,
		log:      logger.With("component", "history"),
		trigger:  make(chan struct{}, 1),
	}
}

// Run refreshes once immediately, then on every tick or Trigger until ctx
// is done.
func (f *Feed) Run(ctx context.Context) error {
	f.refreshLogged(ctx, "startup")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.refreshLogged(ctx, "periodic")
		case <-f.trigger:
			f.refreshLogged(ctx, "triggered")
		}
	}
}

// Trigger asks Run for an early refresh. Extra triggers coalesce.
func (f *Feed) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

func (f *Feed) refreshLogged(ctx context.Context, reason string) {
	items, err := f.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warn("history_refresh_failed", "reason", reason, "error", err)
		}
		return
	}
	f.log.Debug("history_refreshed", "reason", reason, "items", len(items))
}

func (f *Feed) Refresh(parent context.Context) ([]Item, error) {
	ctx := parent
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, f.timeout)
		defer cancel()
	}

	resp, err := f.src.ScannedItems(ctx)
	if err == nil && !resp.Success {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "history request not successful"
		}
		err = errors.New(msg)
	}

	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.LastRefreshAt = now
	if err != nil {
		f.state.LastRefreshOK = false
		f.state.LastError = err.Error()
		f.state.Failures++
		return nil, err
	}

	items := make([]Item, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, Item{
			Barcode:   strings.TrimSpace(it.Barcode),
			Timestamp: strings.TrimSpace(it.Timestamp),
			Status:    strings.TrimSpace(it.Status),
		})
	}
	f.state.Items = items
	f.state.LastRefreshOK = true
	f.state.LastError = ""
	f.state.Refreshes++
	return cloneItems(items), nil
}

func (f *Feed) Items() []Item {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneItems(f.state.Items)
}

func (f *Feed) LastError() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.LastError
}

func (f *Feed) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := f.state
	out.Items = cloneItems(f.state.Items)
	return out
}

func cloneItems(in []Item) []Item {
	if len(in) == 0 {
		return []Item{}
	}
	out := make([]Item, len(in))
	copy(out, in)
	return out
}
