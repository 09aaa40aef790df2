package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rcstation/internal/backend"
	"rcstation/internal/device"
	"rcstation/internal/labelscan"
	"rcstation/internal/models"
	"rcstation/internal/registry"
	"rcstation/internal/validation"
)

const serial = "RC-102-000123"

type fakePoller struct {
	mu    sync.Mutex
	snap  device.Snapshot
	err   error
	gate  chan struct{}
	polls int
}

func (p *fakePoller) Poll(ctx context.Context) (device.Snapshot, error) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return device.Snapshot{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	return p.snap, p.err
}

func (p *fakePoller) present(snap device.Snapshot) {
	p.mu.Lock()
	p.snap, p.err = snap, nil
	p.mu.Unlock()
}

func (p *fakePoller) absent() {
	p.mu.Lock()
	p.snap, p.err = device.Snapshot{}, fmt.Errorf("poll: %w", device.ErrNoDevice)
	p.mu.Unlock()
}

type fakeLabels struct {
	mu         sync.Mutex
	printOK    bool
	printMsg   string
	printErr   error
	printed    []string
	readyAfter int // not-scanned answers before "ready"; <0 never ready
	checks     int
	printGate  chan struct{}
	checkGates []chan struct{} // call n waits on checkGates[n-1]
}

func (f *fakeLabels) PrintLabel(ctx context.Context, s string) (backend.PrintResponse, error) {
	f.mu.Lock()
	gate := f.printGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.PrintResponse{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.printed = append(f.printed, s)
	return backend.PrintResponse{Success: f.printOK, Message: f.printMsg}, f.printErr
}

func (f *fakeLabels) CheckScanStatus(ctx context.Context, _ string) (backend.ScanStatus, error) {
	f.mu.Lock()
	f.checks++
	n := f.checks
	var gate chan struct{}
	if n <= len(f.checkGates) {
		gate = f.checkGates[n-1]
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.ScanStatus{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readyAfter >= 0 && n > f.readyAfter {
		return backend.ScanStatus{Success: true, Scanned: true, Status: "ready"}, nil
	}
	return backend.ScanStatus{Success: true, Scanned: false}, nil
}

func (f *fakeLabels) configure(fn func(f *fakeLabels)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeLabels) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func (f *fakeLabels) printCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.printed)
}

type fakeConfig struct {
	mu         sync.Mutex
	validation bool
	print      bool
	err        error
}

func (c *fakeConfig) ConfigStatus(context.Context) (backend.ConfigStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return backend.ConfigStatus{Success: true, ValidationEnabled: c.validation, PrintEnabled: c.print}, c.err
}

func (c *fakeConfig) ToggleValidation(context.Context) (backend.ConfigStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return backend.ConfigStatus{}, c.err
	}
	c.validation = !c.validation
	return backend.ConfigStatus{Success: true, ValidationEnabled: c.validation}, nil
}

func (c *fakeConfig) TogglePrint(context.Context) (backend.ConfigStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return backend.ConfigStatus{}, c.err
	}
	c.print = !c.print
	return backend.ConfigStatus{Success: true, PrintEnabled: c.print}, nil
}

type fakeHistory struct{ n atomic.Int32 }

func (h *fakeHistory) Trigger() { h.n.Add(1) }

type harness struct {
	m      *Machine
	poller *fakePoller
	labels *fakeLabels
	coord  *labelscan.Coordinator
	cfg    *fakeConfig
	hist   *fakeHistory
	failed *registry.Failed
	models *models.Selector
}

func testTimings() Timings {
	return Timings{
		AutoPoll:          5 * time.Millisecond,
		Settle:            5 * time.Millisecond,
		AutoPrintDelay:    5 * time.Millisecond,
		DisconnectReset:   30 * time.Millisecond,
		PrintFailureReset: 30 * time.Millisecond,
		DoneResetAuto:     40 * time.Millisecond,
		DoneResetManual:   60 * time.Millisecond,
		WarningInterval:   time.Hour,
	}
}

func newHarness(t *testing.T, opts ...func(*Deps, *harness)) *harness {
	t.Helper()
	h := &harness{
		poller: &fakePoller{},
		labels: &fakeLabels{printOK: true, printMsg: "label printed", readyAfter: 3},
		cfg:    &fakeConfig{validation: true, print: true},
		hist:   &fakeHistory{},
		failed: registry.NewFailed(),
		models: models.NewSelector(""),
	}
	h.poller.absent()
	h.coord = labelscan.New(h.labels, 5*time.Millisecond, time.Second, nil)

	deps := Deps{
		Poller:  h.poller,
		Labels:  h.coord,
		Config:  h.cfg,
		History: h.hist,
		Models:  h.models,
		Failed:  h.failed,
		Timings: testTimings(),
	}
	for _, opt := range opts {
		opt(&deps, h)
	}
	h.m = New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func goodSnapshot(s string) device.Snapshot {
	return device.Snapshot{
		Serial:        s,
		PresentCount:  1,
		TestsOK:       true,
		CalibrationOK: true,
		ProgTime:      5 * time.Second,
		CalibTime:     3 * time.Second,
	}
}

func badSnapshot(s string) device.Snapshot {
	snap := goodSnapshot(s)
	snap.TestsOK = false
	return snap
}

func (h *harness) eventually(t *testing.T, cond func(Status) bool, msg string) Status {
	t.Helper()
	var last Status
	require.Eventually(t, func() bool {
		last = h.m.Status()
		return cond(last)
	}, 2*time.Second, time.Millisecond, msg)
	return last
}

func countNotices(st Status, kind NoticeKind, contains string) int {
	n := 0
	for _, notice := range st.Recent {
		if notice.Kind == kind && strings.Contains(notice.Message, contains) {
			n++
		}
	}
	return n
}

func TestAutoCycleCompletesAndAsksForDisconnect(t *testing.T) {
	h := newHarness(t)
	h.poller.present(goodSnapshot(serial))

	require.NoError(t, h.m.StartAuto(context.Background()))

	st := h.eventually(t, func(s Status) bool { return s.LastCompletedSerial == serial }, "cycle never completed")
	assert.Equal(t, 1, countNotices(st, NoticeScanned, serial))
	assert.GreaterOrEqual(t, h.hist.n.Load(), int32(1), "history refresh requested")

	stats := h.coord.Stats()
	assert.Equal(t, uint64(1), stats.LoopsStarted)
	assert.Equal(t, uint64(1), stats.LoopsDone)
	assert.Equal(t, uint64(1), stats.Ended(), "scan loop ends exactly once")

	st = h.eventually(t, func(s Status) bool {
		return s.Step == 0 && strings.Contains(s.Warning, "disconnect the previous device")
	}, "completed device still connected must trigger a disconnect warning")
	assert.Equal(t, serial, st.LastCompletedSerial)
	assert.Empty(t, st.ActiveSerial)
	assert.Empty(t, st.PrintedBarcode)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, h.labels.printCount(), "same device must not be processed twice")
	assert.Equal(t, 0, h.m.Status().Step)

	h.poller.absent()
	h.eventually(t, func(s Status) bool { return s.LastCompletedSerial == "" && s.Warning == "" },
		"disconnect clears completed-device memory")
}

func TestAutoModelMismatchStopsAutoMode(t *testing.T) {
	h := newHarness(t)
	h.models.Select("RC-103")
	h.poller.present(goodSnapshot(serial))

	require.NoError(t, h.m.StartAuto(context.Background()))

	st := h.eventually(t, func(s Status) bool { return countNotices(s, NoticeModelMismatch, serial) > 0 }, "mismatch not raised")
	assert.Equal(t, "manual", st.DriveMode)
	assert.Equal(t, 0, st.Step)

	var mismatch Notice
	for _, n := range st.Recent {
		if n.Kind == NoticeModelMismatch {
			mismatch = n
		}
	}
	assert.True(t, mismatch.Blocking)
	assert.Equal(t, 0, h.labels.printCount())
}

func TestFailedDeviceIsNotRevalidatedUntilDisconnect(t *testing.T) {
	h := newHarness(t)
	h.poller.present(badSnapshot(serial))

	require.NoError(t, h.m.StartAuto(context.Background()))

	st := h.eventually(t, func(s Status) bool { return s.State == "validating" }, "validation never failed")
	require.NotNil(t, st.Validation)
	assert.False(t, st.Validation.Ready)
	assert.Contains(t, st.Validation.Reasons, validation.ReasonTestsFailed)
	assert.Equal(t, []string{serial}, st.FailedSerials)
	assert.Equal(t, 2, st.Step)
	assert.False(t, st.DeviceReady)

	time.Sleep(50 * time.Millisecond)
	st = h.m.Status()
	assert.Equal(t, 1, countNotices(st, NoticeValidationFailed, ""), "registered serial must not be revalidated")
	assert.Equal(t, 1, countNotices(st, NoticeWarning, "already failed"), "repeated warning is throttled")
	assert.Contains(t, st.Warning, "already failed")

	h.poller.absent()
	h.eventually(t, func(s Status) bool { return s.Step == 0 && len(s.FailedSerials) == 0 },
		"disconnect must reset and clear the registry")

	h.poller.present(badSnapshot(serial))
	h.eventually(t, func(s Status) bool { return countNotices(s, NoticeValidationFailed, "") == 2 },
		"reconnected device is validated again")
}

func TestDifferentDeviceRestartsCycle(t *testing.T) {
	h := newHarness(t)
	h.poller.present(badSnapshot(serial))
	require.NoError(t, h.m.StartAuto(context.Background()))
	h.eventually(t, func(s Status) bool { return s.State == "validating" }, "first device not validated")

	h.labels.configure(func(f *fakeLabels) { f.readyAfter = -1 })
	h.poller.present(goodSnapshot("RC-102-000124"))
	st := h.eventually(t, func(s Status) bool { return s.State == "awaiting-scan" }, "second device not processed")
	assert.Equal(t, "RC-102-000124", st.ActiveSerial)
	assert.Equal(t, "RC-102-000124", st.PrintedBarcode)
}

func TestDisconnectWhileAwaitingScanKeepsPolling(t *testing.T) {
	h := newHarness(t)
	h.labels.configure(func(f *fakeLabels) { f.readyAfter = -1 })
	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.StartAuto(context.Background()))

	h.eventually(t, func(s Status) bool { return s.State == "awaiting-scan" }, "label never printed")
	h.poller.absent()

	time.Sleep(testTimings().DisconnectReset * 3)
	st := h.m.Status()
	assert.Equal(t, "awaiting-scan", st.State)
	assert.Equal(t, serial, st.PrintedBarcode)

	h.labels.configure(func(f *fakeLabels) { f.readyAfter = 0 })
	h.eventually(t, func(s Status) bool { return s.LastCompletedSerial == serial }, "scan not picked up after disconnect")
}

func TestDisconnectBeforePrintResets(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *harness) {
		d.Timings.AutoPrintDelay = time.Hour
	})
	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.StartAuto(context.Background()))
	h.eventually(t, func(s Status) bool { return s.State == "printing" }, "device never validated")

	h.poller.absent()
	st := h.eventually(t, func(s Status) bool { return s.Step == 0 }, "disconnect did not reset")
	assert.Equal(t, 1, countNotices(st, NoticeDisconnected, ""))
	assert.Equal(t, 0, h.labels.printCount())
}

func TestDisconnectDuringSettleNeverPrints(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *harness) {
		d.Timings.Settle = 40 * time.Millisecond
		d.Timings.DisconnectReset = 150 * time.Millisecond
	})
	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.StartAuto(context.Background()))
	h.eventually(t, func(s Status) bool { return s.State == "connecting" }, "device never detected")

	h.poller.absent()
	st := h.eventually(t, func(s Status) bool { return countNotices(s, NoticeDisconnected, "") == 1 }, "disconnect did not reset")
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, 0, h.labels.printCount(), "no label for a device that left before settling")
	assert.Equal(t, 0, countNotices(st, NoticeValidationFailed, ""))
}

func TestDisconnectResetSkippedOncePrinted(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(d *Deps, _ *harness) {
		d.Timings.DisconnectReset = 60 * time.Millisecond
	})
	h.labels.configure(func(f *fakeLabels) {
		f.readyAfter = -1
		f.printGate = gate
	})
	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.StartAuto(context.Background()))
	h.eventually(t, func(s Status) bool { return s.State == "printing" && s.Busy }, "print never started")

	// The device leaves while the print request is still outstanding.
	h.poller.absent()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	h.eventually(t, func(s Status) bool { return s.State == "awaiting-scan" }, "print result not applied")

	time.Sleep(testTimings().DisconnectReset * 4)
	st := h.m.Status()
	assert.Equal(t, "awaiting-scan", st.State, "scan tracking survives the pending disconnect reset")
	assert.Equal(t, serial, st.PrintedBarcode)
	assert.Equal(t, 0, countNotices(st, NoticeDisconnected, ""))
	_, active := h.coord.Active()
	assert.True(t, active)
}

func TestAutoPrintFailureResetsAfterDelay(t *testing.T) {
	h := newHarness(t)
	h.labels.configure(func(f *fakeLabels) {
		f.printOK = false
		f.printMsg = "printer offline"
	})
	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.StartAuto(context.Background()))

	st := h.eventually(t, func(s Status) bool { return countNotices(s, NoticeStep, "reset: print failed") > 0 }, "print failure never reset")
	assert.GreaterOrEqual(t, countNotices(st, NoticePrintFailed, "printer offline"), 1)
}

func TestManualCycle(t *testing.T) {
	h := newHarness(t, func(d *Deps, h *harness) {
		h.coord = labelscan.New(h.labels, time.Hour, time.Second, nil)
		d.Labels = h.coord
	})
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()

	require.ErrorIs(t, h.m.Print(ctx), ErrNotReady)
	require.ErrorIs(t, h.m.CheckScan(ctx), ErrNoLabel)

	require.NoError(t, h.m.Connect(ctx))
	st := h.eventually(t, func(s Status) bool { return s.State == "printing" }, "manual connect did not validate")
	assert.True(t, st.DeviceReady)
	assert.Equal(t, serial, st.ActiveSerial)

	require.NoError(t, h.m.Print(ctx))
	h.eventually(t, func(s Status) bool { return s.State == "awaiting-scan" }, "manual print failed")

	h.labels.configure(func(f *fakeLabels) { f.readyAfter = 100 })
	require.NoError(t, h.m.CheckScan(ctx))
	h.eventually(t, func(s Status) bool { return countNotices(s, NoticeInfo, "not scanned yet") == 1 }, "check result not reported")

	h.labels.configure(func(f *fakeLabels) { f.readyAfter = 0 })
	require.NoError(t, h.m.CheckScan(ctx))
	st = h.eventually(t, func(s Status) bool { return s.LastCompletedSerial == serial }, "manual check did not complete")
	assert.Equal(t, 1, countNotices(st, NoticeScanned, serial))

	h.eventually(t, func(s Status) bool { return s.Step == 0 }, "manual done reset missing")
}

func TestStaleCheckKeepsCurrentCheckBusy(t *testing.T) {
	first, second := make(chan struct{}), make(chan struct{})
	h := newHarness(t, func(d *Deps, h *harness) {
		h.labels.readyAfter = -1
		h.labels.checkGates = []chan struct{}{first, second}
		h.coord = labelscan.New(h.labels, time.Hour, time.Second, nil)
		d.Labels = h.coord
	})
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()

	printLabel := func() {
		require.NoError(t, h.m.Connect(ctx))
		h.eventually(t, func(s Status) bool { return s.State == "printing" }, "manual connect did not validate")
		require.NoError(t, h.m.Print(ctx))
		h.eventually(t, func(s Status) bool { return s.State == "awaiting-scan" }, "manual print failed")
	}

	printLabel()
	require.NoError(t, h.m.CheckScan(ctx))
	require.Eventually(t, func() bool { return h.labels.checkCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.m.Reset(ctx))
	printLabel()
	require.NoError(t, h.m.CheckScan(ctx))
	require.Eventually(t, func() bool { return h.labels.checkCount() == 2 }, time.Second, time.Millisecond)

	// The answer for the abandoned cycle must not release the current one.
	close(first)
	assert.Never(t, func() bool { return !h.m.Status().Busy }, 50*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, h.m.CheckScan(ctx), ErrBusy)

	close(second)
	st := h.eventually(t, func(s Status) bool { return !s.Busy }, "current check never finished")
	assert.Equal(t, 1, countNotices(st, NoticeInfo, "not scanned yet"))
}

func TestManualPrintFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.labels.configure(func(f *fakeLabels) { f.printErr = errors.New("connection refused") })
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.State == "printing" }, "not validated")
	require.NoError(t, h.m.Print(ctx))

	st := h.eventually(t, func(s Status) bool { return s.PrintError != "" }, "print error not surfaced")
	assert.Contains(t, st.PrintError, "connection refused")

	time.Sleep(testTimings().PrintFailureReset * 2)
	assert.Equal(t, "printing", h.m.Status().State, "manual mode keeps the print step")

	h.labels.configure(func(f *fakeLabels) { f.printErr = nil })
	require.NoError(t, h.m.Print(ctx))
	h.eventually(t, func(s Status) bool { return s.Step == 4 }, "retry did not print")
}

func TestManualValidationFailureAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.poller.present(badSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.State == "validating" }, "not rejected")

	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.State == "printing" }, "manual retry was blocked")
}

func TestManualPassForgetsEarlierFailure(t *testing.T) {
	h := newHarness(t)
	h.poller.present(badSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.State == "validating" }, "not rejected")
	assert.Equal(t, []string{serial}, h.m.Status().FailedSerials)

	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.Connect(ctx))
	st := h.eventually(t, func(s Status) bool { return s.State == "printing" }, "manual retry was blocked")
	assert.Empty(t, st.FailedSerials)

	require.NoError(t, h.m.StartAuto(ctx))
	st = h.eventually(t, func(s Status) bool { return s.State == "printing" || s.Step == 4 }, "auto mode did not pick up the passing device")
	assert.Empty(t, st.Warning)
	assert.Equal(t, 0, countNotices(st, NoticeWarning, "already failed"))
}

func TestStartAutoClearsManualFailures(t *testing.T) {
	h := newHarness(t)
	h.poller.present(badSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return len(s.FailedSerials) == 1 }, "not registered")

	h.poller.present(goodSnapshot(serial))
	require.NoError(t, h.m.StartAuto(ctx))
	h.eventually(t, func(s Status) bool { return s.Step >= 3 }, "device fixed between modes was not processed")
}

func TestManualModelMismatchAbortsAttemptOnly(t *testing.T) {
	h := newHarness(t)
	h.models.Select("RC-103")
	h.poller.present(goodSnapshot(serial))

	require.NoError(t, h.m.Connect(context.Background()))
	st := h.eventually(t, func(s Status) bool { return countNotices(s, NoticeModelMismatch, "") == 1 }, "no mismatch notice")
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, "manual", st.DriveMode)
	for _, n := range st.Recent {
		if n.Kind == NoticeModelMismatch {
			assert.False(t, n.Blocking)
		}
	}
	assert.Empty(t, st.FailedSerials)
}

func TestManualControlsRejectedInAutoMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.StartAuto(ctx))

	assert.ErrorIs(t, h.m.Connect(ctx), ErrAutoActive)
	assert.ErrorIs(t, h.m.Print(ctx), ErrAutoActive)

	require.NoError(t, h.m.ToggleAuto(ctx))
	assert.Equal(t, "manual", h.m.Status().DriveMode)
}

func TestStopAutoClearsRegistry(t *testing.T) {
	h := newHarness(t)
	h.poller.present(badSnapshot(serial))
	ctx := context.Background()
	require.NoError(t, h.m.StartAuto(ctx))
	h.eventually(t, func(s Status) bool { return len(s.FailedSerials) == 1 }, "serial not registered")

	require.NoError(t, h.m.StopAuto(ctx))
	st := h.m.Status()
	assert.Equal(t, "manual", st.DriveMode)
	assert.Equal(t, 0, st.Step)
	assert.Empty(t, st.FailedSerials)
	assert.Equal(t, 0, h.failed.Size())
}

func TestToggleValidationResetsWorkflow(t *testing.T) {
	h := newHarness(t)
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.Step == 3 }, "not validated")
	h.failed.Add("RC-102-000999")

	require.NoError(t, h.m.ToggleValidation(ctx))
	st := h.m.Status()
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, "test-only", st.ValidationMode)
	assert.Empty(t, st.FailedSerials)
	assert.Equal(t, PrintActionLabel(validation.TestOnly, Physical), st.PrintAction)

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.Step == 3 }, "not validated again")
	require.NoError(t, h.m.TogglePrintMode(ctx))
	st = h.m.Status()
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, "simulated", st.PrintMode)
}

func TestToggleFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()
	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.Step == 3 }, "not validated")

	h.cfg.mu.Lock()
	h.cfg.err = errors.New("backend down")
	h.cfg.mu.Unlock()

	require.Error(t, h.m.ToggleValidation(ctx))
	st := h.m.Status()
	assert.Equal(t, 3, st.Step)
	assert.Equal(t, "strict", st.ValidationMode)
}

func TestRefreshConfigAppliesModesWithoutReset(t *testing.T) {
	h := newHarness(t)
	h.cfg.validation, h.cfg.print = false, false
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	h.eventually(t, func(s Status) bool { return s.Step == 3 }, "not validated")

	require.NoError(t, h.m.RefreshConfig(ctx))
	st := h.m.Status()
	assert.Equal(t, 3, st.Step)
	assert.Equal(t, "test-only", st.ValidationMode)
	assert.Equal(t, "simulated", st.PrintMode)
	assert.Equal(t, "Simulate label (test)", st.PrintAction)
}

func TestStaleConnectResultIsDiscarded(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.poller.mu.Lock()
	h.poller.gate = gate
	h.poller.mu.Unlock()
	h.poller.present(goodSnapshot(serial))
	ctx := context.Background()

	require.NoError(t, h.m.Connect(ctx))
	assert.True(t, h.m.Status().Busy)
	assert.ErrorIs(t, h.m.Connect(ctx), ErrBusy)

	require.NoError(t, h.m.Reset(ctx))
	close(gate)

	time.Sleep(30 * time.Millisecond)
	st := h.m.Status()
	assert.Equal(t, 0, st.Step)
	assert.False(t, st.Busy)
	assert.Empty(t, st.ActiveSerial)
}

func TestSelectModel(t *testing.T) {
	catalog, err := models.DefaultCatalog()
	require.NoError(t, err)
	h := newHarness(t, func(d *Deps, _ *harness) { d.Catalog = catalog })
	ctx := context.Background()

	require.ErrorIs(t, h.m.SelectModel(ctx, "XX-999"), ErrUnknownModel)

	require.NoError(t, h.m.StartAuto(ctx))
	require.NoError(t, h.m.SelectModel(ctx, "RC-103"))
	st := h.m.Status()
	assert.Equal(t, "RC-103", st.Model)
	assert.Equal(t, "manual", st.DriveMode, "selecting a model cancels auto mode")

	require.NoError(t, h.m.SelectModel(ctx, ""))
	assert.Empty(t, h.m.Status().Model)
}

func TestOperationsFailWhenStopped(t *testing.T) {
	m := New(Deps{Poller: &fakePoller{}, Timings: testTimings()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.ErrorIs(t, m.Reset(context.Background()), ErrNotRunning)
	assert.Error(t, m.Run(context.Background()), "second Run is rejected")
}

func TestNoticesChannelDeliversEvents(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.StartAuto(context.Background()))

	select {
	case n := <-h.m.Notices():
		assert.Equal(t, NoticeModeChanged, n.Kind)
		assert.False(t, n.IsError())
	case <-time.After(time.Second):
		t.Fatal("no notice delivered")
	}
}

func TestPrintActionLabel(t *testing.T) {
	assert.Equal(t, "Create and print label", PrintActionLabel(validation.Strict, Physical))
	assert.Equal(t, "Create label (no print)", PrintActionLabel(validation.Strict, Simulated))
	assert.Equal(t, "Create and print label (test)", PrintActionLabel(validation.TestOnly, Physical))
	assert.Equal(t, "Simulate label (test)", PrintActionLabel(validation.TestOnly, Simulated))
}

func TestStateSteps(t *testing.T) {
	cases := []struct {
		state State
		step  int
	}{
		{Idle{}, 0},
		{Connecting{Device: serial}, 1},
		{Validating{Device: serial}, 2},
		{Printing{Device: serial}, 3},
		{AwaitingScan{Device: serial, Barcode: serial}, 4},
		{Done{Device: serial, Barcode: serial}, 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.step, tc.state.Step(), tc.state.Name())
		if tc.step == 0 {
			assert.Empty(t, tc.state.Serial())
		} else {
			assert.Equal(t, serial, tc.state.Serial(), "serial set iff step >= 1")
		}
	}
}
