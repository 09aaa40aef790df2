// Package workflow drives a connected device through connect, validate,
// print and scan confirmation.
//
// All state lives on a single event-loop goroutine started by Run. Operator
// calls, poll results, print and scan results and timer firings are posted to
// that loop as events. Every asynchronous result carries the drive-session and
// cycle tokens it was issued under and is dropped if either has moved on.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"rcstation/internal/backend"
	"rcstation/internal/device"
	"rcstation/internal/labelscan"
	"rcstation/internal/models"
	"rcstation/internal/registry"
	"rcstation/internal/validation"
)

type Poller interface {
	Poll(ctx context.Context) (device.Snapshot, error)
}

type Labeler interface {
	Print(ctx context.Context, serial string) (labelscan.PrintResult, error)
	StartScan(parent context.Context, barcode string, onReady labelscan.ReadyFunc)
	StopScan() bool
	Check(ctx context.Context, barcode string) (backend.ScanStatus, error)
}

type ConfigService interface {
	ConfigStatus(ctx context.Context) (backend.ConfigStatus, error)
	ToggleValidation(ctx context.Context) (backend.ConfigStatus, error)
	TogglePrint(ctx context.Context) (backend.ConfigStatus, error)
}

type HistoryTrigger interface {
	Trigger()
}

type Timings struct {
	AutoPoll          time.Duration
	Settle            time.Duration
	AutoPrintDelay    time.Duration
	DisconnectReset   time.Duration
	PrintFailureReset time.Duration
	DoneResetAuto     time.Duration
	DoneResetManual   time.Duration
	WarningInterval   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		AutoPoll:          time.Second,
		Settle:            500 * time.Millisecond,
		AutoPrintDelay:    time.Second,
		DisconnectReset:   3 * time.Second,
		PrintFailureReset: 3 * time.Second,
		DoneResetAuto:     3 * time.Second,
		DoneResetManual:   5 * time.Second,
		WarningInterval:   2 * time.Second,
	}
}

type Deps struct {
	Poller  Poller
	Labels  Labeler
	Config  ConfigService
	History HistoryTrigger
	Models  *models.Selector
	Catalog models.Catalog
	Failed  *registry.Failed
	Timings Timings
	Logger  *slog.Logger
}

var (
	ErrAutoActive   = errors.New("disable auto mode for manual control")
	ErrNotRunning   = errors.New("workflow machine is not running")
	ErrBusy         = errors.New("operation already in progress")
	ErrNotReady     = errors.New("device is not ready to print")
	ErrNoLabel      = errors.New("no printed label to check")
	ErrUnknownModel = errors.New("unknown model")
)

const (
	eventBuffer  = 64
	noticeBuffer = 128
	recentLimit  = 20
)

type Machine struct {
	poller  Poller
	labels  Labeler
	cfgSvc  ConfigService
	history HistoryTrigger
	models  *models.Selector
	catalog models.Catalog
	failed  *registry.Failed
	timings Timings
	log     *slog.Logger

	events  chan event
	notices chan Notice
	done    chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	runCtx            context.Context
	state             State
	drive             DriveMode
	vmode             validation.Mode
	pmode             PrintMode
	lastCompleted     string
	session           uuid.UUID
	cycle             uuid.UUID
	connectToken      uuid.UUID
	stopPoll          context.CancelFunc
	timers            []*time.Timer
	disconnectPending bool
	checkInFlight     bool
	lastSnap          *device.Snapshot
	lastResult        *validation.Result
	warning           string
	lastWarn          string
	warnLimiter       *rate.Limiter
	recent            []Notice

	mu     sync.RWMutex
	status Status
}

func New(d Deps) *Machine {
	if d.Models == nil {
		d.Models = models.NewSelector("")
	}
	if d.Failed == nil {
		d.Failed = registry.NewFailed()
	}
	if d.Timings == (Timings{}) {
		d.Timings = DefaultTimings()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	m := &Machine{
		poller:  d.Poller,
		labels:  d.Labels,
		cfgSvc:  d.Config,
		history: d.History,
		models:  d.Models,
		catalog: d.Catalog,
		failed:  d.Failed,
		timings: d.Timings,
		log:     d.Logger.With("component", "workflow"),
		events:  make(chan event, eventBuffer),
		notices: make(chan Notice, noticeBuffer),
		done:    make(chan struct{}),
		runCtx:  context.Background(),
		state:   Idle{},
		drive:   Manual,
		vmode:   validation.Strict,
		pmode:   Physical,
		session: uuid.New(),
	}
	m.publish()
	return m
}

// Notices delivers operator-facing events. Notices are dropped when the
// consumer falls behind.
func (m *Machine) Notices() <-chan Notice {
	return m.notices
}

func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.clone()
}

// Run processes events until ctx is done. It may only be called once.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("workflow machine already running")
	}
	m.runCtx = ctx
	defer close(m.done)
	defer m.shutdown()

	m.log.Info("workflow_started", "session_id", m.session)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("workflow_stopped", "session_id", m.session)
			return nil
		case ev := <-m.events:
			m.handle(ev)
			m.publish()
		}
	}
}

func (m *Machine) shutdown() {
	m.stopPolling()
	m.stopTimers()
	if m.labels != nil {
		m.labels.StopScan()
	}
}

// Operator operations.

func (m *Machine) StartAuto(ctx context.Context) error {
	return m.do(ctx, m.startAuto)
}

func (m *Machine) StopAuto(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.stopAuto("auto mode disabled")
		return nil
	})
}

func (m *Machine) ToggleAuto(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.drive == Auto {
			m.stopAuto("auto mode disabled")
			return nil
		}
		return m.startAuto()
	})
}

// SelectModel sets the model filter; an empty name clears it. Auto mode is
// cancelled so the operator has to re-arm it for the new model.
func (m *Machine) SelectModel(ctx context.Context, name string) error {
	return m.do(ctx, func() error {
		if name != "" && len(m.catalog.Models) > 0 {
			if _, ok := m.catalog.Lookup(name); !ok {
				return fmt.Errorf("%w: %s", ErrUnknownModel, name)
			}
		}
		m.models.Select(name)
		if m.drive == Auto {
			m.stopAuto("auto mode disabled: model changed")
		}
		selected, ok := m.models.Selected()
		if ok {
			m.emit(Notice{Kind: NoticeInfo, Message: "model " + selected + " selected"})
		} else {
			m.emit(Notice{Kind: NoticeInfo, Message: "model filter cleared"})
		}
		m.log.Info("model_selected", "model", selected)
		return nil
	})
}

// Connect fetches the device once and validates it. Manual mode only; the
// failed-device registry is not consulted.
func (m *Machine) Connect(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.drive == Auto {
			m.emit(Notice{Kind: NoticeWarning, Message: ErrAutoActive.Error()})
			return ErrAutoActive
		}
		if m.connectToken != uuid.Nil {
			return ErrBusy
		}
		if m.state.Step() != 0 {
			m.reset("reconnect requested")
		}
		token, session := uuid.New(), m.session
		m.connectToken = token
		go func() {
			snap, err := m.poller.Poll(m.runCtx)
			m.post(connectResult{session: session, token: token, snap: snap, err: err})
		}()
		return nil
	})
}

// Print sends the label for a validated device. Manual mode only; a failed
// print may be retried straight away.
func (m *Machine) Print(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.drive == Auto {
			m.emit(Notice{Kind: NoticeWarning, Message: ErrAutoActive.Error()})
			return ErrAutoActive
		}
		st, ok := m.state.(Printing)
		if !ok {
			m.emit(Notice{Kind: NoticeWarning, Message: ErrNotReady.Error()})
			return ErrNotReady
		}
		if st.InFlight {
			return ErrBusy
		}
		m.startPrint(st)
		return nil
	})
}

// CheckScan asks once whether the printed label has been scanned.
func (m *Machine) CheckScan(ctx context.Context) error {
	return m.do(ctx, func() error {
		barcode := printedBarcode(m.state)
		if barcode == "" {
			return ErrNoLabel
		}
		if m.checkInFlight {
			return ErrBusy
		}
		m.checkInFlight = true
		session, cycle := m.session, m.cycle
		go func() {
			st, err := m.labels.Check(m.runCtx, barcode)
			m.post(checkResult{session: session, cycle: cycle, barcode: barcode, status: st, err: err})
		}()
		return nil
	})
}

func (m *Machine) Reset(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.reset("reset by operator")
		return nil
	})
}

func (m *Machine) ToggleValidation(ctx context.Context) error {
	cfg, err := m.cfgSvc.ToggleValidation(ctx)
	if err != nil {
		m.log.Warn("toggle_validation_failed", "error", err)
		return fmt.Errorf("toggle validation: %w", err)
	}
	return m.do(ctx, func() error {
		m.setValidationMode(validation.ModeFromEnabled(cfg.ValidationEnabled))
		m.modeReset()
		return nil
	})
}

func (m *Machine) TogglePrintMode(ctx context.Context) error {
	cfg, err := m.cfgSvc.TogglePrint(ctx)
	if err != nil {
		m.log.Warn("toggle_print_failed", "error", err)
		return fmt.Errorf("toggle print: %w", err)
	}
	return m.do(ctx, func() error {
		m.setPrintMode(PrintModeFromEnabled(cfg.PrintEnabled))
		m.modeReset()
		return nil
	})
}

// RefreshConfig loads both modes from the backend without resetting.
func (m *Machine) RefreshConfig(ctx context.Context) error {
	cfg, err := m.cfgSvc.ConfigStatus(ctx)
	if err != nil {
		return fmt.Errorf("config status: %w", err)
	}
	if !cfg.Success {
		return fmt.Errorf("config status: %s", fallback(cfg.Message, "not successful"))
	}
	return m.do(ctx, func() error {
		m.setValidationMode(validation.ModeFromEnabled(cfg.ValidationEnabled))
		m.setPrintMode(PrintModeFromEnabled(cfg.PrintEnabled))
		return nil
	})
}

// Event plumbing.

type event interface{}

type request struct {
	fn    func() error
	reply chan error
}

type pollResult struct {
	session uuid.UUID
	snap    device.Snapshot
	err     error
}

type connectResult struct {
	session uuid.UUID
	token   uuid.UUID
	snap    device.Snapshot
	err     error
}

type settled struct{ session, cycle uuid.UUID }

type autoPrint struct{ session, cycle uuid.UUID }

type printResult struct {
	session, cycle uuid.UUID
	serial         string
	res            labelscan.PrintResult
	err            error
}

type scanReady struct {
	session, cycle uuid.UUID
	barcode        string
	status         backend.ScanStatus
}

type checkResult struct {
	session, cycle uuid.UUID
	barcode        string
	status         backend.ScanStatus
	err            error
}

type resetTimer struct {
	session, cycle uuid.UUID
	reason         string
	kind           NoticeKind
	message        string
	// maxStep skips the reset once the cycle has moved past it; 0 means any step.
	maxStep int
}

func (m *Machine) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case m.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrNotRunning
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrNotRunning
	}
}

func (m *Machine) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) after(d time.Duration, ev event) {
	t := time.AfterFunc(d, func() { m.post(ev) })
	m.timers = append(m.timers, t)
}

func (m *Machine) stopTimers() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}

func (m *Machine) current(session, cycle uuid.UUID) bool {
	return session == m.session && cycle != uuid.Nil && cycle == m.cycle
}

func (m *Machine) handle(ev event) {
	switch ev := ev.(type) {
	case request:
		err := ev.fn()
		m.publish()
		ev.reply <- err

	case pollResult:
		if ev.session != m.session || m.drive != Auto {
			return
		}
		m.onPoll(ev.snap, ev.err)

	case connectResult:
		if ev.session != m.session || ev.token != m.connectToken || m.drive != Manual {
			m.log.Debug("stale_connect_result")
			return
		}
		m.connectToken = uuid.Nil
		m.onConnect(ev.snap, ev.err)

	case settled:
		if !m.current(ev.session, ev.cycle) {
			return
		}
		if m.disconnectPending {
			m.log.Debug("settle_skipped_disconnected", "serial", m.state.Serial())
			return
		}
		if _, ok := m.state.(Connecting); ok {
			m.validateActive()
		}

	case autoPrint:
		if !m.current(ev.session, ev.cycle) || m.drive != Auto || m.disconnectPending {
			return
		}
		if st, ok := m.state.(Printing); ok && !st.InFlight {
			m.startPrint(st)
		}

	case printResult:
		if !m.current(ev.session, ev.cycle) {
			m.log.Debug("stale_print_result", "serial", ev.serial)
			return
		}
		st, ok := m.state.(Printing)
		if !ok || !st.InFlight || st.Device != ev.serial {
			return
		}
		m.onPrinted(st, ev.res, ev.err)

	case scanReady:
		if !m.current(ev.session, ev.cycle) {
			m.log.Debug("stale_scan_result", "barcode", ev.barcode)
			return
		}
		if st, ok := m.state.(AwaitingScan); ok && st.Barcode == ev.barcode {
			m.complete(st, ev.status)
		}

	case checkResult:
		if ev.session == m.session && ev.cycle == m.cycle {
			m.checkInFlight = false
		}
		if !m.current(ev.session, ev.cycle) || printedBarcode(m.state) != ev.barcode {
			return
		}
		m.onCheck(ev.barcode, ev.status, ev.err)

	case resetTimer:
		if !m.current(ev.session, ev.cycle) {
			return
		}
		if ev.maxStep > 0 && m.state.Step() > ev.maxStep {
			m.log.Debug("reset_skipped", "reason", ev.reason, "state", describe(m.state))
			return
		}
		m.reset(ev.reason)
		if ev.message != "" {
			m.emit(Notice{Kind: ev.kind, Message: ev.message})
		}
	}
}

// Auto drive.

func (m *Machine) startAuto() error {
	if m.drive == Auto {
		return nil
	}
	if m.poller == nil {
		return errors.New("no device poller configured")
	}
	m.reset("auto mode started")
	// A new drive session starts with an empty registry; lastCompleted is
	// kept so a device finished by hand is not labeled twice.
	cleared := m.failed.Clear()
	m.clearWarning()
	m.drive = Auto
	m.session = uuid.New()

	ctx, cancel := context.WithCancel(m.runCtx)
	m.stopPoll = cancel
	go m.pollLoop(ctx, m.session)

	m.log.Info("auto_started", "session_id", m.session, "interval", m.timings.AutoPoll, "failed_cleared", cleared)
	m.emit(Notice{Kind: NoticeModeChanged, Message: fmt.Sprintf("auto mode enabled, checking for devices every %s", m.timings.AutoPoll)})
	return nil
}

// stopAuto returns to manual mode. Completed-device memory and the failed
// registry are dropped with the session.
func (m *Machine) stopAuto(reason string) {
	if m.drive != Auto {
		return
	}
	m.stopPolling()
	m.drive = Manual
	m.session = uuid.New()
	m.lastCompleted = ""
	cleared := m.failed.Clear()
	m.clearWarning()
	m.reset(reason)

	m.log.Info("auto_stopped", "reason", reason, "session_id", m.session, "failed_cleared", cleared)
	m.emit(Notice{Kind: NoticeModeChanged, Message: reason})
}

func (m *Machine) stopPolling() {
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
}

func (m *Machine) pollLoop(ctx context.Context, session uuid.UUID) {
	ticker := time.NewTicker(m.timings.AutoPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap, err := m.poller.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if !m.post(pollResult{session: session, snap: snap, err: err}) {
			return
		}
	}
}

func (m *Machine) onPoll(snap device.Snapshot, err error) {
	if err != nil {
		if errors.Is(err, device.ErrNoDevice) {
			m.onNoDevice()
			return
		}
		m.log.Debug("poll_failed", "error", err)
		return
	}

	serial := snap.Serial
	step := m.state.Step()

	if m.failed.Has(serial) {
		m.warn(fmt.Sprintf("device %s already failed validation, disconnect it", serial))
		return
	}
	if serial == m.lastCompleted {
		if step == 0 {
			m.warn(fmt.Sprintf("disconnect the previous device %s before connecting a new one", serial))
		}
		return
	}
	if step == 4 {
		if serial != m.state.Serial() {
			m.log.Debug("device_ignored_awaiting_scan", "serial", serial, "tracking", m.state.Serial())
		}
		return
	}
	if step >= 1 && serial == m.state.Serial() {
		return
	}

	if !m.models.Matches(serial) {
		selected, _ := m.models.Selected()
		m.stopAuto("auto mode stopped: model mismatch")
		m.emit(Notice{
			Kind:     NoticeModelMismatch,
			Serial:   serial,
			Message:  fmt.Sprintf("device %s does not match selected model %s", serial, selected),
			Blocking: true,
		})
		m.log.Warn("model_mismatch", "serial", serial, "model", selected)
		return
	}

	if step >= 1 {
		m.reset("new device detected")
	}
	m.lastCompleted = ""
	m.beginCycle(snap)
	m.after(m.timings.Settle, settled{session: m.session, cycle: m.cycle})
}

func (m *Machine) onNoDevice() {
	switch step := m.state.Step(); {
	case step == 0:
		cleared := m.failed.Clear()
		if cleared > 0 || m.lastCompleted != "" {
			m.log.Debug("device_memory_cleared", "failed_cleared", cleared, "last_completed", m.lastCompleted)
		}
		m.lastCompleted = ""
		m.clearWarning()
	case step <= 3:
		if m.disconnectPending {
			return
		}
		m.disconnectPending = true
		m.log.Info("device_disconnected", "serial", m.state.Serial(), "step", step)
		m.after(m.timings.DisconnectReset, resetTimer{
			session: m.session,
			cycle:   m.cycle,
			reason:  "device disconnected",
			kind:    NoticeDisconnected,
			message: "device disconnected, waiting for a new device",
			maxStep: 3,
		})
	default:
		// The label is tracked from here on, not the device.
	}
}

// Manual drive.

func (m *Machine) onConnect(snap device.Snapshot, err error) {
	if err != nil {
		if errors.Is(err, device.ErrNoDevice) {
			m.emit(Notice{Kind: NoticeWarning, Message: "device connection failed: no single device connected"})
		} else {
			m.emit(Notice{Kind: NoticeWarning, Message: "device connection failed: " + err.Error()})
		}
		m.log.Warn("connect_failed", "error", err)
		return
	}
	if !m.models.Matches(snap.Serial) {
		selected, _ := m.models.Selected()
		m.emit(Notice{
			Kind:    NoticeModelMismatch,
			Serial:  snap.Serial,
			Message: fmt.Sprintf("device %s does not match selected model %s", snap.Serial, selected),
		})
		return
	}
	m.beginCycle(snap)
	m.validateActive()
}

// Cycle transitions.

func (m *Machine) beginCycle(snap device.Snapshot) {
	m.cycle = uuid.New()
	m.state = Connecting{Device: snap.Serial, Snapshot: snap}
	m.lastSnap = &snap
	m.lastResult = nil
	m.disconnectPending = false
	m.clearWarning()

	m.log.Info("device_connected", "serial", snap.Serial, "drive", m.drive, "cycle_id", m.cycle)
	m.emit(Notice{Kind: NoticeStep, Serial: snap.Serial, Message: "device " + snap.Serial + " connected"})
}

func (m *Machine) validateActive() {
	st, ok := m.state.(Connecting)
	if !ok {
		return
	}
	res := validation.Validate(st.Snapshot, m.vmode)
	m.lastResult = &res

	if res.Ready {
		m.failed.Remove(st.Device)
		m.state = Printing{Device: st.Device, Snapshot: st.Snapshot}
		msg := "device ready to print"
		if m.drive == Auto {
			msg = "device ready, printing automatically"
			m.after(m.timings.AutoPrintDelay, autoPrint{session: m.session, cycle: m.cycle})
		}
		if m.vmode == validation.TestOnly {
			msg += " (test mode)"
		}
		m.log.Info("device_validated", "serial", st.Device, "mode", m.vmode)
		m.emit(Notice{Kind: NoticeStep, Serial: st.Device, Message: msg})
		return
	}

	m.failed.Add(st.Device)
	m.state = Validating{Device: st.Device, Snapshot: st.Snapshot, Result: res}
	msg := res.Summary()
	if m.drive == Auto {
		msg += ", disconnect the device"
		m.warning = msg
	}
	m.log.Info("device_rejected", "serial", st.Device, "mode", m.vmode, "reasons", res.Reasons)
	m.emit(Notice{Kind: NoticeValidationFailed, Serial: st.Device, Message: msg, Reasons: res.Reasons})
}

func (m *Machine) startPrint(st Printing) {
	st.InFlight = true
	st.Attempts++
	st.LastError = ""
	m.state = st

	session, cycle, serial := m.session, m.cycle, st.Device
	go func() {
		res, err := m.labels.Print(m.runCtx, serial)
		m.post(printResult{session: session, cycle: cycle, serial: serial, res: res, err: err})
	}()
	m.emit(Notice{Kind: NoticeInfo, Serial: serial, Message: "printing label for " + serial})
}

func (m *Machine) onPrinted(st Printing, res labelscan.PrintResult, err error) {
	if err == nil && res.Success {
		barcode := fallback(res.Barcode, st.Device)
		m.state = AwaitingScan{Device: st.Device, Barcode: barcode}
		session, cycle := m.session, m.cycle
		m.labels.StartScan(m.runCtx, barcode, func(got string, status backend.ScanStatus) {
			m.post(scanReady{session: session, cycle: cycle, barcode: got, status: status})
		})
		m.log.Info("label_printed", "serial", st.Device, "barcode", barcode, "cycle_id", m.cycle)
		m.emit(Notice{Kind: NoticeStep, Serial: st.Device, Message: fallback(res.Message, "label printed") + ", waiting for scan"})
		return
	}

	msg := res.Message
	if err != nil {
		msg = "print request failed: " + err.Error()
	}
	msg = fallback(msg, "print failed")
	st.InFlight = false
	st.LastError = msg
	m.state = st
	m.emit(Notice{Kind: NoticePrintFailed, Serial: st.Device, Message: msg})

	if m.drive == Auto {
		m.after(m.timings.PrintFailureReset, resetTimer{session: m.session, cycle: m.cycle, reason: "print failed"})
	}
}

func (m *Machine) onCheck(barcode string, st backend.ScanStatus, err error) {
	switch {
	case err != nil:
		m.emit(Notice{Kind: NoticeWarning, Message: "scan status check failed: " + err.Error()})
	case !st.Success:
		m.emit(Notice{Kind: NoticeWarning, Message: fallback(st.Message, "scan status check failed")})
	case st.Ready():
		if as, ok := m.state.(AwaitingScan); ok {
			m.complete(as, st)
			return
		}
		m.emit(Notice{Kind: NoticeInfo, Message: fmt.Sprintf("label %s scanned (status %s)", barcode, st.Status)})
	case st.Scanned:
		m.emit(Notice{Kind: NoticeInfo, Message: fmt.Sprintf("label %s scanned but status is %q, waiting for \"ready\"", barcode, st.Status)})
	default:
		m.emit(Notice{Kind: NoticeInfo, Message: fmt.Sprintf("label %s not scanned yet", barcode)})
	}
}

func (m *Machine) complete(st AwaitingScan, status backend.ScanStatus) {
	m.labels.StopScan()
	m.lastCompleted = st.Device
	m.state = Done{Device: st.Device, Barcode: st.Barcode, ScanStatus: status.Status}
	if m.history != nil {
		m.history.Trigger()
	}

	delay := m.timings.DoneResetManual
	next := resetTimer{session: m.session, cycle: m.cycle, reason: "cycle complete"}
	if m.drive == Auto {
		delay = m.timings.DoneResetAuto
		next.kind = NoticeInfo
		next.message = "ready for the next device, disconnect the previous one"
	}
	m.after(delay, next)

	m.log.Info("label_scanned", "serial", st.Device, "barcode", st.Barcode, "cycle_id", m.cycle)
	m.emit(Notice{Kind: NoticeScanned, Serial: st.Device, Message: fmt.Sprintf("label %s scanned, device processed", st.Barcode)})
}

// reset returns to Idle and invalidates everything scheduled for the cycle.
// lastCompleted survives so the same device is not processed twice.
func (m *Machine) reset(reason string) {
	m.stopTimers()
	if m.labels != nil {
		m.labels.StopScan()
	}
	prev := m.state
	m.state = Idle{}
	m.cycle = uuid.Nil
	m.connectToken = uuid.Nil
	m.disconnectPending = false
	m.checkInFlight = false
	m.lastSnap = nil
	m.lastResult = nil

	if prev.Step() != 0 {
		m.log.Info("workflow_reset", "reason", reason, "from", describe(prev))
		m.emit(Notice{Kind: NoticeStep, Serial: prev.Serial(), Message: "reset: " + reason})
	}
}

func (m *Machine) modeReset() {
	cleared := m.failed.Clear()
	m.clearWarning()
	m.reset("mode changed")
	m.log.Info("modes_changed", "validation", m.vmode, "print", m.pmode, "failed_cleared", cleared)
	m.emit(Notice{Kind: NoticeModeChanged, Message: fmt.Sprintf("validation %s, print %s", m.vmode, m.pmode)})
}

func (m *Machine) setValidationMode(mode validation.Mode) {
	if m.vmode != mode {
		m.log.Info("validation_mode", "mode", mode)
	}
	m.vmode = mode
}

func (m *Machine) setPrintMode(mode PrintMode) {
	if m.pmode != mode {
		m.log.Info("print_mode", "mode", mode)
	}
	m.pmode = mode
}

// Notices and status.

// warn records msg as the current warning. Repeats of the same message are
// throttled; Status always carries the latest one.
func (m *Machine) warn(msg string) {
	m.warning = msg
	if msg != m.lastWarn || m.warnLimiter == nil {
		m.lastWarn = msg
		m.warnLimiter = rate.NewLimiter(rate.Every(m.timings.WarningInterval), 1)
	}
	if m.warnLimiter.Allow() {
		m.emit(Notice{Kind: NoticeWarning, Message: msg})
	}
}

func (m *Machine) clearWarning() {
	m.warning = ""
	m.lastWarn = ""
	m.warnLimiter = nil
}

func (m *Machine) emit(n Notice) {
	n.Step = m.state.Step()
	if n.At.IsZero() {
		n.At = time.Now()
	}
	m.recent = append(m.recent, n)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
	select {
	case m.notices <- n:
	default:
		m.log.Debug("notice_dropped", "kind", n.Kind)
	}
}

func (m *Machine) publish() {
	model, _ := m.models.Selected()
	st := Status{
		Step:                m.state.Step(),
		State:               m.state.Name(),
		DriveMode:           m.drive.String(),
		ActiveSerial:        m.state.Serial(),
		DeviceReady:         deviceReady(m.state),
		PrintedBarcode:      printedBarcode(m.state),
		LastCompletedSerial: m.lastCompleted,
		ValidationMode:      m.vmode.String(),
		PrintMode:           m.pmode.String(),
		PrintAction:         PrintActionLabel(m.vmode, m.pmode),
		Model:               model,
		Snapshot:            m.lastSnap,
		Validation:          m.lastResult,
		Warning:             m.warning,
		FailedSerials:       m.failed.Serials(),
		Busy:                m.connectToken != uuid.Nil || m.checkInFlight,
		SessionID:           m.session.String(),
		Recent:              m.recent,
		UpdatedAt:           time.Now(),
	}
	if m.cycle != uuid.Nil {
		st.CycleID = m.cycle.String()
	}
	if p, ok := m.state.(Printing); ok {
		st.PrintError = p.LastError
		st.Busy = st.Busy || p.InFlight
	}
	st = st.clone()

	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
