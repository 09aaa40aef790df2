package workflow

import (
	"fmt"

	"rcstation/internal/device"
	"rcstation/internal/validation"
)

type DriveMode int

const (
	Manual DriveMode = iota
	Auto
)

func (d DriveMode) String() string {
	if d == Auto {
		return "auto"
	}
	return "manual"
}

type PrintMode int

const (
	Physical PrintMode = iota
	Simulated
)

func (p PrintMode) String() string {
	if p == Simulated {
		return "simulated"
	}
	return "physical"
}

// PrintModeFromEnabled maps the backend print_enabled flag to a PrintMode.
func PrintModeFromEnabled(enabled bool) PrintMode {
	if enabled {
		return Physical
	}
	return Simulated
}

// State is one step of the provisioning cycle. Each variant carries only the
// data valid for its step.
type State interface {
	Step() int
	Name() string
	// Serial is the active device serial; empty only for Idle.
	Serial() string
}

type Idle struct{}

func (Idle) Step() int      { return 0 }
func (Idle) Name() string   { return "idle" }
func (Idle) Serial() string { return "" }

// Connecting holds the snapshot that triggered the cycle until it settles.
type Connecting struct {
	Device   string
	Snapshot device.Snapshot
}

func (Connecting) Step() int        { return 1 }
func (Connecting) Name() string     { return "connecting" }
func (s Connecting) Serial() string { return s.Device }

// Validating is only ever held after a failed validation; a passing device
// moves straight to Printing.
type Validating struct {
	Device   string
	Snapshot device.Snapshot
	Result   validation.Result
}

func (Validating) Step() int        { return 2 }
func (Validating) Name() string     { return "validating" }
func (s Validating) Serial() string { return s.Device }

// Pending reports the not-ready sub-state awaiting disconnect or retry.
func (s Validating) Pending() bool { return !s.Result.Ready }

type Printing struct {
	Device    string
	Snapshot  device.Snapshot
	InFlight  bool
	Attempts  int
	LastError string
}

func (Printing) Step() int        { return 3 }
func (Printing) Name() string     { return "printing" }
func (s Printing) Serial() string { return s.Device }

type AwaitingScan struct {
	Device  string
	Barcode string
}

func (AwaitingScan) Step() int        { return 4 }
func (AwaitingScan) Name() string     { return "awaiting-scan" }
func (s AwaitingScan) Serial() string { return s.Device }

// Done is the completed cycle waiting for its delayed reset.
type Done struct {
	Device     string
	Barcode    string
	ScanStatus string
}

func (Done) Step() int        { return 4 }
func (Done) Name() string     { return "done" }
func (s Done) Serial() string { return s.Device }

func deviceReady(st State) bool {
	switch st.(type) {
	case Printing, AwaitingScan, Done:
		return true
	}
	return false
}

func printedBarcode(st State) string {
	switch s := st.(type) {
	case AwaitingScan:
		return s.Barcode
	case Done:
		return s.Barcode
	}
	return ""
}

// PrintActionLabel is the operator-facing name of the print action for the
// current validation and print modes.
func PrintActionLabel(v validation.Mode, p PrintMode) string {
	switch {
	case v == validation.TestOnly && p == Simulated:
		return "Simulate label (test)"
	case v == validation.TestOnly:
		return "Create and print label (test)"
	case p == Simulated:
		return "Create label (no print)"
	default:
		return "Create and print label"
	}
}

func describe(st State) string {
	if st.Serial() == "" {
		return st.Name()
	}
	return fmt.Sprintf("%s(%s)", st.Name(), st.Serial())
}
