// Package validation decides whether a connected device may be labeled.
package validation

import (
	"fmt"
	"strings"

	"rcstation/internal/device"
)

// Mode selects how much of the device record must be in order.
type Mode int

const (
	// Strict requires passed tests, calibration and both timestamps.
	Strict Mode = iota
	// TestOnly requires only a readable serial.
	TestOnly
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case TestOnly:
		return "test-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeFromEnabled maps the backend validation_enabled flag to a Mode.
func ModeFromEnabled(enabled bool) Mode {
	if enabled {
		return Strict
	}
	return TestOnly
}

type Reason string

const (
	ReasonSerialMissing      Reason = "serial not received"
	ReasonTestsFailed        Reason = "tests not passed"
	ReasonCalibrationMissing Reason = "calibration not performed"
	ReasonProgrammingMissing Reason = "programming not performed"
	ReasonCalibTimeMissing   Reason = "calibration time not set"
)

type Result struct {
	Ready   bool     `json:"ready"`
	Reasons []Reason `json:"reasons"`
}

// Validate is pure: the same snapshot and mode always give the same result.
// Reasons are informational; only Ready gates the workflow.
func Validate(snap device.Snapshot, mode Mode) Result {
	testsOK := snap.TestsOK
	calibOK := snap.CalibrationOK
	progOK := snap.ProgTime > 0
	calibTimeOK := snap.CalibTime > 0
	serialOK := snap.HasSerial()

	reasons := make([]Reason, 0, 5)
	if !serialOK {
		reasons = append(reasons, ReasonSerialMissing)
	}
	if !testsOK {
		reasons = append(reasons, ReasonTestsFailed)
	}
	if mode == Strict {
		if !calibOK {
			reasons = append(reasons, ReasonCalibrationMissing)
		}
		if !progOK {
			reasons = append(reasons, ReasonProgrammingMissing)
		}
		if !calibTimeOK {
			reasons = append(reasons, ReasonCalibTimeMissing)
		}
	}

	ready := serialOK
	if mode == Strict {
		ready = serialOK && testsOK && calibOK && progOK && calibTimeOK
	}
	return Result{Ready: ready, Reasons: reasons}
}

// Summary renders the reasons as one operator-facing line.
func (r Result) Summary() string {
	if r.Ready {
		return "device ready"
	}
	if len(r.Reasons) == 0 {
		return "device not ready"
	}
	parts := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		parts = append(parts, string(reason))
	}
	return "device not ready: " + strings.Join(parts, "; ")
}

func (r Result) Has(reason Reason) bool {
	for _, got := range r.Reasons {
		if got == reason {
			return true
		}
	}
	return false
}
