package device

import (
	"strings"
	"time"
)

// SerialError is the sentinel the device wrapper reports when it could not
// read a serial number.
const SerialError = "Error"

// Snapshot is one normalized device_status reading. Values are produced
// fresh on each poll and never modified afterwards.
type Snapshot struct {
	Serial        string        `json:"serial"`
	PresentCount  int           `json:"present_count"`
	TestsOK       bool          `json:"tests_ok"`
	CalibrationOK bool          `json:"calibration_ok"`
	ProgTime      time.Duration `json:"prog_time"`
	CalibTime     time.Duration `json:"calib_time"`
	Status        string        `json:"status"`
}

// HasSerial reports whether the snapshot carries a usable serial number.
func (s Snapshot) HasSerial() bool {
	serial := strings.TrimSpace(s.Serial)
	return serial != "" && serial != SerialError
}
