package workflow

import (
	"time"

	"rcstation/internal/device"
	"rcstation/internal/validation"
)

// Status is a read-only copy of the machine state for presentation layers.
type Status struct {
	Step                int    `json:"step"`
	State               string `json:"state"`
	DriveMode           string `json:"drive_mode"`
	ActiveSerial        string `json:"active_serial,omitempty"`
	DeviceReady         bool   `json:"device_ready"`
	PrintedBarcode      string `json:"printed_barcode,omitempty"`
	LastCompletedSerial string `json:"last_completed_serial,omitempty"`

	ValidationMode string `json:"validation_mode"`
	PrintMode      string `json:"print_mode"`
	PrintAction    string `json:"print_action"`
	Model          string `json:"model,omitempty"`

	Snapshot      *device.Snapshot   `json:"snapshot,omitempty"`
	Validation    *validation.Result `json:"validation,omitempty"`
	Warning       string             `json:"warning,omitempty"`
	PrintError    string             `json:"print_error,omitempty"`
	FailedSerials []string           `json:"failed_serials"`

	Busy      bool      `json:"busy"`
	SessionID string    `json:"session_id"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Recent    []Notice  `json:"recent"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Status) clone() Status {
	out := s
	out.FailedSerials = make([]string, len(s.FailedSerials))
	copy(out.FailedSerials, s.FailedSerials)
	out.Recent = make([]Notice, len(s.Recent))
	copy(out.Recent, s.Recent)
	if s.Snapshot != nil {
		snap := *s.Snapshot
		out.Snapshot = &snap
	}
	if s.Validation != nil {
		res := *s.Validation
		res.Reasons = append([]validation.Reason(nil), s.Validation.Reasons...)
		out.Validation = &res
	}
	return out
}
