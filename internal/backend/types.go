package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type DeviceStatus struct {
	Success       bool   `json:"success"`
	Serial        string `json:"serial"`
	DeviceCount   int    `json:"device_count"`
	TestsOK       Flag   `json:"tests_ok"`
	CalibrationOK Flag   `json:"calibration_ok"`
	ProgTime      Number `json:"prog_time"`
	CalibTime     Number `json:"calib_time"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

type ConfigStatus struct {
	Success           bool   `json:"success"`
	ValidationEnabled bool   `json:"validation_enabled"`
	PrintEnabled      bool   `json:"print_enabled"`
	Message           string `json:"message,omitempty"`
}

type PrintResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ScanStatus struct {
	Success bool   `json:"success"`
	Scanned bool   `json:"scanned"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Ready reports the terminal success condition of check_scan_status.
func (s ScanStatus) Ready() bool {
	return s.Success && s.Scanned && s.Status == "ready"
}

type ScannedItem struct {
	Barcode   string `json:"barcode"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type ScannedItems struct {
	Success bool          `json:"success"`
	Items   []ScannedItem `json:"items"`
	Message string        `json:"message,omitempty"`
}

type printRequest struct {
	SerialNumber string `json:"serial_number"`
}

type scanRequest struct {
	Barcode string `json:"barcode"`
}

// Flag decodes the device database booleans, which the wrapper reports as
// 0/1 integers and some backends as JSON booleans. Only exactly 1 counts as
// set; other numbers are false.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	raw := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch raw {
	case "", "null", "0", "false", "no":
		*f = false
		return nil
	case "1", "true", "yes":
		*f = true
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid flag %s", data)
	}
	*f = n == 1
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// Number decodes a whole-second field that may arrive as a number, a
// numeric string, or null. Positive fractions round up so any recorded
// time stays non-zero.
type Number int64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		*n = 0
		return nil
	}
	num := json.Number(raw)
	if v, err := num.Int64(); err == nil {
		*n = Number(v)
		return nil
	}
	f, err := num.Float64()
	if err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = Number(math.Ceil(f))
	return nil
}
