package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	pathDeviceStatus     = "/device_status"
	pathConfigStatus     = "/get_config_status"
	pathToggleValidation = "/toggle_validation"
	pathTogglePrint      = "/toggle_print"
	pathPrintLabel       = "/print_label"
	pathCheckScanStatus  = "/check_scan_status"
	pathScannedItems     = "/get_scanned_items"
)

// Client talks to the station backend. Every request is sent with no-cache
// directives; a cached device_status or check_scan_status answer would feed
// stale data into the workflow.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) DeviceStatus(ctx context.Context) (DeviceStatus, error) {
	var out DeviceStatus
	err := c.do(ctx, http.MethodGet, pathDeviceStatus, nil, true, &out)
	return out, err
}

func (c *Client) ConfigStatus(ctx context.Context) (ConfigStatus, error) {
	var out ConfigStatus
	err := c.do(ctx, http.MethodGet, pathConfigStatus, nil, true, &out)
	return out, err
}

func (c *Client) ToggleValidation(ctx context.Context) (ConfigStatus, error) {
	var out ConfigStatus
	if err := c.do(ctx, http.MethodPost, pathToggleValidation, struct{}{}, false, &out); err != nil {
		return ConfigStatus{}, err
	}
	if !out.Success {
		return out, fmt.Errorf("toggle_validation rejected: %s", fallback(out.Message, "no message"))
	}
	return out, nil
}

func (c *Client) TogglePrint(ctx context.Context) (ConfigStatus, error) {
	var out ConfigStatus
	if err := c.do(ctx, http.MethodPost, pathTogglePrint, struct{}{}, false, &out); err != nil {
		return ConfigStatus{}, err
	}
	if !out.Success {
		return out, fmt.Errorf("toggle_print rejected: %s", fallback(out.Message, "no message"))
	}
	return out, nil
}

// PrintLabel asks the label service to print serial. A decoded response with
// success=false is not an error; the caller decides how to surface it.
func (c *Client) PrintLabel(ctx context.Context, serial string) (PrintResponse, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return PrintResponse{}, fmt.Errorf("serial number is empty")
	}
	var out PrintResponse
	err := c.do(ctx, http.MethodPost, pathPrintLabel, printRequest{SerialNumber: serial}, false, &out)
	return out, err
}

func (c *Client) CheckScanStatus(ctx context.Context, barcode string) (ScanStatus, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return ScanStatus{}, fmt.Errorf("barcode is empty")
	}
	var out ScanStatus
	err := c.do(ctx, http.MethodPost, pathCheckScanStatus, scanRequest{Barcode: barcode}, false, &out)
	return out, err
}

func (c *Client) ScannedItems(ctx context.Context) (ScannedItems, error) {
	var out ScannedItems
	err := c.do(ctx, http.MethodGet, pathScannedItems, nil, true, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, cacheBust bool, out any) error {
	endpoint := c.baseURL + path
	if cacheBust {
		q := url.Values{}
		q.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s encode: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Endpoint: path, StatusCode: resp.StatusCode, Body: compactBody(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s decode: %w", path, err)
	}
	return nil
}

func compactBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 320 {
		return s[:320] + "..."
	}
	return s
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
