package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"rcstation/internal/history"
	"rcstation/internal/workflow"
)

// Station is the subset of the workflow machine exposed over HTTP.
type Station interface {
	Status() workflow.Status
	StartAuto(ctx context.Context) error
	StopAuto(ctx context.Context) error
	Connect(ctx context.Context) error
	Print(ctx context.Context) error
	CheckScan(ctx context.Context) error
	Reset(ctx context.Context) error
	SelectModel(ctx context.Context, name string) error
	ToggleValidation(ctx context.Context) error
	TogglePrintMode(ctx context.Context) error
}

type History interface {
	Snapshot() history.State
}

type Server struct {
	addr    string
	station Station
	history History
	log     *slog.Logger
	http    *http.Server
}

func New(addr string, station Station, hist History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		addr:    addr,
		station: station,
		history: hist,
		log:     logger.With("component", "httpapi"),
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/auto/start", s.command(station.StartAuto))
	mux.HandleFunc("/auto/stop", s.command(station.StopAuto))
	mux.HandleFunc("/connect", s.command(station.Connect))
	mux.HandleFunc("/print", s.command(station.Print))
	mux.HandleFunc("/check-scan", s.command(station.CheckScan))
	mux.HandleFunc("/reset", s.command(station.Reset))
	mux.HandleFunc("/validation/toggle", s.command(station.ToggleValidation))
	mux.HandleFunc("/print-mode/toggle", s.command(station.TogglePrintMode))
	mux.HandleFunc("/model", s.handleModel)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http_listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "rcstation",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.station.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, history.State{Items: []history.Item{}})
		return
	}
	writeJSON(w, http.StatusOK, s.history.Snapshot())
}

func (s *Server) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.reply(w, r, fn(r.Context()))
	}
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var payload struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	s.reply(w, r, s.station.SelectModel(r.Context(), strings.TrimSpace(payload.Model)))
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.log.Warn("command_failed", "path", r.URL.Path, "error", err)
		}
		writeJSON(w, code, map[string]any{"ok": false, "error": err.Error(), "status": s.station.Status()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": s.station.Status()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrAutoActive),
		errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrNotReady),
		errors.Is(err, workflow.ErrNoLabel):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
