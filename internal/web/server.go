// Package web provides the HTTP status server of the soil controller: a
// status page, JSON snapshots, the ledger history and a virtual keypad.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sweeney/soil-controller/internal/keypad"
	"github.com/sweeney/soil-controller/internal/ledger"
	"github.com/sweeney/soil-controller/internal/status"
)

// History limits for /history.json.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Virtual keypad request rate across all clients.
const (
	KeypadRate  rate.Limit = 10
	KeypadBurst            = 20
)

// History returns recent ledger entries, newest first.
type History interface {
	Recent(limit int) ([]ledger.Entry, error)
}

// Keys accepts virtual key presses.
type Keys interface {
	PressSymbols(s string) (int, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History
	keys       Keys
	keyLimit   *rate.Limiter
}

// New creates a Server that reads state from the given tracker. history and
// keys may be nil, in which case their endpoints answer 503.
func New(addr string, tracker *status.Tracker, history History, keys Keys) *Server {
	s := &Server{
		tracker:  tracker,
		history:  history,
		keys:     keys,
		keyLimit: rate.NewLimiter(KeypadRate, KeypadBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/history.json", s.handleHistory)
	mux.HandleFunc("/keypad", s.handleKeypad)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.keys != nil); err != nil {
		log.Warn().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

type healthJSON struct {
	Status        string `json:"status"`
	HasReading    bool   `json:"has_reading"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	writeJSON(w, http.StatusOK, healthJSON{
		Status:        "ok",
		HasReading:    snap.HasReading,
		UptimeSeconds: int64(snap.Uptime().Seconds()),
	})
}

type historyJSON struct {
	Entries []ledger.Entry `json:"entries"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusServiceUnavailable)
		return
	}
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxHistoryLimit)
	}
	entries, err := s.history.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("read history")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, historyJSON{Entries: entries})
}

type keypadJSON struct {
	Queued int    `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// handleKeypad queues the symbols of the "key" form value, e.g. "*B80#".
// With redirect=1 the browser is sent back to the status page.
func (s *Server) handleKeypad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.keys == nil {
		http.Error(w, "keypad disabled", http.StatusServiceUnavailable)
		return
	}
	if !s.keyLimit.Allow() {
		writeJSON(w, http.StatusTooManyRequests, keypadJSON{Error: "too many requests"})
		return
	}
	symbols := r.FormValue("key")
	if symbols == "" {
		writeJSON(w, http.StatusBadRequest, keypadJSON{Error: "missing key"})
		return
	}

	n, err := s.keys.PressSymbols(symbols)
	log.Debug().Str("keys", symbols).Int("queued", n).Err(err).Msg("virtual keypad")
	switch {
	case errors.Is(err, keypad.ErrInvalidKey):
		writeJSON(w, http.StatusBadRequest, keypadJSON{Queued: n, Error: err.Error()})
		return
	case errors.Is(err, keypad.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, keypadJSON{Queued: n, Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, keypadJSON{Queued: n, Error: err.Error()})
		return
	}

	if r.FormValue("redirect") == "1" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, keypadJSON{Queued: n})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
