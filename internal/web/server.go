// Package web provides the HTTP status server and control API for the rig monitor.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sweeney/ledrig-monitor/internal/command"
	"github.com/sweeney/ledrig-monitor/internal/device"
	"github.com/sweeney/ledrig-monitor/internal/history"
	"github.com/sweeney/ledrig-monitor/internal/logic"
	"github.com/sweeney/ledrig-monitor/internal/poller"
	"github.com/sweeney/ledrig-monitor/internal/status"
)

// History is the part of the history store the server uses.
type History interface {
	Entries() []history.Entry
	Clear(ctx context.Context)
}

// Refresher triggers an out-of-band poll.
type Refresher interface {
	RefreshNow(ctx context.Context) (poller.Result, bool)
}

// Commander sends commands to the rig.
type Commander interface {
	Apply(ctx context.Context, channel string, on bool) (device.Ack, error)
	Toggle(ctx context.Context, channel string) (bool, device.Ack, error)
	SetFaultMode(ctx context.Context, mode string) (device.Ack, error)
}

// Deps are the components the server reads from and drives.
// Any of History, Refresher and Commander may be nil; their routes then
// answer 503.
type Deps struct {
	Tracker        *status.Tracker
	History        History
	Refresher      Refresher
	Commander      Commander
	Logger         zerolog.Logger
	AllowedOrigins []string
}

const commandTimeout = 10 * time.Second

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)

	r.Route("/api", func(r chi.Router) {
		r.Get("/faults", s.handleFaults)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/fault-modes", s.handleFaultModes)
		r.Post("/fault-mode", s.handleSetFaultMode)
		r.Post("/leds/{channel}", s.handleSetLED)
		r.Post("/leds/{channel}/toggle", s.handleToggleLED)
	})
	return r
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

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.historyEntries())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	respondJSON(w, http.StatusOK, FaultsJSON{
		Liveness: string(snap.Liveness),
		Faults:   status.Faults(snap.Faults),
	})
}

func (s *Server) historyEntries() []history.Entry {
	if s.deps.History == nil {
		return nil
	}
	return s.deps.History.Entries()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondError(w, http.StatusServiceUnavailable, "History is not available.")
		return
	}
	respondJSON(w, http.StatusOK, formatHistory(s.deps.History.Entries()))
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondError(w, http.StatusServiceUnavailable, "History is not available.")
		return
	}
	s.deps.History.Clear(r.Context())
	respondJSON(w, http.StatusOK, CommandJSON{Message: "Fault history cleared."})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		respondError(w, http.StatusServiceUnavailable, "Polling is not available.")
		return
	}
	res, ok := s.deps.Refresher.RefreshNow(r.Context())
	if !ok {
		respondJSON(w, http.StatusAccepted, CommandJSON{Message: "A poll is already in progress."})
		return
	}
	respondJSON(w, http.StatusOK, formatRefresh(res))
}

func (s *Server) handleFaultModes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logic.FaultModes())
}

type setFaultModeBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetFaultMode(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commander == nil {
		respondError(w, http.StatusServiceUnavailable, "Commands are not available.")
		return
	}
	var body setFaultModeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Request body must be {\"mode\": \"1\"..\"12\"}.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	ack, err := s.deps.Commander.SetFaultMode(ctx, body.Mode)
	if err != nil {
		s.commandFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CommandJSON{Message: ack.Message, RequestID: ack.RequestID, Mode: body.Mode})
}

type setLEDBody struct {
	State *bool `json:"state"`
}

func (s *Server) handleSetLED(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commander == nil {
		respondError(w, http.StatusServiceUnavailable, "Commands are not available.")
		return
	}
	channel := chi.URLParam(r, "channel")

	var body setLEDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.State == nil {
		respondError(w, http.StatusBadRequest, "Request body must be {\"state\": true|false}.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	ack, err := s.deps.Commander.Apply(ctx, channel, *body.State)
	if err != nil {
		s.commandFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CommandJSON{Message: ack.Message, RequestID: ack.RequestID, Channel: channel, State: body.State})
}

func (s *Server) handleToggleLED(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commander == nil {
		respondError(w, http.StatusServiceUnavailable, "Commands are not available.")
		return
	}
	channel := chi.URLParam(r, "channel")

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	on, ack, err := s.deps.Commander.Toggle(ctx, channel)
	if err != nil {
		s.commandFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CommandJSON{Message: ack.Message, RequestID: ack.RequestID, Channel: channel, State: &on})
}

// commandFailed maps a command error to a response. Commands that never
// reached the rig are the caller's fault; the rest are the rig's.
func (s *Server) commandFailed(w http.ResponseWriter, err error) {
	var ce *command.CommandError
	if !errors.As(err, &ce) {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusBadGateway
	if ce.Err == nil {
		code = http.StatusBadRequest
	}
	out := ErrorJSON{Error: ce.Message, Channel: ce.Channel, Mode: ce.Mode}
	if ce.Op == command.OpSetLED {
		state := ce.State
		out.State = &state
	}
	respondJSON(w, code, out)
}
