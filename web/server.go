// Package web serves the landing loop's status, movement history, and an annotated MJPEG stream
// over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	goutils "go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/movement/store"
	"github.com/avioncargo/precisionland/observer"
)

// Loop is the part of the landing loop the server drives.
type Loop interface {
	Start() error
	Stop()
	State() control.State
	RunID() string
	Latest() (control.Snapshot, bool)
	Statistics() control.Statistics
	Movements() *movement.Log
	Bus() *observer.Bus[control.Snapshot]
}

// MovementStore is the persisted movement history. It is optional.
type MovementStore interface {
	Recent(ctx context.Context, n int) ([]store.Record, error)
	Summary(ctx context.Context) (store.Summary, error)
}

// Status is the body of GET /api/status.
type Status struct {
	State      control.State      `json:"state"`
	RunID      string             `json:"run_id,omitempty"`
	Statistics control.Statistics `json:"statistics"`
	Latest     *control.Snapshot  `json:"latest,omitempty"`
}

// MovementStats is the body of GET /api/movements/stats.
type MovementStats struct {
	movement.Statistics
	Recorded *store.Summary `json:"recorded,omitempty"`
}

// Server is the HTTP front of a running loop.
type Server struct {
	cfg    Config
	loop   Loop
	store  MovementStore
	logger logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	served     chan struct{}
}

// NewServer returns a server for loop. store may be nil.
func NewServer(cfg Config, loop Loop, store MovementStore, logger logging.Logger) (*Server, error) {
	if err := cfg.Validate("web"); err != nil {
		return nil, err
	}
	if loop == nil {
		return nil, errors.New("web server requires a landing loop")
	}
	return &Server{cfg: cfg, loop: loop, store: store, logger: logger}, nil
}

// Handler returns the routes, with CORS allowed from anywhere.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/api/status"), s.handleStatus)
	mux.HandleFunc(pat.Get("/api/movements"), s.handleMovements)
	mux.HandleFunc(pat.Get("/api/movements/stats"), s.handleMovementStats)
	mux.HandleFunc(pat.Get("/api/movements/history"), s.handleHistory)
	mux.HandleFunc(pat.Post("/api/loop/start"), s.handleStart)
	mux.HandleFunc(pat.Post("/api/loop/stop"), s.handleStop)
	mux.HandleFunc(pat.Get("/snapshot.jpg"), s.handleSnapshot)
	mux.HandleFunc(pat.Get("/stream.mjpeg"), s.handleStream)
	return cors.AllowAll().Handler(mux)
}

// Start listens on the configured address and serves until Close.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("web server already started")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", s.cfg.Listen)
	}
	// streams watch the base context so Close can end them
	baseCtx, cancel := context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	s.listener = listener
	s.cancel = cancel
	s.served = make(chan struct{})

	httpServer, served := s.httpServer, s.served
	goutils.PanicCapturingGo(func() {
		defer close(served)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("web server stopped", "error", err)
		}
	})
	s.logger.Infow("serving status and stream", "address", listener.Addr().String())
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close ends open streams and shuts the server down. Closing a server that never started is a
// no-op.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	s.cancel()
	err := s.httpServer.Shutdown(ctx)
	<-s.served
	s.httpServer = nil
	s.listener = nil
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		State:      s.loop.State(),
		RunID:      s.loop.RunID(),
		Statistics: s.loop.Statistics(),
	}
	if snap, ok := s.loop.Latest(); ok {
		status.Latest = &snap
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	n, err := countParam(r, s.loop.Movements().Capacity())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.loop.Movements().Recent(n))
}

func (s *Server) handleMovementStats(w http.ResponseWriter, r *http.Request) {
	stats := MovementStats{Statistics: s.loop.Movements().Statistics()}
	if s.store != nil {
		summary, err := s.store.Summary(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		stats.Recorded = &summary
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, errors.New("movement recording is not enabled"))
		return
	}
	n, err := countParam(r, 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	records, err := s.store.Recent(r.Context(), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.loop.Start(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, control.ErrAlreadyRunning) || errors.Is(err, control.ErrStillStopping) {
			code = http.StatusConflict
		}
		s.writeError(w, code, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.loop.State(), "run_id": s.loop.RunID()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.loop.Stop()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.loop.State()})
}

func countParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Errorf("n must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
