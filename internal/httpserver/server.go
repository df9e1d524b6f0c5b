// Package httpserver exposes a small local control surface for the device:
// health, the last session outcome, and an on-demand session trigger.
package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/session"
)

// SessionRunner runs one complete session.
type SessionRunner interface {
	Run(ctx context.Context) session.Outcome
}

// Status is the body of GET /status.
type Status struct {
	Running       bool           `json:"running"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	LastSessionID string         `json:"last_session_id,omitempty"`
	LastStatus    session.Status `json:"last_status,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	LastEndedAt   *time.Time     `json:"last_ended_at,omitempty"`
	Sessions      int            `json:"sessions"`
}

// Server bundles the router and the session trigger state.
type Server struct {
	Router *echo.Echo

	runner SessionRunner
	token  string
	log    *zap.Logger
	now    func() time.Time

	// sessions started over HTTP outlive the request; they stop with base
	base context.Context
	wg   sync.WaitGroup

	mu     sync.Mutex
	status Status
}

// New constructs the control server. base bounds background sessions; token,
// when set, is required on POST /sessions.
func New(base context.Context, runner SessionRunner, token string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{runner: runner, token: token, log: log.Named("http"), now: time.Now, base: base}
	e := newRouter(s.log)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/status", s.handleStatus)
	e.POST("/sessions", s.handleStart)
	s.Router = e
	return s
}

func (s *Server) handleStatus(c echo.Context) error {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleStart(c echo.Context) error {
	if !authOK(c.Request(), s.token) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "a session is already running"})
	}
	started := s.now()
	s.status.Running = true
	s.status.StartedAt = &started
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	return c.JSON(http.StatusAccepted, map[string]any{"started_at": started})
}

func (s *Server) run() {
	defer s.wg.Done()
	out := s.runner.Run(s.base)
	ended := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.StartedAt = nil
	s.status.Sessions++
	s.status.LastStatus = out.Status
	s.status.LastEndedAt = &ended
	s.status.LastSessionID = ""
	if out.Summary != nil {
		s.status.LastSessionID = out.Summary.SessionID
	}
	s.status.LastError = ""
	if out.Err != nil {
		s.status.LastError = out.Err.Error()
	}
	s.log.Info("session finished", zap.String("status", string(out.Status)), zap.String("session_id", s.status.LastSessionID))
}

// Wait blocks until background sessions have finished.
func (s *Server) Wait() { s.wg.Wait() }

// authOK checks the token against X-Auth-Token or Authorization: Bearer.
// An empty expected token accepts every request.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if tok := r.Header.Get("X-Auth-Token"); tok != "" {
		return equal(tok, expected)
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return equal(strings.TrimSpace(auth[7:]), expected)
	}
	return false
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
