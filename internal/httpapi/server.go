// Package httpapi exposes the task store, filter engine and notices over
// JSON HTTP. The owner comes from the X-User-ID header; authentication
// happens in front of this server.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"task-planner/internal/metrics"
	"task-planner/internal/session"
)

const headerUserID = "X-User-ID"

// Server is the HTTP front-end.
type Server struct {
	httpServer *http.Server
	sessions   *session.Registry
	log        *logrus.Entry
	now        func() time.Time
}

func NewServer(addr string, sessions *session.Registry, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		sessions: sessions,
		log:      log,
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(observe(log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireOwner)

		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks/inflight", s.handleInFlight)
		r.Get("/tasks/{id}/subtasks", s.handleSubtasks)
		r.Patch("/tasks/{id}/status", s.handleUpdateStatus)
		r.Delete("/tasks/{id}", s.handleDeleteTask)

		r.Get("/filter", s.handleGetFilter)
		r.Put("/filter", s.handlePutFilter)
		r.Delete("/filter", s.handleClearFilter)

		r.Get("/notices", s.handleListNotices)
		r.Delete("/notices/{id}", s.handleDismissNotice)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", ln.Addr().String()).Info("http api listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerUserID+" header", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) session(r *http.Request) *session.Session {
	return s.sessions.Get(r.Header.Get(headerUserID))
}
