// Package httpapi exposes the reminder CRUD surface over HTTP, mirroring
// the route names of the original service so existing clients keep working.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"payremind/internal/gateway"
	"payremind/internal/reminders"
	logx "payremind/pkg/logx"
)

type Config struct {
	Addr         string // default ":3000"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg    Config
	log    logx.Logger
	svc    *reminders.Service
	sender gateway.Sender
	loc    *time.Location

	srv *http.Server
}

func New(cfg Config, svc *reminders.Service, sender gateway.Sender, loc *time.Location, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Server{cfg: cfg, log: log, svc: svc, sender: sender, loc: loc}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/schedule-reminder", s.handleCreate)
	r.Get("/get-reminders", s.handleListPending)
	r.Put("/update-reminder/{id}", s.handleUpdate)
	r.Delete("/delete-reminder/{id}", s.handleDelete)

	r.Get("/get-sent-reminders", s.handleListSent)
	r.Get("/get-sent-reminder/{id}", s.handleGetSent)
	r.Put("/update-sent-reminder/{id}", s.handleUpdateSent)
	r.Delete("/delete-sent-reminder/{id}", s.handleDeleteSent)
	r.Post("/reschedule-reminder/{id}", s.handleRescheduleNow)

	r.Get("/get-dead-reminders", s.handleListDead)
	r.Get("/gateway-status", s.handleGatewayStatus)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Endpoint tidak ditemukan"})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Run serves until ctx is canceled or the server fails. A bind error is
// returned to the caller, so a supervisor running with cancel-on-error takes
// the process down instead of leaving it alive without an API.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()
	s.log.Info("http server listening", logx.String("addr", s.srv.Addr))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
