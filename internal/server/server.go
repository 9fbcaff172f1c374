package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"

	"reel/internal/config"
	"reel/internal/history"
	"reel/internal/job"
	"reel/internal/jobqueue"
	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/render"
)

// ErrAlreadyRunning is returned by Start when another process holds the lock.
var ErrAlreadyRunning = errors.New("server already running")

// Renderer runs synchronous renders. *render.Renderer satisfies it.
type Renderer interface {
	Prepare(j job.Job) (job.Job, error)
	Render(ctx context.Context, id string, j job.Job, sink progress.Sink) (render.Result, error)
}

// History is the render record store. *history.Store satisfies it.
type History interface {
	Enqueue(ctx context.Context, id string, j job.Job) (*history.Record, error)
	Finish(ctx context.Context, id string, outcome history.Outcome) error
	Get(ctx context.Context, id string) (*history.Record, error)
	List(ctx context.Context, limit int, statuses ...history.Status) ([]*history.Record, error)
}

// Queue accepts asynchronous renders. *jobqueue.Queue satisfies it.
type Queue interface {
	Push(ctx context.Context, msg jobqueue.Message) error
	Len(ctx context.Context) (int64, error)
}

// Options wires a Server. History and Queue are optional.
type Options struct {
	Config   *config.Config
	Renderer Renderer
	History  History
	Queue    Queue
	Logger   *slog.Logger
}

// Server is the HTTP render API.
type Server struct {
	cfg      *config.Config
	renderer Renderer
	history  History
	queue    Queue
	logger   *slog.Logger
	slots    chan struct{}
	router   chi.Router

	lockPath string
	lock     *flock.Flock
	listener net.Listener
	server   *http.Server
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("server: renderer is required")
	}
	limit := opts.Config.Server.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	lockPath := opts.Config.LockPath("serve")
	s := &Server{
		cfg:      opts.Config,
		renderer: opts.Renderer,
		history:  opts.History,
		queue:    opts.Queue,
		logger:   logging.NewComponentLogger(opts.Logger, "server"),
		slots:    make(chan struct{}, limit),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/deps", s.handleDeps)
	r.Post("/api/render", s.handleRender)
	r.Post("/api/renders", s.handleEnqueue)
	r.Get("/api/renders", s.handleList)
	r.Get("/api/renders/{renderID}", s.handleGet)
	return r
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start acquires the server lock, binds server.bind and serves in the
// background until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, s.lockPath)
	}

	bind := strings.TrimSpace(s.cfg.Server.Bind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Streamed renders outlive any fixed write deadline.
		WriteTimeout: 0,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "server_started"),
		logging.String("address", listener.Addr().String()),
		logging.Int("max_concurrent", cap(s.slots)),
		logging.String("lock", s.lockPath),
	)
	return nil
}

// Addr is the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down and releases the lock. It is safe to call
// more than once.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.lock.Locked() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release server lock", logging.Error(err))
		}
	}
}

// Run starts the server and blocks until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}
