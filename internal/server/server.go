package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"subflow/internal/history"
	"subflow/internal/logging"
	"subflow/internal/pipeline"
)

// maxSessions bounds how many finished runs stay queryable.
const maxSessions = 200

// HistoryLister is the read side of the history store.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Options configures a Server.
type Options struct {
	Orchestrator *pipeline.Orchestrator
	History      HistoryLister
	Bind         string
	// EventBuffer is the per-run replay buffer size.
	EventBuffer  int
	AllowOrigins string
	Token        string
	Logger       *slog.Logger
}

// Server is the HTTP/WebSocket front end for an orchestrator.
type Server struct {
	opts   Options
	logger *slog.Logger
	app    *fiber.App

	mu       sync.RWMutex
	sessions map[string]*session
}

// session pairs a run with the bus that buffers its events.
type session struct {
	run     *pipeline.Run
	bus     *pipeline.Bus
	created time.Time
}

// New builds the fiber app and registers routes.
func New(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("server requires an orchestrator")
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 1000
	}
	s := &Server{
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "server"),
		sessions: make(map[string]*session),
	}

	app := fiber.New(fiber.Config{
		AppName:               "subflow",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(s.requestLogger)
	if opts.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}))
	}

	app.Get("/api/health", s.handleHealth)

	api := app.Group("/api", bearerAuth(opts.Token))
	api.Get("/runs", s.handleListRuns)
	api.Post("/runs", s.handleCreateRun)
	api.Get("/runs/:id", s.handleGetRun)
	api.Delete("/runs/:id", s.handleCancelRun)
	api.Get("/runs/:id/events", s.handleEvents)
	api.Get("/history", s.handleHistory)

	ws := app.Group("/ws", bearerAuth(opts.Token), requireUpgrade)
	ws.Get("/runs/:id", websocket.New(s.handleStream))

	s.app = app
	return s, nil
}

// App returns the underlying fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured bind address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("server bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	return nil
}

func (s *Server) register(run *pipeline.Run, bus *pipeline.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[run.ID] = &session{run: run, bus: bus, created: time.Now()}
	if len(s.sessions) <= maxSessions {
		return
	}
	finished := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.bus.Closed() {
			finished = append(finished, sess)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].created.Before(finished[j].created) })
	for _, sess := range finished[:min(len(finished), len(s.sessions)-maxSessions)] {
		delete(s.sessions, sess.run.ID)
		s.opts.Orchestrator.Forget(sess.run.ID)
	}
}

func (s *Server) session(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) list() []*session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].created.After(out[j].created) })
	return out
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("api request",
		logging.String("method", c.Method()),
		logging.String("path", c.Path()),
		logging.Int("status", c.Response().StatusCode()),
		logging.Duration("elapsed", time.Since(start)))
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
// WebSocket clients that cannot set headers may pass ?token= instead.
func bearerAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		auth := c.Get(fiber.HeaderAuthorization)
		if strings.HasPrefix(auth, "Bearer ") && tokenMatches(strings.TrimPrefix(auth, "Bearer "), token) {
			return c.Next()
		}
		if tokenMatches(c.Query("token"), token) {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "unauthorized"})
	}
}

// tokenMatches compares in constant time for equal-length inputs.
func tokenMatches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
