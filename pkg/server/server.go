package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/usecase/chat"
	"github.com/thairag/thairag/pkg/utils/logging"
)

const (
	DefaultTurnTimeout    = 2 * time.Minute
	DefaultMaxMessageSize = 8 * 1024
	DefaultPingInterval   = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Server relays chat turns over WebSocket. Each connection owns one session.
type Server struct {
	manager  *chat.Manager
	echo     *echo.Echo
	upgrader websocket.Upgrader

	turnTimeout    time.Duration
	maxMessageSize int64
	pingInterval   time.Duration
	writeTimeout   time.Duration

	closing   chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

type Option func(*Server)

// WithTurnTimeout bounds a turn. On timeout the client receives an error frame.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.turnTimeout = d
	}
}

// WithMaxMessageSize limits the size of a client message in bytes
func WithMaxMessageSize(n int64) Option {
	return func(s *Server) {
		s.maxMessageSize = n
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pingInterval = d
	}
}

func New(manager *chat.Manager, opts ...Option) *Server {
	s := &Server{
		manager:        manager,
		turnTimeout:    DefaultTurnTimeout,
		maxMessageSize: DefaultMaxMessageSize,
		pingInterval:   DefaultPingInterval,
		writeTimeout:   DefaultWriteTimeout,
		closing:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := logging.From(c.Request().Context())
			if v.Error != nil {
				logger.Warn("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "error", v.Error)
				return nil
			}
			logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/chatbot", s.handleChatbot)
	s.echo = e

	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then closes every connection
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logging.From(ctx).Info("server started", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "failed to start server", goerr.V("addr", addr))
		}
		return nil
	case <-ctx.Done():
	}

	logging.From(ctx).Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server")
	}
	s.Close()
	return nil
}

// Close terminates open connections and waits for them to finish
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	s.conns.Wait()
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Sessions: s.manager.Count()})
}

func (s *Server) handleChatbot(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied to the client
		logging.From(c.Request().Context()).Warn("failed to upgrade websocket", "error", err)
		return nil
	}

	s.conns.Add(1)
	defer s.conns.Done()

	s.serve(c.Request().Context(), ws)
	return nil
}
