package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/connection"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/version"
	"github.com/pscheid92/chatrelay/internal/redis"
	"golang.org/x/time/rate"
)

type requester interface {
	BroadcastAndCollect(ctx context.Context, req coordination.Request) (*coordination.Result, error)
}

type instanceLister interface {
	Active(ctx context.Context) ([]redis.InstanceInfo, error)
}

// Dependencies are the collaborators the HTTP surface is wired to.
// Instances and the metrics fields may be nil.
type Dependencies struct {
	Registry     domain.GroupRegistry
	Coordinator  requester
	Instances    instanceLister
	Clock        clockwork.Clock
	Prometheus   *prometheus.Registry
	HTTPMetrics  *metrics.HTTPMetrics
	WSMetrics    *metrics.WebSocketMetrics
	HealthChecks []HealthCheck
	// Build is served on /version. The zero value reports the bare build.
	Build version.Info
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	registry    domain.GroupRegistry
	coordinator requester
	instances   instanceLister
	clock       clockwork.Clock

	promRegistry *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	wsMetrics    *metrics.WebSocketMetrics

	upgrader    websocket.Upgrader
	connOptions connection.Options
	connections *connectionLimiter
	connCtx     context.Context
	cancelConns context.CancelFunc
	connWG      sync.WaitGroup

	healthChecks []HealthCheck
	build        version.Info
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	connCtx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		echo:         e,
		config:       cfg,
		registry:     deps.Registry,
		coordinator:  deps.Coordinator,
		instances:    deps.Instances,
		clock:        clock,
		promRegistry: deps.Prometheus,
		httpMetrics:  deps.HTTPMetrics,
		wsMetrics:    deps.WSMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		},
		connOptions: connection.Options{
			AckDelivery:  cfg.AckDelivery,
			InboundRate:  rate.Limit(cfg.InboundRate),
			InboundBurst: cfg.InboundBurst,
			SendBuffer:   cfg.MailboxSize,
		},
		connections:  newConnectionLimiter(int64(cfg.MaxConnections)),
		connCtx:      connCtx,
		cancelConns:  cancel,
		healthChecks: deps.HealthChecks,
		build:        deps.Build,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes every peer connection and
// waits for their handlers to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelConns()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connections still open at shutdown: %w", ctx.Err())
	}
}

// ServeHTTP lets tests drive the router through httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
