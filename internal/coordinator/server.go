package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chatmesh/server/internal/config"
	"github.com/chatmesh/server/internal/identity"
	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/middleware"
	"github.com/chatmesh/server/internal/ratelimit"
	"github.com/chatmesh/server/internal/tracing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server wires together the coordinator's roster, 2PC driver, placer, and
// the three remote surfaces (Registration, UserOps, ChatOps), plus the
// admin introspection endpoints.
type Server struct {
	cfg    *config.CoordinatorConfig
	roster *Roster
	driver *Driver
	placer *Placer
	admin  *AdminHub
	signer *identity.Signer

	router *gin.Engine
	http   *http.Server
}

// NewServer constructs a coordinator Server from validated configuration.
func NewServer(cfg *config.CoordinatorConfig, redisClient *redis.Client) (*Server, error) {
	roster := NewRoster()
	clientTimeout := 5 * time.Second
	driver := NewDriver(roster, time.Duration(cfg.CommitWaitMillis)*time.Millisecond, clientTimeout)
	placer := NewPlacer(roster, clientTimeout)
	admin := NewAdminHub(strings.Split(cfg.AllowedOrigins, ","))
	signer := identity.NewSigner(cfg.IdentitySecret, 24*time.Hour)

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator port: %w", err)
	}

	limiter, err := ratelimit.NewRateLimiter(cfg.RateLimitUserOpsIP, redisClient)
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(string(tracing.RoleCoordinator)), middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	corsCfg.AllowMethods = []string{"GET", "POST"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/admin/ws", admin.ServeWs)
	router.GET("/nodes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"chat_nodes":        roster.ChatNodes(),
			"data_ops":          roster.DataOps(),
			"data_participants": roster.DataParticipants(),
		})
	})

	NewRegistrationHandler(roster, placer, signer, port).RegisterRoutes(router.Group("/registration"))
	NewDecisionOpsHandler(driver, signer).RegisterRoutes(router.Group("/decisionOps"))
	NewChatOpsHandler(driver, admin, signer).RegisterRoutes(router.Group("/chatOps"))

	userOps := router.Group("/userOps")
	userOps.Use(limiter.UserOpsMiddleware())
	NewUserOpsHandler(roster, driver, placer, clientTimeout).RegisterRoutes(userOps)

	return &Server{
		cfg:    cfg,
		roster: roster,
		driver: driver,
		placer: placer,
		admin:  admin,
		signer: signer,
		router: router,
	}, nil
}

// Run starts the HTTP listener and the liveness sweeper, and blocks until
// ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.roster.StartSweeper(ctx, time.Duration(s.cfg.SweepIntervalSeconds)*time.Second)

	s.http = &http.Server{Addr: ":" + s.cfg.Port, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "coordinator starting", zap.String("port", s.cfg.Port))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("coordinator server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.Info(context.Background(), "coordinator shutting down")
	return s.http.Shutdown(shutdownCtx)
}
