package datanode

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chatmesh/server/internal/config"
	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/tracing"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server wires together a data node's Store, Participant, and their HTTP
// surfaces (DataOps on OpsPort, DataParticipant on ParticipantPort), and
// registers the node with the coordinator on startup.
type Server struct {
	cfg   *config.DataNodeConfig
	store *Store

	opsRouter         *gin.Engine
	participantRouter *gin.Engine

	opsServer         *http.Server
	participantServer *http.Server

	participant *Participant
}

// NewServer constructs a data node Server from validated configuration.
func NewServer(cfg *config.DataNodeConfig) (*Server, error) {
	store, err := NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}
	cache := NewCache(redisClient, 30*time.Second)

	decisionClient := rpcutil.NewClient("coordinator-decision", "http://"+cfg.CoordinatorAddr+"/decisionOps", 5*time.Second)
	participant := NewParticipant(store, cache, decisionClient, cfg.OpsPort, time.Second)

	dataOps := NewDataOpsHandler(store, cache)
	participantHandler := NewParticipantHandler(participant)

	opsRouter := gin.New()
	opsRouter.Use(gin.Recovery(), otelgin.Middleware(string(tracing.RoleDataNode)))
	opsRouter.GET("/health", healthHandler)
	opsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
	dataOps.RegisterRoutes(opsRouter.Group("/dataOps"))

	participantRouter := gin.New()
	participantRouter.Use(gin.Recovery(), otelgin.Middleware(string(tracing.RoleDataNode)))
	participantRouter.GET("/health", healthHandler)
	participantHandler.RegisterRoutes(participantRouter.Group("/dataParticipant"))

	return &Server{
		cfg:               cfg,
		store:             store,
		opsRouter:         opsRouter,
		participantRouter: participantRouter,
		participant:       participant,
	}, nil
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Run starts both HTTP listeners, registers the node with the coordinator,
// and blocks until ctx is cancelled, then drains in-flight decision polls
// and shuts both servers down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.opsServer = &http.Server{Addr: ":" + s.cfg.OpsPort, Handler: s.opsRouter}
	s.participantServer = &http.Server{Addr: ":" + s.cfg.ParticipantPort, Handler: s.participantRouter}

	errCh := make(chan error, 2)
	go func() {
		logging.Info(ctx, "data node DataOps surface starting", zap.String("port", s.cfg.OpsPort))
		if err := s.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()
	go func() {
		logging.Info(ctx, "data node DataParticipant surface starting", zap.String("port", s.cfg.ParticipantPort))
		if err := s.participantServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("participant server: %w", err)
		}
	}()

	if err := s.registerWithCoordinator(ctx); err != nil {
		logging.Warn(ctx, "initial registration with coordinator failed, continuing", zap.Error(err))
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return s.shutdown()
}

func (s *Server) registerWithCoordinator(ctx context.Context) error {
	opsPort, err := strconv.Atoi(s.cfg.OpsPort)
	if err != nil {
		return fmt.Errorf("parse ops port: %w", err)
	}
	participantPort, err := strconv.Atoi(s.cfg.ParticipantPort)
	if err != nil {
		return fmt.Errorf("parse participant port: %w", err)
	}

	req := txn.RegisterDataNodeRequest{
		OpsPort:         opsPort,
		ParticipantPort: participantPort,
		KnownChatrooms:  s.store.KnownChatrooms(),
	}

	registerClient := rpcutil.NewClient("coordinator-register", "http://"+s.cfg.CoordinatorAddr, 5*time.Second)
	var resp txn.RegisterResponse
	if err := registerClient.PostJSON(ctx, "/registration/registerDataNode", req, &resp); err != nil {
		return err
	}
	s.participant.SetToken(resp.Token)
	logging.Info(ctx, "registered with coordinator", zap.Strings("known_chatrooms", req.KnownChatrooms))
	return nil
}

func (s *Server) shutdown() error {
	logging.Info(context.Background(), "data node shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.participant.Shutdown(shutdownCtx)

	if err := s.opsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	if err := s.participantServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("participant server shutdown: %w", err)
	}
	return nil
}
