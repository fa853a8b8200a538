package chatnode

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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server wires together a chat node's Node, its coordinator-facing ChatOps
// (mgmt) surface, its client-facing ChatUserOps surface, and the raw TCP
// stream listener.
type Server struct {
	cfg  *config.ChatNodeConfig
	node *Node

	opsRouter *gin.Engine
	opsServer *http.Server
	stream    *StreamServer

	logClient *rpcutil.Client
	retrier   *LogRetrier
}

// NewServer constructs a chat node Server from validated configuration.
func NewServer(cfg *config.ChatNodeConfig) (*Server, error) {
	opsPort, err := strconv.Atoi(cfg.OpsPort)
	if err != nil {
		return nil, fmt.Errorf("parse ops port: %w", err)
	}
	streamPort, err := strconv.Atoi(cfg.StreamPort)
	if err != nil {
		return nil, fmt.Errorf("parse stream port: %w", err)
	}
	node := NewNode("", opsPort, streamPort)

	logClient := rpcutil.NewClient("coordinator-chatops", "http://"+cfg.CoordinatorAddr, 5*time.Second)
	retrier := NewLogRetrier(logClient, time.Duration(cfg.LogRetryMillis)*time.Millisecond)

	opsRouter := gin.New()
	opsRouter.Use(gin.Recovery(), otelgin.Middleware(string(tracing.RoleChatNode)))
	opsRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	opsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
	NewChatOpsHandler(node).RegisterRoutes(opsRouter.Group("/chatOps"))
	NewChatUserOpsHandler(node, retrier).RegisterRoutes(opsRouter.Group("/chatUserOps"))

	return &Server{
		cfg:       cfg,
		node:      node,
		opsRouter: opsRouter,
		stream:    NewStreamServer(node),
		logClient: logClient,
		retrier:   retrier,
	}, nil
}

// Run starts the management HTTP listener and the raw TCP stream
// listener, registers with the coordinator, and blocks until ctx is
// cancelled, then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	s.opsServer = &http.Server{Addr: ":" + s.cfg.OpsPort, Handler: s.opsRouter}
	s.retrier.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		logging.Info(ctx, "chat node ChatOps surface starting", zap.String("port", s.cfg.OpsPort))
		if err := s.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()
	go func() {
		logging.Info(ctx, "chat node stream surface starting", zap.String("port", s.cfg.StreamPort))
		if err := s.stream.ListenAndServe(ctx, ":"+s.cfg.StreamPort); err != nil {
			errCh <- fmt.Errorf("stream server: %w", err)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.Info(context.Background(), "chat node shutting down")
	return s.opsServer.Shutdown(shutdownCtx)
}

func (s *Server) registerWithCoordinator(ctx context.Context) error {
	opsPort, err := strconv.Atoi(s.cfg.OpsPort)
	if err != nil {
		return fmt.Errorf("parse ops port: %w", err)
	}
	streamPort, err := strconv.Atoi(s.cfg.StreamPort)
	if err != nil {
		return fmt.Errorf("parse stream port: %w", err)
	}

	req := txn.RegisterChatNodeRequest{OpsPort: opsPort, StreamPort: streamPort}
	registerClient := rpcutil.NewClient("coordinator-register", "http://"+s.cfg.CoordinatorAddr, 5*time.Second)
	var resp txn.RegisterResponse
	if err := registerClient.PostJSON(ctx, "/registration/registerChatNode", req, &resp); err != nil {
		return err
	}
	s.retrier.SetToken(resp.Token)
	logging.Info(ctx, "registered with coordinator")
	return nil
}
