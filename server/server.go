package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	gin "github.com/gin-gonic/gin"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	zap "go.uber.org/zap"

	config "github.com/agentruntime/a2a/server/config"
	middlewares "github.com/agentruntime/a2a/server/middlewares"
	otel "github.com/agentruntime/a2a/server/otel"
	types "github.com/agentruntime/a2a/types"
)

// JSON-RPC method names of the protocol surface.
const (
	MethodMessageSend       = "message/send"
	MethodMessageStream     = "message/stream"
	MethodTasksGet          = "tasks/get"
	MethodTasksCancel       = "tasks/cancel"
	MethodTasksResubscribe  = "tasks/resubscribe"
	MethodPushConfigSet     = "tasks/pushNotificationConfig/set"
	MethodPushConfigGet     = "tasks/pushNotificationConfig/get"
	MethodPushConfigList    = "tasks/pushNotificationConfig/list"
	MethodPushConfigDelete  = "tasks/pushNotificationConfig/delete"
	MethodAgentExtendedCard = "agent/authenticatedExtendedCard"
)

// A2AServer serves the protocol over HTTP: JSON-RPC on POST /a2a, SSE for
// the streaming methods, the agent card on its well-known path.
type A2AServer interface {
	// Start runs the HTTP server until it fails or is stopped
	Start(ctx context.Context) error

	// Stop gracefully shuts the server down
	Stop(ctx context.Context) error

	// GetAgentCard returns the configured agent card
	GetAgentCard() *types.AgentCard

	// SetAgentCard replaces the agent card served on the well-known path
	SetAgentCard(card types.AgentCard)
}

// A2AServerImpl implements A2AServer on gin.
type A2AServerImpl struct {
	cfg            *config.Config
	logger         *zap.Logger
	otel           otel.OpenTelemetry
	handler        RequestHandler
	responseSender ResponseSender
	agentCard      *types.AgentCard

	httpServer    *http.Server
	metricsServer *http.Server
}

var _ A2AServer = (*A2AServerImpl)(nil)

// NewA2AServer creates a server around an existing request handler. The
// handler is wrapped with the agent card's capability gate when the card is
// set before Start.
func NewA2AServer(cfg *config.Config, logger *zap.Logger, telemetry otel.OpenTelemetry, handler RequestHandler) *A2AServerImpl {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &A2AServerImpl{
		cfg:            cfg,
		logger:         logger,
		otel:           telemetry,
		handler:        handler,
		responseSender: NewDefaultResponseSender(logger),
	}
}

// NewDefaultA2AServer assembles the full stack from configuration: task
// store, push notification components, task manager, request handler and
// capability gate.
func NewDefaultA2AServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, taskHandler TaskHandler) (*A2AServerImpl, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if taskHandler == nil {
		taskHandler = NewEchoTaskHandler(logger)
	}

	taskStore, err := buildTaskStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	taskManager := NewDefaultTaskManager(taskStore, logger)

	var opts []RequestHandlerOption
	if cfg.PushConfig.Enable {
		pushStore, err := buildPushConfigStore(ctx, cfg, logger, taskStore)
		if err != nil {
			return nil, err
		}
		pushSender := NewHTTPPushNotificationSender(pushStore, logger)
		opts = append(opts, WithPushNotifications(pushStore, pushSender))
	}

	if cfg.ArtifactsConfig.Enable {
		artifactStorage, err := NewArtifactStorageFromConfig(cfg.ArtifactsConfig.StorageConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithArtifactStorage(artifactStorage))
	}

	handler := NewDefaultRequestHandler(taskManager, taskHandler, logger, opts...)

	var telemetry otel.OpenTelemetry
	if cfg.TelemetryConfig.Enable {
		telemetry, err = otel.NewOpenTelemetry(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	return NewA2AServer(cfg, logger, telemetry, handler), nil
}

func buildTaskStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (TaskStore, error) {
	switch cfg.StorageConfig.Provider {
	case "sqlite":
		dsn := cfg.StorageConfig.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		return ConnectSQLTaskStore(ctx, dsn, logger)
	case "redis":
		return ConnectRedisTaskStore(ctx, cfg.StorageConfig.URL, logger)
	default:
		return NewInMemoryTaskStore(logger), nil
	}
}

// buildPushConfigStore shares the sqlite handle with the task store so both
// live in the same database file.
func buildPushConfigStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, taskStore TaskStore) (PushNotificationConfigStore, error) {
	sqlStore, ok := taskStore.(*SQLTaskStore)
	if !ok {
		return NewInMemoryPushNotificationConfigStore(logger), nil
	}

	var store *SQLPushNotificationConfigStore
	if cfg.PushConfig.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.PushConfig.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid push encryption key: %w", err)
		}
		store, err = NewEncryptedSQLPushNotificationConfigStore(sqlStore.db, logger, key)
		if err != nil {
			return nil, err
		}
	} else {
		store = NewSQLPushNotificationConfigStore(sqlStore.db, logger)
	}

	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// SetAgentCard replaces the agent card served on the well-known path.
func (s *A2AServerImpl) SetAgentCard(card types.AgentCard) {
	s.agentCard = &card
}

// GetAgentCard returns the agent's capabilities and metadata.
// Returns nil if no agent card has been explicitly set.
func (s *A2AServerImpl) GetAgentCard() *types.AgentCard {
	return s.agentCard
}

// LoadAgentCardFromFile reads an agent card definition from a JSON file,
// applying top-level overrides on the parsed document.
func (s *A2AServerImpl) LoadAgentCardFromFile(filePath string, overrides map[string]any) error {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read agent card file: %w", err)
	}

	if len(overrides) > 0 {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to parse agent card file: %w", err)
		}
		for key, value := range overrides {
			doc[key] = value
		}
		if raw, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("failed to apply agent card overrides: %w", err)
		}
	}

	var card types.AgentCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return fmt.Errorf("failed to parse agent card file: %w", err)
	}

	s.agentCard = &card
	s.logger.Info("agent card loaded from file",
		zap.String("path", filePath),
		zap.String("name", card.Name))

	return nil
}

func (s *A2AServerImpl) setupRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.LoggingMiddleware(cfg.ServerConfig.DisableHealthcheckLog))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.GET("/.well-known/agent.json", s.handleAgentInfo)
	r.GET("/agent/authenticatedExtendedCard", s.handleExtendedCard)

	var telemetryMiddleware gin.HandlerFunc
	if s.cfg.TelemetryConfig.Enable && s.otel != nil {
		telemetryMw, err := middlewares.NewTelemetryMiddleware(*s.cfg, s.otel, s.logger)
		if err != nil {
			s.logger.Error("failed to create telemetry middleware", zap.Error(err))
		} else {
			telemetryMiddleware = telemetryMw.Middleware()
		}
	}

	var a2aHandlers []gin.HandlerFunc
	if telemetryMiddleware != nil {
		a2aHandlers = append(a2aHandlers, telemetryMiddleware)
	}

	if cfg.AuthConfig.Enable {
		oidcAuthenticator, err := middlewares.NewOIDCAuthenticatorMiddleware(s.logger, *s.cfg)
		if err != nil {
			s.logger.Error("failed to create OIDC authenticator", zap.Error(err))
			return r
		}
		a2aHandlers = append(a2aHandlers, oidcAuthenticator.Middleware())
	} else {
		s.logger.Warn("authentication is disabled")
	}

	if s.agentCard != nil && len(s.agentCard.Security) > 0 {
		validator := middlewares.NewSecurityValidator(s.logger, *s.cfg)
		a2aHandlers = append(a2aHandlers, validator.ValidateSecurityRequirements(s.agentCard))
	}

	a2aHandlers = append(a2aHandlers, s.handleA2ARequest)
	r.POST("/a2a", a2aHandlers...)

	return r
}

// Start starts the A2A server
func (s *A2AServerImpl) Start(ctx context.Context) error {
	if s.agentCard == nil {
		return fmt.Errorf("agent card must be configured before starting the server - use SetAgentCard() or LoadAgentCardFromFile()")
	}

	s.handler = NewCapabilityGate(s.handler, *s.agentCard)

	router := s.setupRouter(s.cfg)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.cfg.ServerConfig.Port),
		Handler:      router,
		ReadTimeout:  s.cfg.ServerConfig.ReadTimeout,
		WriteTimeout: s.cfg.ServerConfig.WriteTimeout,
		IdleTimeout:  s.cfg.ServerConfig.IdleTimeout,
	}

	s.logger.Info("starting A2A server",
		zap.String("port", s.cfg.ServerConfig.Port),
		zap.String("agent_name", s.cfg.AgentName),
		zap.String("agent_version", s.cfg.AgentVersion))

	if s.cfg.TelemetryConfig.Enable && s.otel != nil {
		go s.startMetricsServer()
	}

	if s.cfg.ServerConfig.TLSConfig.Enable {
		return s.httpServer.ListenAndServeTLS(s.cfg.ServerConfig.TLSConfig.CertPath, s.cfg.ServerConfig.TLSConfig.KeyPath)
	}

	return s.httpServer.ListenAndServe()
}

func (s *A2AServerImpl) startMetricsServer() {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	metricsAddr := s.cfg.TelemetryConfig.MetricsConfig.Host + ":" + s.cfg.TelemetryConfig.MetricsConfig.Port
	s.metricsServer = &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  s.cfg.TelemetryConfig.MetricsConfig.ReadTimeout,
		WriteTimeout: s.cfg.TelemetryConfig.MetricsConfig.WriteTimeout,
		IdleTimeout:  s.cfg.TelemetryConfig.MetricsConfig.IdleTimeout,
	}

	s.logger.Info("starting metrics server", zap.String("port", s.cfg.TelemetryConfig.MetricsConfig.Port))
	if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("metrics server failed", zap.Error(err))
	}
}

// Stop gracefully stops the A2A server
func (s *A2AServerImpl) Stop(ctx context.Context) error {
	s.logger.Info("stopping A2A server")

	var err error

	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("error stopping HTTP server", zap.Error(shutdownErr))
			err = shutdownErr
		}
	}

	if s.metricsServer != nil {
		if shutdownErr := s.metricsServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("error stopping metrics server", zap.Error(shutdownErr))
			if err == nil {
				err = shutdownErr
			}
		}
	}

	if s.otel != nil {
		if shutdownErr := s.otel.ShutDown(ctx); shutdownErr != nil {
			s.logger.Error("error shutting down telemetry", zap.Error(shutdownErr))
			if err == nil {
				err = shutdownErr
			}
		}
	}

	defer func() {
		if syncErr := s.logger.Sync(); syncErr != nil {
			s.logger.Error("failed to sync logger on shutdown", zap.Error(syncErr))
		}
	}()

	return err
}

func (s *A2AServerImpl) handleAgentInfo(c *gin.Context) {
	if s.agentCard == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "agent card not configured",
		})
		return
	}

	c.JSON(http.StatusOK, s.agentCard)
}

func (s *A2AServerImpl) handleExtendedCard(c *gin.Context) {
	card, err := s.handler.OnGetAuthenticatedExtendedCard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, card)
}

// handleA2ARequest parses the JSON-RPC envelope and dispatches to the
// request handler. Every error is reported in the response body with a 200
// status, per JSON-RPC convention.
func (s *A2AServerImpl) handleA2ARequest(c *gin.Context) {
	var req types.JSONRPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responseSender.SendError(c, nil, int(ErrParseError), "failed to parse request")
		return
	}

	var id any
	if req.ID != nil {
		id = *req.ID
	}

	if req.JSONRPC != "2.0" {
		s.responseSender.SendError(c, id, int(ErrInvalidRequest), "jsonrpc version must be 2.0")
		return
	}

	s.logger.Debug("handling a2a request",
		zap.String("method", req.Method),
		zap.Any("id", id))

	ctx := c.Request.Context()

	switch req.Method {
	case MethodMessageSend:
		var params types.MessageSendParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) { return s.handler.OnMessageSend(ctx, params) })

	case MethodMessageStream:
		var params types.MessageSendParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		events, err := s.handler.OnMessageStream(ctx, params)
		if err != nil {
			s.sendHandlerError(c, id, err)
			return
		}
		s.streamEvents(c, id, events)

	case MethodTasksGet:
		var params types.TaskQueryParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) { return s.handler.OnGetTask(ctx, params) })

	case MethodTasksCancel:
		var params types.TaskIdParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) { return s.handler.OnCancelTask(ctx, params) })

	case MethodTasksResubscribe:
		var params types.TaskIdParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		events, err := s.handler.OnResubscribe(ctx, params)
		if err != nil {
			s.sendHandlerError(c, id, err)
			return
		}
		s.streamEvents(c, id, events)

	case MethodPushConfigSet:
		var params types.TaskPushNotificationConfig
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) { return s.handler.OnSetTaskPushNotificationConfig(ctx, params) })

	case MethodPushConfigGet:
		var params types.GetTaskPushNotificationConfigParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) { return s.handler.OnGetTaskPushNotificationConfig(ctx, params) })

	case MethodPushConfigList:
		var params types.TaskIdParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) { return s.handler.OnListTaskPushNotificationConfig(ctx, params) })

	case MethodPushConfigDelete:
		var params types.DeleteTaskPushNotificationConfigParams
		if !s.bindParams(c, id, req.Params, &params) {
			return
		}
		s.respond(c, id, func() (any, error) {
			if err := s.handler.OnDeleteTaskPushNotificationConfig(ctx, params); err != nil {
				return nil, err
			}
			return nil, nil
		})

	case MethodAgentExtendedCard:
		s.respond(c, id, func() (any, error) { return s.handler.OnGetAuthenticatedExtendedCard(ctx) })

	default:
		s.responseSender.SendError(c, id, int(ErrMethodNotFound), fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *A2AServerImpl) bindParams(c *gin.Context, id any, raw json.RawMessage, target any) bool {
	if len(raw) == 0 {
		s.responseSender.SendError(c, id, int(ErrInvalidParams), "params are required")
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		s.responseSender.SendError(c, id, int(ErrInvalidParams), fmt.Sprintf("invalid params: %v", err))
		return false
	}
	return true
}

func (s *A2AServerImpl) respond(c *gin.Context, id any, call func() (any, error)) {
	result, err := call()
	if err != nil {
		s.sendHandlerError(c, id, err)
		return
	}
	s.responseSender.SendSuccess(c, id, result)
}

func (s *A2AServerImpl) sendHandlerError(c *gin.Context, id any, err error) {
	s.responseSender.SendError(c, id, int(ErrorCode(err)), err.Error())
}

// streamEvents writes the event channel as an SSE response until the channel
// closes or the client disconnects.
func (s *A2AServerImpl) streamEvents(c *gin.Context, id any, events <-chan types.Event) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	for {
		select {
		case <-c.Request.Context().Done():
			s.logger.Debug("client disconnected from event stream")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.responseSender.SendEvent(c, id, event); err != nil {
				s.logger.Warn("failed to write stream event", zap.Error(err))
				return
			}
		}
	}
}
