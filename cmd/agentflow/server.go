package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BaSui01/agentflow/budget"
	"github.com/BaSui01/agentflow/config"
	"github.com/BaSui01/agentflow/ctxstore"
	"github.com/BaSui01/agentflow/eventbus"
	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/internal/server"
	"github.com/BaSui01/agentflow/providers"
	"github.com/BaSui01/agentflow/registry"
	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
	"github.com/BaSui01/agentflow/workflow"
)

// Server owns every long-lived component the gateway needs and the HTTP
// listener that upgrades incoming connections to WebSocket sessions,
// adapted from the teacher's cmd/agentflow/server.go wiring shape.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager *server.Manager
	deps        gateway.Deps
	health      *registry.HealthMonitor

	wg sync.WaitGroup
}

// NewServer opens the database and Redis connections, builds every
// component (C1-C9), and prepares the gateway dependency bundle (C10).
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ctxstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate context store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	keyStore := registry.NewKeyStore()
	reg := registry.New(keyStore, logger)
	bus := eventbus.New(logger)
	ctxStore := ctxstore.New(db, logger)
	daily := budget.NewDailyAggregate(redisClient, logger)
	engine := workflow.New(bus, logger)
	canary := registry.NewCanaryRouter(logger)

	health := registry.NewHealthMonitor(logger)
	reg.SetHealthMonitor(health)

	jwtSecret := []byte(cfg.Auth.JWTSecret)

	deps := gateway.Deps{
		Registry:  reg,
		KeyStore:  keyStore,
		Factory:   providerFactory(logger),
		CtxStore:  ctxStore,
		Daily:     daily,
		Bus:       bus,
		Engine:    engine,
		Canary:    canary,
		JWTSecret: jwtSecret,
		Logger:    logger,
	}

	return &Server{cfg: cfg, logger: logger, deps: deps, health: health}, nil
}

// healthProbeAdapters builds one adapter per provider for the background
// health monitor to probe, resolved against the process-wide environment
// keys (registry.KeyStore.Resolve with an empty userID falls through to
// the env-var fallback); a provider with no environment key configured is
// skipped rather than probed with an empty credential.
func healthProbeAdapters(keyStore *registry.KeyStore, factory registry.Factory, logger *zap.Logger) map[types.Provider]stream.Adapter {
	adapters := make(map[types.Provider]stream.Adapter)
	for _, p := range types.AllProviders {
		apiKey, err := keyStore.Resolve("", p)
		if err != nil {
			logger.Debug("skipping health probe, no credential configured", zap.String("provider", string(p)))
			continue
		}
		adapter, err := factory(p, apiKey)
		if err != nil {
			logger.Warn("failed to build health probe adapter", zap.String("provider", string(p)), zap.Error(err))
			continue
		}
		adapters[p] = adapter
	}
	return adapters
}

// providerFactory builds a registry.Factory that dispatches to the
// concrete providers.* constructor for each of the six supported
// providers (spec §4.1/§3's provider enumeration).
func providerFactory(logger *zap.Logger) registry.Factory {
	return func(p types.Provider, apiKey string) (stream.Adapter, error) {
		switch p {
		case types.ProviderClaude:
			return providers.NewClaude(providers.ClaudeConfig{APIKey: apiKey, Timeout: 2 * time.Minute}, logger), nil
		case types.ProviderGemini:
			return providers.NewGemini(providers.GeminiConfig{APIKey: apiKey, Timeout: 2 * time.Minute}, logger), nil
		case types.ProviderChatGPT, types.ProviderGrok, types.ProviderDeepSeek, types.ProviderLlama:
			return providers.NewOpenAICompatFor(p, apiKey, logger), nil
		default:
			return nil, fmt.Errorf("unknown provider %q", p)
		}
	}
}

func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// Start brings up the HTTP listener that serves /healthz and upgrades
// /ws requests into gateway.Session connections.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	serverCfg := server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(mux, serverCfg, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	probes := healthProbeAdapters(s.deps.KeyStore, s.deps.Factory, s.logger)
	s.health.Start(context.Background(), probes)

	s.logger.Info("gateway listening", zap.String("addr", s.cfg.Server.Addr))
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	sess := gateway.NewSession(conn, sessionID, s.deps)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.Serve(r.Context())
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	}()
}

// WaitForShutdown blocks until an interrupt signal arrives, then shuts
// down cleanly.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listener and waits for in-flight sessions to end.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down gateway")
	if s.health != nil {
		s.health.Stop()
	}
	ctx := context.Background()
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("gateway shutdown complete")
}
