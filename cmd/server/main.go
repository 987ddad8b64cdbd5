package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thraizz/skirmish-server-go/internal/config"
	"github.com/thraizz/skirmish-server-go/internal/game"
	"github.com/thraizz/skirmish-server-go/internal/repository"
	"github.com/thraizz/skirmish-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting skirmish server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Persistence is optional; without a database URL matches live in memory.
	var (
		store   game.Store
		pgStore *repository.Store
	)
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if cfg.Database.MigrateOnStart {
			if err := db.Migrate(ctx); err != nil {
				logger.Fatal("failed to apply migrations", zap.Error(err))
			}
		}

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		pgStore = repository.NewStore(db.Pool(), logger)
		store = pgStore
	} else {
		logger.Warn("database url not configured; matches will not survive a restart")
	}

	var recorder *game.ReplayRecorder
	if cfg.Replay.Enabled {
		if err := os.MkdirAll(cfg.Replay.Directory, 0o755); err != nil {
			logger.Fatal("failed to create replay directory", zap.Error(err))
		}
		recorder = game.NewReplayRecorder(logger, cfg.Replay.Directory)
		logger.Info("replay recording enabled", zap.String("directory", cfg.Replay.Directory))
	}

	gameMgr := game.NewManager(game.ManagerOptions{
		Config:       cfg.MatchConfig(),
		Store:        store,
		Recorder:     recorder,
		FlushTimeout: cfg.Persistence.FlushTimeout,
	}, logger)

	if pgStore != nil {
		resumeMatches(ctx, pgStore, gameMgr, logger)
	}

	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		if err := gameMgr.Run(ctx); err != nil {
			logger.Error("final flush failed", zap.Error(err))
		}
	}()

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			server.RecoveryInterceptor(logger),
			server.LoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(server.StreamLoggingInterceptor(logger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.MaxConcurrentStreams(uint32(cfg.Server.GRPC.MaxConcurrentStreams)),
	)
	server.RegisterGameServiceServer(grpcServer, server.NewGameService(gameMgr, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	hub := server.NewHub(gameMgr, cfg.Server.WebSocket, logger)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.WebSocket.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting WebSocket server", zap.String("address", cfg.Server.WebSocket.Address))
		if wsErr := httpServer.ListenAndServe(); wsErr != nil && !errors.Is(wsErr, http.ErrServerClosed) {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	logger.Info("skirmish server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.Bool("persistence", store != nil),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket server shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	// Cancelling ctx stops the hub and triggers the manager's final flush.
	cancel()
	<-persistDone

	logger.Info("skirmish server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// resumeMatchLimit caps how many stored matches are loaded eagerly at startup.
// Older ones are still loaded on first access.
const resumeMatchLimit = 100

func resumeMatches(ctx context.Context, store *repository.Store, mgr *game.Manager, logger *zap.Logger) {
	active, err := store.ListActive(ctx, resumeMatchLimit)
	if err != nil {
		logger.Warn("failed to list stored matches", zap.Error(err))
		return
	}
	resumed := 0
	for _, g := range active {
		if err := mgr.Load(ctx, g.GameID); err != nil {
			logger.Warn("failed to resume match",
				zap.String("game_id", g.GameID),
				zap.Int("turn", g.Turn),
				zap.Error(err),
			)
			continue
		}
		resumed++
	}

	recent, err := store.RecentMatches(ctx, 10)
	if err != nil {
		logger.Warn("failed to read match history", zap.Error(err))
	}
	logger.Info("resumed stored matches",
		zap.Int("resumed", resumed),
		zap.Int("recent_finished", len(recent)),
	)
}
