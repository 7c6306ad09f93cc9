package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pokearena/scoresync/internal/adapters/http/api"
	"github.com/pokearena/scoresync/internal/adapters/repository"
	"github.com/pokearena/scoresync/internal/app"
	"github.com/pokearena/scoresync/internal/config"
	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

// seeder is satisfied by stores that support demo seeding.
type seeder interface {
	SeedIfEmpty(ctx context.Context, rows []model.Aggregate) error
}

// demo rows installed when seeding is enabled and the board is empty.
var seedRows = []model.Aggregate{
	{Player: "Trong", Counters: model.Counters{Rounds: 6, KOs: 1, Trainers: 1}, Team: "Pikachu, Charizard"},
	{Player: "Minh", Counters: model.Counters{Rounds: 5, KOs: 2}},
	{Player: "Lan", Counters: model.Counters{Rounds: 4, KOs: 1}, Team: "Eevee"},
}

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if cfg.SharedToken == "" {
		loggerInstance.Warn(ctx, "no shared_token configured; name-scheme submissions and admin reset are disabled")
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		loggerInstance.Error(ctx, "failed to open score store", logger.Error(err))
		return
	}

	if cfg.Seed {
		if s, ok := store.(seeder); ok {
			if err := s.SeedIfEmpty(ctx, seedRows); err != nil {
				loggerInstance.Error(ctx, "seeding failed", logger.Error(err))
				return
			}
			loggerInstance.Info(ctx, "seeded demo players", logger.Int("rows", len(seedRows)))
		}
	}

	// Create and start the service with configuration options
	svc := app.New(
		app.WithLogger(loggerInstance),
		app.WithStore(store),
		app.WithSharedToken(cfg.SharedToken),
		app.WithPolicy(replay.Policy{
			TrainersFlag:   cfg.TrainersPolicy == config.TrainersFlag,
			MaxKOsPerRound: cfg.MaxKOsPerRound,
		}),
		app.WithQueueSize(cfg.QueueSize),
		app.WithWorkerCount(cfg.WorkerCount),
	)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	// Keep queue and identity gauges fresh while the service runs.
	go startServiceMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, svc, cfg.MaxBoardLimit)
	apiServer.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	loggerInstance.Info(ctx, "server stopped")
}

// newStore opens the configured score store backend.
func newStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	trainersFlag := cfg.TrainersPolicy == config.TrainersFlag
	switch cfg.Store {
	case config.StoreMemory:
		return repository.NewMemoryStore(repository.WithTrainersFlag(trainersFlag)), nil
	default:
		return repository.NewSQLiteStore(ctx, cfg.DBPath, repository.WithTrainersFlag(trainersFlag))
	}
}

// startServiceMetricsUpdater refreshes service-level gauges periodically.
// GetStats pushes the queue and identity gauges as a side effect.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.GetStats()
		}
	}
}
