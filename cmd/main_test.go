package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/pokearena/scoresync/internal/adapters/http/api"
	"github.com/pokearena/scoresync/internal/adapters/repository"
	"github.com/pokearena/scoresync/internal/app"
	"github.com/pokearena/scoresync/internal/config"
	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SCORESYNC_ADDR", ":8080")
	t.Setenv("SCORESYNC_STORE", "memory")
	t.Setenv("SCORESYNC_WORKER_COUNT", "4")

	convey.Convey("Given environment overrides", t, func() {
		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
		convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
		convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
	})
}

func TestStoreSelection(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a memory store config", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreMemory

		store, err := newStore(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer store.Close()
		_, ok := store.(*repository.MemoryStore)
		convey.So(ok, convey.ShouldBeTrue)
	})

	convey.Convey("Given a sqlite store config", t, func() {
		cfg := config.New()
		cfg.DBPath = ":memory:"

		store, err := newStore(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer store.Close()

		s, ok := store.(*repository.SQLiteStore)
		convey.So(ok, convey.ShouldBeTrue)

		convey.Convey("Then demo seeding is idempotent", func() {
			convey.So(s.SeedIfEmpty(ctx, seedRows), convey.ShouldBeNil)
			convey.So(s.SeedIfEmpty(ctx, seedRows), convey.ShouldBeNil)
			convey.So(s.Count(ctx, model.SchemeName), convey.ShouldEqual, len(seedRows))
		})
	})
}

func TestServerWiring(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		svc := app.New(app.WithWorkerCount(1), app.WithQueueSize(16))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("Then the API routes register on a fresh mux", func() {
			mux := http.NewServeMux()
			api.NewServer(svc, svc, 100).Register(mux)

			req, err := http.NewRequest(http.MethodGet, "/healthz", nil)
			convey.So(err, convey.ShouldBeNil)
			handler, pattern := mux.Handler(req)
			convey.So(handler, convey.ShouldNotBeNil)
			convey.So(pattern, convey.ShouldEqual, "/healthz")
		})
	})
}
