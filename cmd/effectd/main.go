// Package main provides the evaluator daemon. It advances world time on its own ticker to
// expire calendar effects and serves a gRPC health endpoint.
//
// The daemon exposes no transition or grant API: its combat tracker starts empty and nothing
// outside the process can start a combat or advance a turn. Round and turn
// expiry therefore only happen where the tracker and granter are driven in-process, as
// cmd/simulate does through app.RunScenario. Standalone effectd runs calendar expiry only.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/app"
	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
	"github.com/cory-johannsen/demonlord/internal/observability"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "effectd")
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("setting up tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	a, cleanup, err := app.InitializeApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("assembling evaluator", zap.Error(err))
	}
	defer cleanup()

	if cfg.Engine.ContentDir != "" {
		subjects, err := app.LoadContent(cfg.Engine.ContentDir, stats.DefaultSchemas(), effect.NewRegistry())
		if err != nil {
			logger.Fatal("loading content", zap.String("dir", cfg.Engine.ContentDir), zap.Error(err))
		}
		n, err := app.Import(ctx, a.Store, unseeded(ctx, a.Store, subjects), logger)
		if err != nil {
			logger.Fatal("importing content", zap.Error(err))
		}
		logger.Info("content seeded", zap.Int("subjects", n), zap.Int("available", len(subjects)))
	}

	logger.Info("evaluator initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("mode", cfg.Server.Mode),
		zap.String("user", cfg.Server.UserID),
		zap.String("store", cfg.Database.Driver),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
	)

	if err := a.Lifecycle().Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// unseeded returns the subjects the store does not hold yet, so a restart keeps live effect state.
func unseeded(ctx context.Context, store storage.Store, subjects []*actor.Subject) []*actor.Subject {
	var out []*actor.Subject
	for _, s := range subjects {
		if _, err := store.LoadSubject(ctx, s.ID); errors.Is(err, storage.ErrSubjectNotFound) {
			out = append(out, s)
		}
	}
	return out
}
