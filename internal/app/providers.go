// Package app assembles the evaluator from configuration: store, resolver, scripting,
// presence, notification sinks, expiration engine, combat tracker, and world clock.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/internal/game/catalog"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/lifecycle"
	"github.com/cory-johannsen/demonlord/internal/game/resolver"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
	"github.com/cory-johannsen/demonlord/internal/notify"
	"github.com/cory-johannsen/demonlord/internal/ownership"
	"github.com/cory-johannsen/demonlord/internal/scripting"
	"github.com/cory-johannsen/demonlord/internal/storage"
	"github.com/cory-johannsen/demonlord/internal/storage/memory"
	"github.com/cory-johannsen/demonlord/internal/storage/postgres"
	"github.com/cory-johannsen/demonlord/internal/storage/sqlite"
)

// ProviderSet builds an App from a Config and a logger.
var ProviderSet = wire.NewSet(
	wire.FieldsOf(new(config.Config), "Server", "Database", "Redis", "Engine", "GRPC"),
	stats.DefaultSchemas,
	effect.NewRegistry,
	ProvideStore,
	ProvideCatalog,
	ProvideScripts,
	ProvideResolver,
	ProvideRedis,
	ProvidePresence,
	ProvideDelegator,
	ProvideSink,
	ProvideEngine,
	ProvideGranter,
	ProvideTracker,
	ProvideWorldClock,
	NewApp,
	wire.Bind(new(lifecycle.Store), new(storage.Store)),
	wire.Bind(new(lifecycle.Authority), new(*ownership.Delegator)),
	wire.Bind(new(lifecycle.WorldTimeHandler), new(*lifecycle.Engine)),
)

// ProvideStore opens the subject store named by cfg.Driver.
//
// Postcondition: The cleanup function releases the store's connections.
func ProvideStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}, nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return postgres.NewSubjectRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// ProvideCatalog returns the embedded change-key catalog merged with the optional override
// file, validated against schemas.
func ProvideCatalog(cfg config.EngineConfig, schemas stats.Schemas) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		override, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		if cat, err = cat.Merge(override); err != nil {
			return nil, fmt.Errorf("merging catalog %q: %w", cfg.CatalogFile, err)
		}
	}
	if err := cat.Validate(schemas); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}
	return cat, nil
}

// ProvideScripts loads the Lua combiners in cfg.ScriptsDir. An empty or missing directory
// yields a manager with no combiners.
func ProvideScripts(cfg config.EngineConfig, logger *zap.Logger) (*scripting.Manager, func(), error) {
	mgr := scripting.NewManager(cfg.InstructionLimit, logger)
	if cfg.ScriptsDir == "" {
		return mgr, mgr.Close, nil
	}
	if _, err := os.Stat(cfg.ScriptsDir); os.IsNotExist(err) {
		logger.Warn("scripts directory missing, custom combiners disabled", zap.String("dir", cfg.ScriptsDir))
		return mgr, mgr.Close, nil
	}
	if err := mgr.LoadDir(cfg.ScriptsDir); err != nil {
		mgr.Close()
		return nil, nil, err
	}
	return mgr, mgr.Close, nil
}

// ProvideResolver builds the change resolver with every loaded Lua combiner registered.
func ProvideResolver(schemas stats.Schemas, cat *catalog.Catalog, scripts *scripting.Manager, logger *zap.Logger) *resolver.Resolver {
	customs := resolver.NewCustoms()
	names := scripts.Register(customs)
	logger.Info("custom combiners registered", zap.Strings("names", names))
	return resolver.New(schemas, cat, customs, logger)
}

// ProvideRedis connects to redis when configured. A nil client means redis is disabled.
func ProvideRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, func(), error) {
	if !cfg.Enabled() {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePresence returns nil in standalone mode, redis presence when redis is configured,
// and in-process presence otherwise.
func ProvidePresence(server config.ServerConfig, cfg config.RedisConfig, client redis.UniversalClient) ownership.Presence {
	switch {
	case server.Standalone():
		return nil
	case client != nil:
		return ownership.NewRedisPresence(client, cfg.PresenceTTL)
	default:
		return ownership.NewMemoryPresence()
	}
}

// ProvideDelegator elects this process by server.user_id with the configured game masters
// as fallback evaluators.
func ProvideDelegator(server config.ServerConfig, presence ownership.Presence) *ownership.Delegator {
	return ownership.NewDelegator(server.UserID, presence, server.GameMasters...)
}

// ProvideSink logs every notice and also publishes it on redis when configured.
func ProvideSink(cfg config.RedisConfig, client redis.UniversalClient, logger *zap.Logger) notify.Sink {
	sinks := notify.Fanout{notify.NewLogSink(logger)}
	if client != nil {
		sinks = append(sinks, notify.NewRedisSink(client, cfg.Channel))
	}
	return sinks
}

// ProvideEngine builds the expiration engine.
func ProvideEngine(store lifecycle.Store, authority lifecycle.Authority, sink notify.Sink, policies *effect.Registry, cfg config.EngineConfig, logger *zap.Logger) *lifecycle.Engine {
	return lifecycle.NewEngine(store, authority, sink, policies, lifecycle.Options{Parallelism: cfg.Parallelism}, logger)
}

// ProvideGranter builds the trigger grant pipeline.
func ProvideGranter(store lifecycle.Store, sink notify.Sink, policies *effect.Registry, logger *zap.Logger) *lifecycle.Granter {
	return lifecycle.NewGranter(store, sink, policies, logger)
}

// ProvideTracker builds the combat tracker with the engine subscribed to its transitions.
func ProvideTracker(cfg config.EngineConfig, engine *lifecycle.Engine, logger *zap.Logger) *combat.Tracker {
	tracker := combat.NewTracker(combat.TrackerConfig{
		Options: combat.Options{
			SkipDefeated: cfg.SkipDefeated,
			SkipActed:    cfg.SkipActed,
		},
		TurnTimeout: cfg.TurnTimeout,
	}, logger)
	tracker.Subscribe(engine)
	return tracker
}

// ProvideWorldClock builds the world clock starting at the current Unix time.
func ProvideWorldClock(cfg config.EngineConfig, handler lifecycle.WorldTimeHandler, logger *zap.Logger) *lifecycle.WorldClock {
	return lifecycle.NewWorldClock(time.Now().Unix(), cfg.TickInterval, cfg.SecondsPerTick, handler, logger)
}
