package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/lifecycle"
	"github.com/cory-johannsen/demonlord/internal/game/resolver"
	"github.com/cory-johannsen/demonlord/internal/ownership"
	"github.com/cory-johannsen/demonlord/internal/server"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

// HealthService is the gRPC health service name the evaluator reports on.
const HealthService = "demonlord.effectd"

// defaultProbeInterval applies when no heartbeat interval is configured.
const defaultProbeInterval = 10 * time.Second

// App is an assembled evaluator.
type App struct {
	Store     storage.Store
	Resolver  *resolver.Resolver
	Engine    *lifecycle.Engine
	Granter   *lifecycle.Granter
	Tracker   *combat.Tracker
	Clock     *lifecycle.WorldClock
	Delegator *ownership.Delegator

	presence ownership.Presence
	srvCfg   config.ServerConfig
	grpcCfg  config.GRPCConfig
	logger   *zap.Logger
}

// NewApp collects the assembled components.
func NewApp(
	srvCfg config.ServerConfig,
	grpcCfg config.GRPCConfig,
	store storage.Store,
	res *resolver.Resolver,
	engine *lifecycle.Engine,
	granter *lifecycle.Granter,
	tracker *combat.Tracker,
	clock *lifecycle.WorldClock,
	delegator *ownership.Delegator,
	presence ownership.Presence,
	logger *zap.Logger,
) *App {
	return &App{
		Store:     store,
		Resolver:  res,
		Engine:    engine,
		Granter:   granter,
		Tracker:   tracker,
		Clock:     clock,
		Delegator: delegator,
		presence:  presence,
		srvCfg:    srvCfg,
		grpcCfg:   grpcCfg,
		logger:    logger,
	}
}

// Lifecycle registers the evaluator's long-running services. The gRPC health endpoint
// always runs; a store probe runs when the store can be pinged and a presence heartbeat
// runs in host mode. The world clock and combat tracker run last.
//
// Postcondition: Returns a Lifecycle ready to Run.
func (a *App) Lifecycle() *server.Lifecycle {
	lc := server.NewLifecycle(a.logger)

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	lc.Add("grpc", &server.FuncService{
		StartFn: func(context.Context) error {
			lis, err := net.Listen("tcp", a.grpcCfg.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", a.grpcCfg.Addr(), err)
			}
			a.logger.Info("gRPC health endpoint listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		},
		StopFn: func() {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
		},
	})

	if p, ok := a.Store.(storage.Pinger); ok {
		lc.Add("store-probe", &server.FuncService{StartFn: func(ctx context.Context) error {
			a.probeStore(ctx, p, healthServer)
			return nil
		}})
	}

	if a.presence != nil {
		hb := ownership.NewHeartbeater(a.presence, a.srvCfg.UserID, a.srvCfg.HeartbeatInterval, a.logger)
		lc.Add("presence", &server.FuncService{StartFn: hb.Run})
	}

	lc.Add("world-clock", &server.FuncService{StartFn: a.Clock.Run})

	// Nothing here drives the tracker; in-process callers (RunScenario) do. The service
	// only stops pending turn timers on shutdown.
	lc.Add("combat-tracker", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		StopFn: a.Tracker.Stop,
	})
	return lc
}

// probeStore pings the store each heartbeat interval and mirrors the result on HealthService
// until ctx ends. The overall ("") status stays SERVING.
func (a *App) probeStore(ctx context.Context, p storage.Pinger, hs *health.Server) {
	interval := a.srvCfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		err := p.Ping(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil && serving:
			a.logger.Warn("store unreachable", zap.Error(err))
			hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			a.logger.Info("store reachable again")
			hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
