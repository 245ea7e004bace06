package fx

import (
	"livegame-tracker/internal/api"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/database"
	"livegame-tracker/internal/fetcher"
	"livegame-tracker/internal/freshness"
	"livegame-tracker/internal/lock"
	"livegame-tracker/internal/logger"
	"livegame-tracker/internal/registry"
	"livegame-tracker/internal/repository"
	"livegame-tracker/internal/scheduler"
	"livegame-tracker/internal/server"
	"livegame-tracker/internal/service"
	"livegame-tracker/internal/snapshot"
	"livegame-tracker/internal/storage"
	"livegame-tracker/internal/store"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideOracle(samples *store.SampleStore, logger zerolog.Logger) *freshness.Oracle {
	return freshness.NewOracle(samples, logger)
}

func ProvideScheduler(samples *store.SampleStore, logger zerolog.Logger) *scheduler.Scheduler {
	return scheduler.New(samples, logger)
}

func ProvideLobbyCache() *api.LobbyCache {
	return api.NewLobbyCache(constants.LobbyCacheTTL, time.Now)
}

func ProvideEngines(cfg *config.Config, logger zerolog.Logger) (*fetcher.Engines, error) {
	return fetcher.NewEngines(cfg.DefaultEngine,
		fetcher.NewStaticEngine(cfg, logger),
		fetcher.NewRenderEngine(cfg, logger),
	)
}

func ProvideIngestService(
	reg *registry.Registry,
	samples *store.SampleStore,
	oracle *freshness.Oracle,
	lobby *api.LobbyClient,
	engines *fetcher.Engines,
	sched *scheduler.Scheduler,
	locker *lock.Locker,
	snapshots *snapshot.Aggregator,
	runs *repository.RunRepository,
	logger zerolog.Logger,
) *service.IngestService {
	return service.NewIngestService(reg, samples, oracle, lobby, engines, sched, locker, snapshots, runs, logger)
}

func ProvideReadService(
	cfg *config.Config,
	reg *registry.Registry,
	samples *store.SampleStore,
	snapshots *snapshot.Aggregator,
	backend storage.Backend,
	lobby *api.LobbyClient,
	runs *repository.RunRepository,
	logger zerolog.Logger,
) *service.ReadService {
	return service.NewReadService(cfg, reg, samples, snapshots, backend, lobby, runs, logger)
}

func ProvideTrackerServer(cfg *config.Config, ingest *service.IngestService, read *service.ReadService, logger zerolog.Logger) *server.TrackerServer {
	return server.NewTrackerServer(cfg, ingest, read, logger)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewRunRepository),
	// storage
	fx.Provide(storage.New),
	fx.Provide(store.NewSampleStore),
	fx.Provide(registry.Load),
	// api client
	fx.Provide(ProvideLobbyCache),
	fx.Provide(api.NewLobbyClient),
	// pipeline
	fx.Provide(ProvideOracle),
	fx.Provide(ProvideEngines),
	fx.Provide(ProvideScheduler),
	fx.Provide(lock.NewLocker),
	fx.Provide(snapshot.NewAggregator),
	// svc
	fx.Provide(ProvideIngestService),
	fx.Provide(ProvideReadService),
	// server
	fx.Provide(ProvideTrackerServer),
)
