package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/optilab/optilab-api/config"
	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/data"
	"github.com/optilab/optilab-api/internal/observability/statsd"
	"github.com/optilab/optilab-api/internal/service"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Solve     *service.SolveService
	Results   *service.ResultService
	Models    *service.ModelService
	DataFiles *service.DataFileService
	Catalog   *service.SolverCatalogService
	Viz       *service.VisualizationService
	Auth      *service.AuthService

	// Engine is shared by the HTTP surface (validation, solver catalog) and
	// the solve runner so both see the same installation.
	Engine core.SolverEngine

	// Metrics is nil-safe; a disabled sink swallows every emission.
	Metrics *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB           *sql.DB
	Redis        redis.UniversalClient
	JobRepo      *data.JobRepo
	ModelRepo    *data.ModelRepo
	DataFileRepo *data.DataFileRepo
	RunRepo      *data.RunRepo
	CacheRepo    core.CacheRepository
	StatusCache  *core.JobStatusCache
}

// buildMetricsSink configures the StatsD client when metrics are enabled.
func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	if !cfg.IsEnabled() {
		return nil
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Address,
		Prefix:  cfg.Prefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// buildRepositories builds repositories backing service ports; no business rules here.
// Without Redis the status snapshot store degrades to the in-process cache.
func buildRepositories(
	db *sql.DB,
	redisClient redis.UniversalClient,
	cacheCfg config.CacheConfig,
	logger *slog.Logger,
) *serviceRepositories {
	var cacheRepo core.CacheRepository
	if redisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(redisClient)
	} else {
		cacheRepo = data.NewMemoryCacheRepo()
	}

	statusCache := core.NewJobStatusCache(cacheRepo, core.JobStatusCacheConfig{
		ActiveTTL:   cacheCfg.StatusActiveTTL,
		TerminalTTL: cacheCfg.StatusTerminalTTL,
	})

	return &serviceRepositories{
		DB:           db,
		Redis:        redisClient,
		JobRepo:      data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		ModelRepo:    data.NewModelRepo(db),
		DataFileRepo: data.NewDataFileRepo(db),
		RunRepo:      data.NewRunRepo(db),
		CacheRepo:    cacheRepo,
		StatusCache:  statusCache,
	}
}

// DomainServicesOptions groups inputs for buildDomainServices.
type DomainServicesOptions struct {
	Repos   *serviceRepositories
	Engine  core.SolverEngine
	Metrics *statsd.Client
	Config  *config.AppConfig
	Logger  *slog.Logger
}

// buildDomainServices wires business services using repositories and the solver engine.
func buildDomainServices(opts *DomainServicesOptions) ServiceContainer {
	if opts == nil {
		return ServiceContainer{}
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	solveService := service.MustNewSolveService(service.SolveServiceOptions{
		Repos: service.SolveServiceRepos{
			Jobs:      opts.Repos.JobRepo,
			Canceller: opts.Repos.JobRepo,
			Models:    opts.Repos.ModelRepo,
			DataFiles: opts.Repos.DataFileRepo,
			Runs:      opts.Repos.RunRepo,
		},
		StatusCache:  opts.Repos.StatusCache,
		DefaultLease: appCfg.Runner.JobLease,
		Defaults: service.SolveDefaults{
			Solver:  appCfg.Solver.DefaultSolver,
			Timeout: appCfg.Solver.DefaultTimeout,
		},
		Logger: svcLogger,
	})

	resultService := service.MustNewResultService(service.ResultServiceOptions{
		Repo:   opts.Repos.RunRepo,
		Logger: svcLogger,
	})

	modelService := service.MustNewModelService(service.ModelServiceOptions{
		Repo:      opts.Repos.ModelRepo,
		DataFiles: opts.Repos.DataFileRepo,
		Engine:    opts.Engine,
		Logger:    svcLogger,
	})

	dataFileService := service.MustNewDataFileService(service.DataFileServiceOptions{
		Repo:   opts.Repos.DataFileRepo,
		Models: opts.Repos.ModelRepo,
		Logger: svcLogger,
	})

	catalogService := service.NewSolverCatalogService(service.SolverCatalogServiceOptions{
		Engine: opts.Engine,
		Logger: svcLogger,
	})

	vizService := service.MustNewVisualizationService(service.VisualizationServiceOptions{
		Repo:   opts.Repos.RunRepo,
		Logger: svcLogger,
	})

	authService := BuildAuthService(AuthConfig{
		Auth:        appCfg.Auth,
		RedisClient: opts.Repos.Redis,
		Logger:      svcLogger,
	})

	return ServiceContainer{
		Solve:     solveService,
		Results:   resultService,
		Models:    modelService,
		DataFiles: dataFileService,
		Catalog:   catalogService,
		Viz:       vizService,
		Auth:      authService,
		Engine:    opts.Engine,
		Metrics:   opts.Metrics,
	}
}

// NewServices builds the full service container from shared infrastructure.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	metrics := buildMetricsSink(logger, appCfg.Observability)
	engine := BuildSolverEngine(appCfg.Solver, logger)
	repos := buildRepositories(deps.DB, deps.RedisClient, appCfg.Cache, logger)
	return buildDomainServices(&DomainServicesOptions{
		Repos:   repos,
		Engine:  engine,
		Metrics: metrics,
		Config:  appCfg,
		Logger:  logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSolveRunnerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSolverRunner,
		name: "solve runner",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			runnerCfg := config.RunnerConfig{}
			cacheCfg := config.CacheConfig{}
			if deps.cfg.Config != nil {
				runnerCfg = deps.cfg.Config.Runner
				cacheCfg = deps.cfg.Config.Cache
			}
			return RunSolveRunner(ctx, SolveRunnerConfig{
				DB:                 deps.cfg.DB,
				RedisClient:        deps.cfg.RedisClient,
				Logger:             deps.logger,
				Engine:             deps.cfg.Services.Engine,
				Lease:              runnerCfg.JobLease,
				Concurrency:        runnerCfg.Concurrency,
				CancelPollInterval: runnerCfg.CancelPollInterval,
				MaxRequeues:        runnerCfg.MaxRequeues,
				StatusActiveTTL:    cacheCfg.StatusActiveTTL,
				StatusTerminalTTL:  cacheCfg.StatusTerminalTTL,
				Metrics:            deps.cfg.Services.Metrics,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Metrics,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSolveRunnerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:          serviceCtx,
		cancel:       cancel,
		errCh:        errCh,
		httpServer:   result.HTTPServer,
		solveService: cfg.Services.Solve,
		metrics:      cfg.Services.Metrics,
		logger:       logger,
		backgrounds:  result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeSolverRunner,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx          context.Context
	cancel       context.CancelFunc
	errCh        <-chan error
	httpServer   *http.Server
	solveService *service.SolveService
	metrics      *statsd.Client
	logger       *slog.Logger
	backgrounds  []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:      shutdownCtx,
			Server:       cfg.httpServer,
			SolveService: cfg.solveService,
			Logger:       cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			cfg.logger.Warn("close metrics sink failed", "error", err)
		}
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
