// Package app wires the Tessera services together and manages their
// lifecycle: the shard catalog, the pruning service with its HTTP and
// gRPC listeners, the snapshot archiver, and the metrics endpoint.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "github.com/tesseradb/tessera/internal/api/grpc"
	httpapi "github.com/tesseradb/tessera/internal/api/http"
	"github.com/tesseradb/tessera/internal/catalog"
	"github.com/tesseradb/tessera/internal/config"
	"github.com/tesseradb/tessera/internal/observability"
	"github.com/tesseradb/tessera/internal/pruning"
	"github.com/tesseradb/tessera/internal/server"
	"github.com/tesseradb/tessera/internal/snapshot"
	"github.com/tesseradb/tessera/internal/storage"
)

// App coordinates startup and shutdown of all Tessera services.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	registry *prometheus.Registry
	metrics  *observability.Metrics
	stats    *observability.PruneStats
	catalog  *catalog.SQLiteCatalog
	storage  storage.ObjectStorage
	archiver *snapshot.Archiver
	pruner   *pruning.Service
	shutdown *server.ShutdownManager

	// Servers
	httpServer    *http.Server
	grpcServer    *grpc.Server
	grpcListener  net.Listener
	metricsServer *http.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new application with the given configuration. A nil
// logger falls back to a no-op logger.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &App{cfg: cfg, logger: logger}, nil
}

// Start starts all services for the configured mode.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("app is already running")
	}

	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return err
	}

	if a.cfg.ShouldRunServe() {
		if err := a.startPruneService(ctx); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start prune service: %w", err)
		}
	}

	if a.cfg.ShouldRunArchive() {
		a.startArchiveService(ctx)
	}

	if a.cfg.Metrics.Enabled {
		a.startMetricsServer()
	}

	a.running = true
	a.logger.Info("tessera started", zap.String("mode", string(a.cfg.Mode)))
	return nil
}

// initSharedResources initializes resources shared across services.
func (a *App) initSharedResources(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)
	a.stats = observability.NewPruneStats(a.cfg.Pruning.StatsWindow)

	cat, err := catalog.NewCatalog(a.cfg.CatalogPath(), a.cfg.Catalog.ReadPoolSize)
	if err != nil {
		return fmt.Errorf("failed to open shard catalog: %w", err)
	}
	a.catalog = cat
	a.logger.Info("shard catalog opened",
		zap.String("path", a.cfg.CatalogPath()),
		zap.Int("read_pool_size", a.cfg.Catalog.ReadPoolSize))

	store, err := storage.New(ctx, a.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = store
	a.logger.Info("storage initialized", zap.String("type", a.cfg.Storage.Type))
	if a.cfg.Storage.Type == "s3" {
		a.logger.Info("s3 storage configured",
			zap.String("bucket", a.cfg.Storage.S3.Bucket),
			zap.String("region", a.cfg.Storage.S3.Region),
			zap.String("endpoint", a.cfg.Storage.S3.Endpoint))
	}

	codec, err := snapshot.CodecByName(a.cfg.Archive.Compression)
	if err != nil {
		return err
	}
	a.archiver = snapshot.NewArchiver(a.storage, codec, a.logger, snapshot.ArchiverConfig{
		Prefix:      a.cfg.Archive.Prefix,
		Concurrency: a.cfg.Archive.Concurrency,
	})

	a.pruner = pruning.NewService(a.catalog, a.logger, a.metrics, a.stats)

	shutdownCfg := server.DefaultShutdownConfig()
	if t := a.cfg.HTTP.ShutdownTimeout; t > 0 {
		shutdownCfg.ShutdownTimeout = t
	}
	a.shutdown = server.NewShutdownManager(shutdownCfg)
	// Registered first so it closes after everything that still reads it.
	a.shutdown.RegisterCloser(a.catalog)

	return nil
}

// startPruneService starts the pruning HTTP and gRPC servers.
func (a *App) startPruneService(ctx context.Context) error {
	pruneHandler := httpapi.NewPruneHandler(a.pruner, a.logger)
	tablesHandler := httpapi.NewTablesHandler(a.catalog, a.logger)
	detailHandler := httpapi.NewTableDetailHandler(a.catalog)
	shardsHandler := httpapi.NewShardsHandler(a.catalog, a.logger)
	statsHandler := httpapi.NewStatsHandler(a.pruner)

	middleware := make([]func(http.Handler) http.Handler, 0, 6)
	middleware = append(middleware, server.ShutdownMiddleware(a.shutdown))
	middleware = append(middleware, httpapi.DefaultMiddleware(a.logger)...)
	chain := httpapi.ChainMiddleware(middleware...)

	mux := http.NewServeMux()
	mux.Handle("/v1/prune", chain(pruneHandler))
	mux.Handle("/v1/tables", chain(tablesHandler))
	mux.Handle("/v1/tables/{name}", chain(detailHandler))
	mux.Handle("/v1/tables/{name}/shards", chain(shardsHandler))
	mux.Handle("/v1/stats", chain(statsHandler))
	mux.HandleFunc("/health", a.healthHandler("tessera-prune"))

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	// Bind the gRPC listener before any serving goroutine starts, so a
	// failed Start leaves nothing running.
	if a.cfg.GRPC.Enabled {
		a.grpcServer = grpc.NewServer()
		grpcapi.RegisterPrunerServer(a.grpcServer, grpcapi.NewPrunerServer(a.pruner, a.catalog, a.logger))

		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(a.grpcServer, healthServer)
		healthServer.SetServingStatus(grpcapi.PrunerServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)

		var err error
		a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC address: %w", err)
		}

		a.shutdown.RegisterCloser(server.CloserFunc(func() error {
			a.grpcServer.GracefulStop()
			return nil
		}))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTP.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()

	if a.grpcServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.Info("grpc server listening", zap.String("addr", a.cfg.GRPC.Addr))
			if err := a.grpcServer.Serve(a.grpcListener); err != nil {
				a.logger.Error("grpc server error", zap.Error(err))
			}
		}()
	}

	if interval := a.cfg.Pruning.StatsExpireInterval; interval > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.stats.Expire()
				}
			}
		}()
	}

	return nil
}

// startArchiveService starts the periodic snapshot archive sweep.
func (a *App) startArchiveService(ctx context.Context) {
	interval := a.cfg.Archive.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		a.runArchiveSweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.runArchiveSweep(ctx)
			}
		}
	}()

	a.logger.Info("snapshot archiver started",
		zap.Duration("interval", interval),
		zap.String("compression", a.cfg.Archive.Compression),
		zap.Int("concurrency", a.cfg.Archive.Concurrency))
}

// runArchiveSweep archives every table's current shard snapshot.
func (a *App) runArchiveSweep(ctx context.Context) {
	uploaded, err := a.archiver.ArchiveAll(ctx, a.catalog)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.metrics.SnapshotArchives.WithLabelValues("error").Inc()
		a.logger.Error("snapshot archive sweep failed", zap.Error(err))
		return
	}
	a.metrics.SnapshotArchives.WithLabelValues("ok").Add(float64(len(uploaded)))
	a.logger.Info("snapshot archive sweep complete", zap.Int("tables", len(uploaded)))
}

// startMetricsServer starts the Prometheus metrics listener.
func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(a.logger),
	}))
	mux.HandleFunc("/health", a.healthHandler("tessera-metrics"))

	a.metricsServer = &http.Server{
		Addr:    a.cfg.Metrics.Addr,
		Handler: mux,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.logger.Info("initiating graceful shutdown")

	// Cancel context to stop the background sweeps
	if a.cancel != nil {
		a.cancel()
	}

	timeout := a.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, srv := range []*http.Server{a.httpServer, a.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown error", zap.Error(err))
		}
	}

	// Drains in-flight requests, stops gRPC, and closes the catalog last.
	if err := a.shutdown.Shutdown(shutdownCtx, "stop requested"); err != nil {
		a.logger.Warn("shutdown error", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("shutdown timeout, some goroutines may not have finished")
	}

	a.logger.Info("tessera stopped")
	return nil
}

// cleanup releases shared resources after a failed start.
func (a *App) cleanup() {
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Warn("catalog close error", zap.Error(err))
		}
		a.catalog = nil
	}
}

// healthHandler returns a health check handler for the given service.
func (a *App) healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"%s","mode":"%s"}`, service, a.cfg.Mode)
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}
