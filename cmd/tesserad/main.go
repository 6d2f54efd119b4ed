// Package main implements the unified tesserad binary.
// This binary runs the pruning server and the snapshot archiver together
// or individually based on the --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/app"
	"github.com/tesseradb/tessera/internal/config"
	"github.com/tesseradb/tessera/internal/observability"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configFile  string
		dataDir     string
		mode        string
		httpAddr    string
		grpcAddr    string
		metricsAddr string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&mode, "mode", "all", "Service mode: all, serve, archive")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP address for the pruning API")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC server address")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics address")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Tessera - Shard Pruning For Distributed Tables\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tesserad [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tesserad --data-dir /data/tessera\n")
		fmt.Fprintf(os.Stderr, "  tesserad --mode serve --data-dir /data/tessera\n")
		fmt.Fprintf(os.Stderr, "  tesserad --config /etc/tessera/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TESSERA_MODE           Service mode (all, serve, archive)\n")
		fmt.Fprintf(os.Stderr, "  TESSERA_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  TESSERA_HTTP_ADDR      HTTP address for the pruning API\n")
		fmt.Fprintf(os.Stderr, "  TESSERA_GRPC_ADDR      gRPC server address\n")
		fmt.Fprintf(os.Stderr, "  TESSERA_STORAGE_TYPE   Storage type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("tesserad version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(configFile, dataDir, mode, httpAddr, grpcAddr, metricsAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Print startup banner
	printBanner(cfg)

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Create and start the application
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Fatal("failed to start application", zap.Error(err))
	}

	// Block until SIGTERM or SIGINT, then drain and close resources
	if err := application.WaitForShutdown(ctx); err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
	}

	if err := application.Stop(context.Background()); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, httpAddr, grpcAddr, metricsAddr string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Pull in a local .env if present, then apply environment variables
	_ = godotenv.Load()
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                       TESSERA                             ║")
	log.Printf("║      The Shard Pruning Engine For Distributed Tables      ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Mode:     %s", cfg.Mode)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Storage:  %s", cfg.Storage.Type)
	log.Printf("")

	if cfg.ShouldRunServe() {
		log.Printf("Pruning Service:")
		log.Printf("  HTTP: %s", cfg.HTTP.Addr)
		if cfg.GRPC.Enabled {
			log.Printf("  gRPC: %s", cfg.GRPC.Addr)
		}
	}

	if cfg.ShouldRunArchive() {
		log.Printf("Snapshot Archiver:")
		log.Printf("  Interval:    %v", cfg.Archive.Interval)
		log.Printf("  Compression: %s", cfg.Archive.Compression)
	}

	if cfg.Metrics.Enabled {
		log.Printf("Metrics: %s", cfg.Metrics.Addr)
	}

	log.Printf("")
}
