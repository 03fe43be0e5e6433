package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/epione-lab/project-epione/internal/catalog"
	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/anomaly"
	corecfg "github.com/epione-lab/project-epione/internal/core/config"
	"github.com/epione-lab/project-epione/internal/core/storage/postgres"
	"github.com/epione-lab/project-epione/internal/ingestion"
	"github.com/epione-lab/project-epione/internal/migrations"
	"github.com/epione-lab/project-epione/internal/reporting"
	"github.com/epione-lab/project-epione/internal/sealing"
	"github.com/epione-lab/project-epione/internal/server"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "epione.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration (.env feeds the EPIONE_ env overrides)
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment and config file")
	}

	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"granularity", cfg.Analytics.Granularity,
		"sealing_enabled", cfg.Sealing.Enabled,
		"server_mode", cfg.Server.Mode,
	)

	granularity, err := aggregation.ParseGranularity(cfg.Analytics.Granularity)
	if err != nil {
		slog.Error("Invalid granularity", "value", cfg.Analytics.Granularity, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Engine and rehydrate sealed history
	engine := aggregation.New(granularity)

	restored, err := dbAdapter.LoadSealedWindows(context.Background(), granularity)
	if err != nil {
		slog.Error("Failed to load sealed windows", "error", err)
		os.Exit(1)
	}
	for _, sw := range restored {
		if err := engine.RestoreSealed(sw.Window, sw.Snapshots); err != nil {
			slog.Error("Failed to restore sealed window", "error", err, "window_id", sw.Window.ID)
			os.Exit(1)
		}
	}
	slog.Info("Sealed history restored", "windows", len(restored))

	// 4. Initialize Detector and Product Catalog
	detector := anomaly.NewDetector(cfg.Analytics.AnomalyThreshold)

	productCatalog, err := catalog.NewFileSystemCatalog(cfg.Catalog.Dir)
	if err != nil {
		slog.Error("Failed to load product catalog", "error", err, "dir", cfg.Catalog.Dir)
		os.Exit(1)
	}
	slog.Info("Product catalog loaded", "products", productCatalog.Len())

	// 5. Initialize Services
	ingestionSvc := ingestion.NewService(engine, dbAdapter, cfg.Server.MaxBodySizeMB)
	reportingSvc := reporting.NewService(engine, detector, productCatalog, reporting.Options{
		DefaultBaselineSize: cfg.Analytics.DefaultBaselineSize,
		MaxTopN:             cfg.Analytics.MaxTopN,
	})

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode, cfg.Server.CORSOrigins)
	ingestionSvc.RegisterRoutes(srv.Engine)
	reportingSvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Sealing.Enabled {
		interval, _ := cfg.Sealing.IntervalDuration() // validated at load
		grace, _ := cfg.Sealing.GraceDuration()
		scheduler := sealing.NewScheduler(interval, grace, engine, dbAdapter)
		g.Go(func() error { return scheduler.Start(gctx) })
	} else {
		slog.Info("Sealing scheduler disabled by config; windows seal only via the API")
	}

	g.Go(func() error { return srv.Run(gctx) })

	// Signal handler triggers the shutdown sequence.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
