package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/citydash/transit-api/internal/adapters/http"
	"github.com/citydash/transit-api/internal/adapters/memcache"
	"github.com/citydash/transit-api/internal/adapters/vendor"
	"github.com/citydash/transit-api/internal/core/domain"
	"github.com/citydash/transit-api/internal/core/usecases"
	"github.com/citydash/transit-api/internal/pkg/config"
	"github.com/citydash/transit-api/internal/pkg/logging"
	"github.com/citydash/transit-api/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("transit-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Vendor client
	vendorClient := vendor.New(cfg.Cities, cfg.Upstream.Timeout)

	// Response caches: long-lived station metadata, short-lived vehicles
	stationCache := memcache.New[*domain.StationSnapshot]("stations", cfg.Cache.StationTTL, cfg.Cache.SweepInterval)
	defer stationCache.Close()
	vehicleCache := memcache.New[[]domain.VehicleArrival]("vehicles", cfg.Cache.VehicleTTL, cfg.Cache.SweepInterval)
	defer vehicleCache.Close()

	// Use cases
	cities := make([]string, 0, len(cfg.Cities))
	for city := range cfg.Cities {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	directorySvc := usecases.NewDirectoryService(vendorClient, cities)
	aggregatorSvc := usecases.NewAggregatorService(directorySvc, vendorClient, stationCache, vehicleCache)

	deps := &http.Dependencies{
		Stations:  aggregatorSvc,
		Directory: directorySvc,
	}

	// Startup directory builds run in the background; a request arriving
	// before a city's build finishes waits on the on-demand build gate
	// instead of failing.
	go func() {
		if err := directorySvc.BuildAll(ctx); err != nil {
			slog.Error("startup directory build incomplete", "error", err)
		}
	}()

	// Periodic wholesale rebuild keeps the directory in step with the vendor.
	if cfg.Directory.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Directory.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := directorySvc.BuildAll(ctx); err != nil {
						slog.Error("directory refresh incomplete", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Transit API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "cities", cities)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
