package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/airquality/providers"
	httpapi "github.com/i474232898/air-quality-forecast/internal/api/http"
	"github.com/i474232898/air-quality-forecast/internal/cache"
	"github.com/i474232898/air-quality-forecast/internal/collector"
	"github.com/i474232898/air-quality-forecast/internal/config"
	"github.com/i474232898/air-quality-forecast/internal/gateway"
	"github.com/i474232898/air-quality-forecast/internal/model"
	"github.com/i474232898/air-quality-forecast/internal/predictor"
	"github.com/i474232898/air-quality-forecast/internal/queue"
	"github.com/i474232898/air-quality-forecast/internal/registry"
	"github.com/i474232898/air-quality-forecast/internal/scheduler"
	"github.com/i474232898/air-quality-forecast/internal/store"
	"github.com/i474232898/air-quality-forecast/internal/trainer"
)

func main() {
	mode := flag.String("mode", "serve", "serve | collect | train")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if *mode != "train" {
		if err := cfg.RequireProviderKeys(); err != nil {
			log.Fatalf("%v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Time-series store, location persistence and artifact persistence.
	var (
		readings  airquality.Store
		writer    registry.LocationWriter
		artifacts model.ArtifactStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.RunMigrations(cfg.MigrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		readings, writer, artifacts = pg, pg, pg
	} else {
		log.Println("INFO: DATABASE_URL not set; using in-memory store")
		readings = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	}

	// Location registry.
	var geocoder registry.Geocoder
	if cfg.GoogleGeocoderAPIKey != "" {
		geocoder = registry.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey)
	}
	locations := registry.New(writer, geocoder)
	if err := locations.Load(ctx); err != nil {
		log.Fatalf("failed to load locations: %v", err)
	}
	if err := locations.Seed(ctx, cfg.Locations); err != nil {
		log.Fatalf("failed to seed locations: %v", err)
	}

	// Model registry.
	models := model.NewRegistry(artifacts)
	if err := models.Load(ctx); err != nil {
		log.Fatalf("failed to load model artifacts: %v", err)
	}

	tr := trainer.New(readings, locations, models, trainer.Config{
		MinHistoryDays: cfg.MinHistoryDays,
		MinExamples:    cfg.MinTrainingExamples,
		MinCoverage:    cfg.MinHistoryCoverage,
		TrainFraction:  0.8,
		Params:         model.DefaultParams(),
	})

	if *mode == "train" {
		if err := tr.TrainAll(ctx); err != nil {
			log.Fatalf("training failed: %v", err)
		}
		return
	}

	// Providers with resilience (backoff + circuit breaker + rate limit).
	httpClient := &http.Client{}
	gw := gateway.New(weatherProvider(cfg, httpClient), pollutantProvider(cfg, httpClient))

	col := collector.New(gw, readings, locations, collector.Options{
		MaxInFlight: cfg.CollectMaxInFlight,
		Timeout:     cfg.CollectTimeout,
	})

	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		col.AddSink(producer)
		log.Printf("INFO: publishing reading events to %s", cfg.KafkaTopic)
	}

	if *mode == "collect" {
		ok, results := col.CollectAllActive(ctx)
		if ok == 0 && len(results) > 0 {
			log.Fatalf("collection failed for all %d locations", len(results))
		}
		return
	}

	var shared cache.Shared
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		shared = cache.NewRedisTier(redisClient)
	}
	current := cache.New(col, shared, cache.Options{TTL: cfg.CacheTTL, Capacity: cfg.CacheCapacity})
	col.AddSink(current)

	pred := predictor.New(readings, models, gw)

	// Scheduler that periodically collects readings and retrains models.
	sched := scheduler.New(col, cfg.RefreshInterval, tr, cfg.TrainSchedule)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "air-quality-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		served := make([]fiber.Map, 0, len(model.Horizons))
		for _, a := range models.Snapshot() {
			served = append(served, fiber.Map{
				"horizon":        a.Horizon,
				"version":        a.Version,
				"trained_at":     a.TrainedAt,
				"validation_mae": a.ValidationMAE,
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "air-quality-forecast",
			"locations": len(locations.Active()),
			"models":    served,
			"cache":     current.Stats(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Services{
		Locations: locations,
		Current:   current,
		Predictor: pred,
		History:   readings,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func providerOptions(cfg *config.AppConfig) providers.Options {
	return providers.Options{
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
		RPS:        cfg.ProviderRPS,
	}
}

func weatherProvider(cfg *config.AppConfig, client *http.Client) airquality.WeatherProvider {
	if cfg.WeatherProvider == "weatherapi" {
		return providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey, providerOptions(cfg))
	}
	return providers.NewOpenWeatherProvider(client, cfg.OpenWeatherAPIKey, providerOptions(cfg))
}

func pollutantProvider(cfg *config.AppConfig, client *http.Client) airquality.PollutantProvider {
	if cfg.PollutantProvider == "openmeteo" {
		return providers.NewOpenMeteoProvider(client, providerOptions(cfg))
	}
	return providers.NewWAQIProvider(client, cfg.WAQIAPIKey, providerOptions(cfg))
}
