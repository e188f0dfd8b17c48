package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"price-agent/api"
	"price-agent/config"
	"price-agent/metrics"
	"price-agent/models"
	"price-agent/scraper"
	"price-agent/services"
	"price-agent/storage"
	"price-agent/utils"
)

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API instead of a single search")
	noCSV := flag.Bool("no-csv", false, "skip the CSV export of fetched listings")
	flag.Parse()

	cfg := config.Load()
	logger, err := utils.NewLoggerWithOptions(utils.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Price agent starting ===")
	logger.Info("Config — store: %s | providers: %s | max results: %d | provider timeout: %v",
		cfg.StoreBackend, cfg.Providers, cfg.MaxResults, cfg.ProviderTimeout)

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open history store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := metrics.NewRegistry()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis at %s unreachable, caching disabled: %v", cfg.RedisAddr, err)
			_ = rdb.Close()
			rdb = nil
		}
		cancel()
	}
	if rdb != nil {
		defer rdb.Close()
	}

	specs, err := cfg.ProviderSpecs()
	if err != nil {
		logger.Error("Invalid provider configuration: %v", err)
		os.Exit(1)
	}
	providers, err := scraper.NewAll(specs, scraper.Deps{
		Logger:         logger,
		MaxResults:     cfg.MaxResults,
		MaxConcurrency: cfg.MaxConcurrency,
		RateLimitMs:    cfg.RateLimitMs,
		MaxRetries:     cfg.MaxRetries,
		PagesToScrape:  cfg.PagesToScrape,
		ChromeBin:      cfg.ChromeBin,
		Redis:          rdb,
		CacheTTL:       cfg.CacheTTL,
		Metrics:        reg,
	})
	if err != nil {
		logger.Error("Failed to build providers: %v", err)
		os.Exit(1)
	}

	var calendar []models.SaleEvent
	if cfg.SaleCalendarPath != "" {
		calendar, err = services.LoadSaleCalendar(cfg.SaleCalendarPath)
		if err != nil {
			logger.Error("Failed to load sale calendar: %v", err)
			os.Exit(1)
		}
		logger.Info("Loaded %d sale events from %s", len(calendar), cfg.SaleCalendarPath)
	}

	var narrator services.InsightGenerator
	if cfg.GeminiAPIKey != "" {
		g, err := services.NewGeminiInsights(services.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.GeminiTemperature,
			BaseURL:     cfg.GeminiBaseURL,
			Timeout:     cfg.NarrativeTimeout,
		}, logger)
		if err != nil {
			logger.Warn("Gemini disabled: %v", err)
		} else {
			narrator = g
		}
	} else {
		logger.Info("No GEMINI_API_KEY set, using template insights")
	}

	engine := services.NewEngine(services.EngineConfig{
		ProviderTimeout:  cfg.ProviderTimeout,
		NarrativeTimeout: cfg.NarrativeTimeout,
		Trend:            services.TrendConfig{WindowDays: cfg.HistoryWindowDays},
		Predictor:        services.PredictorConfig{Calendar: calendar},
	}, providers, store, narrator, reg, logger)

	var exporter storage.ListingExporter
	if !*noCSV && cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		exporter = csvWriter
	}

	if *serve {
		go pruneLoop(ctx, store, cfg.RetentionDays, logger)
		server := api.NewServer(engine, exporter, reg, logger)
		if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
			logger.Error("HTTP server stopped: %v", err)
			os.Exit(1)
		}
		return
	}

	query := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: price-agent [-serve] [-no-csv] <product query>")
		os.Exit(2)
	}

	rec, err := engine.Search(ctx, query)
	if err != nil {
		var se *models.SearchError
		if errors.As(err, &se) && se.Retryable {
			logger.Error("Search failed temporarily, try again later: %v", err)
		} else {
			logger.Error("Search failed: %v", err)
		}
		os.Exit(1)
	}

	if exporter != nil {
		if err := exporter.WriteListings(rec.Query, rec.AllProducts); err != nil {
			logger.Error("CSV write failed: %v", err)
		} else {
			logger.Info("Listings saved to %s", cfg.CSVOutputPath)
		}
	}

	services.NewPrinter(os.Stdout).Print(rec)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.HistoryStore, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "pebble":
		return storage.NewPebbleStore(cfg.PebbleDir)
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.DSN())
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// pruneLoop applies the retention policy once at start and then daily.
func pruneLoop(ctx context.Context, store storage.HistoryStore, retentionDays int, logger *utils.Logger) {
	if retentionDays <= 0 {
		return
	}
	olderThan := time.Duration(retentionDays) * 24 * time.Hour
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		n, err := store.Prune(ctx, olderThan)
		if err != nil {
			logger.Warn("[retention] prune failed: %v", err)
		} else if n > 0 {
			logger.Info("[retention] pruned %d records older than %d days", n, retentionDays)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
