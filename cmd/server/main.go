package main

import (
	"fmt"
	"os"

	"github.com/quotedesk/backend/config"
	httpDelivery "github.com/quotedesk/backend/internal/delivery/http"
	"github.com/quotedesk/backend/internal/infrastructure/cache"
	"github.com/quotedesk/backend/internal/infrastructure/store"
	"github.com/quotedesk/backend/internal/logging"
	"github.com/quotedesk/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log)
	logger.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("starting quotedesk backend v1.0.0")

	// Database and stores
	db, err := store.Open(cfg.Database.DSN, cfg.Database.Debug)
	if err != nil {
		logger.Fatal().Err(err).Msg("database init failed")
	}

	orgStore := store.NewOrganizationStore(db)
	catalogStore := store.NewCatalogStore(db)
	customerStore := store.NewCustomerStore(db)
	quoteStore := store.NewQuoteStore(db)
	snapshotCache := cache.NewSnapshotCache()

	// Usecase layer
	matcher := usecase.NewMatchingService(usecase.MatchConfig{
		ConfidenceThreshold: cfg.Matching.ConfidenceThreshold,
		BatchWorkers:        cfg.Matching.BatchWorkers,
		EnableDebugLogging:  cfg.Matching.EnableDebugLogging,
	}, logger)

	totals := usecase.NewTotalsService(usecase.TotalsConfig{
		MarginThreshold: cfg.Pricing.MarginThreshold,
		DefaultTaxRate:  cfg.Pricing.DefaultTaxRate,
	})

	catalogService := usecase.NewCatalogService(catalogStore, snapshotCache, logger)
	quoteService := usecase.NewQuoteService(
		orgStore, catalogStore, customerStore, quoteStore, snapshotCache,
		matcher, totals, cfg.Cache.TTL, logger,
	)

	logger.Info().
		Float64("confidenceThreshold", cfg.Matching.ConfidenceThreshold).
		Float64("marginThreshold", cfg.Pricing.MarginThreshold).
		Dur("snapshotTTL", cfg.Cache.TTL).
		Msg("matching configured")

	// HTTP delivery
	handler := httpDelivery.NewHandler(orgStore, catalogService, matcher, quoteService, catalogStore)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("server listening")
	if err := router.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
