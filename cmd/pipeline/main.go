package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/classifier"
	"github.com/brandpulse/brandpulse/internal/db"
	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/internal/pipeline"
	"github.com/brandpulse/brandpulse/internal/source"
	"github.com/brandpulse/brandpulse/pkg/config"
	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/pkg/telemetry"
)

func main() {
	mode := flag.String("mode", "scrape", "pipeline mode: scrape, classify, or stats")
	platform := flag.String("platform", "twitter", "platform: twitter or linkedin")
	company := flag.String("company", "", "company tag (defaults to the configured primary)")
	fullRefresh := flag.Bool("full-refresh", false, "scan from the epoch, bypassing the checkpoint")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting BrandPulse Pipeline",
		zap.String("mode", *mode), zap.String("platform", *platform))

	// Credential validation is fatal before any pipeline state is touched
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Initialize database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	if *company == "" {
		*company = cfg.Companies.Primary
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := db.NewRepository(database.DB)

	switch *mode {
	case "scrape":
		err = runScrape(ctx, cfg, repo, *platform, *company, *fullRefresh)
	case "classify":
		err = runClassify(ctx, cfg, repo, *platform, *company)
	case "stats":
		err = runStats(ctx, repo, *platform, *company)
	default:
		logger.Fatal("Unknown mode", zap.String("mode", *mode))
	}

	if err != nil {
		logger.Fatal("Pipeline failed", zap.Error(err))
	}
	logger.Info("Pipeline finished")
}

func runScrape(ctx context.Context, cfg *config.Config, repo *db.Repository, platform, company string, fullRefresh bool) error {
	logger := logging.GetLogger()

	epoch, err := cfg.Epoch()
	if err != nil {
		return fmt.Errorf("invalid epoch configuration: %w", err)
	}

	opts := pipeline.IngestOptions{
		Company:     company,
		WindowSize:  cfg.Window(),
		Interval:    cfg.Interval(),
		MaxRuns:     cfg.Scraper.MaxRuns,
		MaxPages:    cfg.Scraper.MaxPages,
		Epoch:       epoch,
		FullRefresh: fullRefresh,
	}

	var ingestor *pipeline.Ingestor

	switch platform {
	case models.PlatformTwitter:
		if err := cfg.ValidateTwitter(); err != nil {
			return err
		}
		tokenStore := &source.FileTokenStore{Path: cfg.Twitter.StateFile}
		stateStore := &source.FileStateStore{Path: cfg.Twitter.ScrapeStateFile}
		client, err := source.NewTwitterClient(cfg.Twitter, tokenStore, stateStore)
		if err != nil {
			return err
		}
		// Competitor scrapes search for the company name itself; the primary
		// company uses the configured (usually broader) search query.
		opts.Query = cfg.Scraper.SearchQuery
		if company != cfg.Companies.Primary {
			opts.Query = company
		}
		ingestor = pipeline.NewIngestor(client, client,
			db.NewCheckpointRepository(repo),
			db.NewRawPostRepository(repo),
			db.NewConversationRepository(repo),
			opts)

	case models.PlatformLinkedIn:
		if err := cfg.ValidateLinkedIn(); err != nil {
			return err
		}
		client, err := source.NewLinkedInClient(cfg.LinkedIn)
		if err != nil {
			return err
		}
		adapter := &source.LinkedInFeedAdapter{
			Client:   client,
			Keywords: append([]string{cfg.Companies.Primary}, cfg.Companies.Competitors...),
		}
		// The company page slug is the query for feed scraping. Voyager has
		// no server-side time filter, so windows start at scrape time rather
		// than replaying the configured epoch against the live feed.
		opts.Query = company
		opts.Epoch = time.Now().UTC().Add(-opts.WindowSize)
		ingestor = pipeline.NewIngestor(adapter, nil,
			db.NewCheckpointRepository(repo),
			db.NewRawPostRepository(repo),
			nil,
			opts)

	default:
		return fmt.Errorf("unknown platform %q", platform)
	}

	stats, err := ingestor.Run(ctx)
	logger.Info("Scrape summary",
		zap.Int("found", stats.Found),
		zap.Int("saved", stats.Saved),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors))
	return err
}

func runClassify(ctx context.Context, cfg *config.Config, repo *db.Repository, platform, company string) error {
	logger := logging.GetLogger()

	if err := cfg.ValidateClassifier(); err != nil {
		return err
	}

	client, err := classifier.NewClient(cfg.Classifier)
	if err != nil {
		return err
	}

	runner := pipeline.NewClassifier(client,
		db.NewRawPostRepository(repo),
		db.NewClassifiedPostRepository(repo),
		pipeline.ClassifyOptions{
			Platform:  platform,
			Company:   company,
			Limit:     cfg.Classifier.BatchLimit,
			ItemDelay: cfg.Classifier.ItemDelay,
		})

	stats, err := runner.Run(ctx)
	logger.Info("Classification summary",
		zap.Int("processed", stats.Processed),
		zap.Int("classified", stats.Classified),
		zap.Int("spam", stats.Spam),
		zap.Int("errors", stats.Errors),
		zap.Int64("total_tokens", stats.TotalTokens),
		zap.Any("categories", stats.Categories))
	return err
}

// runStats prints aggregates; it never mutates any state.
func runStats(ctx context.Context, repo *db.Repository, platform, company string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stats, err := db.NewStatsRepository(repo).Classification(ctx, platform, company)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
