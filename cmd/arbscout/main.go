package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/arbscout/internal/api"
	"github.com/rewired-gh/arbscout/internal/arbitrage"
	"github.com/rewired-gh/arbscout/internal/config"
	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/metrics"
	"github.com/rewired-gh/arbscout/internal/monitor"
	"github.com/rewired-gh/arbscout/internal/oddsfeed"
	"github.com/rewired-gh/arbscout/internal/publisher"
	"github.com/rewired-gh/arbscout/internal/storage"
	"github.com/rewired-gh/arbscout/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// service bundles what a refresh cycle needs.
type service struct {
	cfg       *config.Config
	source    oddsfeed.Source
	monitor   *monitor.Monitor
	metrics   *metrics.Metrics
	telegram  *telegram.Client
	publisher *publisher.StreamPublisher
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxOpportunities, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	engine := arbitrage.New(
		arbitrage.WithTables(cfg.Arbitrage.Tables()),
		arbitrage.WithTolerance(cfg.Arbitrage.Tolerance),
	)

	mon := monitor.New(store, engine, monitor.Config{
		TotalStake:         cfg.Arbitrage.TotalStake,
		TopK:               cfg.Monitor.TopK,
		CooldownMultiplier: cfg.Monitor.CooldownMultiplier,
		GuaranteedOnly:     cfg.Monitor.GuaranteedOnly,
		Enhanced:           cfg.Arbitrage.Enhanced.Enabled,
		EnhancedOptions:    cfg.Arbitrage.EnhancedOptions(),
	})

	svc := &service{
		cfg:     cfg,
		source:  newSource(cfg.Feed),
		monitor: mon,
		metrics: metrics.New(),
	}

	if cfg.Telegram.Enabled {
		svc.telegram, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		svc.publisher = publisher.NewStreamPublisher(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen)
		logger.Info("Publishing opportunities to Redis stream %s", cfg.Redis.Stream)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if svc.telegram != nil {
		svc.telegram.ListenForCommands(ctx, mon)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		server := api.NewServer(cfg.Server.Addr, api.NewRouter(api.Options{
			Engine:          engine,
			Snapshot:        mon,
			Metrics:         svc.metrics.Handler(),
			TotalStake:      cfg.Arbitrage.TotalStake,
			EnhancedOptions: cfg.Arbitrage.EnhancedOptions(),
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		}), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

		g.Go(func() error {
			logger.Info("HTTP API listening on %s", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		svc.run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error: %v", err)
		return
	}
	logger.Info("Service stopped")
}

func newSource(cfg config.FeedConfig) oddsfeed.Source {
	if cfg.Mode == "synthetic" {
		logger.Info("Using synthetic odds feed (%d matches)", cfg.Matches)
		return oddsfeed.NewGenerator(cfg.Matches, cfg.Seed, time.Now)
	}
	return oddsfeed.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.MaxRetries, cfg.RetryDelayBase, cfg.RateLimit)
}

// run drives refresh cycles until ctx is done.
func (s *service) run(ctx context.Context) {
	logger.Info("Starting arbitrage scan (interval: %v, tolerance: %.3f, top_k: %d, enhanced: %v)",
		s.cfg.Feed.PollInterval,
		s.cfg.Arbitrage.Tolerance,
		s.cfg.Monitor.TopK,
		s.cfg.Arbitrage.Enhanced.Enabled,
	)

	ticker := time.NewTicker(s.cfg.Feed.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Refresh cycle failed: %v", err)
			if consecutiveFailures == 1 && s.telegram != nil {
				if sendErr := s.telegram.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && s.telegram != nil {
			if sendErr := s.telegram.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	logger.Debug("Running initial refresh cycle")
	handleCycleResult(s.runCycle(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("Starting scheduled refresh cycle")
			handleCycleResult(s.runCycle(ctx))
		}
	}
}

func (s *service) runCycle(ctx context.Context) error {
	start := time.Now()

	quotes, err := s.source.GetLatestQuotes(ctx)
	if errors.Is(err, oddsfeed.ErrEmptyFeed) {
		logger.Info("Odds feed returned no quotes")
		quotes, err = nil, nil
	}
	if err != nil {
		s.metrics.ObserveFailure(time.Since(start))
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}
	logger.Info("Fetched %d quotes", len(quotes))

	res := s.monitor.ProcessSnapshot(quotes)
	logger.Info("Found %d opportunities (%d new, %d closed) across %d matches",
		len(res.Current), len(res.New), len(res.Closed), res.Groups)

	if s.publisher != nil && len(res.New) > 0 {
		if err := s.publisher.Publish(ctx, res.CycleID, res.New); err != nil {
			logger.Warn("Failed to publish opportunities: %v", err)
		}
	}

	notify := s.monitor.PostProcess(res.Current, s.cfg.Feed.PollInterval)
	if len(notify) > 0 {
		if s.telegram != nil {
			if err := s.telegram.Send(notify, start); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
			} else {
				logger.Info("Sent Telegram notification with %d opportunities", len(notify))
				s.monitor.RecordNotified(notify)
				s.metrics.NotifiedTotal.Add(float64(len(notify)))
			}
		} else {
			logger.Debug("Opportunities found but Telegram notifications disabled")
		}
	}

	took := time.Since(start)
	s.metrics.ObserveCycle(metrics.CycleSummary{
		Quotes:       res.Quotes,
		Dropped:      res.Dropped,
		FailedGroups: res.FailedGroups,
		Current:      res.Current,
		New:          res.New,
	}, took)
	logger.Info("Refresh cycle completed in %v", took)

	return nil
}
