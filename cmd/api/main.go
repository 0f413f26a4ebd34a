package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iago/opportunity-radar-back/internal/ai"
	"github.com/iago/opportunity-radar-back/internal/budget"
	"github.com/iago/opportunity-radar-back/internal/cache"
	"github.com/iago/opportunity-radar-back/internal/config"
	contextbuilder "github.com/iago/opportunity-radar-back/internal/context"
	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/executor"
	httpserver "github.com/iago/opportunity-radar-back/internal/http"
	"github.com/iago/opportunity-radar-back/internal/http/handlers"
	"github.com/iago/opportunity-radar-back/internal/pipeline"
	"github.com/iago/opportunity-radar-back/internal/plan"
	"github.com/iago/opportunity-radar-back/internal/quality"
	"github.com/iago/opportunity-radar-back/internal/queue"
	"github.com/iago/opportunity-radar-back/internal/repository"
	"github.com/iago/opportunity-radar-back/internal/search"
	"github.com/iago/opportunity-radar-back/internal/service"
	"github.com/iago/opportunity-radar-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[radar] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	tracker := pipeline.NewStatusTracker()
	runsService := service.NewRunsService(repo, producer, tracker)
	api := handlers.NewAPI(runsService)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		coordinator, pipelineCloser, err := setupPipeline(cfg, tracker, logger)
		if err != nil {
			logger.Fatalf("pipeline setup failed: %v", err)
		}
		defer pipelineCloser()
		processor := worker.NewProcessor(consumer, repo, coordinator, logger)
		go processor.Start(ctx)
		logger.Printf("worker enabled and started")
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupPipeline(
	cfg config.Config,
	tracker *pipeline.StatusTracker,
	logger *log.Logger,
) (*pipeline.Coordinator, func(), error) {
	researchCache := cache.NewResearchCache(cache.Config{
		TTLByCategory: map[domain.ResearchCategory]time.Duration{
			domain.CategoryMarketData:   time.Duration(cfg.CacheTTLMarketDataSeconds) * time.Second,
			domain.CategoryCompetitor:   time.Duration(cfg.CacheTTLCompetitorSeconds) * time.Second,
			domain.CategoryMarketTrends: time.Duration(cfg.CacheTTLTrendsSeconds) * time.Second,
			domain.CategoryRegulatory:   time.Duration(cfg.CacheTTLRegulatorySeconds) * time.Second,
			domain.CategoryCustomer:     time.Duration(cfg.CacheTTLCustomerSeconds) * time.Second,
		},
		DefaultTTL:         time.Duration(cfg.CacheDefaultTTLSeconds) * time.Second,
		RealTimeCategories: realTimeCategories(cfg.RealTimeCategories),
		MaxBytes:           cfg.CacheMaxBytes,
		SweepInterval:      time.Duration(cfg.CacheSweepSeconds) * time.Second,
	})

	ledger, err := budget.NewLedger(budget.Config{
		MonthlyLimit: cfg.MonthlyBudget,
		UnitCosts: map[budget.SourceKind]float64{
			budget.SourceWebSearch:  cfg.CostWebSearch,
			budget.SourceGeneration: cfg.CostGeneration,
		},
		AlertTiers: cfg.AlertTierFractions,
		Logger:     logger,
	})
	if err != nil {
		researchCache.Close()
		return nil, nil, err
	}

	var provider search.Provider
	if cfg.SearchAPIKey != "" && cfg.SearchBaseURL != "" {
		provider = search.NewHTTPClient(search.HTTPClientConfig{
			APIKey:            cfg.SearchAPIKey,
			BaseURL:           cfg.SearchBaseURL,
			Timeout:           time.Duration(cfg.SearchTimeoutMS) * time.Millisecond,
			MaxRetries:        cfg.SearchMaxRetries,
			RequestsPerSecond: cfg.SearchRequestsPerSecond,
			Burst:             cfg.SearchBurst,
		})
		logger.Printf("paid search provider configured")
	} else {
		logger.Printf("SEARCH_API_KEY not configured, lookups use the free tier only")
	}

	exec := executor.New(executor.Dependencies{
		Cache:    researchCache,
		Ledger:   ledger,
		Provider: provider,
		FreeTier: search.NewFreeTierProvider(),
	}, executor.Config{
		Width:    cfg.MaxParallelRequests,
		Language: cfg.Language,
		Region:   cfg.Region,
		Logger:   logger,
	})

	modelRouter := ai.NewModelRouter(ai.ModelRouterConfig{
		SectionPrimary:   cfg.OpenRouterModelSectionPrimary,
		SectionFallback:  cfg.OpenRouterModelSectionFallback,
		CritiquePrimary:  cfg.OpenRouterModelCritiquePrimary,
		CritiqueFallback: cfg.OpenRouterModelCritiqueBackup,
		AnalysisPrimary:  cfg.OpenRouterModelAnalysisPrimary,
		AnalysisFallback: cfg.OpenRouterModelAnalysisBackup,
	})
	aiClient := ai.NewOpenRouterClient(ai.OpenRouterClientConfig{
		APIKey:     cfg.OpenRouterAPIKey,
		BaseURL:    cfg.OpenRouterBaseURL,
		Timeout:    time.Duration(cfg.OpenRouterTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.OpenRouterMaxRetries,
		SiteURL:    cfg.OpenRouterSiteURL,
		AppName:    cfg.OpenRouterAppName,
	})
	writer := service.NewReportWriterService(service.ReportWriterDependencies{
		Router:     modelRouter,
		Client:     aiClient,
		Builder:    contextbuilder.NewBuilder(contextbuilder.NewFindingsRetriever()),
		Ledger:     ledger,
		PromptsDir: cfg.PromptsDir,
		Logger:     logger,
	})

	evaluator, err := quality.NewEvaluator(quality.Config{
		PassingThreshold: cfg.QualityPassingThreshold,
		SectionThreshold: cfg.QualitySectionThreshold,
	})
	if err != nil {
		researchCache.Close()
		return nil, nil, err
	}

	coordinator := pipeline.NewCoordinator(pipeline.Dependencies{
		Planner:   plan.NewPlanner(),
		Executor:  exec,
		Writer:    writer,
		Evaluator: evaluator,
	}, pipeline.Config{
		MaxRevisions:  cfg.MaxRevisions,
		MaxWorkItems:  cfg.MaxWorkItems,
		CostPerLookup: cfg.CostPerLookup,
		Language:      cfg.Language,
		Region:        cfg.Region,
		RunTimeout:    time.Duration(cfg.RunTimeoutSeconds) * time.Second,
		Events:        &pipeline.LogSink{Logger: logger},
		Tracker:       tracker,
	})
	return coordinator, researchCache.Close, nil
}

func realTimeCategories(names []string) []domain.ResearchCategory {
	categories := make([]domain.ResearchCategory, 0, len(names))
	for _, name := range names {
		if domain.IsResearchCategory(name) {
			categories = append(categories, domain.ResearchCategory(name))
		}
	}
	return categories
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.RunsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryRunsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresRunsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres repository, fallback to memory: %v", err)
		return repository.NewMemoryRunsRepository(), func() {}
	}
	logger.Printf("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	var (
		baseProducer queue.Producer
		consumer     queue.Consumer
		baseCloser   = func() {}
	)

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, 3, logger)
		baseProducer = local
		consumer = local
	} else {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Stream:      cfg.RedisStream,
			DLQStream:   cfg.RedisDLQ,
			Group:       cfg.RedisGroup,
			Consumer:    cfg.RedisConsumer,
			MaxAttempts: 3,
		})
		if err != nil {
			logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
			local := queue.NewLocalQueue(512, 3, logger)
			baseProducer = local
			consumer = local
		} else {
			logger.Printf("redis streams queue initialized")
			baseProducer = streams
			consumer = streams
			baseCloser = func() {
				_ = streams.Close()
			}
		}
	}

	producer := baseProducer
	batchingCloser := func() {}
	if cfg.QueueBatchingEnabled {
		batching := queue.NewBatchingProducer(ctx, baseProducer, queue.BatchingConfig{
			MaxBatchSize:       cfg.QueueBatchSize,
			FlushInterval:      time.Duration(cfg.QueueBatchFlushMS) * time.Millisecond,
			FlushTimeout:       time.Duration(cfg.QueueBatchFlushTimeoutMS) * time.Millisecond,
			QueueCapacity:      cfg.QueueBatchQueueCapacity,
			MaxInFlightBatches: cfg.QueueBatchMaxInFlight,
		})
		producer = batching
		batchingCloser = batching.Close
		logger.Printf(
			"queue batching enabled size=%d flush_ms=%d queue_capacity=%d max_in_flight=%d",
			cfg.QueueBatchSize,
			cfg.QueueBatchFlushMS,
			cfg.QueueBatchQueueCapacity,
			cfg.QueueBatchMaxInFlight,
		)
	}

	return producer, consumer, func() {
		batchingCloser()
		baseCloser()
	}
}
