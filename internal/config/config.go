package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the run worker.
type Config struct {
	Port string

	AuthToken          string
	CORSAllowedOrigins []string

	DatabaseURL string

	OpenRouterAPIKey               string
	OpenRouterBaseURL              string
	OpenRouterTimeoutMS            int
	OpenRouterMaxRetries           int
	OpenRouterSiteURL              string
	OpenRouterAppName              string
	OpenRouterModelSectionPrimary  string
	OpenRouterModelSectionFallback string
	OpenRouterModelCritiquePrimary string
	OpenRouterModelCritiqueBackup  string
	OpenRouterModelAnalysisPrimary string
	OpenRouterModelAnalysisBackup  string

	SearchAPIKey            string
	SearchBaseURL           string
	SearchTimeoutMS         int
	SearchMaxRetries        int
	SearchRequestsPerSecond float64
	SearchBurst             int

	MaxParallelRequests int
	MaxWorkItems        int
	CostPerLookup       float64
	RunTimeoutSeconds   int
	Language            string
	Region              string

	MonthlyBudget      float64
	CostWebSearch      float64
	CostGeneration     float64
	AlertTierFractions []float64

	QualityPassingThreshold float64
	QualitySectionThreshold float64
	MaxRevisions            int

	CacheDefaultTTLSeconds    int
	CacheTTLMarketDataSeconds int
	CacheTTLCompetitorSeconds int
	CacheTTLTrendsSeconds     int
	CacheTTLRegulatorySeconds int
	CacheTTLCustomerSeconds   int
	CacheMaxBytes             int
	CacheSweepSeconds         int
	RealTimeCategories        []string

	PromptsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int

	QueueBatchingEnabled     bool
	QueueBatchSize           int
	QueueBatchFlushMS        int
	QueueBatchFlushTimeoutMS int
	QueueBatchQueueCapacity  int
	QueueBatchMaxInFlight    int

	WorkerEnabled bool
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OpenRouterAPIKey:               getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:              getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterTimeoutMS:            getEnvInt("OPENROUTER_TIMEOUT_MS", 20000),
		OpenRouterMaxRetries:           getEnvInt("OPENROUTER_MAX_RETRIES", 2),
		OpenRouterSiteURL:              getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName:              getEnv("OPENROUTER_APP_NAME", "Opportunity Radar"),
		OpenRouterModelSectionPrimary:  getEnv("OPENROUTER_MODEL_SECTION_PRIMARY", "gpt-4.1"),
		OpenRouterModelSectionFallback: getEnv("OPENROUTER_MODEL_SECTION_FALLBACK", "gpt-4.1-mini"),
		OpenRouterModelCritiquePrimary: getEnv("OPENROUTER_MODEL_CRITIQUE_PRIMARY", "gpt-4.1-mini"),
		OpenRouterModelCritiqueBackup:  getEnv("OPENROUTER_MODEL_CRITIQUE_FALLBACK", "gpt-4.1-nano"),
		OpenRouterModelAnalysisPrimary: getEnv("OPENROUTER_MODEL_ANALYSIS_PRIMARY", "gpt-4.1-mini"),
		OpenRouterModelAnalysisBackup:  getEnv("OPENROUTER_MODEL_ANALYSIS_FALLBACK", "gpt-4.1-nano"),

		SearchAPIKey:            getEnv("SEARCH_API_KEY", ""),
		SearchBaseURL:           getEnv("SEARCH_BASE_URL", ""),
		SearchTimeoutMS:         getEnvInt("SEARCH_TIMEOUT_MS", 10000),
		SearchMaxRetries:        getEnvInt("SEARCH_MAX_RETRIES", 2),
		SearchRequestsPerSecond: getEnvFloat("SEARCH_RPS", 5),
		SearchBurst:             getEnvInt("SEARCH_BURST", 5),

		MaxParallelRequests: getEnvInt("MAX_PARALLEL_REQUESTS", 4),
		MaxWorkItems:        getEnvInt("MAX_WORK_ITEMS", 8),
		CostPerLookup:       getEnvFloat("COST_PER_LOOKUP", 10),
		RunTimeoutSeconds:   getEnvInt("RUN_TIMEOUT_SECONDS", 180),
		Language:            getEnv("REPORT_LANGUAGE", "en"),
		Region:              getEnv("REPORT_REGION", ""),

		MonthlyBudget:      getEnvFloat("MONTHLY_BUDGET", 1000),
		CostWebSearch:      getEnvFloat("COST_WEB_SEARCH", 10),
		CostGeneration:     getEnvFloat("COST_GENERATION", 2),
		AlertTierFractions: getEnvFloatList("ALERT_TIER_FRACTIONS", []float64{0.8, 0.9, 1.0}),

		QualityPassingThreshold: getEnvFloat("QUALITY_PASSING_THRESHOLD", 80),
		QualitySectionThreshold: getEnvFloat("QUALITY_SECTION_THRESHOLD", 70),
		MaxRevisions:            getEnvInt("MAX_REVISIONS", 2),

		CacheDefaultTTLSeconds:    getEnvInt("CACHE_DEFAULT_TTL_SECONDS", 21600),
		CacheTTLMarketDataSeconds: getEnvInt("CACHE_TTL_MARKET_DATA_SECONDS", 21600),
		CacheTTLCompetitorSeconds: getEnvInt("CACHE_TTL_COMPETITOR_SECONDS", 43200),
		CacheTTLTrendsSeconds:     getEnvInt("CACHE_TTL_TRENDS_SECONDS", 10800),
		CacheTTLRegulatorySeconds: getEnvInt("CACHE_TTL_REGULATORY_SECONDS", 86400),
		CacheTTLCustomerSeconds:   getEnvInt("CACHE_TTL_CUSTOMER_SECONDS", 43200),
		CacheMaxBytes:             getEnvInt("CACHE_MAX_BYTES", 16<<20),
		CacheSweepSeconds:         getEnvInt("CACHE_SWEEP_SECONDS", 300),
		RealTimeCategories:        getEnvList("REALTIME_CATEGORIES", []string{"market_trends"}),

		PromptsDir: getEnv("PROMPTS_DIR", "prompts"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "radar_runs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "radar_runs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "radar_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		QueueBatchingEnabled:     getEnvBool("QUEUE_BATCHING_ENABLED", true),
		QueueBatchSize:           getEnvInt("QUEUE_BATCH_SIZE", 32),
		QueueBatchFlushMS:        getEnvInt("QUEUE_BATCH_FLUSH_MS", 25),
		QueueBatchFlushTimeoutMS: getEnvInt("QUEUE_BATCH_FLUSH_TIMEOUT_MS", 3000),
		QueueBatchQueueCapacity:  getEnvInt("QUEUE_BATCH_QUEUE_CAPACITY", 2048),
		QueueBatchMaxInFlight:    getEnvInt("QUEUE_BATCH_MAX_IN_FLIGHT", 4),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func getEnvFloatList(key string, fallback []float64) []float64 {
	items := getEnvList(key, nil)
	if len(items) == 0 {
		return fallback
	}
	parsed := make([]float64, 0, len(items))
	for _, item := range items {
		value, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return fallback
		}
		parsed = append(parsed, value)
	}
	return parsed
}
