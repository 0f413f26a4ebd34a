package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iago/opportunity-radar-back/internal/ai"
	"github.com/iago/opportunity-radar-back/internal/budget"
	"github.com/iago/opportunity-radar-back/internal/cache"
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

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type tokenResult struct {
	UnprunedTokens  int     `json:"unpruned_tokens"`
	OptimizedTokens int     `json:"optimized_tokens"`
	ReductionPct    float64 `json:"reduction_pct"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	TokenTuning    tokenResult      `json:"token_tuning"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	cancel context.CancelFunc
}

// staticGenerator keeps the pipeline deterministic and offline.
type staticGenerator struct{}

func (staticGenerator) Available() bool { return true }

func (staticGenerator) Generate(_ context.Context, request ai.GenerateRequest) (ai.GenerateResult, error) {
	payload := map[string]any{
		"heading":      "Benchmark Section",
		"content":      "Local delivery demand grows 12% per year while unit costs fall with pooled routing.",
		"completeness": 0.9,
		"confidence":   0.85,
	}
	encoded, _ := json.Marshal(payload)
	return ai.GenerateResult{Text: string(encoded), ModelID: request.Model}, nil
}

func main() {
	runsTotal := flag.Int("runs-total", 180, "total run enqueue requests")
	runsConcurrency := flag.Int("runs-concurrency", 28, "concurrency for run enqueue requests")
	statusTotal := flag.Int("status-total", 260, "total run status requests")
	statusConcurrency := flag.Int("status-concurrency", 24, "concurrency for run status requests")
	reportsListTotal := flag.Int("reports-list-total", 120, "total report list requests")
	reportsListConcurrency := flag.Int("reports-list-concurrency", 20, "concurrency for report list requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	var idCounter int64

	var runIDs []string
	var runIDsMu sync.Mutex

	runsScenario := runScenario("runs_enqueue", *runsTotal, *runsConcurrency, func(index int) error {
		requestID := atomic.AddInt64(&idCounter, 1)
		payload := map[string]any{
			"tenant_id": "default",
			"idea": map[string]any{
				"title":             fmt.Sprintf("Bike courier network %d", index%40),
				"target_market":     "small retailers in mid-size cities",
				"problem_statement": "same-day delivery is too expensive for independent shops",
				"proposed_solution": "a shared fleet of cargo bikes with pooled routing",
				"business_model":    "per-delivery fee plus monthly subscription",
			},
		}
		headers := map[string]string{
			"Idempotency-Key": fmt.Sprintf("run-%d-%d", requestID, time.Now().UnixNano()),
		}
		body, err := postJSON(client, env.server.URL+"/v1/runs", payload, headers, http.StatusAccepted)
		if err != nil {
			return err
		}
		if runID, _ := body["run_id"].(string); runID != "" {
			runIDsMu.Lock()
			runIDs = append(runIDs, runID)
			runIDsMu.Unlock()
		}
		return nil
	})

	statusScenario := runScenario("runs_status", *statusTotal, *statusConcurrency, func(index int) error {
		runIDsMu.Lock()
		if len(runIDs) == 0 {
			runIDsMu.Unlock()
			return fmt.Errorf("no runs enqueued before status scenario")
		}
		runID := runIDs[index%len(runIDs)]
		runIDsMu.Unlock()
		return getJSON(client, env.server.URL+"/v1/runs/"+runID, http.StatusOK)
	})

	reportsListScenario := runScenario("reports_list", *reportsListTotal, *reportsListConcurrency, func(index int) error {
		query := fmt.Sprintf(
			"%s/v1/reports?tenant_id=default&page=%d&page_size=20",
			env.server.URL,
			(index%6)+1,
		)
		return getJSON(client, query, http.StatusOK)
	})

	tokenTuning := runTokenReductionScenario()
	results := []scenarioResult{
		runsScenario,
		statusScenario,
		reportsListScenario,
	}

	slo := map[string]bool{
		"runs_enqueue_p95_le_500ms": runsScenario.P95MS <= 500,
		"runs_status_p95_le_200ms":  statusScenario.P95MS <= 200,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		TokenTuning:    tokenTuning,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	repo := repository.NewMemoryRunsRepository()
	localQueue := queue.NewLocalQueue(4096, 3, logger)
	tracker := pipeline.NewStatusTracker()

	researchCache := cache.NewResearchCache(cache.Config{
		DefaultTTL: 10 * time.Minute,
		MaxBytes:   8 << 20,
	})
	ledger, err := budget.NewLedger(budget.Config{
		MonthlyLimit: 100000,
		Logger:       logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	exec := executor.New(executor.Dependencies{
		Cache:    researchCache,
		Ledger:   ledger,
		FreeTier: search.NewFreeTierProvider(),
	}, executor.Config{
		Width:  8,
		Logger: logger,
	})

	writer := service.NewReportWriterService(service.ReportWriterDependencies{
		Client:  staticGenerator{},
		Builder: contextbuilder.NewBuilder(contextbuilder.NewFindingsRetriever()),
		Logger:  logger,
	})
	evaluator, err := quality.NewEvaluator(quality.Config{
		PassingThreshold: 60,
		SectionThreshold: 50,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	coordinator := pipeline.NewCoordinator(pipeline.Dependencies{
		Planner:   plan.NewPlanner(),
		Executor:  exec,
		Writer:    writer,
		Evaluator: evaluator,
	}, pipeline.Config{
		MaxRevisions: 1,
		MaxWorkItems: 8,
		RunTimeout:   time.Minute,
		Tracker:      tracker,
	})

	runsService := service.NewRunsService(repo, localQueue, tracker)
	api := handlers.NewAPI(runsService)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, repo, coordinator, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server: server,
		cancel: cancel,
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	result := scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
	return result
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if response.StatusCode != expectedStatus {
		return nil, fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}

	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return decoded, nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

// runTokenReductionScenario compares the token cost of dumping every
// finding into the prompt against the builder's weighted selection.
func runTokenReductionScenario() tokenResult {
	builder := contextbuilder.NewBuilder(contextbuilder.NewFindingsRetriever())

	findings := map[domain.ResearchCategory][]domain.Finding{}
	for _, category := range domain.ResearchCategories() {
		for i := 0; i < 6; i++ {
			findings[category] = append(findings[category], domain.Finding{
				Title: fmt.Sprintf("%s insight %d", category, i),
				Snippet: fmt.Sprintf(
					"Observation %d for the %s angle: market volume estimated at 1.2B EUR with 12%% annual growth and rising courier adoption across mid-size cities.",
					i, category,
				),
				Source: "benchmark",
				Score:  0.5 + float64(i)*0.05,
			})
		}
	}

	idea := domain.Idea{
		Title:            "Bike courier network for local shops",
		TargetMarket:     "small retailers in mid-size European cities",
		ProblemStatement: "same-day delivery is too expensive for independent shops",
	}

	optimized, err := builder.Build(context.Background(), contextbuilder.BuildInput{
		Section:        domain.SectionMarketAnalysis,
		Idea:           idea,
		Findings:       findings,
		MaxInputTokens: 2200,
		MaxChunks:      10,
	})
	if err != nil {
		return tokenResult{}
	}

	unprunedTokens := 0
	for _, categoryFindings := range findings {
		for _, finding := range categoryFindings {
			text := strings.TrimSpace(finding.Title + " " + finding.Snippet)
			tokens := len([]rune(text)) / 4
			if tokens <= 0 {
				tokens = 1
			}
			unprunedTokens += tokens
		}
	}
	if unprunedTokens <= 0 {
		unprunedTokens = optimized.TokenCount
	}

	reduction := 0.0
	if unprunedTokens > 0 {
		reduction = (float64(unprunedTokens-optimized.TokenCount) / float64(unprunedTokens)) * 100
	}

	return tokenResult{
		UnprunedTokens:  unprunedTokens,
		OptimizedTokens: optimized.TokenCount,
		ReductionPct:    round2(reduction),
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
