package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

type HTTPClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	// RequestsPerSecond throttles outbound calls client-side so a burst of
	// parallel work items cannot trip the provider's own limiter.
	RequestsPerSecond float64
	Burst             int
}

// HTTPClient talks to a hosted web-search API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.search.brave.com/res/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}

	return &HTTPClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}
}

func (c *HTTPClient) Available() bool {
	return c.apiKey != ""
}

func (c *HTTPClient) Search(ctx context.Context, query Query) ([]domain.Finding, error) {
	if !c.Available() {
		return nil, ErrSearchUnavailable
	}
	if strings.TrimSpace(query.Text) == "" {
		return nil, errors.New("query text is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		findings, callErr := c.callSearchAPI(ctx, query)
		if callErr == nil {
			return findings, nil
		}
		lastErr = callErr

		if !isRetryableSearchError(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(250*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown search error")
	}
	return nil, lastErr
}

func (c *HTTPClient) callSearchAPI(ctx context.Context, query Query) ([]domain.Finding, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxHits := query.MaxHits
	if maxHits <= 0 || maxHits > 20 {
		maxHits = 10
	}
	params := url.Values{}
	params.Set("q", query.Text)
	params.Set("count", strconv.Itoa(maxHits))
	if query.Language != "" {
		params.Set("search_lang", query.Language)
	}
	if query.Region != "" {
		params.Set("country", query.Region)
	}

	httpRequest, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodGet,
		c.baseURL+"/web/search?"+params.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	httpRequest.Header.Set("Accept", "application/json")
	httpRequest.Header.Set("X-Subscription-Token", c.apiKey)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("search transport error: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("read search body: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 500 {
			message = message[:500]
		}
		return nil, &searchHTTPError{StatusCode: httpResponse.StatusCode, Message: message}
	}

	var raw searchResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	findings := make([]domain.Finding, 0, len(raw.Web.Results))
	for index, item := range raw.Web.Results {
		title := strings.TrimSpace(item.Title)
		snippet := strings.TrimSpace(item.Description)
		if title == "" && snippet == "" {
			continue
		}
		findings = append(findings, domain.Finding{
			Title:   title,
			Snippet: snippet,
			URL:     strings.TrimSpace(item.URL),
			Source:  "web_search",
			Score:   1 - float64(index)*0.05,
		})
		if len(findings) >= maxHits {
			break
		}
	}
	return findings, nil
}

type searchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

type searchHTTPError struct {
	StatusCode int
	Message    string
}

func (e *searchHTTPError) Error() string {
	return fmt.Sprintf("search status %d: %s", e.StatusCode, e.Message)
}

func isRetryableSearchError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *searchHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "tempor")
}
