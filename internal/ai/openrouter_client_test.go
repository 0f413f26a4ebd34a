package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenRouterClientUnavailableWithoutKey(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterClientConfig{})
	if client.Available() {
		t.Fatalf("expected client without key to be unavailable")
	}

	_, err := client.Generate(context.Background(), GenerateRequest{
		Model: "gpt-4.1-mini",
		Input: "hello",
	})
	if err != ErrGeneratorUnavailable {
		t.Fatalf("expected ErrGeneratorUnavailable, got %v", err)
	}
}

func TestOpenRouterClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Opportunity Radar" {
			t.Errorf("unexpected X-Title header %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request payload: %v", err)
		}
		if payload["model"] != "gpt-4.1-mini" {
			t.Errorf("unexpected model %v", payload["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "openai/gpt-4.1-mini",
			"choices": [{"message": {"role": "assistant", "content": "market looks promising"}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 8, "total_tokens": 28}
		}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterClientConfig{
		APIKey:  "key-123",
		BaseURL: server.URL,
	})

	result, err := client.Generate(context.Background(), GenerateRequest{
		Model:        "gpt-4.1-mini",
		Instructions: "write a short market note",
		Input:        "solar panel installers in Portugal",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "market looks promising" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.ModelID != "openai/gpt-4.1-mini" {
		t.Fatalf("unexpected model id %q", result.ModelID)
	}
	if result.Usage.TotalTokens != 28 {
		t.Fatalf("unexpected total tokens %d", result.Usage.TotalTokens)
	}
}

func TestOpenRouterClientRetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "ok after retry"}}]
		}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterClientConfig{
		APIKey:  "key-123",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	})

	result, err := client.Generate(context.Background(), GenerateRequest{
		Model: "gpt-4.1-mini",
		Input: "retry please",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ok after retry" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestOpenRouterClientDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad prompt"}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterClientConfig{
		APIKey:  "key-123",
		BaseURL: server.URL,
	})

	_, err := client.Generate(context.Background(), GenerateRequest{
		Model: "gpt-4.1-mini",
		Input: "hello",
	})
	if err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestOpenRouterClientParsesArrayContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": [
				{"type": "text", "text": "part one"},
				{"type": "text", "text": "part two"}
			]}}]
		}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterClientConfig{
		APIKey:  "key-123",
		BaseURL: server.URL,
	})

	result, err := client.Generate(context.Background(), GenerateRequest{
		Model: "gpt-4.1-mini",
		Input: "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "part one\npart two" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestModelRouterSelect(t *testing.T) {
	router := NewModelRouter(ModelRouterConfig{})

	section := router.Select(TaskSection)
	if section.PrimaryModel != "gpt-4.1" {
		t.Fatalf("unexpected section primary %q", section.PrimaryModel)
	}
	if section.MaxOutputTokens != 1600 {
		t.Fatalf("unexpected section token cap %d", section.MaxOutputTokens)
	}

	critique := router.Select(TaskCritique)
	if critique.PrimaryModel != "gpt-4.1-mini" {
		t.Fatalf("unexpected critique primary %q", critique.PrimaryModel)
	}

	analysis := router.Select(TaskAnalysis)
	if analysis.FallbackModel != "gpt-4.1-nano" {
		t.Fatalf("unexpected analysis fallback %q", analysis.FallbackModel)
	}
}
