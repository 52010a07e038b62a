package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestAnthropicClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["model"] != "claude-test" {
			t.Errorf("model = %v", body["model"])
		}
		if body["max_tokens"] != float64(defaultMaxTokens) {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}
		if _, ok := body["temperature"]; ok {
			t.Errorf("temperature = %v, want omitted", body["temperature"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"score\": 0.9}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	c := NewAnthropicClient("test-key", "claude-test", option.WithBaseURL(server.URL))
	resp, err := c.Complete(context.Background(), Request{System: "judge", Prompt: "rate this"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"score": 0.9}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Model != "claude-test" {
		t.Errorf("Model = %q", resp.Model)
	}
}

// TestAnthropicClient_SendsTemperature は指定した温度がリクエストに含まれることを検証する。
func TestAnthropicClient_SendsTemperature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if got, ok := body["temperature"]; !ok || got != float64(0) {
			t.Errorf("temperature = %v (present=%v), want 0", got, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_02",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "ok"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer server.Close()

	zero := 0.0
	c := NewAnthropicClient("test-key", "claude-test", option.WithBaseURL(server.URL))
	if _, err := c.Complete(context.Background(), Request{Prompt: "judge", Temperature: &zero}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnthropicClient_StatusError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer server.Close()

	c := NewAnthropicClient("test-key", "claude-test", option.WithBaseURL(server.URL))
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})

	var sErr *StatusError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if sErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", sErr.StatusCode)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls)
	}
}
