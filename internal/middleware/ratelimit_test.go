package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	var buf bytes.Buffer
	rl := NewRateLimiter(cfg, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func requestAs(agentID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/contents", nil)
	if agentID != "" {
		req = req.WithContext(ContextWithAgentID(req.Context(), agentID))
	}
	return req
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig(120)
	if cfg.Rate != 2 {
		t.Errorf("Rate = %v, want 2", cfg.Rate)
	}
	if cfg.Burst != 120 {
		t.Errorf("Burst = %d, want 120", cfg.Burst)
	}
	if cfg.IPFactor != 4 {
		t.Errorf("IPFactor = %d, want 4", cfg.IPFactor)
	}
	if DefaultRateLimiterConfig(0).Burst != 120 {
		t.Error("non-positive perMinute should fall back to 120")
	}
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 2, Burst: 5, CleanupInterval: time.Minute})

	calls := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := range 5 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("agent-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	if calls != 5 {
		t.Errorf("handler call count = %d, want 5", calls)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.5, Burst: 2, CleanupInterval: time.Minute})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("agent-limited"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("agent-limited"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", body.Code)
	}
}

// TestRateLimitMiddleware_IndependentPerAgent はエージェントごとに独立して制限されることを検証する。
func TestRateLimitMiddleware_IndependentPerAgent(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.1, Burst: 1, CleanupInterval: time.Minute, IPFactor: 4})
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("agent-a"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("agent-a"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("agent-a second status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("agent-b"))
	if w.Code != http.StatusOK {
		t.Errorf("agent-b status = %d, want 200", w.Code)
	}
	// 接続元IP 1件とエージェント2件
	if rl.LimiterCount() != 3 {
		t.Errorf("LimiterCount() = %d, want 3", rl.LimiterCount())
	}
}

// TestRateLimitMiddleware_RotatingAgentIDsLimitedByIP はX-Agent-IDを毎回変えても
// 接続元IPの上限で制限されることを検証する。
func TestRateLimitMiddleware_RotatingAgentIDsLimitedByIP(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.1, Burst: 1, CleanupInterval: time.Minute, IPFactor: 3})
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var allowed, limited int
	for i := range 6 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(fmt.Sprintf("rotating-%d", i)))
		switch w.Code {
		case http.StatusOK:
			allowed++
		case http.StatusTooManyRequests:
			limited++
		default:
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	if allowed != 3 || limited != 3 {
		t.Errorf("allowed/limited = %d/%d, want 3/3", allowed, limited)
	}
}

// TestRateLimitMiddleware_SeparateIPsIndependent は接続元IPが異なれば独立して制限されることを検証する。
func TestRateLimitMiddleware_SeparateIPsIndependent(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.1, Burst: 1, CleanupInterval: time.Minute})
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, addr := range []string{"192.0.2.1:1000", "192.0.2.2:1000"} {
		req := requestAs("")
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", addr, w.Code)
		}
	}
}

// TestRateLimitMiddleware_FallsBackToRemoteAddr はエージェントIDがない場合に接続元IPで制限されることを検証する。
func TestRateLimitMiddleware_FallsBackToRemoteAddr(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.1, Burst: 1, CleanupInterval: time.Minute})
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), requestAs(""))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(""))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	rl.getOrCreate("agent:old")
	rl.getOrCreate("agent:new")

	rl.mu.Lock()
	rl.limiters["agent:old"].lastAccess = time.Now().Add(-3 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	if rl.LimiterCount() != 1 {
		t.Errorf("LimiterCount() = %d, want 1", rl.LimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	rl := NewRateLimiter(DefaultRateLimiterConfig(60), slog.New(slog.NewJSONHandler(&buf, nil)))
	rl.Stop()
	rl.Stop()
}
