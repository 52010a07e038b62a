package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/agentskills/internal/config"
	"github.com/hitoshi/agentskills/internal/evaluate"
	"github.com/hitoshi/agentskills/internal/metrics"
	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/trend"
)

func testConfig() *config.Config {
	return &config.Config{
		TrendSource:        config.TrendSourceStatic,
		TrendMaxAge:        8 * time.Hour,
		TrendCacheSize:     16,
		FetchTimeout:       time.Second,
		FetchMaxSize:       1 << 20,
		FetchMaxConcurrent: 2,
		LLMProvider:        config.LLMProviderTemplate,
		LLMRatePerMinute:   60,
		JudgeProvider:      config.JudgeProviderHeuristic,
		JudgeSamples:       3,
		JudgeApproveAt:     0.75,
		JudgeRejectBelow:   0.35,
		JudgeMinConfidence: 0.6,
		Sources: []config.SourceEntry{
			{Name: "tech-feed", Kind: "feed", URL: "https://example.com/rss", Platform: "twitter", Niche: "tech"},
			{Name: "fashion-page", Kind: "html", URL: "https://example.com/news", Platform: "instagram", Niche: "fashion",
				Selectors: config.SelectorsConfig{Item: "article", Title: "h2", Link: "a"}},
		},
	}
}

func testWiringLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func newTestCollector() *metrics.Collector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

func TestBuildServices_Static(t *testing.T) {
	svc, err := buildServices(testConfig(), testWiringLogger(), newTestCollector(), nil)
	if err != nil {
		t.Fatalf("buildServices failed: %v", err)
	}
	defer svc.Close()

	result, err := svc.pipeline.Run(context.Background(), "agent", "twitter", "tech")
	if err != nil {
		t.Fatalf("pipeline.Run failed: %v", err)
	}
	if result.Trends.TopicCount() != 3 {
		t.Errorf("TopicCount() = %d, want 3", result.Trends.TopicCount())
	}
	if result.Content == nil || result.Decision == nil {
		t.Fatal("pipeline should produce content and a decision")
	}
}

func TestBuildTrendSource_FeedsRoutesCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.TrendSource = config.TrendSourceFeeds

	src, err := buildTrendSource(cfg, testWiringLogger(), newTestCollector(), nil)
	if err != nil {
		t.Fatalf("buildTrendSource failed: %v", err)
	}
	if _, ok := src.(*trend.MultiSource); !ok {
		t.Errorf("source = %T, want *trend.MultiSource", src)
	}
}

func TestBuildTrendSource_DBWithoutConnection(t *testing.T) {
	cfg := testConfig()
	cfg.TrendSource = config.TrendSourceDB

	if _, err := buildTrendSource(cfg, testWiringLogger(), newTestCollector(), nil); err == nil {
		t.Fatal("expected error when db is nil")
	}
}

func TestBuildCatalogSources_RejectsInvalidHTMLSource(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = []config.SourceEntry{
		{Name: "broken", Kind: "html", URL: "https://example.com", Platform: "twitter", Niche: "tech"},
	}

	_, err := buildCatalogSources(cfg, testWiringLogger(), newTestCollector())
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected error naming the source, got %v", err)
	}
}

func TestBuildJudge(t *testing.T) {
	cfg := testConfig()
	policy := buildPolicy(cfg)

	if _, ok := buildJudge(cfg, nil, policy).(*evaluate.HeuristicJudge); !ok {
		t.Error("heuristic provider should build HeuristicJudge")
	}

	cfg.LLMProvider = config.LLMProviderOpenAI
	cfg.LLMAPIKey = "test-key"
	cfg.JudgeProvider = config.JudgeProviderLLM
	_, completer, err := buildProvider(cfg)
	if err != nil {
		t.Fatalf("buildProvider failed: %v", err)
	}
	if completer == nil {
		t.Fatal("openai provider should expose a completer")
	}
	if _, ok := buildJudge(cfg, completer, policy).(*evaluate.ConsensusJudge); !ok {
		t.Error("llm judge should be wrapped in ConsensusJudge")
	}
}

func TestBuildProvider_Anthropic(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = config.LLMProviderAnthropic
	cfg.LLMAPIKey = "test-key"
	cfg.LLMEndpoint = "http://127.0.0.1:1"

	provider, completer, err := buildProvider(cfg)
	if err != nil {
		t.Fatalf("buildProvider failed: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("provider.Name() = %q, want anthropic", provider.Name())
	}
	if completer == nil {
		t.Error("anthropic provider should expose a completer")
	}
}

func TestBuildServices_InvalidPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.JudgeApproveAt = 0.2
	cfg.JudgeRejectBelow = 0.5

	if _, err := buildServices(cfg, testWiringLogger(), newTestCollector(), nil); err == nil {
		t.Fatal("expected error when reject_below exceeds approve_at")
	}
}

func TestBuildServices_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	svc, err := buildServices(cfg, testWiringLogger(), newTestCollector(), nil)
	if err != nil {
		t.Fatalf("buildServices failed: %v", err)
	}
	defer svc.Close()

	if _, err := svc.trends.FetchTrends(context.Background(), "agent", "twitter", "fashion"); err != nil {
		t.Fatalf("FetchTrends failed: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Error("result should be cached in redis")
	}
}

func TestDemoSource_StampsRelativeToNow(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	src := newDemoSource(func() time.Time { return now })

	cands, err := src.Candidates(context.Background(), trend.Query{Platform: "twitter", Niche: "Fashion"})
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("len(cands) = %d, want 3", len(cands))
	}
	for _, c := range cands {
		if c.FetchedAt.After(now) || now.Sub(c.FetchedAt) > 8*time.Hour {
			t.Errorf("candidate %q fetched_at %v is outside the freshness window", c.Name, c.FetchedAt)
		}
	}

	other, err := src.Candidates(context.Background(), trend.Query{Platform: "twitter", Niche: "gardening"})
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(other) != 2 {
		t.Fatalf("len(other) = %d, want 2", len(other))
	}
	if other[0].Category != string(model.CategoryOther) {
		t.Errorf("Category = %q, want other", other[0].Category)
	}
}
