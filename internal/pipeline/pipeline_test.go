package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/agentskills/internal/evaluate"
	"github.com/hitoshi/agentskills/internal/generate"
	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/trend"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func candidate(name string, score float64, age time.Duration) model.TrendCandidate {
	return model.TrendCandidate{
		Name:            name,
		Category:        "fashion",
		EngagementScore: score,
		SourceURL:       "https://example.com/" + name,
		FetchedAt:       baseTime.Add(-age),
	}
}

func newPipeline(src trend.Source) *Pipeline {
	logger := newTestLogger()
	clock := func() time.Time { return baseTime }
	return New(
		trend.NewService(src, logger, trend.WithClock(clock)),
		generate.NewService(generate.NewTemplateProvider(), logger, generate.WithClock(clock)),
		evaluate.NewService(evaluate.NewHeuristicJudge(), logger, evaluate.WithClock(clock)),
		logger,
	)
}

// TestRun_EndToEnd はオフラインの部品だけで3段階を通して実行できることを検証する。
func TestRun_EndToEnd(t *testing.T) {
	src := trend.NewStaticSource("static",
		candidate("Street Style Week", 0.4, time.Hour),
		candidate("Ethiopian Fashion", 0.9, 2*time.Hour),
		candidate("Old Runway", 0.99, 20*time.Hour),
	)

	result, err := newPipeline(src).Run(context.Background(), "test-agent", "twitter", "fashion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Trends.TopicCount() != 2 {
		t.Errorf("TopicCount() = %d, want 2", result.Trends.TopicCount())
	}
	if result.Content.Topic().Name != "Ethiopian Fashion" {
		t.Errorf("content topic = %q, want top trend", result.Content.Topic().Name)
	}
	if result.Content.Topic().Category != model.CategoryFashion {
		t.Errorf("content category = %q", result.Content.Topic().Category)
	}
	if result.Decision.ContentID() != result.Content.ID() {
		t.Errorf("decision content id = %q, want %q", result.Decision.ContentID(), result.Content.ID())
	}
	if !result.Decision.Verdict().Valid() {
		t.Errorf("verdict %q outside closed set", result.Decision.Verdict())
	}
}

func TestRun_NoTrends(t *testing.T) {
	src := trend.NewStaticSource("static", candidate("Old", 0.9, 30*time.Hour))

	result, err := newPipeline(src).Run(context.Background(), "agent", "twitter", "fashion")
	if !errors.Is(err, model.ErrNoTrends) {
		t.Fatalf("err = %v, want ErrNoTrends", err)
	}
	var fErr *model.FetchError
	if errors.As(err, &fErr) {
		t.Error("ErrNoTrends should be distinct from FetchError")
	}
	if result.Trends == nil || result.Trends.TopicCount() != 0 {
		t.Error("empty trend result should be returned alongside ErrNoTrends")
	}
	if result.Content != nil || result.Decision != nil {
		t.Error("later stages should not run")
	}
}

// stubGenerator はGeneratorのテスト用モック。
type stubGenerator struct {
	generateFn func(ctx context.Context, agentID string, topic model.TopicRef, platform string) (*model.GeneratedContent, error)
}

func (s stubGenerator) Generate(ctx context.Context, agentID string, topic model.TopicRef, platform string) (*model.GeneratedContent, error) {
	return s.generateFn(ctx, agentID, topic, platform)
}

func TestRun_StageErrorsPropagate(t *testing.T) {
	logger := newTestLogger()
	clock := func() time.Time { return baseTime }
	src := trend.NewStaticSource("static", candidate("Ethiopian Fashion", 0.9, time.Hour))
	genErr := &model.GenerationError{Op: "provider mock", Err: errors.New("down")}

	p := New(
		trend.NewService(src, logger, trend.WithClock(clock)),
		stubGenerator{generateFn: func(context.Context, string, model.TopicRef, string) (*model.GeneratedContent, error) {
			return nil, genErr
		}},
		evaluate.NewService(evaluate.NewHeuristicJudge(), logger),
		logger,
	)

	result, err := p.Run(context.Background(), "agent", "twitter", "fashion")
	if !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want generation error", err)
	}
	if result.Trends == nil {
		t.Error("trend result should be kept")
	}
	if result.Decision != nil {
		t.Error("evaluation should not run")
	}
}

func TestRun_ValidationError(t *testing.T) {
	src := trend.NewStaticSource("static")
	_, err := newPipeline(src).Run(context.Background(), "", "twitter", "fashion")
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
