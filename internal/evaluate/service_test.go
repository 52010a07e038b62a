package evaluate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// mockJudge はJudgeのテスト用モック。
type mockJudge struct {
	calls    atomic.Int32
	assessFn func(ctx context.Context, in Input) (Assessment, error)
}

func (m *mockJudge) Name() string { return "mock" }

func (m *mockJudge) Assess(ctx context.Context, in Input) (Assessment, error) {
	m.calls.Add(1)
	return m.assessFn(ctx, in)
}

func judgeReturning(a Assessment) *mockJudge {
	return &mockJudge{assessFn: func(context.Context, Input) (Assessment, error) { return a, nil }}
}

// mockMetrics はMetricsのテスト用モック。
type mockMetrics struct {
	mu       sync.Mutex
	verdicts []string
	failures int
}

func (m *mockMetrics) RecordVerdict(v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, v)
}

func (m *mockMetrics) RecordEvaluationFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *mockMetrics) RecordStageLatency(string, time.Duration) {}

func newTestService(j Judge, opts ...Option) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	opts = append([]Option{WithClock(func() time.Time { return baseTime })}, opts...)
	return NewService(j, logger, opts...)
}

func TestEvaluate_Approve(t *testing.T) {
	m := &mockMetrics{}
	svc := newTestService(judgeReturning(Assessment{Score: 0.9, Confidence: 0.85, Rationale: "on-brand"}), WithMetrics(m))

	d, err := svc.Evaluate(context.Background(), "content-1", "A lovely post about the runway", "twitter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Verdict() != model.VerdictApprove {
		t.Errorf("Verdict() = %s, want APPROVE", d.Verdict())
	}
	if d.ContentID() != "content-1" || d.Judge() != "mock" {
		t.Errorf("decision = %+v", d)
	}
	if d.Score() != 0.9 || d.Confidence() != 0.85 {
		t.Errorf("score/confidence = %v/%v", d.Score(), d.Confidence())
	}
	if !d.DecidedAt().Equal(baseTime) {
		t.Errorf("DecidedAt() = %v", d.DecidedAt())
	}
	if len(m.verdicts) != 1 || m.verdicts[0] != "APPROVE" {
		t.Errorf("verdicts = %v", m.verdicts)
	}
}

// TestEvaluate_EmptyTextIsReview は空の本文が判定器を呼ばずにREVIEWとなることを検証する。
func TestEvaluate_EmptyTextIsReview(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		j := judgeReturning(Assessment{Score: 1, Confidence: 1})
		svc := newTestService(j)

		d, err := svc.Evaluate(context.Background(), "content-1", text, "twitter")
		if err != nil {
			t.Fatalf("text %q: unexpected error: %v", text, err)
		}
		if d.Verdict() != model.VerdictReview {
			t.Errorf("text %q: Verdict() = %s, want REVIEW", text, d.Verdict())
		}
		if j.calls.Load() != 0 {
			t.Errorf("text %q: judge called %d times", text, j.calls.Load())
		}
		if flags := d.Flags(); len(flags) != 1 || flags[0] != FlagEmptyText {
			t.Errorf("Flags() = %v", flags)
		}
	}
}

func TestEvaluate_MalformedInput(t *testing.T) {
	svc := newTestService(judgeReturning(Assessment{Score: 1, Confidence: 1}))

	tests := []struct {
		name, contentID, platform, field string
	}{
		{"missing content id", " ", "twitter", "content_id"},
		{"missing platform", "content-1", "", "platform"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Evaluate(context.Background(), tt.contentID, "text", tt.platform)
			var eErr *model.EvaluationError
			if !errors.As(err, &eErr) {
				t.Fatalf("expected EvaluationError, got %v", err)
			}
			var vErr *model.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Errorf("wrapped ValidationError = %v, want field %q", vErr, tt.field)
			}
		})
	}
}

func TestEvaluate_JudgeFailure(t *testing.T) {
	upstream := errors.New("judge unavailable")
	m := &mockMetrics{}
	svc := newTestService(&mockJudge{assessFn: func(context.Context, Input) (Assessment, error) {
		return Assessment{}, upstream
	}}, WithMetrics(m))

	d, err := svc.Evaluate(context.Background(), "content-1", "some text here", "twitter")
	if d != nil {
		t.Error("decision should be nil on failure")
	}
	var eErr *model.EvaluationError
	if !errors.As(err, &eErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if !errors.Is(err, upstream) {
		t.Error("EvaluationError should wrap the judge error")
	}
	if m.failures != 1 {
		t.Errorf("failures = %d, want 1", m.failures)
	}
}

func TestEvaluate_CancelledContext(t *testing.T) {
	j := judgeReturning(Assessment{Score: 1, Confidence: 1})
	svc := newTestService(j)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Evaluate(ctx, "content-1", "some text here", "twitter")
	var eErr *model.EvaluationError
	if !errors.As(err, &eErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if j.calls.Load() != 0 {
		t.Errorf("judge calls = %d, want 0", j.calls.Load())
	}
}

// TestEvaluate_OutOfRangeAssessment は範囲外の評価値がREVIEWとして記録されることを検証する。
func TestEvaluate_OutOfRangeAssessment(t *testing.T) {
	svc := newTestService(judgeReturning(Assessment{Score: math.NaN(), Confidence: 1.7}))

	d, err := svc.Evaluate(context.Background(), "content-1", "some text here", "twitter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Verdict() != model.VerdictReview {
		t.Errorf("Verdict() = %s, want REVIEW", d.Verdict())
	}
	if d.Score() != 0 || d.Confidence() != 0 {
		t.Errorf("score/confidence = %v/%v, want 0/0", d.Score(), d.Confidence())
	}
}

func TestEvaluate_CustomPolicy(t *testing.T) {
	strict := Policy{ApproveAt: 0.95, RejectBelow: 0.5, MinConfidence: 0.9}
	svc := newTestService(judgeReturning(Assessment{Score: 0.9, Confidence: 0.95}), WithPolicy(strict))

	d, err := svc.Evaluate(context.Background(), "content-1", "some text here", "twitter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Verdict() != model.VerdictReview {
		t.Errorf("Verdict() = %s, want REVIEW", d.Verdict())
	}
}

// TestEvaluate_HeuristicAlwaysClosedSet は判定器の出力に関わらず3値のいずれかが返ることを検証する。
func TestEvaluate_HeuristicAlwaysClosedSet(t *testing.T) {
	svc := newTestService(NewHeuristicJudge())
	texts := []string{
		"",
		"ok",
		"A calm, friendly post about the weekend market.",
		"FREE MONEY https://a.example https://b.example https://c.example",
		"!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!",
	}
	for _, text := range texts {
		d, err := svc.Evaluate(context.Background(), "content-1", text, "threads")
		if err != nil {
			t.Fatalf("text %q: unexpected error: %v", text, err)
		}
		if !d.Verdict().Valid() {
			t.Errorf("text %q: verdict %q outside closed set", text, d.Verdict())
		}
	}
}
