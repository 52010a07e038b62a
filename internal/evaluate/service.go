package evaluate

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

// FlagEmptyText は本文が空のため判定器を呼ばなかったことを表すフラグ。
const FlagEmptyText = "empty_text"

// Metrics はコンテンツ判定で記録するメトリクスのインターフェース。
type Metrics interface {
	RecordVerdict(verdict string)
	RecordEvaluationFailure()
	RecordStageLatency(stage string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordVerdict(string) {}
func (nopMetrics) RecordEvaluationFailure() {}
func (nopMetrics) RecordStageLatency(string, time.Duration) {}

// Service はコンテンツを判定するサービス。
// 呼び出し間で状態を持たないため、複数goroutineから同時に使用できる。
type Service struct {
	judge   Judge
	policy  Policy
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithPolicy は判定閾値を設定する。
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService はServiceを生成する。
func NewService(judge Judge, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		judge:   judge,
		policy:  DefaultPolicy(),
		logger:  logger,
		metrics: nopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate はコンテンツを判定してJudgeDecisionを返す。
// content_idやplatformが欠けた入力と判定器の障害は*model.EvaluationErrorとなる。
// 本文が空の場合は判定器を呼ばずにREVIEWを返す。
func (s *Service) Evaluate(ctx context.Context, contentID, text, platform string) (*model.JudgeDecision, error) {
	start := time.Now()
	defer func() { s.metrics.RecordStageLatency("evaluate", time.Since(start)) }()

	decision, err := s.evaluate(ctx, strings.TrimSpace(contentID), text, model.NormalizePlatform(platform))
	if err != nil {
		s.metrics.RecordEvaluationFailure()
		s.logger.Warn("コンテンツ判定に失敗しました",
			slog.String("content_id", contentID),
			slog.String("judge", s.judge.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordVerdict(string(decision.Verdict()))
	s.logger.Info("コンテンツを判定しました",
		slog.String("content_id", decision.ContentID()),
		slog.String("verdict", string(decision.Verdict())),
		slog.Float64("score", decision.Score()),
		slog.Float64("confidence", decision.Confidence()),
		slog.String("judge", decision.Judge()),
	)
	return decision, nil
}

func (s *Service) evaluate(ctx context.Context, contentID, text, platform string) (*model.JudgeDecision, error) {
	if contentID == "" {
		return nil, &model.EvaluationError{Op: "input", Err: model.NewValidationError("content_id", nil, "must not be empty")}
	}
	if platform == "" {
		return nil, &model.EvaluationError{Op: "input", Err: model.NewValidationError("platform", nil, "must not be empty")}
	}

	if strings.TrimSpace(text) == "" {
		return model.NewJudgeDecision(model.JudgeDecisionParams{
			ContentID:  contentID,
			Verdict:    string(model.VerdictReview),
			Score:      0,
			Confidence: 0,
			Rationale:  "insufficient signal: text is empty",
			Flags:      []string{FlagEmptyText},
			Judge:      "policy",
			DecidedAt:  s.now(),
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, &model.EvaluationError{Op: "context", Err: err}
	}

	a, err := s.judge.Assess(ctx, Input{ContentID: contentID, Text: text, Platform: platform})
	if err != nil {
		return nil, &model.EvaluationError{Op: "judge " + s.judge.Name(), Err: err}
	}

	verdict, reason := Decide(a, s.policy)
	rationale := reason
	if a.Rationale != "" && a.Rationale != reason {
		rationale = reason + ": " + a.Rationale
	}

	decision, err := model.NewJudgeDecision(model.JudgeDecisionParams{
		ContentID:  contentID,
		Verdict:    string(verdict),
		Score:      unitOrZero(a.Score),
		Confidence: unitOrZero(a.Confidence),
		Rationale:  rationale,
		Flags:      a.Flags,
		Judge:      s.judge.Name(),
		DecidedAt:  s.now(),
	})
	if err != nil {
		return nil, &model.EvaluationError{Op: "build", Err: err}
	}
	return decision, nil
}

// unitOrZero は範囲外やNaNの値を0として記録する。
// 判定自体はDecideがREVIEWに落としている。
func unitOrZero(v float64) float64 {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0
	}
	return v
}
