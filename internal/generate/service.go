package generate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/security"
)

// errEmptyDraft はサニタイズ後に本文が残らなかったことを表す。
var errEmptyDraft = errors.New("draft is empty after sanitizing")

// Sanitizer は下書きをプレーンテキストに正規化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Metrics はコンテンツ生成で記録するメトリクスのインターフェース。
type Metrics interface {
	RecordGeneration(provider string, ok bool)
	RecordStageLatency(stage string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordGeneration(string, bool) {}
func (nopMetrics) RecordStageLatency(string, time.Duration) {}

// Service は投稿候補を生成するサービス。
// 呼び出し間で状態を持たないため、複数goroutineから同時に使用できる。
type Service struct {
	provider  Provider
	sanitizer Sanitizer
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   Metrics
	now       func() time.Time
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithLimiter はプロバイダ呼び出し前に待機するレートリミッターを設定する。
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSanitizer はサニタイザーを差し替える。
func WithSanitizer(san Sanitizer) Option {
	return func(s *Service) { s.sanitizer = san }
}

// NewService はServiceを生成する。
func NewService(provider Provider, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		provider:  provider,
		sanitizer: security.NewTextSanitizer(),
		logger:    logger,
		metrics:   nopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate はトピックから投稿候補を1件生成する。
// 本文はHTMLを除去し、プラットフォームの最大文字数に収まるよう切り詰める。
// プロバイダの障害やキャンセルは*model.GenerationErrorとなり、代替の本文は返さない。
func (s *Service) Generate(ctx context.Context, agentID string, topic model.TopicRef, platform string) (*model.GeneratedContent, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, model.NewValidationError("agent_id", nil, "must not be empty")
	}
	topic.Name = strings.TrimSpace(topic.Name)
	if topic.Name == "" {
		return nil, model.NewValidationError("trend_topic", nil, "must not be empty")
	}
	platform = model.NormalizePlatform(platform)
	if platform == "" {
		return nil, model.NewValidationError("platform", nil, "must not be empty")
	}
	if topic.Category == "" {
		topic.Category = model.CategoryOther
	}
	if !topic.Category.Valid() {
		return nil, model.NewValidationError("trend_topic.category", topic.Category, "unknown category")
	}

	start := time.Now()
	defer func() { s.metrics.RecordStageLatency("generate", time.Since(start)) }()

	content, err := s.generate(ctx, agentID, topic, platform)
	if err != nil {
		s.metrics.RecordGeneration(s.provider.Name(), false)
		s.logger.Warn("コンテンツ生成に失敗しました",
			slog.String("agent_id", agentID),
			slog.String("platform", platform),
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordGeneration(s.provider.Name(), true)
	s.logger.Info("コンテンツを生成しました",
		slog.String("agent_id", agentID),
		slog.String("content_id", content.ID()),
		slog.String("platform", platform),
		slog.String("trend_topic", topic.Name),
		slog.String("provider", s.provider.Name()),
		slog.Int("chars", len([]rune(content.Text()))),
	)
	return content, nil
}

// GenerateFromName はトピック名の文字列のみから投稿候補を生成する。
func (s *Service) GenerateFromName(ctx context.Context, agentID, topicName, platform string) (*model.GeneratedContent, error) {
	return s.Generate(ctx, agentID, model.TopicRefFromName(topicName), platform)
}

func (s *Service) generate(ctx context.Context, agentID string, topic model.TopicRef, platform string) (*model.GeneratedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.GenerationError{Op: "context", Err: err}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &model.GenerationError{Op: "rate_limit", Err: err}
		}
	}

	limit := model.CharLimit(platform)
	draft, err := s.provider.Draft(ctx, DraftRequest{
		AgentID:  agentID,
		Topic:    topic,
		Platform: platform,
		MaxChars: limit,
	})
	if err != nil {
		return nil, &model.GenerationError{Op: "provider " + s.provider.Name(), Err: err}
	}

	text := security.TruncateRunes(s.sanitizer.Sanitize(draft.Text), limit)
	if strings.TrimSpace(text) == "" {
		return nil, &model.GenerationError{Op: "sanitize", Err: errEmptyDraft}
	}

	content, err := model.NewGeneratedContent(model.GeneratedContentParams{
		AgentID:     agentID,
		Text:        text,
		Platform:    platform,
		Topic:       topic,
		Provider:    s.provider.Name(),
		Model:       draft.Model,
		GeneratedAt: s.now(),
	})
	if err != nil {
		return nil, &model.GenerationError{Op: "build", Err: err}
	}
	return content, nil
}
