package trend

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

const (
	// DefaultMaxAge はトレンドの鮮度の既定値。
	DefaultMaxAge = 8 * time.Hour
	// MaxTopics は1回の取得で返す最大トピック数。
	MaxTopics = 10
	// DefaultCacheTTL は取得結果をキャッシュする期間の既定値。
	DefaultCacheTTL = 15 * time.Minute
)

// Service はトレンドトピックを取得するサービス。
// 呼び出し間で状態を持たないため、複数goroutineから同時に使用できる。
type Service struct {
	source   Source
	cache    Cache
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time
	maxAge   time.Duration
	cacheTTL time.Duration
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithCache は取得結果のキャッシュを設定する。
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultMaxAge は呼び出し時に鮮度の指定がない場合の既定値を設定する。
// 0以下の場合はDefaultMaxAgeのままとする。
func WithDefaultMaxAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithCacheTTL は取得結果をキャッシュする期間を設定する。
// 実際の期間はmax_ageを超えない。0以下の場合はDefaultCacheTTLのままとする。
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// NewService はServiceを生成する。
func NewService(source Source, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		source:   source,
		logger:   logger,
		metrics:  nopMetrics{},
		now:      time.Now,
		maxAge:   DefaultMaxAge,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fetchOptions struct {
	maxAge time.Duration
}

// FetchOption はFetchTrendsの呼び出しごとの設定を変更する。
type FetchOption func(*fetchOptions)

// WithMaxAge はトレンドの鮮度を指定する。
func WithMaxAge(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.maxAge = d }
}

// maxDuration はtime.Durationで表せる最大値。
const maxDuration = time.Duration(math.MaxInt64)

// WithMaxAgeHours はトレンドの鮮度を時間単位で指定する。
// time.Durationで表せない大きな値は最大値に丸める。NaNと負の無限大は不正な値として扱う。
func WithMaxAgeHours(hours float64) FetchOption {
	return func(o *fetchOptions) {
		switch {
		case math.IsNaN(hours) || math.IsInf(hours, -1):
			o.maxAge = 0
		case hours >= float64(maxDuration)/float64(time.Hour):
			o.maxAge = maxDuration
		default:
			o.maxAge = time.Duration(hours * float64(time.Hour))
		}
	}
}

// FetchTrends はプラットフォームとニッチのトレンドを取得する。
//
// fetched_atが(現在時刻 - max_age)以上のトピックのみを残し、エンゲージメントスコアの降順に
// 並べて最大MaxTopics件を返す。同スコアのトピックは取得元の順序を保つ。
// 不正な候補は除外してログに記録する。取得元の障害は*model.FetchErrorとなり、
// 空の結果として返すことはない。
func (s *Service) FetchTrends(ctx context.Context, agentID, platform, niche string, opts ...FetchOption) (*model.TrendResult, error) {
	o := fetchOptions{maxAge: s.maxAge}
	for _, opt := range opts {
		opt(&o)
	}

	agentID = strings.TrimSpace(agentID)
	platform = model.NormalizePlatform(platform)
	niche = strings.TrimSpace(niche)
	switch {
	case agentID == "":
		return nil, model.NewValidationError("agent_id", nil, "must not be empty")
	case platform == "":
		return nil, model.NewValidationError("platform", nil, "must not be empty")
	case niche == "":
		return nil, model.NewValidationError("niche", nil, "must not be empty")
	case o.maxAge <= 0:
		return nil, model.NewValidationError("max_age_hours", o.maxAge.Hours(), "must be greater than zero")
	}

	start := time.Now()
	defer func() { s.metrics.RecordStageLatency("trend", time.Since(start)) }()

	key := CacheKey{AgentID: agentID, Platform: platform, Niche: niche, MaxAge: o.maxAge}
	if cached, ok := s.lookupCache(ctx, key); ok {
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, &model.FetchError{Op: "context", Err: err}
	}

	now := s.now()
	cutoff := now.Add(-o.maxAge)

	candidates, err := s.source.Candidates(ctx, Query{Platform: platform, Niche: niche, Since: cutoff})
	if err != nil {
		s.metrics.RecordFetchFailure(s.source.Name())
		s.logger.Error("トレンドの取得に失敗しました",
			slog.String("agent_id", agentID),
			slog.String("platform", platform),
			slog.String("niche", niche),
			slog.String("source", s.source.Name()),
			slog.String("error", err.Error()),
		)
		return nil, &model.FetchError{Op: "source " + s.source.Name(), Err: err}
	}

	topics := s.rank(agentID, candidates, cutoff)

	result, err := model.NewTrendResult(agentID, platform, now, topics, len(topics))
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTrendsFetched(platform, len(topics), len(candidates)-len(topics))
	s.logger.Info("トレンドを取得しました",
		slog.String("agent_id", agentID),
		slog.String("platform", platform),
		slog.String("niche", niche),
		slog.Int("candidates", len(candidates)),
		slog.Int("topic_count", len(topics)),
		slog.Duration("max_age", o.maxAge),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, min(s.cacheTTL, o.maxAge)); err != nil {
			s.logger.Warn("トレンドキャッシュの書き込みに失敗しました",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return result, nil
}

// rank は候補を検証し、鮮度フィルタ・降順ソート・重複除去・件数制限を適用する。
func (s *Service) rank(agentID string, candidates []model.TrendCandidate, cutoff time.Time) []model.TrendTopic {
	fresh := make([]model.TrendTopic, 0, len(candidates))
	for _, c := range candidates {
		topic, err := c.ToTopic()
		if err != nil {
			s.logger.Warn("不正なトレンド候補を除外しました",
				slog.String("agent_id", agentID),
				slog.String("name", c.Name),
				slog.String("source", c.SourceName),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !topic.FreshAt(cutoff) {
			continue
		}
		fresh = append(fresh, topic)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].EngagementScore() > fresh[j].EngagementScore()
	})

	// 複数の取得元に同じ見出しがある場合はスコアの高い方を残す
	topics := make([]model.TrendTopic, 0, min(len(fresh), MaxTopics))
	seen := make(map[string]struct{}, len(fresh))
	for _, t := range fresh {
		name := strings.ToLower(t.Name())
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		topics = append(topics, t)
		if len(topics) == MaxTopics {
			break
		}
	}
	return topics
}

// lookupCache はキャッシュを参照し、現在時刻で鮮度を再検証する。
// 1件でも鮮度切れのトピックを含むエントリは使わずに再取得させる。
// キャッシュの障害はミスとして扱う。
func (s *Service) lookupCache(ctx context.Context, key CacheKey) (*model.TrendResult, bool) {
	if s.cache == nil {
		return nil, false
	}

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("トレンドキャッシュの読み出しに失敗しました",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}
	if !ok {
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	cutoff := s.now().Add(-key.MaxAge)
	for _, t := range cached.Topics() {
		if !t.FreshAt(cutoff) {
			s.metrics.RecordCacheLookup(false)
			return nil, false
		}
	}

	s.metrics.RecordCacheLookup(true)
	return cached, true
}
