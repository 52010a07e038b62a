package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/hitoshi/agentskills/internal/config"
	"github.com/hitoshi/agentskills/internal/engagement"
	"github.com/hitoshi/agentskills/internal/evaluate"
	"github.com/hitoshi/agentskills/internal/generate"
	"github.com/hitoshi/agentskills/internal/llm"
	"github.com/hitoshi/agentskills/internal/metrics"
	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/pipeline"
	"github.com/hitoshi/agentskills/internal/repository"
	"github.com/hitoshi/agentskills/internal/security"
	"github.com/hitoshi/agentskills/internal/trend"
)

// repositoryLimit はTREND_SOURCE=db のときに1回の問い合わせで読み込む候補数の上限。
const repositoryLimit = 100

// services はパイプラインの3段階と、終了時に解放するリソースをまとめたもの。
type services struct {
	trends    *trend.Service
	generator *generate.Service
	evaluator *evaluate.Service
	pipeline  *pipeline.Pipeline
	closers   []func() error
}

// Close は保持しているリソースを解放する。
func (s *services) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("リソースの解放に失敗しました", slog.String("error", err.Error()))
		}
	}
}

// buildServices は設定に従ってトレンド取得・生成・判定の各サービスを組み立てる。
// dbはTREND_SOURCE=db の場合のみ使用する。
func buildServices(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector, db *sql.DB) (*services, error) {
	svc := &services{}

	source, err := buildTrendSource(cfg, logger, collector, db)
	if err != nil {
		return nil, err
	}

	trendOpts := []trend.Option{
		trend.WithMetrics(collector),
		trend.WithDefaultMaxAge(cfg.TrendMaxAge),
		trend.WithCacheTTL(cfg.FetchInterval),
	}
	if cfg.RedisURL != "" {
		cache, err := trend.NewRedisCacheFromURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		svc.closers = append(svc.closers, cache.Close)
		trendOpts = append(trendOpts, trend.WithCache(cache))
	} else if cfg.TrendCacheSize > 0 {
		cache, err := trend.NewMemoryCache(cfg.TrendCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		trendOpts = append(trendOpts, trend.WithCache(cache))
	}
	svc.trends = trend.NewService(source, logger, trendOpts...)

	provider, completer, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	genOpts := []generate.Option{
		generate.WithMetrics(collector),
		generate.WithSanitizer(security.NewTextSanitizer()),
	}
	if cfg.LLMProvider != config.LLMProviderTemplate && cfg.LLMRatePerMinute > 0 {
		genOpts = append(genOpts, generate.WithLimiter(rate.NewLimiter(rate.Limit(float64(cfg.LLMRatePerMinute)/60), 1)))
	}
	svc.generator = generate.NewService(provider, logger, genOpts...)

	policy := buildPolicy(cfg)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid judge policy: %w", err)
	}
	svc.evaluator = evaluate.NewService(buildJudge(cfg, completer, policy), logger,
		evaluate.WithPolicy(policy),
		evaluate.WithMetrics(collector),
	)

	svc.pipeline = pipeline.New(svc.trends, svc.generator, svc.evaluator, logger)
	return svc, nil
}

// buildTrendSource はTREND_SOURCEに応じた取得元を返す。
func buildTrendSource(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector, db *sql.DB) (trend.Source, error) {
	switch cfg.TrendSource {
	case config.TrendSourceDB:
		if db == nil {
			return nil, fmt.Errorf("TREND_SOURCE=db requires a database connection")
		}
		return trend.NewRepositorySource(repository.NewPostgresCandidateRepo(db), repositoryLimit), nil
	case config.TrendSourceStatic:
		return newDemoSource(time.Now), nil
	default:
		sources, err := buildCatalogSources(cfg, logger, collector)
		if err != nil {
			return nil, err
		}
		routes := make([]trend.Route, 0, len(sources))
		for i, s := range sources {
			routes = append(routes, trend.Route{
				Platform: cfg.Sources[i].Platform,
				Niche:    cfg.Sources[i].Niche,
				Source:   s,
			})
		}
		return trend.NewMultiSource(logger, collector, cfg.FetchMaxConcurrent, routes...), nil
	}
}

// buildCatalogSources はカタログの各エントリからフィードまたはHTMLの取得元を生成する。
// 戻り値はcfg.Sourcesと同じ順序で並ぶ。
func buildCatalogSources(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) ([]trend.Source, error) {
	guard := security.NewURLGuard()
	fetcher := trend.NewPageFetcher(guard.NewSafeClient(cfg.FetchTimeout), guard, cfg.FetchMaxSize, collector)
	scorer := buildScorer(cfg, logger)
	sanitizer := security.NewTextSanitizer()

	sources := make([]trend.Source, 0, len(cfg.Sources))
	for _, entry := range cfg.Sources {
		s, err := trend.NewCatalogSource(sourceDef(entry), fetcher, scorer, sanitizer, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build source %q: %w", entry.Name, err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func sourceDef(e config.SourceEntry) trend.SourceDef {
	return trend.SourceDef{
		Name:          e.Name,
		Kind:          trend.SourceKind(e.Kind),
		URL:           e.URL,
		Platform:      e.Platform,
		Niche:         e.Niche,
		Category:      e.Category,
		ItemSelector:  e.Selectors.Item,
		TitleSelector: e.Selectors.Title,
		LinkSelector:  e.Selectors.Link,
	}
}

// buildScorer はHATEBU_ENABLEDの場合にはてなブックマーク数を使うScorerを返す。
func buildScorer(cfg *config.Config, logger *slog.Logger) *engagement.Scorer {
	var counter engagement.BookmarkCounter
	if cfg.HatebuEnabled {
		counter = engagement.NewHatenaClient(&http.Client{Timeout: cfg.FetchTimeout}, logger)
	}
	return engagement.NewScorer(counter, engagement.DefaultSaturation, logger)
}

// buildProvider は生成プロバイダと、LLM判定でも共有するCompleterを返す。
// テンプレート生成の場合Completerはnilとなる。
func buildProvider(cfg *config.Config) (generate.Provider, llm.Completer, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderTemplate:
		return generate.NewTemplateProvider(), nil, nil
	case config.LLMProviderOpenAI:
		endpoint := cfg.LLMEndpoint
		if endpoint == "" {
			endpoint = llm.DefaultOpenAIEndpoint
		}
		client := llm.NewOpenAIClient(endpoint, cfg.LLMAPIKey, cfg.LLMModel, &http.Client{Timeout: 60 * time.Second})
		return generate.NewLLMProvider(llm.ProviderOpenAI, client), client, nil
	case config.LLMProviderAnthropic:
		var opts []option.RequestOption
		if cfg.LLMEndpoint != "" {
			opts = append(opts, option.WithBaseURL(cfg.LLMEndpoint))
		}
		client := llm.NewAnthropicClient(cfg.LLMAPIKey, cfg.LLMModel, opts...)
		return generate.NewLLMProvider(llm.ProviderAnthropic, client), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func buildPolicy(cfg *config.Config) evaluate.Policy {
	policy := evaluate.DefaultPolicy()
	policy.ApproveAt = cfg.JudgeApproveAt
	policy.RejectBelow = cfg.JudgeRejectBelow
	policy.MinConfidence = cfg.JudgeMinConfidence
	return policy
}

// buildJudge はJUDGE_PROVIDERに応じた判定器を返す。
// LLM判定はJUDGE_SAMPLES回の合議で結論を出す。
func buildJudge(cfg *config.Config, completer llm.Completer, policy evaluate.Policy) evaluate.Judge {
	if cfg.JudgeProvider == config.JudgeProviderLLM && completer != nil {
		return evaluate.NewConsensusJudge(evaluate.NewLLMJudge(cfg.LLMProvider, completer), cfg.JudgeSamples, policy)
	}
	return evaluate.NewHeuristicJudge(cfg.BannedTerms...)
}

// demoSource はオフライン動作確認用の固定トピックを返す取得元。
// 呼び出しのたびに取得時刻を現在時刻基準で付け直すため、常に鮮度条件を満たす。
type demoSource struct {
	now func() time.Time
}

func newDemoSource(now func() time.Time) *demoSource {
	return &demoSource{now: now}
}

type demoTopic struct {
	name     string
	category model.Category
	score    float64
	age      time.Duration
}

var demoTopics = map[string][]demoTopic{
	"fashion": {
		{"秋のレイヤードコーデ", model.CategoryFashion, 0.92, 30 * time.Minute},
		{"サステナブル素材のスニーカー", model.CategoryFashion, 0.81, 2 * time.Hour},
		{"ヴィンテージデニムの再評価", model.CategoryFashion, 0.67, 5 * time.Hour},
	},
	"tech": {
		{"ローカルLLMの省電力推論", model.CategoryTech, 0.9, time.Hour},
		{"Go 1.25の新機能", model.CategoryTech, 0.78, 3 * time.Hour},
		{"パスキー導入事例", model.CategoryTech, 0.6, 6 * time.Hour},
	},
}

// Name はSourceを実装する。
func (d *demoSource) Name() string { return "demo" }

// Candidates はSourceを実装する。未知のニッチにはotherカテゴリの汎用トピックを返す。
func (d *demoSource) Candidates(ctx context.Context, q trend.Query) ([]model.TrendCandidate, error) {
	topics, ok := demoTopics[strings.ToLower(strings.TrimSpace(q.Niche))]
	if !ok {
		topics = []demoTopic{
			{q.Niche + "の最新動向", model.CategoryOther, 0.7, time.Hour},
			{q.Niche + "の話題まとめ", model.CategoryOther, 0.5, 4 * time.Hour},
		}
	}
	return trend.NewStaticSource(d.Name(), d.stamp(q, topics)...).Candidates(ctx, q)
}

func (d *demoSource) stamp(q trend.Query, topics []demoTopic) []model.TrendCandidate {
	now := d.now()
	out := make([]model.TrendCandidate, 0, len(topics))
	for i, t := range topics {
		out = append(out, model.TrendCandidate{
			Platform:        q.Platform,
			Niche:           q.Niche,
			Name:            t.name,
			Category:        string(t.category),
			EngagementScore: t.score,
			SourceURL:       fmt.Sprintf("https://example.com/demo/%d", i+1),
			SourceName:      d.Name(),
			FetchedAt:       now.Add(-t.age),
		})
	}
	return out
}
