// Package pipeline はトレンド取得・コンテンツ生成・判定を1回分つなげて実行する。
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/trend"
)

// TrendFetcher はトレンド取得段階のインターフェース。
type TrendFetcher interface {
	FetchTrends(ctx context.Context, agentID, platform, niche string, opts ...trend.FetchOption) (*model.TrendResult, error)
}

// Generator はコンテンツ生成段階のインターフェース。
type Generator interface {
	Generate(ctx context.Context, agentID string, topic model.TopicRef, platform string) (*model.GeneratedContent, error)
}

// Evaluator はコンテンツ判定段階のインターフェース。
type Evaluator interface {
	Evaluate(ctx context.Context, contentID, text, platform string) (*model.JudgeDecision, error)
}

// Result は1回のパイプライン実行の結果。
// 途中の段階で失敗した場合、それまでの段階の結果だけが埋まる。
type Result struct {
	Trends   *model.TrendResult      `json:"trends"`
	Content  *model.GeneratedContent `json:"content"`
	Decision *model.JudgeDecision    `json:"decision"`
}

// Pipeline は3段階を順に呼び出す。各段階の間で状態は持たない。
type Pipeline struct {
	trends    TrendFetcher
	generator Generator
	evaluator Evaluator
	logger    *slog.Logger
}

// New はPipelineを生成する。
func New(trends TrendFetcher, generator Generator, evaluator Evaluator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		trends:    trends,
		generator: generator,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Run はトレンドを取得し、最上位のトピックからコンテンツを生成して判定する。
// 有効なトレンドが0件の場合はmodel.ErrNoTrendsを返す。
// 各段階のエラーはその段階のエラー種別のまま返す。
func (p *Pipeline) Run(ctx context.Context, agentID, platform, niche string, opts ...trend.FetchOption) (*Result, error) {
	start := time.Now()
	result := &Result{}

	trends, err := p.trends.FetchTrends(ctx, agentID, platform, niche, opts...)
	if err != nil {
		return result, err
	}
	result.Trends = trends

	top, ok := trends.Top()
	if !ok {
		p.logger.Info("有効なトレンドがないため生成をスキップしました",
			slog.String("agent_id", agentID),
			slog.String("platform", platform),
			slog.String("niche", niche),
		)
		return result, model.ErrNoTrends
	}

	content, err := p.generator.Generate(ctx, agentID, model.TopicRefFromTrend(top), platform)
	if err != nil {
		return result, err
	}
	result.Content = content

	decision, err := p.evaluator.Evaluate(ctx, content.ID(), content.Text(), content.Platform())
	if err != nil {
		return result, err
	}
	result.Decision = decision

	p.logger.Info("パイプラインを実行しました",
		slog.String("agent_id", agentID),
		slog.String("platform", content.Platform()),
		slog.String("trend_topic", top.Name()),
		slog.String("content_id", content.ID()),
		slog.String("verdict", string(decision.Verdict())),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}
