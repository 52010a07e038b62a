// Package collect はトレンド候補のバックグラウンド収集処理を提供する。
// 設定された取得元を定期的に巡回し、候補をtrend_candidatesに保存する。
package collect

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/trend"
)

// CandidateUpserter は候補の保存インターフェース。
type CandidateUpserter interface {
	UpsertBatch(ctx context.Context, candidates []*model.TrendCandidate) (int, error)
}

// Metrics は収集処理で記録するメトリクスのインターフェース。
type Metrics interface {
	RecordFetchFailure(source string)
	RecordCandidatesUpserted(count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordFetchFailure(string) {}
func (nopMetrics) RecordCandidatesUpserted(int) {}

// Target は1件の収集対象。取得元と問い合わせ条件の組。
type Target struct {
	Source trend.Source
	Query  trend.Query
}

// Stats は1回の収集サイクルの結果。
type Stats struct {
	Targets  int
	Failed   int
	Upserted int
}

// Collector は収集対象を巡回し、候補を保存する。
// semaphoreパターンで最大並列数を制御する。
// 失敗した取得元は再試行せず、次のサイクルで改めて取得する。
type Collector struct {
	targets        []Target
	repo           CandidateUpserter
	logger         *slog.Logger
	metrics        Metrics
	maxConcurrency int
}

// NewCollector はCollectorを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。metricsがnilの場合は記録しない。
func NewCollector(
	targets []Target,
	repo CandidateUpserter,
	logger *slog.Logger,
	metrics Metrics,
	maxConcurrency int,
) *Collector {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Collector{
		targets:        targets,
		repo:           repo,
		logger:         logger,
		metrics:        metrics,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔のティッカーで収集を実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("収集スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("targets", len(c.targets)),
		slog.Int("max_concurrency", c.maxConcurrency),
	)

	c.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("収集スケジューラを停止しました")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce は全ての収集対象を1回巡回する。
// 個々の取得元の失敗はログとメトリクスに記録し、他の取得元の処理は継続する。
func (c *Collector) RunOnce(ctx context.Context) Stats {
	start := time.Now()
	stats := Stats{Targets: len(c.targets)}

	if len(c.targets) == 0 {
		c.logger.Info("収集対象の取得元はありません")
		return stats
	}

	var failed, upserted atomic.Int64
	sem := make(chan struct{}, c.maxConcurrency)
	var wg sync.WaitGroup

	for _, target := range c.targets {
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := c.collect(ctx, target)
			if err != nil {
				failed.Add(1)
				c.metrics.RecordFetchFailure(target.Source.Name())
				c.logger.Error("候補の収集に失敗しました",
					slog.String("source", target.Source.Name()),
					slog.String("platform", target.Query.Platform),
					slog.String("niche", target.Query.Niche),
					slog.String("error", err.Error()),
				)
				return
			}
			upserted.Add(int64(n))
		}()
	}

	wg.Wait()

	stats.Failed = int(failed.Load())
	stats.Upserted = int(upserted.Load())
	c.metrics.RecordCandidatesUpserted(stats.Upserted)

	c.logger.Info("収集サイクルが完了しました",
		slog.Int("targets", stats.Targets),
		slog.Int("failed", stats.Failed),
		slog.Int("upserted", stats.Upserted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return stats
}

func (c *Collector) collect(ctx context.Context, target Target) (int, error) {
	candidates, err := target.Source.Candidates(ctx, target.Query)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	batch := make([]*model.TrendCandidate, len(candidates))
	for i := range candidates {
		batch[i] = &candidates[i]
	}
	return c.repo.UpsertBatch(ctx, batch)
}
