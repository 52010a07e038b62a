package trend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/agentskills/internal/model"
)

// Route は取得元をプラットフォームとニッチに対応付ける。
// PlatformまたはNicheが空の場合は任意の値に一致する。
type Route struct {
	Platform string
	Niche    string
	Source   Source
}

func (r Route) matches(q Query) bool {
	if r.Platform != "" && model.NormalizePlatform(r.Platform) != model.NormalizePlatform(q.Platform) {
		return false
	}
	if r.Niche != "" && !strings.EqualFold(strings.TrimSpace(r.Niche), strings.TrimSpace(q.Niche)) {
		return false
	}
	return true
}

// MultiSource は条件に一致する複数の取得元へ並列に問い合わせる。
// 一部の取得元が失敗しても残りの候補を返し、全て失敗した場合のみエラーとする。
type MultiSource struct {
	routes         []Route
	maxConcurrency int
	logger         *slog.Logger
	metrics        Metrics
}

// NewMultiSource はMultiSourceを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewMultiSource(logger *slog.Logger, metrics Metrics, maxConcurrency int, routes ...Route) *MultiSource {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &MultiSource{
		routes:         routes,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		metrics:        metrics,
	}
}

// Name はSourceを実装する。
func (m *MultiSource) Name() string { return "multi" }

// Candidates は一致する取得元の候補をルートの登録順に連結して返す。
// 一致する取得元がない場合は空の結果を返す。
func (m *MultiSource) Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error) {
	var matched []Source
	for _, r := range m.routes {
		if r.matches(q) {
			matched = append(matched, r.Source)
		}
	}
	if len(matched) == 0 {
		m.logger.Info("条件に一致する取得元がありません",
			slog.String("platform", q.Platform),
			slog.String("niche", q.Niche),
		)
		return nil, nil
	}

	results := make([][]model.TrendCandidate, len(matched))
	errs := make([]error, len(matched))

	var g errgroup.Group
	g.SetLimit(m.maxConcurrency)
	for i, src := range matched {
		g.Go(func() error {
			candidates, err := src.Candidates(ctx, q)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var out []model.TrendCandidate
	var failed []error
	for i := range matched {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			m.metrics.RecordFetchFailure(matched[i].Name())
			m.logger.Warn("取得元からの取得に失敗しました",
				slog.String("source", matched[i].Name()),
				slog.String("error", errs[i].Error()),
			)
			continue
		}
		out = append(out, results[i]...)
	}

	if len(failed) == len(matched) {
		return nil, errors.Join(failed...)
	}
	return out, nil
}
