// Package trend はプラットフォームとニッチごとのトレンドトピック取得を提供する。
// 取得元(Source)から候補を集め、検証・鮮度フィルタ・順位付け・件数制限を適用して
// TrendResultを組み立てる。
package trend

import (
	"context"
	"strings"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

// Query は取得元への問い合わせ条件。
type Query struct {
	Platform string
	Niche    string
	// Since が非ゼロの場合、取得元はこれより前に取得された候補を省いてよい。
	// Serviceは鮮度の下限(現在時刻 - max_age)を設定する。
	Since time.Time
}

// Source はトレンド候補の取得元インターフェース。
// 候補は未検証のまま返してよい。検証はServiceが行う。
type Source interface {
	// Name はログとメトリクスに使う取得元の識別名を返す。
	Name() string

	// Candidates は問い合わせ条件に合う候補を返す。
	// 取得元の障害時はエラーを返し、空の結果で障害を隠してはならない。
	Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error)
}

// Metrics はトレンド取得で記録するメトリクスのインターフェース。
type Metrics interface {
	RecordTrendsFetched(platform string, kept, discarded int)
	RecordFetchFailure(source string)
	RecordCacheLookup(hit bool)
	RecordStageLatency(stage string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

type nopMetrics struct{}

func (nopMetrics) RecordTrendsFetched(string, int, int) {}
func (nopMetrics) RecordFetchFailure(string) {}
func (nopMetrics) RecordCacheLookup(bool) {}
func (nopMetrics) RecordStageLatency(string, time.Duration) {}
func (nopMetrics) RecordHTTPStatus(int) {}

// StaticSource は固定の候補一覧を返す取得元。
// オフラインでの動作確認とテストに使用する。
type StaticSource struct {
	name       string
	candidates []model.TrendCandidate
}

// NewStaticSource はStaticSourceを生成する。
func NewStaticSource(name string, candidates ...model.TrendCandidate) *StaticSource {
	copied := make([]model.TrendCandidate, len(candidates))
	copy(copied, candidates)
	return &StaticSource{name: name, candidates: copied}
}

// Name はSourceを実装する。
func (s *StaticSource) Name() string { return s.name }

// Candidates はプラットフォームとニッチが一致する候補を返す。
// 候補側のプラットフォームまたはニッチが空の場合は任意の条件に一致する。
func (s *StaticSource) Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	platform := model.NormalizePlatform(q.Platform)
	out := make([]model.TrendCandidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if c.Platform != "" && model.NormalizePlatform(c.Platform) != platform {
			continue
		}
		if c.Niche != "" && !strings.EqualFold(c.Niche, q.Niche) {
			continue
		}
		if c.Platform == "" {
			c.Platform = platform
		}
		out = append(out, c)
	}
	return out, nil
}
