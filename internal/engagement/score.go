package engagement

import (
	"context"
	"log/slog"
	"math"
)

// DefaultSaturation はスコアが1.0に達するブックマーク数。
const DefaultSaturation = 1000

// Normalize はブックマーク数を対数スケールで[0,1]に正規化する。
// saturation以上は1.0、負数は0.0とする。
func Normalize(count, saturation int) float64 {
	if count <= 0 {
		return 0
	}
	if saturation <= 0 {
		saturation = DefaultSaturation
	}
	if count >= saturation {
		return 1
	}
	return math.Log1p(float64(count)) / math.Log1p(float64(saturation))
}

// RankScore は取得元での掲載順位(0始まり)から[0,1]のスコアを算出する。
// 先頭が1.0で、末尾に向かって線形に下がる。末尾でも0にはならない。
func RankScore(index, total int) float64 {
	if total <= 0 || index < 0 || index >= total {
		return 0
	}
	return float64(total-index) / float64(total)
}

// Scorer はURLの一覧にエンゲージメントスコアを付与する。
type Scorer struct {
	counter    BookmarkCounter
	saturation int
	logger     *slog.Logger
}

// NewScorer はScorerを生成する。counterがnilの場合は常に順位スコアを使う。
func NewScorer(counter BookmarkCounter, saturation int, logger *slog.Logger) *Scorer {
	return &Scorer{counter: counter, saturation: saturation, logger: logger}
}

// Score はurlsの順序を掲載順位とみなしてスコアを返す。
// ブックマーク数の取得に失敗した場合は順位スコアに切り替える。
// ブックマークが0件のURLは未計測とみなし、順位スコアの半分とする。
func (s *Scorer) Score(ctx context.Context, urls []string) []float64 {
	scores := make([]float64, len(urls))
	for i := range urls {
		scores[i] = RankScore(i, len(urls))
	}
	if s.counter == nil || len(urls) == 0 {
		return scores
	}

	counts, err := s.counter.Counts(ctx, urls)
	if err != nil {
		s.logger.Warn("ブックマーク数の取得に失敗したため順位スコアを使用します",
			slog.String("error", err.Error()),
			slog.Int("url_count", len(urls)),
		)
		return scores
	}

	for i, u := range urls {
		if n := counts[u]; n > 0 {
			scores[i] = Normalize(n, s.saturation)
		} else {
			scores[i] = scores[i] / 2
		}
	}
	return scores
}
