package trend

import (
	"context"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

// CandidateLister は保存済み候補の読み出しインターフェース。
type CandidateLister interface {
	ListRecent(ctx context.Context, platform, niche string, since time.Time, limit int) ([]*model.TrendCandidate, error)
}

// RepositorySource は収集ワーカーがデータベースに保存した候補を返す取得元。
type RepositorySource struct {
	repo  CandidateLister
	limit int
}

// NewRepositorySource はRepositorySourceを生成する。
// limitが0以下の場合は200件とする。
func NewRepositorySource(repo CandidateLister, limit int) *RepositorySource {
	if limit <= 0 {
		limit = 200
	}
	return &RepositorySource{repo: repo, limit: limit}
}

// Name はSourceを実装する。
func (s *RepositorySource) Name() string { return "repository" }

// Candidates はSourceを実装する。
// q.Since以降に取得された候補だけをエンゲージメント降順で最大limit件読み出す。
// 鮮度の下限をクエリに含めるため、古い高スコアの候補が新しい候補を押し出すことはない。
func (s *RepositorySource) Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error) {
	rows, err := s.repo.ListRecent(ctx, model.NormalizePlatform(q.Platform), q.Niche, q.Since, s.limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.TrendCandidate, 0, len(rows))
	for _, c := range rows {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}
