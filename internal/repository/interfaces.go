// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

// CandidateRepository はトレンド候補の永続化インターフェース。
type CandidateRepository interface {
	// UpsertBatch は候補を(platform, niche, content_hash)単位で登録または更新する。
	// 既存の候補はエンゲージメントスコアとカテゴリを更新し、fetched_atは新しい方を残す。
	// 登録または更新した件数を返す。
	UpsertBatch(ctx context.Context, candidates []*model.TrendCandidate) (int, error)

	// ListRecent はsince以降に取得された候補をエンゲージメント降順で最大limit件返す。
	// nicheは大文字小文字を区別しない。
	ListRecent(ctx context.Context, platform, niche string, since time.Time, limit int) ([]*model.TrendCandidate, error)

	// DeleteOlderThan はfetched_atがcutoffより古い候補を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
