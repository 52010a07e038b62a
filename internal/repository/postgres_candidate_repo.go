package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/agentskills/internal/model"
)

// PostgresCandidateRepo はPostgreSQLを使用したトレンド候補リポジトリ。
type PostgresCandidateRepo struct {
	db *sql.DB
}

var _ CandidateRepository = (*PostgresCandidateRepo)(nil)

// NewPostgresCandidateRepo はPostgresCandidateRepoを生成する。
func NewPostgresCandidateRepo(db *sql.DB) *PostgresCandidateRepo {
	return &PostgresCandidateRepo{db: db}
}

const upsertCandidateSQL = `
	INSERT INTO trend_candidates
	    (id, platform, niche, name, category, engagement_score,
	     source_url, source_name, content_hash, fetched_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	ON CONFLICT (platform, niche, content_hash) DO UPDATE SET
	    category         = EXCLUDED.category,
	    engagement_score = EXCLUDED.engagement_score,
	    source_name      = EXCLUDED.source_name,
	    fetched_at       = GREATEST(trend_candidates.fetched_at, EXCLUDED.fetched_at),
	    updated_at       = now()`

// UpsertBatch は候補を1トランザクションで登録または更新する。
func (r *PostgresCandidateRepo) UpsertBatch(ctx context.Context, candidates []*model.TrendCandidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}
	for i, c := range candidates {
		if err := validateForUpsert(c); err != nil {
			return 0, fmt.Errorf("候補[%d]が不正です: %w", i, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCandidateSQL)
	if err != nil {
		return 0, fmt.Errorf("ステートメントの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, c := range candidates {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx,
			id, model.NormalizePlatform(c.Platform), normalizeNiche(c.Niche), c.Name, c.Category,
			c.EngagementScore, c.SourceURL, c.SourceName, c.ContentHash, c.FetchedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("候補の保存に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return len(candidates), nil
}

// ListRecent はsince以降に取得された候補をエンゲージメント降順で返す。
func (r *PostgresCandidateRepo) ListRecent(ctx context.Context, platform, niche string, since time.Time, limit int) ([]*model.TrendCandidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, platform, niche, name, category, engagement_score,
		        source_url, source_name, content_hash, fetched_at, created_at, updated_at
		 FROM trend_candidates
		 WHERE platform = $1 AND niche = $2 AND fetched_at >= $3
		 ORDER BY engagement_score DESC, fetched_at DESC
		 LIMIT $4`,
		model.NormalizePlatform(platform), normalizeNiche(niche), since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("候補の一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var candidates []*model.TrendCandidate
	for rows.Next() {
		c := &model.TrendCandidate{}
		var sourceName sql.NullString
		if err := rows.Scan(
			&c.ID, &c.Platform, &c.Niche, &c.Name, &c.Category, &c.EngagementScore,
			&c.SourceURL, &sourceName, &c.ContentHash, &c.FetchedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("候補のスキャンに失敗しました: %w", err)
		}
		c.SourceName = nullStringValue(sourceName)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("候補の走査中にエラーが発生しました: %w", err)
	}
	return candidates, nil
}

// DeleteOlderThan はcutoffより古い候補を削除する。
func (r *PostgresCandidateRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM trend_candidates WHERE fetched_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("古い候補の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func validateForUpsert(c *model.TrendCandidate) error {
	switch {
	case c == nil:
		return errors.New("candidate is nil")
	case model.NormalizePlatform(c.Platform) == "":
		return errors.New("platform is empty")
	case normalizeNiche(c.Niche) == "":
		return errors.New("niche is empty")
	case c.ContentHash == "":
		return errors.New("content_hash is empty")
	case c.FetchedAt.IsZero():
		return errors.New("fetched_at is zero")
	}
	return nil
}

// normalizeNiche はニッチ名を小文字に揃える。
func normalizeNiche(niche string) string {
	return strings.ToLower(strings.TrimSpace(niche))
}

// nullStringValue はsql.NullStringの値を返す。NULLの場合は空文字を返す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
