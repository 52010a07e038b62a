// Package cleanup はトレンド候補の自動削除ジョブを提供する。
// 保持期間（デフォルト72時間）を超過したtrend_candidatesをcron式のスケジュールで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetention は候補の保持期間のデフォルト値。
const DefaultRetention = 72 * time.Hour

// DefaultSchedule は削除ジョブのデフォルトの実行スケジュール。
const DefaultSchedule = "@hourly"

// CandidateDeleter は古い候補を削除するインターフェース。
// repository.CandidateRepositoryが満たす。
type CandidateDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した候補の自動削除ジョブ。
// 削除対象がない場合もエラーにならないため、何度実行しても結果は変わらない。
type CleanupJob struct {
	repo      CandidateDeleter
	logger    *slog.Logger
	Retention time.Duration
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(repo CandidateDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:      repo,
		logger:    logger,
		Retention: DefaultRetention,
		now:       time.Now,
	}
}

// Run はfetched_atが保持期間より古い候補を削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := j.now()
	cutoff := start.Add(-j.Retention)

	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("候補クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return 0, fmt.Errorf("候補クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("候補クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はcron式scheduleに従ってRunを実行し、ctxがキャンセルされるまでブロックする。
// 実行中のジョブがあれば完了を待ってから戻る。
func (j *CleanupJob) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		// 個々の実行の失敗はRun内でログに記録済み
		_, _ = j.Run(ctx)
	}); err != nil {
		return fmt.Errorf("クリーンアップジョブのスケジュール登録に失敗 (%s): %w", schedule, err)
	}

	j.logger.Info("クリーンアップスケジューラを開始しました",
		slog.String("schedule", schedule),
		slog.Duration("retention", j.Retention),
	)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("クリーンアップスケジューラを停止しました")
	return nil
}
