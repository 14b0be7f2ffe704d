// Package cleanup は日次の保守処理を提供する。
// 保持期間（デフォルト30日）を超過した終了済みジョブを削除し、
// 画像クリーンアップ、分析イベント整理、出品期限切れ処理のジョブを投入する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

// DefaultRetentionDays は終了済みジョブの保持日数。
const DefaultRetentionDays = 30

// MaintenanceJobTypes は日次で投入する保守ジョブの種別。
var MaintenanceJobTypes = []string{
	model.JobTypeImageCleanup,
	model.JobTypeAnalyticsPrune,
	model.JobTypeListingExpire,
}

// JobPruner は終了済みジョブの削除を抽象化するインターフェース。
// repository.JobRepositoryが満たす。
type JobPruner interface {
	DeleteFinishedOlderThan(ctx context.Context, before time.Time) (int, error)
}

// Enqueuer は保守ジョブの投入を抽象化するインターフェース。
// jobs.Runnerが満たす。
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, listingID *int64, at time.Time) (*model.ScheduledJob, error)
}

// CleanupJob は日次実行のバッチジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	jobs          JobPruner
	enqueuer      Enqueuer
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 終了済みジョブの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// enqueuerがnilの場合は保守ジョブを投入せず、終了済みジョブの削除のみ行う。
func NewCleanupJob(jobs JobPruner, enqueuer Enqueuer, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		jobs:          jobs,
		enqueuer:      enqueuer,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は終了済みジョブを削除し、保守ジョブを即時実行予定で投入する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)
	deleted, err := j.jobs.DeleteFinishedOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("終了済みジョブの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("終了済みジョブの削除に失敗: %w", err)
	}

	enqueued := 0
	if j.enqueuer != nil {
		for _, jobType := range MaintenanceJobTypes {
			if _, err := j.enqueuer.Enqueue(ctx, jobType, nil, j.now()); err != nil {
				j.logger.Error("保守ジョブの投入に失敗しました",
					slog.String("job_type", jobType),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("保守ジョブ %s の投入に失敗: %w", jobType, err)
			}
			enqueued++
		}
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("enqueued_count", enqueued),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを繰り返す。
// ctxがキャンセルされると終了する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
