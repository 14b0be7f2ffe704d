package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

// ImageCleaner は古い画像ファイルを削除する。imaging.Processorが満たす。
type ImageCleaner interface {
	CleanupOldImages(daysOld int) int
}

// NewImageCleanupHandler は保持期間を超えた加工済み画像を削除するHandlerを返す。
func NewImageCleanupHandler(cleaner ImageCleaner, retentionDays int, logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, job *model.ScheduledJob) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted := cleaner.CleanupOldImages(retentionDays)
		logger.Info("古い画像を削除しました",
			slog.String("job_id", job.JobID),
			slog.Int("deleted_count", deleted),
			slog.Int("retention_days", retentionDays),
		)
		return nil
	})
}

// NewAnalyticsPruneHandler は保持期間を超えた分析イベントを削除するHandlerを返す。
func NewAnalyticsPruneHandler(analytics repository.AnalyticsRepository, retentionDays int, logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, job *model.ScheduledJob) error {
		deleted, err := analytics.DeleteOlderThan(ctx, retentionDays)
		if err != nil {
			return model.NewDatabaseError("Failed to prune analytics events", err)
		}
		logger.Info("古い分析イベントを削除しました",
			slog.String("job_id", job.JobID),
			slog.Int("deleted_count", deleted),
			slog.Int("retention_days", retentionDays),
		)
		return nil
	})
}

// NewListingExpireHandler は掲載期限を過ぎたactiveな出品をexpiredにするHandlerを返す。
func NewListingExpireHandler(listings repository.ListingRepository, now func() time.Time, logger *slog.Logger) Handler {
	if now == nil {
		now = time.Now
	}
	return HandlerFunc(func(ctx context.Context, job *model.ScheduledJob) error {
		expired, err := listings.ExpireDue(ctx, now())
		if err != nil {
			return model.NewDatabaseError("Failed to expire listings", err)
		}
		logger.Info("掲載期限切れの出品を更新しました",
			slog.String("job_id", job.JobID),
			slog.Int("expired_count", expired),
		)
		return nil
	})
}
