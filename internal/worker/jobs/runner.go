// Package jobs はscheduled_jobsテーブルを使ったバックグラウンドジョブキューを提供する。
// ランナー、リトライ/バックオフ戦略、組み込みジョブ種別を含む。
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/resaleman/internal/metrics"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

// デフォルト値
const (
	DefaultMaxConcurrency = 2
	DefaultMaxAttempts    = 3
)

// stateUpdateTimeout はジョブ終了後の状態更新に使う猶予時間。
// シャットダウンで実行中のコンテキストがキャンセルされても状態を書き込めるようにする。
const stateUpdateTimeout = 10 * time.Second

// detachedContext はctxのキャンセルを引き継がず、stateUpdateTimeoutで期限を切ったコンテキストを返す。
func detachedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), stateUpdateTimeout)
}

// Handler は1種類のジョブを実行するインターフェース。
type Handler interface {
	Handle(ctx context.Context, job *model.ScheduledJob) error
}

// HandlerFunc は関数をHandlerとして扱うアダプタ。
type HandlerFunc func(ctx context.Context, job *model.ScheduledJob) error

// Handle はHandlerを実装する。
func (f HandlerFunc) Handle(ctx context.Context, job *model.ScheduledJob) error {
	return f(ctx, job)
}

// Recorder はジョブの実行結果を記録する。metrics.Collectorが満たす。
type Recorder interface {
	RecordJob(jobType, result string, duration time.Duration)
}

// Runner はジョブの取得と並列実行を行う。
// 一定間隔で実行予定時刻を過ぎたpendingジョブを取得し、
// semaphoreパターンで最大並列数を制御しながら実行する。
type Runner struct {
	jobRepo        repository.JobRepository
	handlers       map[string]Handler
	recorder       Recorder
	logger         *slog.Logger
	maxConcurrency int
	maxAttempts    int
	now            func() time.Time
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// maxConcurrency、maxAttemptsが0以下の場合はデフォルト値を使用する。
func NewRunner(
	jobRepo repository.JobRepository,
	recorder Recorder,
	logger *slog.Logger,
	maxConcurrency int,
	maxAttempts int,
) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobRepo:        jobRepo,
		handlers:       make(map[string]Handler),
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		maxAttempts:    maxAttempts,
		now:            time.Now,
	}
}

// Register はジョブ種別にHandlerを登録する。Startより前に呼び出すこと。
func (r *Runner) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// JobTypes は登録済みのジョブ種別を名前順で返す。
func (r *Runner) JobTypes() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Enqueue はジョブをpending状態で登録する。atがゼロ値の場合は即時実行の対象になる。
// 未登録のジョブ種別や、出品を対象とするジョブでlistingIDがない場合はValidationErrorを返す。
func (r *Runner) Enqueue(ctx context.Context, jobType string, listingID *int64, at time.Time) (*model.ScheduledJob, error) {
	if _, ok := r.handlers[jobType]; !ok {
		return nil, model.NewValidationError(fmt.Sprintf("Unknown job type: %s", jobType), "jobType")
	}
	if jobType == model.JobTypeListingPublish && listingID == nil {
		return nil, model.NewValidationError("listingId is required for "+jobType, "listingId")
	}
	if at.IsZero() {
		at = r.now()
	}

	job, err := r.jobRepo.Create(ctx, &model.ScheduledJob{
		JobID:        uuid.NewString(),
		JobType:      jobType,
		ListingID:    listingID,
		Status:       model.JobStatusPending,
		ScheduledFor: at,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("ジョブを登録しました",
		slog.String("job_id", job.JobID),
		slog.String("job_type", jobType),
		slog.Time("scheduled_for", at),
	)
	return job, nil
}

// Start は指定間隔のティッカーでランナーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("ジョブランナーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", r.maxConcurrency),
		slog.Int("max_attempts", r.maxAttempts),
	)

	// 前回のプロセスで中断されたジョブをpendingに戻す
	r.RequeueStale(ctx)

	// 起動直後に1回実行
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("ジョブサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ジョブランナーを停止しました")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("ジョブサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RequeueStale はランナー起動前から実行中のまま残っているジョブをpendingに戻し、件数を返す。
// 同じデータベースを使うランナーは1プロセスのみで動かす前提とする。
func (r *Runner) RequeueStale(ctx context.Context) int {
	n, err := r.jobRepo.RequeueStale(ctx, r.now())
	if err != nil {
		r.logger.Error("中断されたジョブの復旧に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0
	}
	if n > 0 {
		r.logger.Warn("中断されたジョブをpendingに戻しました",
			slog.Int("job_count", n),
		)
	}
	return n
}

// RunOnce は実行予定時刻を過ぎたジョブを取得し、並列で実行する。
// 実行したジョブ数を返す。
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	start := r.now()

	// 取得と同時にactiveへ遷移させる
	jobs, err := r.jobRepo.ClaimDue(ctx, start, r.maxConcurrency*4)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		r.logger.Debug("実行対象のジョブはありません")
		return 0, nil
	}

	r.logger.Info("ジョブサイクルを開始します",
		slog.Int("job_count", len(jobs)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}

		go func(j *model.ScheduledJob) {
			defer wg.Done()
			defer func() { <-sem }()
			r.execute(ctx, j)
		}(job)
	}

	wg.Wait()

	r.logger.Info("ジョブサイクルが完了しました",
		slog.Int("job_count", len(jobs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return len(jobs), nil
}

// execute は1件のジョブを実行し、結果に応じて状態を遷移させる。
func (r *Runner) execute(ctx context.Context, job *model.ScheduledJob) {
	start := time.Now()
	logger := r.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Int("attempts", job.Attempts),
	)

	h, ok := r.handlers[job.JobType]
	if !ok {
		logger.Error("未登録のジョブ種別です")
		stateCtx, cancel := detachedContext(ctx)
		defer cancel()
		r.finish(logger, job, metrics.ResultFailure, start, r.jobRepo.MarkFailed(stateCtx, job.ID, "unknown job type: "+job.JobType))
		return
	}

	err := r.safeHandle(ctx, h, job)

	// 状態更新は実行用コンテキストのキャンセル後も行う
	stateCtx, cancel := detachedContext(ctx)
	defer cancel()

	if err == nil {
		logger.Info("ジョブが完了しました")
		r.finish(logger, job, metrics.ResultSuccess, start, r.jobRepo.MarkCompleted(stateCtx, job.ID))
		return
	}

	if ctx.Err() != nil {
		logger.Warn("シャットダウンによりジョブを中断しました。pendingに戻します",
			slog.String("error", err.Error()),
		)
		r.finish(logger, job, metrics.ResultRetry, start, r.jobRepo.Reschedule(stateCtx, job.ID, r.now(), "interrupted: "+err.Error()))
		return
	}

	if ShouldRetry(err, job.Attempts, r.maxAttempts) {
		delay := RetryDelay(err, job.Attempts)
		logger.Warn("ジョブが失敗しました。再試行します",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)
		r.finish(logger, job, metrics.ResultRetry, start, r.jobRepo.Reschedule(stateCtx, job.ID, r.now().Add(delay), err.Error()))
		return
	}

	logger.Error("ジョブが失敗しました",
		slog.String("error", err.Error()),
	)
	r.finish(logger, job, metrics.ResultFailure, start, r.jobRepo.MarkFailed(stateCtx, job.ID, err.Error()))
}

// safeHandle はHandler内のpanicをエラーに変換する。
func (r *Runner) safeHandle(ctx context.Context, h Handler, job *model.ScheduledJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return h.Handle(ctx, job)
}

func (r *Runner) finish(logger *slog.Logger, job *model.ScheduledJob, result string, start time.Time, stateErr error) {
	if stateErr != nil {
		logger.Error("ジョブ状態の更新に失敗しました",
			slog.String("error", stateErr.Error()),
		)
	}
	if r.recorder != nil {
		r.recorder.RecordJob(job.JobType, result, time.Since(start))
	}
}
