package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/resaleman/internal/database"
	"github.com/hitoshi/resaleman/internal/metrics"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

// fakeRecorder はRecorderのテスト用実装。
type fakeRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *fakeRecorder) RecordJob(_ string, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *fakeRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

// setupTestDB はマイグレーション済みの一時SQLiteデータベースを返す。
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jobs.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(path))
	return db
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// newTestRunner は現在時刻を固定したRunnerを返す。
func newTestRunner(t *testing.T, now time.Time) (*Runner, *repository.SQLiteJobRepo, *fakeRecorder) {
	t.Helper()
	repo := repository.NewSQLiteJobRepo(setupTestDB(t))
	rec := &fakeRecorder{}
	logger, _ := testLogger()
	r := NewRunner(repo, rec, logger, 2, 3)
	r.now = func() time.Time { return now }
	return r, repo, rec
}

func findJob(t *testing.T, repo *repository.SQLiteJobRepo, id int64) *model.ScheduledJob {
	t.Helper()
	job, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(nil, nil, nil, 0, 0)
	assert.Equal(t, DefaultMaxConcurrency, r.maxConcurrency)
	assert.Equal(t, DefaultMaxAttempts, r.maxAttempts)
	assert.NotNil(t, r.logger)
}

func TestEnqueue_UnknownJobType(t *testing.T) {
	r, _, _ := newTestRunner(t, time.Now())

	_, err := r.Enqueue(context.Background(), "does_not_exist", nil, time.Time{})
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeValidation, model.CodeOf(err))
}

func TestEnqueue_PublishRequiresListing(t *testing.T) {
	r, _, _ := newTestRunner(t, time.Now())
	r.Register(model.JobTypeListingPublish, HandlerFunc(func(context.Context, *model.ScheduledJob) error { return nil }))

	_, err := r.Enqueue(context.Background(), model.JobTypeListingPublish, nil, time.Time{})
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeValidation, model.CodeOf(err))
}

func TestEnqueue_DefaultsToNow(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, _, _ := newTestRunner(t, now)
	r.Register("noop", HandlerFunc(func(context.Context, *model.ScheduledJob) error { return nil }))

	job, err := r.Enqueue(context.Background(), "noop", nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.JobID)
	assert.WithinDuration(t, now, job.ScheduledFor, time.Second)
	assert.Equal(t, []string{"noop"}, r.JobTypes())
}

func TestRunOnce_CompletesDueJobs(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, rec := newTestRunner(t, now)

	var calls atomic.Int32
	r.Register("noop", HandlerFunc(func(_ context.Context, job *model.ScheduledJob) error {
		calls.Add(1)
		assert.Equal(t, model.JobStatusActive, job.Status)
		assert.Equal(t, 1, job.Attempts)
		return nil
	}))

	due, err := r.Enqueue(context.Background(), "noop", nil, now.Add(-time.Minute))
	require.NoError(t, err)
	future, err := r.Enqueue(context.Background(), "noop", nil, now.Add(time.Hour))
	require.NoError(t, err)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), calls.Load())

	done := findJob(t, repo, due.ID)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, model.JobStatusPending, findJob(t, repo, future.ID).Status)
	assert.Equal(t, []string{metrics.ResultSuccess}, rec.snapshot())
}

func TestRunOnce_NoJobs(t *testing.T) {
	r, _, _ := newTestRunner(t, time.Now())

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunOnce_RetriesRecoverableErrorsWithBackoff(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, rec := newTestRunner(t, now)
	r.Register("flaky", HandlerFunc(func(context.Context, *model.ScheduledJob) error {
		return model.NewPlatformError("temporarily unavailable", "ebay", true)
	}))

	job, err := r.Enqueue(context.Background(), "flaky", nil, now)
	require.NoError(t, err)

	// 1回目: 1分後に再試行
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	got := findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.Error, "temporarily unavailable")
	assert.WithinDuration(t, now.Add(time.Minute), got.ScheduledFor, time.Second)

	// 2回目: 2分後に再試行
	now = now.Add(time.Minute)
	r.now = func() time.Time { return now }
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	got = findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.WithinDuration(t, now.Add(2*time.Minute), got.ScheduledFor, time.Second)

	// 3回目: 上限に達したので失敗
	now = now.Add(2 * time.Minute)
	r.now = func() time.Time { return now }
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	got = findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)

	assert.Equal(t, []string{metrics.ResultRetry, metrics.ResultRetry, metrics.ResultFailure}, rec.snapshot())
}

func TestRunOnce_HonoursRetryAfter(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, _ := newTestRunner(t, now)
	r.Register("limited", HandlerFunc(func(context.Context, *model.ScheduledJob) error {
		return model.NewRateLimitError("slow down", "ebay", 90*time.Second)
	}))

	job, err := r.Enqueue(context.Background(), "limited", nil, now)
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	got := findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.WithinDuration(t, now.Add(90*time.Second), got.ScheduledFor, time.Second)
}

func TestRunOnce_FailsOnUnrecoverableError(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, rec := newTestRunner(t, now)
	r.Register("broken", HandlerFunc(func(context.Context, *model.ScheduledJob) error {
		return errors.New("boom")
	}))

	job, err := r.Enqueue(context.Background(), "broken", nil, now)
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	got := findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, []string{metrics.ResultFailure}, rec.snapshot())
}

func TestRunOnce_RecoversFromPanic(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, _ := newTestRunner(t, now)
	r.Register("panics", HandlerFunc(func(context.Context, *model.ScheduledJob) error {
		panic("unexpected")
	}))

	job, err := r.Enqueue(context.Background(), "panics", nil, now)
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	got := findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "job panicked")
}

func TestRunOnce_UnregisteredTypeFails(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, _ := newTestRunner(t, now)

	// Enqueueを経由せずに未登録の種別を直接登録する
	job, err := repo.Create(context.Background(), &model.ScheduledJob{
		JobID:        "legacy-1",
		JobType:      "legacy",
		Status:       model.JobStatusPending,
		ScheduledFor: now,
	})
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	got := findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "unknown job type")
}

func TestRunOnce_RespectsMaxConcurrency(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, _, _ := newTestRunner(t, now)

	var running, peak atomic.Int32
	r.Register("slow", HandlerFunc(func(context.Context, *model.ScheduledJob) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	}))

	for i := 0; i < 6; i++ {
		_, err := r.Enqueue(context.Background(), "slow", nil, now)
		require.NoError(t, err)
	}

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestStart_StopsOnCancel(t *testing.T) {
	r, _, _ := newTestRunner(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRunOnce_CancelledJobReturnsToPending(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, rec := newTestRunner(t, now)

	started := make(chan struct{})
	r.Register("blocking", HandlerFunc(func(ctx context.Context, _ *model.ScheduledJob) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	job, err := r.Enqueue(context.Background(), "blocking", nil, now.Add(-time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := findJob(t, repo, job.ID)
	assert.Equal(t, model.JobStatusPending, got.Status, "シャットダウンで中断されたジョブはpendingに戻る")
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.Error, "interrupted")
	assert.Equal(t, []string{metrics.ResultRetry}, rec.snapshot())

	// 再起動後のランナーで実行される
	logger, _ := testLogger()
	restarted := NewRunner(repo, nil, logger, 2, 3)
	restarted.now = func() time.Time { return now }
	restarted.Register("blocking", HandlerFunc(func(context.Context, *model.ScheduledJob) error { return nil }))

	n, err = restarted.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.JobStatusCompleted, findJob(t, repo, job.ID).Status)
}

func TestStart_RequeuesJobsLeftActive(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r, repo, _ := newTestRunner(t, now)

	var calls atomic.Int32
	r.Register("noop", HandlerFunc(func(context.Context, *model.ScheduledJob) error {
		calls.Add(1)
		return nil
	}))
	job, err := r.Enqueue(context.Background(), "noop", nil, now.Add(-time.Hour))
	require.NoError(t, err)

	// 前回のプロセスが状態を書き込めずに終了した状態を作る
	claimed, err := repo.ClaimDue(context.Background(), now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := repo.FindByID(context.Background(), job.ID)
		return err == nil && got != nil && got.Status == model.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, findJob(t, repo, job.ID).Attempts)
}
