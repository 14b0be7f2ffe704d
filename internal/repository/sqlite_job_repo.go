package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/resaleman/internal/model"
)

const jobColumns = `id, job_id, job_type, listing_id, status, scheduled_for, started_at, completed_at,
	error, attempts, created_at`

// SQLiteJobRepo はSQLiteを使用したジョブキューリポジトリ。
type SQLiteJobRepo struct {
	db *sql.DB
}

// NewSQLiteJobRepo はSQLiteJobRepoを生成する。
func NewSQLiteJobRepo(db *sql.DB) *SQLiteJobRepo {
	return &SQLiteJobRepo{db: db}
}

// Create はpending状態のジョブを登録する。
// job_idが空ならUUIDを採番し、scheduled_forが未指定なら現在時刻とする。
func (r *SQLiteJobRepo) Create(ctx context.Context, job *model.ScheduledJob) (*model.ScheduledJob, error) {
	jobID := job.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	scheduledFor := job.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO scheduled_jobs (job_id, job_type, listing_id, status, scheduled_for)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		jobID, job.JobType, nullInt64Ptr(job.ListingID), string(model.JobStatusPending), formatTime(scheduledFor),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *SQLiteJobRepo) FindByID(ctx context.Context, id int64) (*model.ScheduledJob, error) {
	return r.findOne(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
}

// FindByJobID はjob_idでジョブを取得する。見つからない場合はnilを返す。
func (r *SQLiteJobRepo) FindByJobID(ctx context.Context, jobID string) (*model.ScheduledJob, error) {
	return r.findOne(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE job_id = ?`, jobID)
}

// FindAll は条件に一致するジョブを実行予定時刻の降順で返す。
func (r *SQLiteJobRepo) FindAll(ctx context.Context, filter model.JobFilter) ([]*model.ScheduledJob, error) {
	where := jobWhere(filter)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs`+where.sql()+` ORDER BY scheduled_for DESC, id DESC`,
		where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Count は条件に一致するジョブ数を返す。
func (r *SQLiteJobRepo) Count(ctx context.Context, filter model.JobFilter) (int, error) {
	where := jobWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_jobs`+where.sql(), where.args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// ClaimDue は実行予定時刻を過ぎたpendingジョブを取得してactiveにする。
// 試行回数と開始時刻もここで更新する。
func (r *SQLiteJobRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM scheduled_jobs
		 WHERE status = ? AND scheduled_for <= ?
		 ORDER BY scheduled_for, id
		 LIMIT ?`,
		string(model.JobStatusPending), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due jobs: %w", err)
	}

	jobs := make([]*model.ScheduledJob, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE scheduled_jobs
			 SET status = ?, started_at = ?, attempts = attempts + 1, error = NULL
			 WHERE id = ?`,
			string(model.JobStatusActive), formatTime(now), id); err != nil {
			return nil, fmt.Errorf("failed to claim job %d: %w", id, err)
		}
		job, err := scanJob(tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id))
		if err != nil {
			return nil, fmt.Errorf("failed to reload job %d: %w", id, err)
		}
		jobs = append(jobs, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return jobs, nil
}

// MarkCompleted はactiveなジョブを完了にする。
func (r *SQLiteJobRepo) MarkCompleted(ctx context.Context, id int64) error {
	return r.finish(ctx, id, model.JobStatusCompleted, "")
}

// MarkFailed はactiveなジョブを失敗にする。
func (r *SQLiteJobRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return r.finish(ctx, id, model.JobStatusFailed, errMsg)
}

// Reschedule はactiveなジョブをpendingに戻す。
func (r *SQLiteJobRepo) Reschedule(ctx context.Context, id int64, at time.Time, errMsg string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, scheduled_for = ?, error = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusPending), formatTime(at), nullString(errMsg),
		id, string(model.JobStatusActive))
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	ok, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %d is not active", id)
	}
	return nil
}

// Cancel はpendingのジョブをcancelledにする。
func (r *SQLiteJobRepo) Cancel(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusCancelled), formatTime(time.Now()),
		id, string(model.JobStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	return rowsAffected(result)
}

// RequeueStale は中断されたactiveジョブをpendingに戻す。
// 試行回数はそのまま残し、エラー欄に中断されたことを記録する。
func (r *SQLiteJobRepo) RequeueStale(ctx context.Context, startedBefore time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, error = ?
		 WHERE status = ? AND (started_at IS NULL OR started_at < ?)`,
		string(model.JobStatusPending), "interrupted before completion",
		string(model.JobStatusActive), formatTime(startedBefore))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// DeleteFinishedOlderThan は終了済みジョブを削除し、件数を返す。
func (r *SQLiteJobRepo) DeleteFinishedOlderThan(ctx context.Context, before time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_jobs WHERE status IN (?, ?, ?) AND created_at < ?`,
		string(model.JobStatusCompleted), string(model.JobStatusFailed), string(model.JobStatusCancelled),
		formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteJobRepo) finish(ctx context.Context, id int64, status model.JobStatus, errMsg string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, completed_at = ?, error = ?
		 WHERE id = ? AND status = ?`,
		string(status), formatTime(time.Now()), nullString(errMsg),
		id, string(model.JobStatusActive))
	if err != nil {
		return fmt.Errorf("failed to mark job %s: %w", status, err)
	}
	ok, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %d is not active", id)
	}
	return nil
}

func (r *SQLiteJobRepo) findOne(ctx context.Context, query string, args ...any) (*model.ScheduledJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return job, nil
}

func jobWhere(filter model.JobFilter) whereClause {
	var where whereClause
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.JobType != "" {
		where.add("job_type = ?", filter.JobType)
	}
	if filter.ListingID != 0 {
		where.add("listing_id = ?", filter.ListingID)
	}
	return where
}

func collectJobs(rows *sql.Rows) ([]*model.ScheduledJob, error) {
	var jobs []*model.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*model.ScheduledJob, error) {
	job := &model.ScheduledJob{}
	var listingID sql.NullInt64
	var status, errMsg sql.NullString
	var scheduledFor, startedAt, completedAt, createdAt nullTime

	if err := row.Scan(
		&job.ID, &job.JobID, &job.JobType, &listingID, &status,
		&scheduledFor, &startedAt, &completedAt, &errMsg, &job.Attempts, &createdAt,
	); err != nil {
		return nil, err
	}

	job.ListingID = int64Ptr(listingID)
	job.Status = model.JobStatus(nullStringValue(status))
	job.ScheduledFor = scheduledFor.Time
	job.StartedAt = startedAt.ptr()
	job.CompletedAt = completedAt.ptr()
	job.Error = nullStringValue(errMsg)
	job.CreatedAt = createdAt.Time
	return job, nil
}
