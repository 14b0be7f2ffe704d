package model

import "time"

// JobStatus はスケジュールジョブの状態を表す。
// pending → active → {completed, failed}、pending → cancelled と遷移し、
// 再試行可能な失敗の場合は active → pending に戻る。
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// 組み込みジョブ種別
const (
	JobTypeImageCleanup   = "image_cleanup"
	JobTypeAnalyticsPrune = "analytics_prune"
	JobTypeListingExpire  = "listing_expire"
	JobTypeListingPublish = "listing_publish"
)

// ScheduledJob はバックグラウンドジョブの永続化レコード。
type ScheduledJob struct {
	ID           int64      `json:"id"`
	JobID        string     `json:"job_id"`
	JobType      string     `json:"job_type"`
	ListingID    *int64     `json:"listing_id,omitempty"`
	Status       JobStatus  `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
}

// JobFilter はジョブ一覧・件数取得の絞り込み条件。
type JobFilter struct {
	Status    JobStatus `json:"status"`
	JobType   string    `json:"jobType"`
	ListingID int64     `json:"listingId"`
}
