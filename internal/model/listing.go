package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus は出品の状態を表す。
// draft → scheduled → posting → {active, failed}、active → {sold, expired, deleted} と遷移する。
// リポジトリは呼び出し元が指定した状態をそのまま保存する。
type ListingStatus string

const (
	ListingStatusDraft     ListingStatus = "draft"
	ListingStatusScheduled ListingStatus = "scheduled"
	ListingStatusPosting   ListingStatus = "posting"
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusExpired   ListingStatus = "expired"
	ListingStatusFailed    ListingStatus = "failed"
	ListingStatusDeleted   ListingStatus = "deleted"
)

// Valid はListingStatusが定義済みの値かどうかを返す。
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusDraft, ListingStatusScheduled, ListingStatusPosting, ListingStatusActive,
		ListingStatusSold, ListingStatusExpired, ListingStatusFailed, ListingStatusDeleted:
		return true
	}
	return false
}

// Terminal は終端状態（sold, expired, deleted）かどうかを返す。
func (s ListingStatus) Terminal() bool {
	return s == ListingStatusSold || s == ListingStatusExpired || s == ListingStatusDeleted
}

// Listing は1つの商品を1つのプラットフォームに出品した状態を表す。
// (item_id, platform_id) は一意。
type Listing struct {
	ID                   int64           `json:"id"`
	ItemID               int64           `json:"item_id"`
	PlatformID           int64           `json:"platform_id"`
	ExternalID           string          `json:"external_id,omitempty"`
	ExternalURL          string          `json:"external_url,omitempty"`
	Status               ListingStatus   `json:"status"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	Price                decimal.Decimal `json:"price"`
	ScheduledFor         *time.Time      `json:"scheduled_for,omitempty"`
	PostedAt             *time.Time      `json:"posted_at,omitempty"`
	ExpiresAt            *time.Time      `json:"expires_at,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	RetryCount           int             `json:"retry_count"`
	ViewCount            int             `json:"view_count"`
	LikeCount            int             `json:"like_count"`
	MessageCount         int             `json:"message_count"`
	PlatformSpecificData map[string]any  `json:"platform_specific_data,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ListingUpdate はListingの部分更新で変更可能な項目。
// item_id、platform_id、作成日時は更新できない。
type ListingUpdate struct {
	ExternalID           *string          `json:"external_id"`
	ExternalURL          *string          `json:"external_url"`
	Status               *ListingStatus   `json:"status"`
	Title                *string          `json:"title"`
	Description          *string          `json:"description"`
	Price                *decimal.Decimal `json:"price"`
	ScheduledFor         *time.Time       `json:"scheduled_for"`
	PostedAt             *time.Time       `json:"posted_at"`
	ExpiresAt            *time.Time       `json:"expires_at"`
	ErrorMessage         *string          `json:"error_message"`
	RetryCount           *int             `json:"retry_count"`
	ViewCount            *int             `json:"view_count"`
	LikeCount            *int             `json:"like_count"`
	MessageCount         *int             `json:"message_count"`
	PlatformSpecificData *map[string]any  `json:"platform_specific_data"`
}

// ListingFilter は出品一覧・件数取得の絞り込み条件。
type ListingFilter struct {
	Status     ListingStatus `json:"status"`
	PlatformID int64         `json:"platformId"`
	ItemID     int64         `json:"itemId"`
}

// ListingAnalytics は出品のエンゲージメント指標の更新値。
// 指定されたカウンタのみ更新する。
type ListingAnalytics struct {
	Views    *int `json:"views"`
	Likes    *int `json:"likes"`
	Messages *int `json:"messages"`
}
