package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

const listingColumns = `id, item_id, platform_id, external_id, external_url, status, title, description,
	price, scheduled_for, posted_at, expires_at, error_message, retry_count,
	view_count, like_count, message_count, platform_specific_data, created_at, updated_at`

// SQLiteListingRepo はSQLiteを使用した出品リポジトリ。
type SQLiteListingRepo struct {
	db *sql.DB
}

// NewSQLiteListingRepo はSQLiteListingRepoを生成する。
func NewSQLiteListingRepo(db *sql.DB) *SQLiteListingRepo {
	return &SQLiteListingRepo{db: db}
}

// Create は出品を作成し、DBから読み直した出品を返す。状態未指定はdraft。
func (r *SQLiteListingRepo) Create(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	status := listing.Status
	if status == "" {
		status = model.ListingStatusDraft
	}
	data, err := jsonValue(listing.PlatformSpecificData)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO listings (item_id, platform_id, external_id, external_url, status, title, description,
		                       price, scheduled_for, posted_at, expires_at, error_message, platform_specific_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		listing.ItemID, listing.PlatformID, nullString(listing.ExternalID), nullString(listing.ExternalURL),
		string(status), listing.Title, nullString(listing.Description), listing.Price,
		timeValue(listing.ScheduledFor), timeValue(listing.PostedAt), timeValue(listing.ExpiresAt),
		nullString(listing.ErrorMessage), data,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
func (r *SQLiteListingRepo) FindByID(ctx context.Context, id int64) (*model.Listing, error) {
	listing, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	return listing, nil
}

// FindByItemID は商品の出品を作成日時の降順で返す。
func (r *SQLiteListingRepo) FindByItemID(ctx context.Context, itemID int64) ([]*model.Listing, error) {
	return r.FindAll(ctx, model.ListingFilter{ItemID: itemID})
}

// FindByPlatformID はプラットフォームの出品を作成日時の降順で返す。
func (r *SQLiteListingRepo) FindByPlatformID(ctx context.Context, platformID int64) ([]*model.Listing, error) {
	return r.FindAll(ctx, model.ListingFilter{PlatformID: platformID})
}

// FindByStatus は指定状態の出品を作成日時の降順で返す。
func (r *SQLiteListingRepo) FindByStatus(ctx context.Context, status model.ListingStatus) ([]*model.Listing, error) {
	return r.FindAll(ctx, model.ListingFilter{Status: status})
}

// FindScheduled はscheduled状態の出品を予定時刻が近い順に返す。
func (r *SQLiteListingRepo) FindScheduled(ctx context.Context, before *time.Time) ([]*model.Listing, error) {
	var where whereClause
	where.add("status = ?", string(model.ListingStatusScheduled))
	if before != nil {
		where.add("scheduled_for <= ?", formatTime(*before))
	}
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings`+where.sql()+` ORDER BY scheduled_for, id`,
		where.args...)
}

// FindAll は条件に一致する出品を作成日時の降順で返す。
func (r *SQLiteListingRepo) FindAll(ctx context.Context, filter model.ListingFilter) ([]*model.Listing, error) {
	where := listingWhere(filter)
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings`+where.sql()+` ORDER BY created_at DESC, id DESC`,
		where.args...)
}

// Update は指定項目のみ更新し、updated_atを更新する。
func (r *SQLiteListingRepo) Update(ctx context.Context, id int64, upd model.ListingUpdate) (*model.Listing, error) {
	var set setClause
	if upd.ExternalID != nil {
		set.add("external_id", nullString(*upd.ExternalID))
	}
	if upd.ExternalURL != nil {
		set.add("external_url", nullString(*upd.ExternalURL))
	}
	if upd.Status != nil {
		set.add("status", string(*upd.Status))
	}
	if upd.Title != nil {
		set.add("title", *upd.Title)
	}
	if upd.Description != nil {
		set.add("description", nullString(*upd.Description))
	}
	if upd.Price != nil {
		set.add("price", *upd.Price)
	}
	if upd.ScheduledFor != nil {
		set.add("scheduled_for", timeValue(upd.ScheduledFor))
	}
	if upd.PostedAt != nil {
		set.add("posted_at", timeValue(upd.PostedAt))
	}
	if upd.ExpiresAt != nil {
		set.add("expires_at", timeValue(upd.ExpiresAt))
	}
	if upd.ErrorMessage != nil {
		set.add("error_message", nullString(*upd.ErrorMessage))
	}
	if upd.RetryCount != nil {
		set.add("retry_count", *upd.RetryCount)
	}
	if upd.ViewCount != nil {
		set.add("view_count", *upd.ViewCount)
	}
	if upd.LikeCount != nil {
		set.add("like_count", *upd.LikeCount)
	}
	if upd.MessageCount != nil {
		set.add("message_count", *upd.MessageCount)
	}
	if upd.PlatformSpecificData != nil {
		set.addJSON("platform_specific_data", *upd.PlatformSpecificData)
	}
	return r.apply(ctx, id, &set)
}

// IncrementRetryCount は再試行回数を1増やす。
func (r *SQLiteListingRepo) IncrementRetryCount(ctx context.Context, id int64) (*model.Listing, error) {
	var set setClause
	set.addRaw("retry_count = retry_count + 1")
	return r.apply(ctx, id, &set)
}

// UpdateAnalytics は指定されたカウンタのみ更新する。
func (r *SQLiteListingRepo) UpdateAnalytics(ctx context.Context, id int64, analytics model.ListingAnalytics) (*model.Listing, error) {
	var set setClause
	if analytics.Views != nil {
		set.add("view_count", *analytics.Views)
	}
	if analytics.Likes != nil {
		set.add("like_count", *analytics.Likes)
	}
	if analytics.Messages != nil {
		set.add("message_count", *analytics.Messages)
	}
	return r.apply(ctx, id, &set)
}

// Delete は出品を削除する。分析イベントはカスケード削除される。
func (r *SQLiteListingRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete listing: %w", err)
	}
	return rowsAffected(result)
}

// DeleteByItemID は商品の出品をすべて削除し、件数を返す。
func (r *SQLiteListingRepo) DeleteByItemID(ctx context.Context, itemID int64) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete listings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// Count は条件に一致する出品数を返す。
func (r *SQLiteListingRepo) Count(ctx context.Context, filter model.ListingFilter) (int, error) {
	where := listingWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings`+where.sql(), where.args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// ExpireDue は掲載期限を過ぎたactiveな出品をexpiredにする。
func (r *SQLiteListingRepo) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE listings SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(model.ListingStatusExpired), string(model.ListingStatusActive), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire listings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteListingRepo) apply(ctx context.Context, id int64, set *setClause) (*model.Listing, error) {
	if set.err != nil {
		return nil, set.err
	}
	if set.empty() {
		return r.FindByID(ctx, id)
	}

	set.addRaw("updated_at = CURRENT_TIMESTAMP")
	args := append(set.args, id)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE listings SET `+set.sql()+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *SQLiteListingRepo) query(ctx context.Context, query string, args ...any) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return listings, nil
}

func listingWhere(filter model.ListingFilter) whereClause {
	var where whereClause
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.PlatformID != 0 {
		where.add("platform_id = ?", filter.PlatformID)
	}
	if filter.ItemID != 0 {
		where.add("item_id = ?", filter.ItemID)
	}
	return where
}

func scanListing(row rowScanner) (*model.Listing, error) {
	listing := &model.Listing{}
	var externalID, externalURL, status, description, errorMessage, data sql.NullString
	var scheduledFor, postedAt, expiresAt, createdAt, updatedAt nullTime

	if err := row.Scan(
		&listing.ID, &listing.ItemID, &listing.PlatformID, &externalID, &externalURL,
		&status, &listing.Title, &description, &listing.Price,
		&scheduledFor, &postedAt, &expiresAt, &errorMessage, &listing.RetryCount,
		&listing.ViewCount, &listing.LikeCount, &listing.MessageCount, &data,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	listing.ExternalID = nullStringValue(externalID)
	listing.ExternalURL = nullStringValue(externalURL)
	listing.Status = model.ListingStatus(nullStringValue(status))
	listing.Description = nullStringValue(description)
	listing.ErrorMessage = nullStringValue(errorMessage)
	listing.ScheduledFor = scheduledFor.ptr()
	listing.PostedAt = postedAt.ptr()
	listing.ExpiresAt = expiresAt.ptr()
	listing.CreatedAt = createdAt.Time
	listing.UpdatedAt = updatedAt.Time

	if err := scanJSON(data, &listing.PlatformSpecificData); err != nil {
		return nil, err
	}
	return listing, nil
}
