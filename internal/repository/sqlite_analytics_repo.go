package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

const analyticsColumns = `id, listing_id, event_type, event_data, recorded_at`

// SQLiteAnalyticsRepo はSQLiteを使用した分析イベントリポジトリ。
// イベントは追記専用で、更新操作は持たない。
type SQLiteAnalyticsRepo struct {
	db *sql.DB
}

// NewSQLiteAnalyticsRepo はSQLiteAnalyticsRepoを生成する。
func NewSQLiteAnalyticsRepo(db *sql.DB) *SQLiteAnalyticsRepo {
	return &SQLiteAnalyticsRepo{db: db}
}

// Create はイベントを記録する。recorded_atが未指定の場合はDBの現在時刻。
func (r *SQLiteAnalyticsRepo) Create(ctx context.Context, event *model.AnalyticsEvent) (*model.AnalyticsEvent, error) {
	data, err := jsonValue(event.EventData)
	if err != nil {
		return nil, err
	}

	var id int64
	if event.RecordedAt.IsZero() {
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO analytics_events (listing_id, event_type, event_data)
			 VALUES (?, ?, ?)
			 RETURNING id`,
			event.ListingID, event.EventType, data,
		).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO analytics_events (listing_id, event_type, event_data, recorded_at)
			 VALUES (?, ?, ?, ?)
			 RETURNING id`,
			event.ListingID, event.EventType, data, formatTime(event.RecordedAt),
		).Scan(&id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics event: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *SQLiteAnalyticsRepo) FindByID(ctx context.Context, id int64) (*model.AnalyticsEvent, error) {
	event, err := scanAnalyticsEvent(r.db.QueryRowContext(ctx,
		`SELECT `+analyticsColumns+` FROM analytics_events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find analytics event: %w", err)
	}
	return event, nil
}

// FindByListingID は出品のイベントを新しい順に返す。
func (r *SQLiteAnalyticsRepo) FindByListingID(ctx context.Context, listingID int64, eventType string) ([]*model.AnalyticsEvent, error) {
	var where whereClause
	where.add("listing_id = ?", listingID)
	if eventType != "" {
		where.add("event_type = ?", eventType)
	}
	return r.query(ctx,
		`SELECT `+analyticsColumns+` FROM analytics_events`+where.sql()+` ORDER BY recorded_at DESC, id DESC`,
		where.args...)
}

// FindByEventType は種別ごとのイベントを新しい順に返す。
func (r *SQLiteAnalyticsRepo) FindByEventType(ctx context.Context, eventType string, limit int) ([]*model.AnalyticsEvent, error) {
	query := `SELECT ` + analyticsColumns + ` FROM analytics_events WHERE event_type = ? ORDER BY recorded_at DESC, id DESC`
	args := []any{eventType}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

// FindInDateRange は期間内に記録されたイベントを新しい順に返す。
func (r *SQLiteAnalyticsRepo) FindInDateRange(ctx context.Context, start, end time.Time, listingID int64) ([]*model.AnalyticsEvent, error) {
	var where whereClause
	where.add("recorded_at >= ?", formatTime(start))
	where.add("recorded_at <= ?", formatTime(end))
	if listingID != 0 {
		where.add("listing_id = ?", listingID)
	}
	return r.query(ctx,
		`SELECT `+analyticsColumns+` FROM analytics_events`+where.sql()+` ORDER BY recorded_at DESC, id DESC`,
		where.args...)
}

// CountByEventType は出品の指定種別イベント数を返す。
func (r *SQLiteAnalyticsRepo) CountByEventType(ctx context.Context, listingID int64, eventType string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analytics_events WHERE listing_id = ? AND event_type = ?`,
		listingID, eventType,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analytics events: %w", err)
	}
	return count, nil
}

// GetEventTypeSummary は出品のイベント種別ごとの件数を返す。
func (r *SQLiteAnalyticsRepo) GetEventTypeSummary(ctx context.Context, listingID int64) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM analytics_events WHERE listing_id = ? GROUP BY event_type`,
		listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize analytics events: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan analytics summary: %w", err)
		}
		summary[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analytics summary: %w", err)
	}
	return summary, nil
}

// GetLatestEvent は出品の指定種別の最新イベントを返す。存在しない場合はnilを返す。
func (r *SQLiteAnalyticsRepo) GetLatestEvent(ctx context.Context, listingID int64, eventType string) (*model.AnalyticsEvent, error) {
	event, err := scanAnalyticsEvent(r.db.QueryRowContext(ctx,
		`SELECT `+analyticsColumns+` FROM analytics_events
		 WHERE listing_id = ? AND event_type = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		listingID, eventType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest analytics event: %w", err)
	}
	return event, nil
}

// Delete はイベントを削除する。
func (r *SQLiteAnalyticsRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete analytics event: %w", err)
	}
	return rowsAffected(result)
}

// DeleteByListingID は出品のイベントをすべて削除し、件数を返す。
func (r *SQLiteAnalyticsRepo) DeleteByListingID(ctx context.Context, listingID int64) (int, error) {
	return r.deleteWhere(ctx, `DELETE FROM analytics_events WHERE listing_id = ?`, listingID)
}

// DeleteOlderThan はdays日より前のイベントを削除する。
func (r *SQLiteAnalyticsRepo) DeleteOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	return r.deleteWhere(ctx, `DELETE FROM analytics_events WHERE recorded_at < ?`, formatTime(cutoff))
}

func (r *SQLiteAnalyticsRepo) deleteWhere(ctx context.Context, query string, args ...any) (int, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analytics events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteAnalyticsRepo) query(ctx context.Context, query string, args ...any) ([]*model.AnalyticsEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics events: %w", err)
	}
	defer rows.Close()

	var events []*model.AnalyticsEvent
	for rows.Next() {
		event, err := scanAnalyticsEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analytics events: %w", err)
	}
	return events, nil
}

func scanAnalyticsEvent(row rowScanner) (*model.AnalyticsEvent, error) {
	event := &model.AnalyticsEvent{}
	var data sql.NullString
	var recordedAt nullTime
	if err := row.Scan(&event.ID, &event.ListingID, &event.EventType, &data, &recordedAt); err != nil {
		return nil, err
	}
	event.RecordedAt = recordedAt.Time
	if err := scanJSON(data, &event.EventData); err != nil {
		return nil, err
	}
	return event, nil
}
