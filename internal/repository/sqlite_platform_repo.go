package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

const platformColumns = `id, name, display_name, is_enabled, auth_type, auth_data, automation_type,
	rate_limits, image_requirements, required_fields, config, last_sync, created_at, updated_at`

// SQLitePlatformRepo はSQLiteを使用したプラットフォーム設定リポジトリ。
type SQLitePlatformRepo struct {
	db *sql.DB
}

// NewSQLitePlatformRepo はSQLitePlatformRepoを生成する。
func NewSQLitePlatformRepo(db *sql.DB) *SQLitePlatformRepo {
	return &SQLitePlatformRepo{db: db}
}

// Create はプラットフォームを作成する。名前が重複する場合は一意制約違反のエラーを返す。
func (r *SQLitePlatformRepo) Create(ctx context.Context, platform *model.Platform) (*model.Platform, error) {
	rateLimits, err := jsonValue(platform.RateLimits)
	if err != nil {
		return nil, err
	}
	imageReqs, err := jsonValue(platform.ImageRequirements)
	if err != nil {
		return nil, err
	}
	requiredFields, err := jsonValue(platform.RequiredFields)
	if err != nil {
		return nil, err
	}
	config, err := jsonValue(platform.Config)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO platforms (name, display_name, is_enabled, auth_type, auth_data, automation_type,
		                        rate_limits, image_requirements, required_fields, config, last_sync)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		platform.Name, platform.DisplayName, platform.IsEnabled,
		nullString(string(platform.AuthType)), nullString(platform.AuthData),
		nullString(string(platform.AutomationType)),
		rateLimits, imageReqs, requiredFields, config, timeValue(platform.LastSync),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID は指定IDのプラットフォームを取得する。見つからない場合はnilを返す。
func (r *SQLitePlatformRepo) FindByID(ctx context.Context, id int64) (*model.Platform, error) {
	return r.findOne(ctx, `SELECT `+platformColumns+` FROM platforms WHERE id = ?`, id)
}

// FindByName は名前でプラットフォームを取得する。見つからない場合はnilを返す。
func (r *SQLitePlatformRepo) FindByName(ctx context.Context, name string) (*model.Platform, error) {
	return r.findOne(ctx, `SELECT `+platformColumns+` FROM platforms WHERE name = ?`, name)
}

// FindAll はプラットフォームを表示名順で返す。
func (r *SQLitePlatformRepo) FindAll(ctx context.Context, enabledOnly bool) ([]*model.Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platforms`
	if enabledOnly {
		query += ` WHERE is_enabled = 1`
	}
	query += ` ORDER BY display_name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	defer rows.Close()

	var platforms []*model.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		platforms = append(platforms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate platforms: %w", err)
	}
	return platforms, nil
}

// Update は指定項目のみ更新する。
func (r *SQLitePlatformRepo) Update(ctx context.Context, id int64, upd model.PlatformUpdate) (*model.Platform, error) {
	var set setClause
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.DisplayName != nil {
		set.add("display_name", *upd.DisplayName)
	}
	if upd.IsEnabled != nil {
		set.add("is_enabled", *upd.IsEnabled)
	}
	if upd.AuthType != nil {
		set.add("auth_type", nullString(string(*upd.AuthType)))
	}
	if upd.AuthData != nil {
		set.add("auth_data", nullString(*upd.AuthData))
	}
	if upd.AutomationType != nil {
		set.add("automation_type", nullString(string(*upd.AutomationType)))
	}
	if upd.RateLimits != nil {
		set.addJSON("rate_limits", upd.RateLimits)
	}
	if upd.ImageRequirements != nil {
		set.addJSON("image_requirements", upd.ImageRequirements)
	}
	if upd.RequiredFields != nil {
		set.addJSON("required_fields", *upd.RequiredFields)
	}
	if upd.Config != nil {
		set.addJSON("config", *upd.Config)
	}
	if upd.LastSync != nil {
		set.add("last_sync", timeValue(upd.LastSync))
	}
	return r.apply(ctx, id, &set)
}

// UpdateAuthData は認証データを置き換える。
func (r *SQLitePlatformRepo) UpdateAuthData(ctx context.Context, id int64, authData string) (*model.Platform, error) {
	return r.Update(ctx, id, model.PlatformUpdate{AuthData: &authData})
}

// UpdateLastSync は最終同期時刻を記録する。atがnilの場合は現在時刻。
func (r *SQLitePlatformRepo) UpdateLastSync(ctx context.Context, id int64, at *time.Time) (*model.Platform, error) {
	if at == nil {
		now := time.Now()
		at = &now
	}
	return r.Update(ctx, id, model.PlatformUpdate{LastSync: at})
}

// ToggleEnabled は有効・無効をDB上で反転する。
func (r *SQLitePlatformRepo) ToggleEnabled(ctx context.Context, id int64) (*model.Platform, error) {
	var set setClause
	set.addRaw("is_enabled = NOT is_enabled")
	return r.apply(ctx, id, &set)
}

// Delete はプラットフォームを削除する。関連する出品はカスケード削除される。
func (r *SQLitePlatformRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM platforms WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete platform: %w", err)
	}
	return rowsAffected(result)
}

// Count はプラットフォーム数を返す。
func (r *SQLitePlatformRepo) Count(ctx context.Context, enabledOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM platforms`
	if enabledOnly {
		query += ` WHERE is_enabled = 1`
	}
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count platforms: %w", err)
	}
	return count, nil
}

func (r *SQLitePlatformRepo) apply(ctx context.Context, id int64, set *setClause) (*model.Platform, error) {
	if set.err != nil {
		return nil, set.err
	}
	if set.empty() {
		return r.FindByID(ctx, id)
	}

	set.addRaw("updated_at = CURRENT_TIMESTAMP")
	args := append(set.args, id)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE platforms SET `+set.sql()+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update platform: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *SQLitePlatformRepo) findOne(ctx context.Context, query string, args ...any) (*model.Platform, error) {
	p, err := scanPlatform(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find platform: %w", err)
	}
	return p, nil
}

func scanPlatform(row rowScanner) (*model.Platform, error) {
	p := &model.Platform{}
	var authType, authData, automationType sql.NullString
	var rateLimits, imageReqs, requiredFields, config sql.NullString
	var lastSync, createdAt, updatedAt nullTime

	if err := row.Scan(
		&p.ID, &p.Name, &p.DisplayName, &p.IsEnabled, &authType, &authData, &automationType,
		&rateLimits, &imageReqs, &requiredFields, &config, &lastSync, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	p.AuthType = model.AuthType(nullStringValue(authType))
	p.AuthData = nullStringValue(authData)
	p.AutomationType = model.AutomationType(nullStringValue(automationType))
	p.LastSync = lastSync.ptr()
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time

	if rateLimits.Valid {
		p.RateLimits = &model.RateLimits{}
		if err := scanJSON(rateLimits, p.RateLimits); err != nil {
			return nil, err
		}
	}
	if imageReqs.Valid {
		p.ImageRequirements = &model.ImageRequirements{}
		if err := scanJSON(imageReqs, p.ImageRequirements); err != nil {
			return nil, err
		}
	}
	if err := scanJSON(requiredFields, &p.RequiredFields); err != nil {
		return nil, err
	}
	if err := scanJSON(config, &p.Config); err != nil {
		return nil, err
	}
	return p, nil
}
