package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/resaleman/internal/model"
)

const templateColumns = `id, name, category, default_values, custom_fields, description, use_count,
	created_at, updated_at`

// SQLiteTemplateRepo はSQLiteを使用した商品テンプレートリポジトリ。
type SQLiteTemplateRepo struct {
	db *sql.DB
}

// NewSQLiteTemplateRepo はSQLiteTemplateRepoを生成する。
func NewSQLiteTemplateRepo(db *sql.DB) *SQLiteTemplateRepo {
	return &SQLiteTemplateRepo{db: db}
}

// Create はテンプレートを作成する。default_valuesが未指定の場合は空のオブジェクトを保存する。
func (r *SQLiteTemplateRepo) Create(ctx context.Context, template *model.Template) (*model.Template, error) {
	defaults := template.DefaultValues
	if defaults == nil {
		defaults = map[string]any{}
	}
	defaultValues, err := jsonValue(defaults)
	if err != nil {
		return nil, err
	}
	customFields, err := jsonValue(template.CustomFields)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO templates (name, category, default_values, custom_fields, description)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		template.Name, template.Category, defaultValues, customFields, nullString(template.Description),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID は指定IDのテンプレートを取得する。見つからない場合はnilを返す。
func (r *SQLiteTemplateRepo) FindByID(ctx context.Context, id int64) (*model.Template, error) {
	return r.findOne(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
}

// FindByName は名前でテンプレートを取得する。見つからない場合はnilを返す。
func (r *SQLiteTemplateRepo) FindByName(ctx context.Context, name string) (*model.Template, error) {
	return r.findOne(ctx, `SELECT `+templateColumns+` FROM templates WHERE name = ?`, name)
}

// FindByCategory はカテゴリのテンプレートを使用回数の多い順に返す。
func (r *SQLiteTemplateRepo) FindByCategory(ctx context.Context, category string) ([]*model.Template, error) {
	return r.query(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE category = ? ORDER BY use_count DESC, name`,
		category)
}

// FindAll はテンプレートを使用回数の多い順に返す。
func (r *SQLiteTemplateRepo) FindAll(ctx context.Context) ([]*model.Template, error) {
	return r.query(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY use_count DESC, name`)
}

// GetMostUsed は使用回数の多い順にlimit件返す。limitが0以下の場合は10件。
func (r *SQLiteTemplateRepo) GetMostUsed(ctx context.Context, limit int) ([]*model.Template, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.query(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY use_count DESC, name LIMIT ?`, limit)
}

// Update は指定項目のみ更新する。
func (r *SQLiteTemplateRepo) Update(ctx context.Context, id int64, upd model.TemplateUpdate) (*model.Template, error) {
	var set setClause
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Category != nil {
		set.add("category", *upd.Category)
	}
	if upd.DefaultValues != nil {
		defaults := *upd.DefaultValues
		if defaults == nil {
			defaults = map[string]any{}
		}
		set.addJSON("default_values", defaults)
	}
	if upd.CustomFields != nil {
		set.addJSON("custom_fields", *upd.CustomFields)
	}
	if upd.Description != nil {
		set.add("description", nullString(*upd.Description))
	}
	return r.apply(ctx, id, &set)
}

// IncrementUseCount は使用回数を1増やす。
func (r *SQLiteTemplateRepo) IncrementUseCount(ctx context.Context, id int64) (*model.Template, error) {
	var set setClause
	set.addRaw("use_count = use_count + 1")
	return r.apply(ctx, id, &set)
}

// Delete はテンプレートを削除する。参照している商品のtemplate_idはNULLになる。
func (r *SQLiteTemplateRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete template: %w", err)
	}
	return rowsAffected(result)
}

// Count はテンプレート数を返す。categoryが空の場合は全件。
func (r *SQLiteTemplateRepo) Count(ctx context.Context, category string) (int, error) {
	var where whereClause
	if category != "" {
		where.add("category = ?", category)
	}
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM templates`+where.sql(), where.args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return count, nil
}

func (r *SQLiteTemplateRepo) apply(ctx context.Context, id int64, set *setClause) (*model.Template, error) {
	if set.err != nil {
		return nil, set.err
	}
	if set.empty() {
		return r.FindByID(ctx, id)
	}

	set.addRaw("updated_at = CURRENT_TIMESTAMP")
	args := append(set.args, id)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE templates SET `+set.sql()+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *SQLiteTemplateRepo) findOne(ctx context.Context, query string, args ...any) (*model.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find template: %w", err)
	}
	return t, nil
}

func (r *SQLiteTemplateRepo) query(ctx context.Context, query string, args ...any) ([]*model.Template, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	t := &model.Template{}
	var defaultValues, customFields, description sql.NullString
	var createdAt, updatedAt nullTime

	if err := row.Scan(
		&t.ID, &t.Name, &t.Category, &defaultValues, &customFields, &description, &t.UseCount,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	t.Description = nullStringValue(description)
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	if err := scanJSON(defaultValues, &t.DefaultValues); err != nil {
		return nil, err
	}
	if err := scanJSON(customFields, &t.CustomFields); err != nil {
		return nil, err
	}
	return t, nil
}
