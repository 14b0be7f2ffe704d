package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/resaleman/internal/model"
)

const itemColumns = `id, title, description, category, condition, price, currency, quantity, cost,
	sku, brand, size, color, weight, dimensions, tags, custom_fields, template_id,
	created_at, updated_at`

// SQLiteItemRepo はSQLiteを使用した商品リポジトリ。
type SQLiteItemRepo struct {
	db *sql.DB
}

// NewSQLiteItemRepo はSQLiteItemRepoを生成する。
func NewSQLiteItemRepo(db *sql.DB) *SQLiteItemRepo {
	return &SQLiteItemRepo{db: db}
}

// Create は商品を作成し、DBから読み直した商品を返す。
// 通貨未指定はUSD、数量0は1として保存する。
func (r *SQLiteItemRepo) Create(ctx context.Context, item *model.Item) (*model.Item, error) {
	currency := item.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}
	quantity := item.Quantity
	if quantity == 0 {
		quantity = 1
	}

	dimensions, err := jsonValue(item.Dimensions)
	if err != nil {
		return nil, err
	}
	tags, err := jsonValue(item.Tags)
	if err != nil {
		return nil, err
	}
	customFields, err := jsonValue(item.CustomFields)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO items (title, description, category, condition, price, currency, quantity, cost,
		                    sku, brand, size, color, weight, dimensions, tags, custom_fields, template_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		item.Title, nullString(item.Description), item.Category, nullString(string(item.Condition)),
		item.Price, currency, quantity, item.Cost,
		nullString(item.SKU), nullString(item.Brand), nullString(item.Size), nullString(item.Color),
		nullFloat64Ptr(item.Weight), dimensions, tags, customFields, nullInt64Ptr(item.TemplateID),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	return r.FindByID(ctx, id)
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *SQLiteItemRepo) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return item, nil
}

// FindAll は条件に一致する商品を作成日時の降順で返す。
func (r *SQLiteItemRepo) FindAll(ctx context.Context, filter model.ItemFilter) ([]*model.Item, error) {
	where := itemWhere(filter)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items`+where.sql()+` ORDER BY created_at DESC, id DESC`,
		where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// Update は指定項目のみ更新し、更新後の商品を返す。
// 対象が存在しない場合はnilを返す。
func (r *SQLiteItemRepo) Update(ctx context.Context, id int64, upd model.ItemUpdate) (*model.Item, error) {
	var set setClause
	if upd.Title != nil {
		set.add("title", *upd.Title)
	}
	if upd.Description != nil {
		set.add("description", nullString(*upd.Description))
	}
	if upd.Category != nil {
		set.add("category", *upd.Category)
	}
	if upd.Condition != nil {
		set.add("condition", nullString(string(*upd.Condition)))
	}
	if upd.Price != nil {
		set.add("price", *upd.Price)
	}
	if upd.Currency != nil {
		set.add("currency", *upd.Currency)
	}
	if upd.Quantity != nil {
		set.add("quantity", *upd.Quantity)
	}
	if upd.Cost != nil {
		set.add("cost", *upd.Cost)
	}
	if upd.SKU != nil {
		set.add("sku", nullString(*upd.SKU))
	}
	if upd.Brand != nil {
		set.add("brand", nullString(*upd.Brand))
	}
	if upd.Size != nil {
		set.add("size", nullString(*upd.Size))
	}
	if upd.Color != nil {
		set.add("color", nullString(*upd.Color))
	}
	if upd.Weight != nil {
		set.add("weight", *upd.Weight)
	}
	if upd.Dimensions != nil {
		set.addJSON("dimensions", upd.Dimensions)
	}
	if upd.Tags != nil {
		set.addJSON("tags", *upd.Tags)
	}
	if upd.CustomFields != nil {
		set.addJSON("custom_fields", *upd.CustomFields)
	}
	if upd.TemplateID != nil {
		set.add("template_id", nullInt64(*upd.TemplateID))
	}
	if set.err != nil {
		return nil, set.err
	}
	if set.empty() {
		return r.FindByID(ctx, id)
	}

	set.addRaw("updated_at = CURRENT_TIMESTAMP")
	args := append(set.args, id)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE items SET `+set.sql()+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return r.FindByID(ctx, id)
}

// Delete は商品を削除する。削除した場合にtrueを返す。
func (r *SQLiteItemRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete item: %w", err)
	}
	return rowsAffected(result)
}

// Count は条件に一致する商品数を返す。
func (r *SQLiteItemRepo) Count(ctx context.Context, filter model.ItemFilter) (int, error) {
	where := itemWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items`+where.sql(), where.args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func itemWhere(filter model.ItemFilter) whereClause {
	var where whereClause
	if filter.Category != "" {
		where.add("category = ?", filter.Category)
	}
	if filter.Condition != "" {
		where.add("condition = ?", string(filter.Condition))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where.add("(title LIKE ? OR description LIKE ? OR sku LIKE ?)", pattern, pattern, pattern)
	}
	return where
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var description, condition, sku, brand, size, color sql.NullString
	var dimensions, tags, customFields sql.NullString
	var cost decimal.NullDecimal
	var weight sql.NullFloat64
	var templateID sql.NullInt64
	var createdAt, updatedAt nullTime

	if err := row.Scan(
		&item.ID, &item.Title, &description, &item.Category, &condition,
		&item.Price, &item.Currency, &item.Quantity, &cost,
		&sku, &brand, &size, &color, &weight,
		&dimensions, &tags, &customFields, &templateID,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	item.Description = nullStringValue(description)
	item.Condition = model.Condition(nullStringValue(condition))
	item.Cost = cost
	item.SKU = nullStringValue(sku)
	item.Brand = nullStringValue(brand)
	item.Size = nullStringValue(size)
	item.Color = nullStringValue(color)
	item.Weight = float64Ptr(weight)
	item.TemplateID = int64Ptr(templateID)
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time

	if dimensions.Valid {
		item.Dimensions = &model.Dimensions{}
		if err := scanJSON(dimensions, item.Dimensions); err != nil {
			return nil, err
		}
	}
	if err := scanJSON(tags, &item.Tags); err != nil {
		return nil, err
	}
	if err := scanJSON(customFields, &item.CustomFields); err != nil {
		return nil, err
	}
	return item, nil
}
