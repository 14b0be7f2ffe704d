package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/resaleman/internal/model"
)

func TestSQLiteItemRepo_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteItemRepo(db)
	ctx := context.Background()

	weight := 1.5
	item, err := repo.Create(ctx, &model.Item{
		Title:        "Vintage Camera",
		Description:  "Works great",
		Category:     "Electronics",
		Condition:    model.ConditionGood,
		Price:        decimal.RequireFromString("49.99"),
		Cost:         decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		SKU:          "CAM-001",
		Weight:       &weight,
		Dimensions:   &model.Dimensions{Length: 10, Width: 5, Height: 4, Unit: "in"},
		Tags:         []string{"camera", "film"},
		CustomFields: map[string]any{"lens": "50mm"},
	})
	require.NoError(t, err)

	assert.NotZero(t, item.ID)
	assert.Equal(t, "USD", item.Currency, "通貨未指定はUSD")
	assert.Equal(t, 1, item.Quantity, "数量未指定は1")
	assert.True(t, item.Price.Equal(decimal.RequireFromString("49.99")))
	require.True(t, item.Cost.Valid)
	assert.True(t, item.Cost.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, []string{"camera", "film"}, item.Tags)
	assert.Equal(t, map[string]any{"lens": "50mm"}, item.CustomFields)
	assert.Equal(t, &model.Dimensions{Length: 10, Width: 5, Height: 4, Unit: "in"}, item.Dimensions)
	require.NotNil(t, item.Weight)
	assert.InDelta(t, 1.5, *item.Weight, 0.0001)
	assert.False(t, item.CreatedAt.IsZero())

	found, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, found)
}

func TestSQLiteItemRepo_FindByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	item, err := NewSQLiteItemRepo(db).FindByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestSQLiteItemRepo_NullJSONColumns(t *testing.T) {
	db := setupTestDB(t)
	item := createTestItem(t, db, "plain")

	var tags, dims, custom any
	require.NoError(t, db.QueryRow(
		`SELECT tags, dimensions, custom_fields FROM items WHERE id = ?`, item.ID,
	).Scan(&tags, &dims, &custom))
	assert.Nil(t, tags, "nilのスライスはNULLとして保存される")
	assert.Nil(t, dims)
	assert.Nil(t, custom)

	assert.Nil(t, item.Tags)
	assert.Nil(t, item.Dimensions)
	assert.False(t, item.Cost.Valid)
}

func TestSQLiteItemRepo_EmptyJSONColumns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteItemRepo(db)
	ctx := context.Background()

	item, err := repo.Create(ctx, &model.Item{
		Title:        "Empty collections",
		Category:     "Other",
		Condition:    model.ConditionGood,
		Price:        decimal.RequireFromString("1"),
		Tags:         []string{},
		CustomFields: map[string]any{},
	})
	require.NoError(t, err)

	var rawTags, rawFields string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT tags, custom_fields FROM items WHERE id = ?`, item.ID).Scan(&rawTags, &rawFields))
	assert.Equal(t, "[]", rawTags)
	assert.Equal(t, "{}", rawFields)

	found, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Tags, "空配列はnilにならない")
	assert.Empty(t, found.Tags)
	require.NotNil(t, found.CustomFields, "空オブジェクトはnilにならない")
	assert.Empty(t, found.CustomFields)

	// 値のある状態から空へ更新しても空のまま往復する
	tags := []string{"a"}
	fields := map[string]any{"k": "v"}
	_, err = repo.Update(ctx, item.ID, model.ItemUpdate{Tags: &tags, CustomFields: &fields})
	require.NoError(t, err)

	emptyTags := []string{}
	emptyFields := map[string]any{}
	updated, err := repo.Update(ctx, item.ID, model.ItemUpdate{Tags: &emptyTags, CustomFields: &emptyFields})
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.NotNil(t, updated.Tags)
	assert.Empty(t, updated.Tags)
	require.NotNil(t, updated.CustomFields)
	assert.Empty(t, updated.CustomFields)
}

func TestSQLiteItemRepo_DuplicateSKU(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteItemRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Item{Title: "a", Category: "Other", SKU: "X1", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &model.Item{Title: "b", Category: "Other", SKU: "X1", Price: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err), "SKU重複は一意制約違反: %v", err)

	// SKU未指定は何件でも登録できる
	_, err = repo.Create(ctx, &model.Item{Title: "c", Category: "Other", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.Item{Title: "d", Category: "Other", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
}

func TestSQLiteItemRepo_FindAllFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteItemRepo(db)
	ctx := context.Background()

	fixtures := []model.Item{
		{Title: "Red Dress", Category: "Clothing", Condition: model.ConditionNew, SKU: "DR-1"},
		{Title: "Blue Jeans", Category: "Clothing", Condition: model.ConditionGood, Description: "denim"},
		{Title: "Laptop", Category: "Electronics", Condition: model.ConditionGood},
	}
	for i := range fixtures {
		fixtures[i].Price = decimal.NewFromInt(5)
		_, err := repo.Create(ctx, &fixtures[i])
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter model.ItemFilter
		want   []string
	}{
		{"全件は新しい順", model.ItemFilter{}, []string{"Laptop", "Blue Jeans", "Red Dress"}},
		{"カテゴリ", model.ItemFilter{Category: "Clothing"}, []string{"Blue Jeans", "Red Dress"}},
		{"カテゴリと状態のAND", model.ItemFilter{Category: "Clothing", Condition: model.ConditionGood}, []string{"Blue Jeans"}},
		{"説明の部分一致", model.ItemFilter{Search: "deni"}, []string{"Blue Jeans"}},
		{"SKUの部分一致", model.ItemFilter{Search: "DR-"}, []string{"Red Dress"}},
		{"一致なし", model.ItemFilter{Category: "Toys"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.FindAll(ctx, tt.filter)
			require.NoError(t, err)
			var titles []string
			for _, it := range items {
				titles = append(titles, it.Title)
			}
			assert.Equal(t, tt.want, titles)

			count, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), count)
		})
	}
}

func TestSQLiteItemRepo_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteItemRepo(db)
	ctx := context.Background()
	item := createTestItem(t, db, "before")
	backdate(t, db, "items", item.ID)

	updated, err := repo.Update(ctx, item.ID, model.ItemUpdate{
		Title: ptr("after"),
		Price: ptr(decimal.RequireFromString("20.00")),
		Tags:  ptr([]string{"x"}),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "after", updated.Title)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, []string{"x"}, updated.Tags)
	assert.Equal(t, "Electronics", updated.Category, "未指定の項目は変更されない")
	assert.True(t, updated.UpdatedAt.After(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)), "updated_atが更新される")
	assert.Equal(t, item.CreatedAt, updated.CreatedAt)
}

func TestSQLiteItemRepo_Update_EmptyIsNoop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteItemRepo(db)
	ctx := context.Background()
	item := createTestItem(t, db, "same")
	backdate(t, db, "items", item.ID)

	got, err := repo.Update(ctx, item.ID, model.ItemUpdate{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "same", got.Title)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), got.UpdatedAt, "変更項目がない場合はupdated_atも変わらない")
}

func TestSQLiteItemRepo_Update_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := NewSQLiteItemRepo(db).Update(context.Background(), 42, model.ItemUpdate{Title: ptr("x")})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteItemRepo_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	item := createTestItem(t, db, "to delete")
	platform := createTestPlatform(t, db, "ebay")
	listing := createTestListing(t, db, item.ID, platform.ID)

	_, err := NewSQLiteImageRepo(db).Create(ctx, &model.Image{ItemID: item.ID, OriginalPath: "/tmp/a.jpg", FileName: "a.jpg"})
	require.NoError(t, err)
	_, err = NewSQLiteAnalyticsRepo(db).Create(ctx, &model.AnalyticsEvent{ListingID: listing.ID, EventType: "view"})
	require.NoError(t, err)

	deleted, err := NewSQLiteItemRepo(db).Delete(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, table := range []string{"images", "listings", "analytics_events"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		assert.Zero(t, n, "%s はカスケード削除される", table)
	}

	deleted, err = NewSQLiteItemRepo(db).Delete(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "存在しないIDはfalse")
}

func TestSQLiteItemRepo_TemplateSetNull(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tmpl, err := NewSQLiteTemplateRepo(db).Create(ctx, &model.Template{Name: "shoes", Category: "Shoes"})
	require.NoError(t, err)

	item, err := NewSQLiteItemRepo(db).Create(ctx, &model.Item{
		Title: "Sneakers", Category: "Shoes", Price: decimal.NewFromInt(30), TemplateID: &tmpl.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, item.TemplateID)

	_, err = NewSQLiteTemplateRepo(db).Delete(ctx, tmpl.ID)
	require.NoError(t, err)

	item, err = NewSQLiteItemRepo(db).FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, item, "テンプレート削除で商品は削除されない")
	assert.Nil(t, item.TemplateID)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(assert.AnError))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", errors.New("UNIQUE constraint failed: items.sku"))))
}
