package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/resaleman/internal/database"
	"github.com/hitoshi/resaleman/internal/model"
)

// コンパイル時チェック：SQLite実装が各リポジトリインターフェースを満たすことを検証
var (
	_ ItemRepository      = (*SQLiteItemRepo)(nil)
	_ ImageRepository     = (*SQLiteImageRepo)(nil)
	_ ListingRepository   = (*SQLiteListingRepo)(nil)
	_ PlatformRepository  = (*SQLitePlatformRepo)(nil)
	_ TemplateRepository  = (*SQLiteTemplateRepo)(nil)
	_ AnalyticsRepository = (*SQLiteAnalyticsRepo)(nil)
	_ JobRepository       = (*SQLiteJobRepo)(nil)
)

// setupTestDB はマイグレーション済みの一時SQLiteデータベースを返す。
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "repo.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(path))
	return db
}

// createTestItem はテスト用の商品を作成する。
func createTestItem(t *testing.T, db *sql.DB, title string) *model.Item {
	t.Helper()

	item, err := NewSQLiteItemRepo(db).Create(context.Background(), &model.Item{
		Title:    title,
		Category: "Electronics",
		Price:    decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}

// createTestPlatform はテスト用のプラットフォームを作成する。
func createTestPlatform(t *testing.T, db *sql.DB, name string) *model.Platform {
	t.Helper()

	p, err := NewSQLitePlatformRepo(db).Create(context.Background(), &model.Platform{
		Name:        name,
		DisplayName: name,
		IsEnabled:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

// createTestListing はテスト用の出品を作成する。
func createTestListing(t *testing.T, db *sql.DB, itemID, platformID int64) *model.Listing {
	t.Helper()

	l, err := NewSQLiteListingRepo(db).Create(context.Background(), &model.Listing{
		ItemID:     itemID,
		PlatformID: platformID,
		Title:      "listing",
		Price:      decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

// backdate はupdated_atを過去の値に書き換える。
func backdate(t *testing.T, db *sql.DB, table string, id int64) {
	t.Helper()

	_, err := db.Exec(`UPDATE `+table+` SET updated_at = '2000-01-01 00:00:00' WHERE id = ?`, id)
	require.NoError(t, err)
}

func ptr[T any](v T) *T {
	return &v
}
