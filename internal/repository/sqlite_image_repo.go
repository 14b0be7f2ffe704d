package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

const imageColumns = `id, item_id, original_path, processed_path, file_name, file_size, mime_type,
	width, height, display_order, is_primary, processing_status, processing_options, created_at`

// SQLiteImageRepo はSQLiteを使用した商品画像リポジトリ。
type SQLiteImageRepo struct {
	db *sql.DB
}

// NewSQLiteImageRepo はSQLiteImageRepoを生成する。
func NewSQLiteImageRepo(db *sql.DB) *SQLiteImageRepo {
	return &SQLiteImageRepo{db: db}
}

// Create は画像レコードを作成し、DBから読み直した画像を返す。
func (r *SQLiteImageRepo) Create(ctx context.Context, image *model.Image) (*model.Image, error) {
	status := image.ProcessingStatus
	if status == "" {
		status = model.ProcessingStatusPending
	}
	options, err := jsonValue(image.ProcessingOptions)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO images (item_id, original_path, processed_path, file_name, file_size, mime_type,
		                     width, height, display_order, is_primary, processing_status, processing_options)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		image.ItemID, image.OriginalPath, nullString(image.ProcessedPath), image.FileName,
		nullInt64(image.FileSize), nullString(image.MimeType),
		nullInt64(int64(image.Width)), nullInt64(int64(image.Height)),
		image.DisplayOrder, image.IsPrimary, string(status), options,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID は指定IDの画像を取得する。見つからない場合はnilを返す。
func (r *SQLiteImageRepo) FindByID(ctx context.Context, id int64) (*model.Image, error) {
	image, err := scanImage(r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find image: %w", err)
	}
	return image, nil
}

// FindByItemID は商品の画像をdisplay_order、idの順で返す。
func (r *SQLiteImageRepo) FindByItemID(ctx context.Context, itemID int64) ([]*model.Image, error) {
	return r.query(ctx,
		`SELECT `+imageColumns+` FROM images WHERE item_id = ? ORDER BY display_order, id`, itemID)
}

// FindOlderThan は指定時刻より前に作成された画像を返す。
func (r *SQLiteImageRepo) FindOlderThan(ctx context.Context, before time.Time) ([]*model.Image, error) {
	return r.query(ctx,
		`SELECT `+imageColumns+` FROM images WHERE created_at < ? ORDER BY created_at, id`,
		formatTime(before))
}

// Update は指定項目のみ更新する。imagesにはupdated_at列がない。
func (r *SQLiteImageRepo) Update(ctx context.Context, id int64, upd model.ImageUpdate) (*model.Image, error) {
	var set setClause
	if upd.OriginalPath != nil {
		set.add("original_path", *upd.OriginalPath)
	}
	if upd.ProcessedPath != nil {
		set.add("processed_path", nullString(*upd.ProcessedPath))
	}
	if upd.FileName != nil {
		set.add("file_name", *upd.FileName)
	}
	if upd.FileSize != nil {
		set.add("file_size", *upd.FileSize)
	}
	if upd.MimeType != nil {
		set.add("mime_type", nullString(*upd.MimeType))
	}
	if upd.Width != nil {
		set.add("width", *upd.Width)
	}
	if upd.Height != nil {
		set.add("height", *upd.Height)
	}
	if upd.DisplayOrder != nil {
		set.add("display_order", *upd.DisplayOrder)
	}
	if upd.IsPrimary != nil {
		set.add("is_primary", *upd.IsPrimary)
	}
	if upd.ProcessingStatus != nil {
		set.add("processing_status", string(*upd.ProcessingStatus))
	}
	if upd.ProcessingOptions != nil {
		set.addJSON("processing_options", upd.ProcessingOptions)
	}
	if set.err != nil {
		return nil, set.err
	}
	if set.empty() {
		return r.FindByID(ctx, id)
	}

	args := append(set.args, id)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE images SET `+set.sql()+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update image: %w", err)
	}
	return r.FindByID(ctx, id)
}

// Delete は画像レコードを削除する。ファイルは削除しない。
func (r *SQLiteImageRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete image: %w", err)
	}
	return rowsAffected(result)
}

// DeleteByItemID は商品の画像レコードをすべて削除し、件数を返す。
func (r *SQLiteImageRepo) DeleteByItemID(ctx context.Context, itemID int64) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete images: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// SetPrimaryImage はメイン画像の解除と設定を1トランザクションで行う。
// 画像が商品に属さない場合はロールバックしてfalseを返す。
func (r *SQLiteImageRepo) SetPrimaryImage(ctx context.Context, itemID, imageID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE images SET is_primary = 0 WHERE item_id = ?`, itemID); err != nil {
		return false, fmt.Errorf("failed to clear primary image: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE images SET is_primary = 1 WHERE id = ? AND item_id = ?`, imageID, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to set primary image: %w", err)
	}
	ok, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// GetPrimaryImage はメイン画像を返す。未設定の場合はnilを返す。
func (r *SQLiteImageRepo) GetPrimaryImage(ctx context.Context, itemID int64) (*model.Image, error) {
	image, err := scanImage(r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE item_id = ? AND is_primary = 1 LIMIT 1`, itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find primary image: %w", err)
	}
	return image, nil
}

// ReorderImages はimageIDsの並び順でdisplay_orderを振り直す。
// 商品に属さないIDは更新されない。
func (r *SQLiteImageRepo) ReorderImages(ctx context.Context, itemID int64, imageIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE images SET display_order = ? WHERE id = ? AND item_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare reorder statement: %w", err)
	}
	defer stmt.Close()

	for i, id := range imageIDs {
		if _, err := stmt.ExecContext(ctx, i, id, itemID); err != nil {
			return fmt.Errorf("failed to reorder image %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Count は商品の画像数を返す。
func (r *SQLiteImageRepo) Count(ctx context.Context, itemID int64) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE item_id = ?`, itemID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

func (r *SQLiteImageRepo) query(ctx context.Context, query string, args ...any) ([]*model.Image, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []*model.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate images: %w", err)
	}
	return images, nil
}

func scanImage(row rowScanner) (*model.Image, error) {
	image := &model.Image{}
	var processedPath, mimeType, status, options sql.NullString
	var fileSize, width, height sql.NullInt64
	var createdAt nullTime

	if err := row.Scan(
		&image.ID, &image.ItemID, &image.OriginalPath, &processedPath, &image.FileName,
		&fileSize, &mimeType, &width, &height, &image.DisplayOrder, &image.IsPrimary,
		&status, &options, &createdAt,
	); err != nil {
		return nil, err
	}

	image.ProcessedPath = nullStringValue(processedPath)
	image.MimeType = nullStringValue(mimeType)
	image.FileSize = fileSize.Int64
	image.Width = int(width.Int64)
	image.Height = int(height.Int64)
	image.ProcessingStatus = model.ProcessingStatus(nullStringValue(status))
	image.CreatedAt = createdAt.Time

	if options.Valid {
		image.ProcessingOptions = &model.ProcessingOptions{}
		if err := scanJSON(options, image.ProcessingOptions); err != nil {
			return nil, err
		}
	}
	return image, nil
}
