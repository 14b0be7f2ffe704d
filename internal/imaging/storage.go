package imaging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/resaleman/internal/model"
)

// DefaultRetentionDays は加工済み画像の保持日数のデフォルト値。
const DefaultRetentionDays = 30

// StorageStats は画像ディレクトリの使用状況。
type StorageStats struct {
	ProcessedCount int    `json:"processedCount"`
	OriginalCount  int    `json:"originalCount"`
	TotalSize      int64  `json:"totalSize"`
	TotalSizeHuman string `json:"totalSizeHuman"`
}

// SaveOriginal は元画像を一意な名前で元画像ディレクトリにコピーし、保存先パスを返す。
// 拡張子は元ファイルのものを引き継ぐ。
func (p *Processor) SaveOriginal(sourcePath string) (path string, err error) {
	defer p.observe("save_original", time.Now(), &err)

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", model.NewImageProcessingError("Failed to save original image", err)
	}
	defer src.Close()

	dest := filepath.Join(p.paths.OriginalDir, uuid.NewString()+filepath.Ext(sourcePath))
	if err := copyToFile(dest, src); err != nil {
		return "", model.NewImageProcessingError("Failed to save original image", err)
	}
	return dest, nil
}

func copyToFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// DeleteProcessed は加工済み画像を削除する。失敗はログに記録するのみ。
func (p *Processor) DeleteProcessed(path string) {
	p.deleteWithin(p.paths.ProcessedDir, path)
}

// DeleteOriginal は元画像を削除する。失敗はログに記録するのみ。
func (p *Processor) DeleteOriginal(path string) {
	p.deleteWithin(p.paths.OriginalDir, path)
}

// deleteWithin は管理ディレクトリ配下のファイルのみ削除する。
func (p *Processor) deleteWithin(dir, path string) {
	if !isWithin(dir, path) {
		p.logger.Warn("画像ディレクトリ外のファイルは削除しません",
			slog.String("path", path),
			slog.String("dir", dir),
		)
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("画像の削除に失敗しました", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("画像を削除しました", slog.String("path", path))
}

func isWithin(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// CleanupOldImages は更新日時がdaysOld日より前の加工済み画像を削除し、削除件数を返す。
// daysOldが0以下の場合は30日。個々の削除失敗はログに記録して継続する。
func (p *Processor) CleanupOldImages(daysOld int) int {
	start := time.Now()
	if daysOld <= 0 {
		daysOld = DefaultRetentionDays
	}
	cutoff := p.now().AddDate(0, 0, -daysOld)

	entries, err := os.ReadDir(p.paths.ProcessedDir)
	if err != nil {
		p.logger.Warn("加工済みディレクトリの読み取りに失敗しました", slog.String("error", err.Error()))
		p.recordOp("cleanup", err, start)
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(p.paths.ProcessedDir, entry.Name())
		if err := os.Remove(path); err != nil {
			p.logger.Warn("古い画像の削除に失敗しました", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	p.logger.Info("古い画像を削除しました",
		slog.Int("deleted", deleted),
		slog.Int("days_old", daysOld),
	)
	p.recordOp("cleanup", nil, start)
	return deleted
}

// GetStorageStats は2つの画像ディレクトリを並行に走査して件数と合計サイズを返す。
// 読み取れないディレクトリは0件として扱う。
func (p *Processor) GetStorageStats(ctx context.Context) StorageStats {
	type dirStats struct {
		count int
		size  int64
	}
	var processed, original dirStats

	g, _ := errgroup.WithContext(ctx)
	scan := func(dir string, out *dirStats) func() error {
		return func() error {
			count, size, err := scanDir(dir)
			if err != nil {
				p.logger.Warn("画像ディレクトリの走査に失敗しました", slog.String("dir", dir), slog.String("error", err.Error()))
				return nil
			}
			*out = dirStats{count: count, size: size}
			return nil
		}
	}
	g.Go(scan(p.paths.ProcessedDir, &processed))
	g.Go(scan(p.paths.OriginalDir, &original))
	_ = g.Wait()

	total := processed.size + original.size
	return StorageStats{
		ProcessedCount: processed.count,
		OriginalCount:  original.count,
		TotalSize:      total,
		TotalSizeHuman: humanize.Bytes(uint64(total)),
	}
}

func scanDir(dir string) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}
	var (
		count int
		size  int64
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		size += info.Size()
	}
	return count, size, nil
}

func (p *Processor) recordOp(op string, err error, start time.Time) {
	p.observe(op, start, &err)
}

func baseName(path string) string {
	return filepath.Base(path)
}
