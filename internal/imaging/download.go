package imaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/hitoshi/resaleman/internal/model"
)

// downloadTimeout は画像ダウンロードのタイムアウト。
const downloadTimeout = 30 * time.Second

// URLGuard はダウンロード先URLの検証と安全なHTTPクライアントを提供する。
// security.SSRFGuardが満たす。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Downloader はURLから画像を取得して元画像ディレクトリに保存する。
type Downloader struct {
	processor *Processor
	guard     URLGuard
	maxBytes  int64
	userAgent string
}

// NewDownloader はDownloaderを生成する。maxBytesは受け付ける最大サイズ。
func NewDownloader(processor *Processor, guard URLGuard, maxBytes int64) *Downloader {
	return &Downloader{
		processor: processor,
		guard:     guard,
		maxBytes:  maxBytes,
		userAgent: "Resaleman/1.0",
	}
}

// ImportFromURL はURLの画像をダウンロードして元画像として保存し、保存先パスを返す。
// 画像以外のコンテンツや上限サイズを超えるものは拒否する。
func (d *Downloader) ImportFromURL(ctx context.Context, rawURL string) (path string, err error) {
	defer d.processor.observe("import_url", time.Now(), &err)

	if err := d.guard.ValidateURL(rawURL); err != nil {
		return "", model.NewValidationError(fmt.Sprintf("URL is not allowed: %v", err), "url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", model.NewValidationError("invalid URL", "url")
	}
	req.Header.Set("User-Agent", d.userAgent)

	client := d.guard.NewSafeClient(downloadTimeout, d.maxBytes)
	resp, err := client.Do(req)
	if err != nil {
		return "", model.NewImageProcessingError("Failed to download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.NewImageProcessingError(fmt.Sprintf("Failed to download image: HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return "", model.NewImageProcessingError("Failed to download image", err)
	}
	if int64(len(body)) > d.maxBytes {
		return "", model.NewValidationError(fmt.Sprintf("image exceeds %d bytes", d.maxBytes), "url")
	}

	// Content-Typeではなく実データで判定する
	mtype := mimetype.Detect(body)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", model.NewValidationError(fmt.Sprintf("downloaded content is not an image: %s", mtype.String()), "url")
	}

	dest := filepath.Join(d.processor.paths.OriginalDir, uuid.NewString()+mtype.Extension())
	if err := copyToFile(dest, bytes.NewReader(body)); err != nil {
		return "", model.NewImageProcessingError("Failed to save downloaded image", err)
	}

	d.processor.logger.Info("画像を取り込みました",
		slog.String("url", rawURL),
		slog.String("path", dest),
		slog.Int("bytes", len(body)),
	)
	return dest, nil
}
