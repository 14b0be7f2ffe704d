package imaging

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"

	"github.com/hitoshi/resaleman/internal/model"

	// HEIC/HEIFとWebPのデコーダーをimage.Decodeに登録する
	_ "github.com/gen2brain/heic"
)

// parseFormat は出力フォーマットを正規化する。空の場合はJPEG。
func parseFormat(f model.ImageFormat) (model.ImageFormat, error) {
	switch strings.ToLower(string(f)) {
	case "", "jpeg", "jpg":
		return model.FormatJPEG, nil
	case "png":
		return model.FormatPNG, nil
	case "webp":
		return model.FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported output format %q", f)
}

// normalizeQuality は品質を1〜100に収める。0以下はdefを使用する。
func normalizeQuality(q, def int) int {
	if q <= 0 {
		return def
	}
	return min(q, 100)
}

// encode はフォーマットに応じてwに書き出す。
func encode(w io.Writer, img image.Image, format model.ImageFormat, quality int) error {
	switch format {
	case model.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case model.FormatWebP:
		return webp.Encode(w, img, webp.Options{Quality: quality})
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}

// writeImage はpathに画像を書き出し、書き込んだサイズを返す。
// exifが空でなければJPEGにExifセグメントを付けて書き出す。
// 失敗時は書きかけのファイルを削除する。
func writeImage(path string, img image.Image, format model.ImageFormat, quality int, exif []byte) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if len(exif) > 0 && format == model.FormatJPEG {
		err = encodeJPEGWithEXIF(bw, img, quality, exif)
	} else {
		err = encode(bw, img, format, quality)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("encode %s: %w", format, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// isHEIC は拡張子からHEIC/HEIFファイルかを判定する。
func isHEIC(path string) bool {
	ext := strings.ToLower(path)
	return strings.HasSuffix(ext, ".heic") || strings.HasSuffix(ext, ".heif")
}
