package analysis

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/heic"

	// WebPをimage.DecodeConfigで判定できるように登録する
	_ "github.com/gen2brain/webp"
)

const (
	// maxRawImageBytes を超える画像は縮小・再圧縮する。
	// base64化で約33%増えるため、APIの5MB上限に収まるよう3.5MBとする。
	maxRawImageBytes = 3.5 * 1024 * 1024
	// maxEncodedBytes はAPIが受け付けるbase64画像の上限。
	maxEncodedBytes = 5 * 1024 * 1024

	compressMaxDimension = 1920
	compressQuality      = 85
	heicQuality          = 90
)

// 前処理で画像を除外した理由
const (
	skipUnreadable = "unreadable"
	skipTooLarge   = "too_large"
)

// imageLimits は前処理で使うサイズ上限。
type imageLimits struct {
	maxRawBytes     int
	maxEncodedBytes int
	maxDimension    int
}

var defaultImageLimits = imageLimits{
	maxRawBytes:     maxRawImageBytes,
	maxEncodedBytes: maxEncodedBytes,
	maxDimension:    compressMaxDimension,
}

// supportedMediaTypes はAPIがそのまま受け付ける画像形式。
var supportedMediaTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// preparedImage はAPIに送信できる形に変換した画像。
type preparedImage struct {
	mediaType string
	data      string // base64
}

// skipError は画像を送信対象から外す理由を持つエラー。
type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string {
	return fmt.Sprintf("%s: %v", e.reason, e.err)
}

func (e *skipError) Unwrap() error {
	return e.err
}

// prepareImage は画像を読み込み、必要に応じてJPEGへの変換と縮小を行ってbase64化する。
func prepareImage(path string) (*preparedImage, error) {
	return prepareImageWithLimits(path, defaultImageLimits)
}

func prepareImageWithLimits(path string, limits imageLimits) (*preparedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &skipError{reason: skipUnreadable, err: err}
	}

	var mediaType string
	switch {
	case isHEIC(path):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &skipError{reason: skipUnreadable, err: fmt.Errorf("decode HEIC: %w", err)}
		}
		if data, err = encodeJPEG(img, heicQuality); err != nil {
			return nil, &skipError{reason: skipUnreadable, err: err}
		}
		mediaType = "image/jpeg"
	default:
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, &skipError{reason: skipUnreadable, err: fmt.Errorf("decode %s: %w", filepath.Base(path), err)}
		}
		mediaType = mimetype.Detect(data).String()
		if !mimetype.EqualsAny(mediaType, supportedMediaTypes...) {
			// BMP/TIFFなどはJPEGに変換する
			img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
			if err != nil {
				return nil, &skipError{reason: skipUnreadable, err: err}
			}
			if data, err = encodeJPEG(img, compressQuality); err != nil {
				return nil, &skipError{reason: skipUnreadable, err: err}
			}
			mediaType = "image/jpeg"
		}
	}

	if len(data) > limits.maxRawBytes {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, &skipError{reason: skipUnreadable, err: err}
		}
		img = imaging.Fit(img, limits.maxDimension, limits.maxDimension, imaging.Lanczos)
		if data, err = encodeJPEG(img, compressQuality); err != nil {
			return nil, &skipError{reason: skipUnreadable, err: err}
		}
		mediaType = "image/jpeg"
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) > limits.maxEncodedBytes {
		return nil, &skipError{
			reason: skipTooLarge,
			err:    fmt.Errorf("%s after compression", humanize.Bytes(uint64(len(encoded)))),
		}
	}
	return &preparedImage{mediaType: mediaType, data: encoded}, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func isHEIC(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".heic" || ext == ".heif"
}
