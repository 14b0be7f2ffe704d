package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/heic"

	"github.com/hitoshi/resaleman/internal/model"
)

// displayQuality はHEIC表示用に変換するJPEGの品質。
const displayQuality = 60

// ImageInfo は画像ファイルのメタデータ。
type ImageInfo struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"sizeHuman"`
}

// ValidateImage は画像のメタデータから幅と高さが読み取れるかを返す。
// 読み取れない場合もエラーにせずfalseを返す。
func (p *Processor) ValidateImage(path string) bool {
	cfg, _, err := decodeConfig(path)
	if err != nil {
		p.logger.Debug("画像の検証に失敗しました", "path", path, "error", err)
		return false
	}
	return cfg.Width > 0 && cfg.Height > 0
}

// GetImageInfo は画像のサイズ・フォーマット・MIMEタイプ・ファイルサイズを返す。
func (p *Processor) GetImageInfo(path string) (*ImageInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to get image info", err)
	}
	cfg, format, err := decodeConfig(path)
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to get image info", err)
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to get image info", err)
	}

	return &ImageInfo{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		MimeType:  mtype.String(),
		Size:      stat.Size(),
		SizeHuman: humanize.Bytes(uint64(stat.Size())),
	}, nil
}

func decodeConfig(path string) (image.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()
	return image.DecodeConfig(f)
}

// LoadForDisplay は画像をUI表示用のdata URLとして返す。
// HEIC/HEIFはJPEGに変換する。
func (p *Processor) LoadForDisplay(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", model.NewNotFoundError("File")
		}
		return "", model.NewImageProcessingError("Failed to load image", err)
	}

	if isHEIC(path) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return "", model.NewImageProcessingError("Failed to convert HEIC image", err)
		}
		var buf bytes.Buffer
		if err := encode(&buf, img, model.FormatJPEG, displayQuality); err != nil {
			return "", model.NewImageProcessingError("Failed to convert HEIC image", err)
		}
		return dataURL("image/jpeg", buf.Bytes()), nil
	}

	mtype := mimetype.Detect(data).String()
	if !mimetype.EqualsAny(mtype, "image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff") {
		mtype = "image/jpeg"
	}
	return dataURL(mtype, data), nil
}

func dataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
