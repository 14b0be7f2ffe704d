package model

import "time"

// ProcessingStatus は画像の加工状態を表す。
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// Image は商品に紐づく写真を表す。
// 商品削除時にカスケード削除される。
type Image struct {
	ID                int64              `json:"id"`
	ItemID            int64              `json:"item_id"`
	OriginalPath      string             `json:"original_path"`
	ProcessedPath     string             `json:"processed_path,omitempty"`
	FileName          string             `json:"file_name"`
	FileSize          int64              `json:"file_size,omitempty"`
	MimeType          string             `json:"mime_type,omitempty"`
	Width             int                `json:"width,omitempty"`
	Height            int                `json:"height,omitempty"`
	DisplayOrder      int                `json:"display_order"`
	IsPrimary         bool               `json:"is_primary"`
	ProcessingStatus  ProcessingStatus   `json:"processing_status"`
	ProcessingOptions *ProcessingOptions `json:"processing_options,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ImageUpdate はImageの部分更新で変更可能な項目。
// item_idと作成日時は更新できない。
type ImageUpdate struct {
	OriginalPath      *string            `json:"original_path"`
	ProcessedPath     *string            `json:"processed_path"`
	FileName          *string            `json:"file_name"`
	FileSize          *int64             `json:"file_size"`
	MimeType          *string            `json:"mime_type"`
	Width             *int               `json:"width"`
	Height            *int               `json:"height"`
	DisplayOrder      *int               `json:"display_order"`
	IsPrimary         *bool              `json:"is_primary"`
	ProcessingStatus  *ProcessingStatus  `json:"processing_status"`
	ProcessingOptions *ProcessingOptions `json:"processing_options"`
}

// ImageFormat は出力画像フォーマット。
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWebP ImageFormat = "webp"
)

// ResizeFit はリサイズ時のフィット方法。
type ResizeFit string

const (
	// FitInside はアスペクト比を保ったまま枠内に収める。
	FitInside ResizeFit = "inside"
	// FitCover は枠を埋めるように拡大縮小し、はみ出した部分を中央で切り取る。
	FitCover ResizeFit = "cover"
	// FitContain は枠内に収め、余白を白で埋める。
	FitContain ResizeFit = "contain"
	// FitFill はアスペクト比を無視して枠に合わせる。
	FitFill ResizeFit = "fill"
)

// ResizeOptions はリサイズ指定。
type ResizeOptions struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Fit    ResizeFit `json:"fit,omitempty"`
}

// CropRect は切り抜き範囲。
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WatermarkPosition はウォーターマークの配置位置。
type WatermarkPosition string

const (
	PositionCenter      WatermarkPosition = "center"
	PositionTopLeft     WatermarkPosition = "top-left"
	PositionTopRight    WatermarkPosition = "top-right"
	PositionBottomLeft  WatermarkPosition = "bottom-left"
	PositionBottomRight WatermarkPosition = "bottom-right"
)

// WatermarkOptions はウォーターマーク合成指定。
type WatermarkOptions struct {
	ImagePath string            `json:"imagePath"`
	Position  WatermarkPosition `json:"position,omitempty"`
}

// ProcessingOptions は画像加工パイプラインのオプション。
// 未指定の項目はデフォルト値（JPEG、品質85、1200x1200以内、メタデータ除去）で処理される。
type ProcessingOptions struct {
	Resize     *ResizeOptions    `json:"resize,omitempty"`
	Watermark  *WatermarkOptions `json:"watermark,omitempty"`
	Quality    int               `json:"quality,omitempty"`
	Format     ImageFormat       `json:"format,omitempty"`
	RemoveEXIF *bool             `json:"removeExif,omitempty"`
	Crop       *CropRect         `json:"crop,omitempty"`
	Rotate     float64           `json:"rotate,omitempty"`
	// Brightness は-1.0〜1.0の相対値。0で変化なし。
	Brightness *float64 `json:"brightness,omitempty"`
	// Contrast は正で強調、負で緩和。
	Contrast *float64 `json:"contrast,omitempty"`
}
