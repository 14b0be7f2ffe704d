// Package imaging は商品写真の加工・保存・クリーンアップを提供する。
//
// 加工パイプラインの順序は固定で、メタデータ除去、向き補正、手動回転、切り抜き、
// リサイズ、明るさ・コントラスト調整、ウォーターマーク合成、エンコードの順に適用する。
package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/hitoshi/resaleman/internal/model"
)

// 加工のデフォルト値
const (
	DefaultMaxWidth  = 1200
	DefaultMaxHeight = 1200
	DefaultQuality   = 85
)

// OpRecorder は画像処理の実行結果を記録する。metrics.Collectorが満たす。
type OpRecorder interface {
	RecordImageOp(op string, err error, duration time.Duration)
}

// ProcessedImage は加工結果。
type ProcessedImage struct {
	OriginalPath  string `json:"originalPath"`
	ProcessedPath string `json:"processedPath"`
	FileName      string `json:"fileName"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FileSize      int64  `json:"fileSize"`
	MimeType      string `json:"mimeType"`
}

// Paths は画像の保存先ディレクトリ。
type Paths struct {
	ProcessedDir string `json:"processedDir"`
	OriginalDir  string `json:"originalDir"`
}

// Processor は画像加工サービス。
// 加工済み画像と元画像をそれぞれ専用ディレクトリに保存する。
type Processor struct {
	paths    Paths
	logger   *slog.Logger
	recorder OpRecorder
	now      func() time.Time
}

// NewProcessor はProcessorを生成し、保存先ディレクトリを作成する。
// ディレクトリが既に存在する場合はそのまま使用する。
// recorderはnilでもよい。
func NewProcessor(imagesDir string, logger *slog.Logger, recorder OpRecorder) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		paths: Paths{
			ProcessedDir: filepath.Join(imagesDir, "processed"),
			OriginalDir:  filepath.Join(imagesDir, "original"),
		},
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
	for _, dir := range []string{p.paths.ProcessedDir, p.paths.OriginalDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.NewImageProcessingError("failed to initialize image processor", err)
		}
	}
	logger.Info("画像処理サービスを初期化しました",
		slog.String("processed_dir", p.paths.ProcessedDir),
		slog.String("original_dir", p.paths.OriginalDir),
	)
	return p, nil
}

// Paths は保存先ディレクトリを返す。
func (p *Processor) Paths() Paths {
	return p.paths
}

// ProcessImage は1枚の画像をオプションに従って加工し、加工済みディレクトリに書き出す。
// optsがnilの場合はデフォルト設定で処理する。
func (p *Processor) ProcessImage(ctx context.Context, sourcePath string, opts *model.ProcessingOptions) (result *ProcessedImage, err error) {
	defer p.observe("process", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &model.ProcessingOptions{}
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, model.NewImageProcessingError(fmt.Sprintf("Source image not found: %s", sourcePath), err)
	}

	format, err := parseFormat(opts.Format)
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to process image", err)
	}

	// 再エンコードで EXIF/ICC/XMP は除去される。
	// removeExif=false の場合のみ、JPEG元画像のExifをJPEG出力へ引き継ぐ。
	var exif []byte
	if opts.RemoveEXIF != nil && !*opts.RemoveEXIF {
		if format != model.FormatJPEG {
			return nil, model.NewValidationError("Metadata can only be kept for JPEG output", "removeExif")
		}
		exif, err = readEXIF(sourcePath)
		if err != nil {
			return nil, model.NewImageProcessingError("Failed to process image", err)
		}
	}

	img, err := imaging.Open(sourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to process image", err)
	}

	img = rotate(img, opts.Rotate)

	if opts.Crop != nil {
		img, err = crop(img, *opts.Crop)
		if err != nil {
			return nil, model.NewImageProcessingError("Failed to process image", err)
		}
	}

	img, err = resize(img, opts.Resize)
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to process image", err)
	}

	if opts.Brightness != nil && *opts.Brightness != 0 {
		img = imaging.AdjustBrightness(img, clamp(*opts.Brightness*100, -100, 100))
	}
	if opts.Contrast != nil && *opts.Contrast != 0 {
		img = imaging.AdjustContrast(img, clamp(*opts.Contrast*100, -100, 100))
	}

	if opts.Watermark != nil && opts.Watermark.ImagePath != "" {
		img = p.applyWatermark(img, opts.Watermark)
	}

	quality := normalizeQuality(opts.Quality, DefaultQuality)

	fileName := fmt.Sprintf("%s.%s", uuid.NewString(), format)
	outputPath := filepath.Join(p.paths.ProcessedDir, fileName)
	size, err := writeImage(outputPath, img, format, quality, exif)
	if err != nil {
		return nil, model.NewImageProcessingError("Failed to process image", err)
	}

	bounds := img.Bounds()
	return &ProcessedImage{
		OriginalPath:  sourcePath,
		ProcessedPath: outputPath,
		FileName:      fileName,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		FileSize:      size,
		MimeType:      "image/" + string(format),
	}, nil
}

// CreateThumbnail は指定サイズちょうどに中央で切り抜いたサムネイルをJPEG品質80で作成する。
// width/heightが0以下の場合は200を使用する。
func (p *Processor) CreateThumbnail(ctx context.Context, imagePath string, width, height int) (path string, err error) {
	defer p.observe("thumbnail", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if width <= 0 {
		width = 200
	}
	if height <= 0 {
		height = 200
	}

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return "", model.NewImageProcessingError("Failed to create thumbnail", err)
	}
	thumb := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	outputPath := filepath.Join(p.paths.ProcessedDir, fmt.Sprintf("thumb_%s.jpeg", uuid.NewString()))
	if _, err := writeImage(outputPath, thumb, model.FormatJPEG, 80, nil); err != nil {
		return "", model.NewImageProcessingError("Failed to create thumbnail", err)
	}
	return outputPath, nil
}

// rotate は時計回りにdeg度回転する。直角以外は白で余白を埋める。
func rotate(img image.Image, deg float64) image.Image {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	switch deg {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	// imaging.Rotateは反時計回り
	return imaging.Rotate(img, -deg, color.White)
}

func crop(img image.Image, c model.CropRect) (image.Image, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("invalid crop size %dx%d", c.Width, c.Height)
	}
	b := img.Bounds()
	rect := image.Rect(b.Min.X+c.X, b.Min.Y+c.Y, b.Min.X+c.X+c.Width, b.Min.Y+c.Y+c.Height)
	if c.X < 0 || c.Y < 0 || !rect.In(b) {
		return nil, fmt.Errorf("crop area %v is outside image bounds %v", rect, b)
	}
	return imaging.Crop(img, rect), nil
}

// resize はリサイズ指定を適用する。
// 未指定時とinsideは元画像より大きくしない。cover/fill/containは指定サイズちょうどに出力し、
// containは縦横比を保って枠に合わせた上で余白を白で埋める。
func resize(img image.Image, r *model.ResizeOptions) (image.Image, error) {
	if r == nil {
		return imaging.Fit(img, DefaultMaxWidth, DefaultMaxHeight, imaging.Lanczos), nil
	}
	if r.Width < 0 || r.Height < 0 || (r.Width == 0 && r.Height == 0) {
		return nil, fmt.Errorf("invalid resize target %dx%d", r.Width, r.Height)
	}

	b := img.Bounds()
	switch r.Fit {
	case "", model.FitInside:
		w, h := r.Width, r.Height
		if w == 0 {
			w = b.Dx()
		}
		if h == 0 {
			h = b.Dy()
		}
		return imaging.Fit(img, w, h, imaging.Lanczos), nil
	case model.FitFill:
		return imaging.Resize(img, r.Width, r.Height, imaging.Lanczos), nil
	case model.FitCover:
		w, h := proportional(b, r.Width, r.Height)
		return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos), nil
	case model.FitContain:
		w, h := proportional(b, r.Width, r.Height)
		fw, fh := fitDimensions(b, w, h)
		fitted := imaging.Resize(img, fw, fh, imaging.Lanczos)
		canvas := imaging.New(w, h, color.White)
		return imaging.PasteCenter(canvas, fitted), nil
	default:
		return nil, fmt.Errorf("unsupported resize fit %q", r.Fit)
	}
}

// proportional は片方が0の場合に元画像の縦横比で補完する。
func proportional(b image.Rectangle, w, h int) (int, int) {
	if w == 0 {
		w = int(math.Round(float64(h) * float64(b.Dx()) / float64(b.Dy())))
	}
	if h == 0 {
		h = int(math.Round(float64(w) * float64(b.Dy()) / float64(b.Dx())))
	}
	return max(w, 1), max(h, 1)
}

// fitDimensions は縦横比を保って w×h に収まる最大サイズを返す。
func fitDimensions(b image.Rectangle, w, h int) (int, int) {
	srcRatio := float64(b.Dx()) / float64(b.Dy())
	if float64(w)/float64(h) > srcRatio {
		return max(int(math.Round(float64(h)*srcRatio)), 1), h
	}
	return w, max(int(math.Round(float64(w)/srcRatio)), 1)
}

// applyWatermark はウォーターマーク画像を指定位置に合成する。
// 読み込めない場合は警告を出して合成をスキップする。
func (p *Processor) applyWatermark(img image.Image, wm *model.WatermarkOptions) image.Image {
	mark, err := imaging.Open(wm.ImagePath)
	if err != nil {
		p.logger.Warn("ウォーターマーク画像が見つからないためスキップします",
			slog.String("path", wm.ImagePath),
			slog.String("error", err.Error()),
		)
		return img
	}
	return imaging.Overlay(img, mark, watermarkPoint(img.Bounds(), mark.Bounds(), wm.Position), 1.0)
}

func watermarkPoint(base, mark image.Rectangle, pos model.WatermarkPosition) image.Point {
	right := base.Dx() - mark.Dx()
	bottom := base.Dy() - mark.Dy()
	switch pos {
	case model.PositionCenter:
		return image.Pt(right/2, bottom/2)
	case model.PositionTopLeft:
		return image.Pt(0, 0)
	case model.PositionTopRight:
		return image.Pt(right, 0)
	case model.PositionBottomLeft:
		return image.Pt(0, bottom)
	default:
		return image.Pt(right, bottom)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (p *Processor) observe(op string, start time.Time, errp *error) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordImageOp(op, *errp, time.Since(start))
}
