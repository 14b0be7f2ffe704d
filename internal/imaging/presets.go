package imaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

// PlatformPreset はマーケットプレイスごとの画像最適化設定。
type PlatformPreset struct {
	Width   int
	Height  int
	Fit     model.ResizeFit
	Format  model.ImageFormat
	Quality int
}

// platformPresets はプラットフォーム名をキーとした最適化設定。
var platformPresets = map[string]PlatformPreset{
	"facebook_marketplace": {Width: 1200, Height: 1200, Fit: model.FitInside, Format: model.FormatJPEG, Quality: 85},
	"ebay":                 {Width: 1600, Height: 1600, Fit: model.FitInside, Format: model.FormatJPEG, Quality: 90},
	"depop":                {Width: 1200, Height: 1200, Fit: model.FitCover, Format: model.FormatJPEG, Quality: 85},
	"poshmark":             {Width: 1280, Height: 1280, Fit: model.FitInside, Format: model.FormatJPEG, Quality: 85},
	"mercari":              {Width: 1200, Height: 1200, Fit: model.FitInside, Format: model.FormatJPEG, Quality: 85},
}

// PresetFor はプラットフォームの最適化設定を返す。
func PresetFor(platform string) (PlatformPreset, bool) {
	preset, ok := platformPresets[platform]
	return preset, ok
}

// OptimizeForPlatform はプラットフォームの推奨サイズ・品質で加工し、加工済みパスを返す。
// 未知のプラットフォームの場合は何も書き出さずに入力パスをそのまま返す。
func (p *Processor) OptimizeForPlatform(ctx context.Context, imagePath, platform string) (string, error) {
	preset, ok := PresetFor(platform)
	if !ok {
		p.logger.Warn("未対応のプラットフォームのため最適化をスキップします", slog.String("platform", platform))
		return imagePath, nil
	}

	result, err := p.ProcessImage(ctx, imagePath, &model.ProcessingOptions{
		Resize:  &model.ResizeOptions{Width: preset.Width, Height: preset.Height, Fit: preset.Fit},
		Format:  preset.Format,
		Quality: preset.Quality,
	})
	if err != nil {
		return "", err
	}
	return result.ProcessedPath, nil
}

// Progress はバッチ処理の進捗。
type Progress struct {
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	CurrentFile string `json:"currentFile,omitempty"`
}

// BatchProcess は複数画像を順番に加工する。
// 個々の失敗はログに記録してスキップし、バッチ全体は継続する。
// onProgressは成否にかかわらず1件処理するごとに呼ばれる。
// ctxがキャンセルされた場合は次のファイルに進まず、それまでの結果とctxのエラーを返す。
func (p *Processor) BatchProcess(ctx context.Context, sourcePaths []string, opts *model.ProcessingOptions, onProgress func(Progress)) ([]*ProcessedImage, error) {
	start := time.Now()
	results := make([]*ProcessedImage, 0, len(sourcePaths))
	failed := 0

	for i, src := range sourcePaths {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		current := src
		result, err := p.ProcessImage(ctx, src, opts)
		if err != nil {
			failed++
			current = "ERROR: " + baseName(src)
			p.logger.Warn("一括加工で画像の処理に失敗しました",
				slog.String("path", src),
				slog.String("error", err.Error()),
			)
		} else {
			results = append(results, result)
		}

		if onProgress != nil {
			onProgress(Progress{Completed: i + 1, Total: len(sourcePaths), CurrentFile: current})
		}
	}

	p.logger.Info("一括加工が完了しました",
		slog.Int("total", len(sourcePaths)),
		slog.Int("succeeded", len(results)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}
