package dispatch

import (
	"context"
	"log/slog"

	"github.com/hitoshi/resaleman/internal/analysis"
	"github.com/hitoshi/resaleman/internal/imaging"
	"github.com/hitoshi/resaleman/internal/model"
)

// batchResult はimage:batchProcessの戻り値。
type batchResult struct {
	Results []*imaging.ProcessedImage `json:"results"`
	Total   int                       `json:"total"`
	Failed  int                       `json:"failed"`
}

func registerImageService(d *Dispatcher, svc ImageService, importer URLImporter) {
	d.Register("image:process", func(ctx context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		opts, err := processingOptions(args, 1)
		if err != nil {
			return nil, err
		}
		return svc.ProcessImage(ctx, path, opts)
	})
	d.Register("image:batchProcess", func(ctx context.Context, args Args) (any, error) {
		var paths []string
		if err := args.Decode(0, &paths); err != nil {
			return nil, err
		}
		opts, err := processingOptions(args, 1)
		if err != nil {
			return nil, err
		}
		results, err := svc.BatchProcess(ctx, paths, opts, func(p imaging.Progress) {
			d.logger.Debug("batch progress",
				slog.Int("completed", p.Completed),
				slog.Int("total", p.Total),
				slog.String("current_file", p.CurrentFile),
			)
		})
		if err != nil {
			return nil, err
		}
		return &batchResult{Results: results, Total: len(paths), Failed: len(paths) - len(results)}, nil
	})
	d.Register("image:optimizeForPlatform", func(ctx context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		platform, err := args.String(1)
		if err != nil {
			return nil, err
		}
		return svc.OptimizeForPlatform(ctx, path, platform)
	})
	d.Register("image:createThumbnail", func(ctx context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		width, err := args.IntOr(1, 0)
		if err != nil {
			return nil, err
		}
		height, err := args.IntOr(2, 0)
		if err != nil {
			return nil, err
		}
		return svc.CreateThumbnail(ctx, path, width, height)
	})
	d.Register("image:getInfo", func(_ context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return svc.GetImageInfo(path)
	})
	d.Register("image:validate", func(_ context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return svc.ValidateImage(path), nil
	})
	d.Register("image:saveOriginal", func(_ context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return svc.SaveOriginal(path)
	})
	d.Register("image:deleteProcessed", func(_ context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		svc.DeleteProcessed(path)
		return nil, nil
	})
	d.Register("image:deleteOriginal", func(_ context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		svc.DeleteOriginal(path)
		return nil, nil
	})
	d.Register("image:cleanupOld", func(_ context.Context, args Args) (any, error) {
		days, err := args.IntOr(0, imaging.DefaultRetentionDays)
		if err != nil {
			return nil, err
		}
		return svc.CleanupOldImages(days), nil
	})
	d.Register("image:getStorageStats", func(ctx context.Context, _ Args) (any, error) {
		return svc.GetStorageStats(ctx), nil
	})
	d.Register("image:loadForDisplay", func(_ context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return svc.LoadForDisplay(path)
	})
	d.Register("image:getPaths", func(context.Context, Args) (any, error) {
		return svc.Paths(), nil
	})
	d.Register("image:importFromUrl", func(ctx context.Context, args Args) (any, error) {
		rawURL, err := args.String(0)
		if err != nil {
			return nil, err
		}
		if importer == nil {
			return nil, model.NewValidationError("URL import is not available", "url")
		}
		return importer.ImportFromURL(ctx, rawURL)
	})
}

func processingOptions(args Args, i int) (*model.ProcessingOptions, error) {
	var opts model.ProcessingOptions
	found, err := args.Optional(i, &opts)
	if err != nil || !found {
		return nil, err
	}
	return &opts, nil
}

func registerClaude(d *Dispatcher, ai Analyzer) {
	d.Register("claude:isConfigured", func(context.Context, Args) (any, error) {
		return ai != nil && ai.IsReady(), nil
	})
	d.Register("claude:analyzeImages", func(ctx context.Context, args Args) (any, error) {
		if ai == nil || !ai.IsReady() {
			return nil, model.NewAINotConfiguredError()
		}
		var paths []string
		if err := args.Decode(0, &paths); err != nil {
			return nil, err
		}
		var corrections analysis.UserCorrections
		found, err := args.Optional(1, &corrections)
		if err != nil {
			return nil, err
		}
		if !found {
			return ai.AnalyzeImages(ctx, paths, nil)
		}
		return ai.AnalyzeImages(ctx, paths, &corrections)
	})
}
