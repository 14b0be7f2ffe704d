package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/resaleman/internal/analysis"
	"github.com/hitoshi/resaleman/internal/config"
	"github.com/hitoshi/resaleman/internal/database"
	"github.com/hitoshi/resaleman/internal/dispatch"
	"github.com/hitoshi/resaleman/internal/imaging"
	"github.com/hitoshi/resaleman/internal/metrics"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
	"github.com/hitoshi/resaleman/internal/security"
	"github.com/hitoshi/resaleman/internal/worker/cleanup"
	"github.com/hitoshi/resaleman/internal/worker/jobs"
)

// Version はビルド時に -ldflags "-X github.com/hitoshi/resaleman/internal/app.Version=..." で上書きする。
var Version = "0.1.0-dev"

// components は起動時に一度だけ組み立てる依存関係。
type components struct {
	db         *sql.DB
	jobRepo    repository.JobRepository
	registry   *prometheus.Registry
	dispatcher *dispatch.Dispatcher
	runner     *jobs.Runner
	cleanup    *cleanup.CleanupJob

	// maintenance はcleanupコマンドで直接実行する保守ジョブ。
	maintenance map[string]jobs.Handler
}

// Close はDB接続を閉じる。
func (c *components) Close() error {
	return c.db.Close()
}

// buildComponents はDB接続を開き、スキーマを確保してから全依存関係をワイヤリングする。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	// 1. DB接続
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx, db, cfg.DatabasePath, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 2. リポジトリの初期化
	items := repository.NewSQLiteItemRepo(db)
	images := repository.NewSQLiteImageRepo(db)
	listings := repository.NewSQLiteListingRepo(db)
	platforms := repository.NewSQLitePlatformRepo(db)
	templates := repository.NewSQLiteTemplateRepo(db)
	analytics := repository.NewSQLiteAnalyticsRepo(db)
	jobRepo := repository.NewSQLiteJobRepo(db)

	// 3. メトリクスとセキュリティ
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. サービスの初期化
	processor, err := imaging.NewProcessor(cfg.ImagesDir, logger, collector)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize image processor: %w", err)
	}
	downloader := imaging.NewDownloader(processor, ssrfGuard, cfg.DownloadMaxBytes)

	ai := analysis.NewService(analysis.Config{
		APIKey:  cfg.AnthropicAPIKey,
		Model:   cfg.AnthropicModel,
		BaseURL: cfg.AnthropicBaseURL,
		Timeout: cfg.AITimeout,
	}, sanitizer, collector, logger)

	// 5. ジョブランナー
	runner := jobs.NewRunner(jobRepo, collector, logger, cfg.JobMaxConcurrency, cfg.JobMaxAttempts)

	maintenance := map[string]jobs.Handler{
		model.JobTypeImageCleanup:   jobs.NewImageCleanupHandler(processor, cfg.ImageRetentionDays, logger),
		model.JobTypeAnalyticsPrune: jobs.NewAnalyticsPruneHandler(analytics, cfg.AnalyticsRetentionDays, logger),
		model.JobTypeListingExpire:  jobs.NewListingExpireHandler(listings, time.Now, logger),
	}
	for jobType, h := range maintenance {
		runner.Register(jobType, h)
	}

	publisher := jobs.NewHTTPPublisher(ssrfGuard.NewSafeClient(cfg.PublishTimeout, 0), logger)
	runner.Register(model.JobTypeListingPublish, jobs.NewPublishHandler(
		listings, items, images, platforms, analytics, publisher, logger,
	))

	cleanupJob := cleanup.NewCleanupJob(jobRepo, runner, logger)
	cleanupJob.RetentionDays = cfg.JobRetentionDays

	// 6. ディスパッチャー
	d := dispatch.New(logger, collector)
	dispatch.RegisterAll(d, &dispatch.Services{
		Items:     items,
		Images:    images,
		Listings:  listings,
		Platforms: platforms,
		Templates: templates,
		Analytics: analytics,
		Jobs:      jobRepo,
		JobQueue:  runner,
		Imaging:   processor,
		Importer:  downloader,
		AI:        ai,
		Version:   Version,
		Paths:     systemPaths(cfg.DataDir),
	})

	logger.Info("components initialized",
		slog.Int("channels", len(d.Channels())),
		slog.Any("job_types", runner.JobTypes()),
		slog.Bool("ai_ready", ai.IsReady()),
	)

	return &components{
		db:          db,
		jobRepo:     jobRepo,
		registry:    registry,
		dispatcher:  d,
		runner:      runner,
		cleanup:     cleanupJob,
		maintenance: maintenance,
	}, nil
}

// systemPaths はsystem:getPathsで返すディレクトリを組み立てる。
// ホームディレクトリが取得できない場合はデータディレクトリ以外を空にする。
func systemPaths(dataDir string) dispatch.SystemPaths {
	paths := dispatch.SystemPaths{UserData: dataDir}
	home, err := os.UserHomeDir()
	if err != nil {
		return paths
	}
	paths.Documents = filepath.Join(home, "Documents")
	paths.Downloads = filepath.Join(home, "Downloads")
	paths.Pictures = filepath.Join(home, "Pictures")
	return paths
}
