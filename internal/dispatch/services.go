package dispatch

import (
	"context"
	"time"

	"github.com/hitoshi/resaleman/internal/analysis"
	"github.com/hitoshi/resaleman/internal/imaging"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

// ImageService はimage:*エンドポイントが必要とする画像加工サービス。
// imaging.Processorが満たす。
type ImageService interface {
	ProcessImage(ctx context.Context, sourcePath string, opts *model.ProcessingOptions) (*imaging.ProcessedImage, error)
	BatchProcess(ctx context.Context, sourcePaths []string, opts *model.ProcessingOptions, onProgress func(imaging.Progress)) ([]*imaging.ProcessedImage, error)
	OptimizeForPlatform(ctx context.Context, imagePath, platform string) (string, error)
	CreateThumbnail(ctx context.Context, imagePath string, width, height int) (string, error)
	GetImageInfo(path string) (*imaging.ImageInfo, error)
	ValidateImage(path string) bool
	SaveOriginal(sourcePath string) (string, error)
	DeleteProcessed(path string)
	DeleteOriginal(path string)
	CleanupOldImages(daysOld int) int
	GetStorageStats(ctx context.Context) imaging.StorageStats
	LoadForDisplay(path string) (string, error)
	Paths() imaging.Paths
}

// URLImporter はURLの画像を元画像として取り込む。imaging.Downloaderが満たす。
type URLImporter interface {
	ImportFromURL(ctx context.Context, rawURL string) (string, error)
}

// Analyzer はAI画像分析サービス。analysis.Serviceが満たす。
type Analyzer interface {
	IsReady() bool
	AnalyzeImages(ctx context.Context, imagePaths []string, corrections *analysis.UserCorrections) (*analysis.ItemAnalysis, error)
}

// JobQueue はジョブの投入を行う。jobs.Runnerが満たす。
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, listingID *int64, at time.Time) (*model.ScheduledJob, error)
}

// SystemPaths はsystem:getPathsで返すディレクトリ。
type SystemPaths struct {
	UserData  string `json:"userData"`
	Documents string `json:"documents"`
	Downloads string `json:"downloads"`
	Pictures  string `json:"pictures"`
}

// Services はエンドポイントから呼び出す依存関係をまとめた構造体。
// アプリケーション起動時に一度だけ組み立てて渡す。
type Services struct {
	Items     repository.ItemRepository
	Images    repository.ImageRepository
	Listings  repository.ListingRepository
	Platforms repository.PlatformRepository
	Templates repository.TemplateRepository
	Analytics repository.AnalyticsRepository
	Jobs      repository.JobRepository

	JobQueue JobQueue
	Imaging  ImageService
	Importer URLImporter
	AI       Analyzer

	Version string
	Paths   SystemPaths
}

// RegisterAll はServicesの全操作をエンドポイントとして登録する。
func RegisterAll(d *Dispatcher, s *Services) {
	registerItems(d, s.Items)
	registerImages(d, s.Images)
	registerListings(d, s.Listings)
	registerPlatforms(d, s.Platforms)
	registerTemplates(d, s.Templates)
	registerAnalytics(d, s.Analytics)
	registerImageService(d, s.Imaging, s.Importer)
	registerClaude(d, s.AI)
	registerJobs(d, s.Jobs, s.JobQueue)
	registerSystem(d, s)
}
