package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hitoshi/resaleman/internal/model"
)

// placeholderAPIKey は.envのサンプル値。未設定として扱う。
const placeholderAPIKey = "your_api_key_here"

// デフォルト値
const (
	DefaultModel     = "claude-3-haiku-20240307"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

// Config はAI分析サービスの設定。
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxTokens  int64
	MaxRetries int
}

// Sanitizer はモデル出力のテキストを無害化する。security.TextSanitizerが満たす。
type Sanitizer interface {
	Sanitize(text string) string
}

// Recorder はAI分析の実行結果を記録する。metrics.Collectorが満たす。
type Recorder interface {
	RecordAIRequest(err error, imageCount int, duration time.Duration)
	RecordAIImageSkipped(reason string)
}

// Service は画像からの商品情報推定サービス。
type Service struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	sanitizer Sanitizer
	recorder  Recorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。APIキーが未設定の場合はIsReadyがfalseを返す。
// sanitizer、recorderはnilでもよい。
func NewService(cfg Config, sanitizer Sanitizer, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" || apiKey == placeholderAPIKey {
		logger.Warn("AI分析は未設定です。ANTHROPIC_API_KEYを設定してください")
		return s
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	s.client = &client

	logger.Info("AI分析サービスを初期化しました", slog.String("model", string(s.model)))
	return s
}

// IsReady はAPIキーが設定されているかを返す。
func (s *Service) IsReady() bool {
	return s.client != nil
}

// AnalyzeImages は最大5枚の画像をモデルに送信し、推定結果を返す。
// 読み込めない画像や縮小後も上限を超える画像はスキップし、1枚も残らない場合のみ失敗する。
// correctionsの項目は結果に必ず反映される。
func (s *Service) AnalyzeImages(ctx context.Context, imagePaths []string, corrections *UserCorrections) (*ItemAnalysis, error) {
	if !s.IsReady() {
		return nil, model.NewAINotConfiguredError()
	}
	if len(imagePaths) == 0 {
		return nil, model.NewValidationError("No images provided for analysis", "imagePaths")
	}
	if len(imagePaths) > MaxImages {
		imagePaths = imagePaths[:MaxImages]
	}

	images := s.prepareImages(imagePaths)
	if len(images) == 0 {
		return nil, model.NewImageProcessingError("Failed to read any images", nil)
	}

	content := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		content = append(content, anthropic.NewImageBlockBase64(img.mediaType, img.data))
	}
	content = append(content, anthropic.NewTextBlock(BuildPrompt(corrections)))

	start := time.Now()
	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(content...)},
	})
	s.record(err, len(images), time.Since(start))
	if err != nil {
		s.logger.Error("AI分析APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("image_count", len(images)),
		)
		return nil, model.NewAIRequestError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(block.Text)
		}
	}

	result, err := ParseResponse(text.String())
	if err != nil {
		s.logger.Error("AI応答の解析に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("response_length", text.Len()),
		)
		return nil, err
	}

	s.sanitize(result)
	ApplyCorrections(result, corrections)

	s.logger.Info("AI分析が完了しました",
		slog.Int("image_count", len(images)),
		slog.String("category", result.Category),
		slog.Int("confidence", result.Confidence),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// prepareImages は送信可能な画像のみを返す。失敗した画像はログに記録してスキップする。
func (s *Service) prepareImages(paths []string) []*preparedImage {
	images := make([]*preparedImage, 0, len(paths))
	for _, path := range paths {
		img, err := prepareImage(path)
		if err != nil {
			reason := skipUnreadable
			var skip *skipError
			if errors.As(err, &skip) {
				reason = skip.reason
			}
			s.logger.Warn("画像をスキップしました",
				slog.String("path", path),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			if s.recorder != nil {
				s.recorder.RecordAIImageSkipped(reason)
			}
			continue
		}
		images = append(images, img)
	}
	return images
}

// sanitize はモデルが返したテキスト項目からHTMLを除去する。
func (s *Service) sanitize(a *ItemAnalysis) {
	if s.sanitizer == nil {
		return
	}
	a.Title = s.sanitizer.Sanitize(a.Title)
	a.Description = s.sanitizer.Sanitize(a.Description)
	a.Brand = s.sanitizer.Sanitize(a.Brand)
	a.Color = s.sanitizer.Sanitize(a.Color)
	a.Size = s.sanitizer.Sanitize(a.Size)
	if a.Title == "" {
		a.Title = defaultTitle
	}
}

func (s *Service) record(err error, imageCount int, d time.Duration) {
	if s.recorder != nil {
		s.recorder.RecordAIRequest(err, imageCount, d)
	}
}
