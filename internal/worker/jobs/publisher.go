package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

const (
	// PublishURLConfigKey はプラットフォーム設定のうち出品APIのURLを持つキー。
	PublishURLConfigKey = "publish_url"
	// maxResponseBytes は出品APIのレスポンスとして読み取る最大サイズ。
	maxResponseBytes = 1 << 20
)

// PublishRequest は出品に必要な情報一式。
type PublishRequest struct {
	Listing  *model.Listing
	Item     *model.Item
	Images   []*model.Image
	Platform *model.Platform
}

// PublishResult は出品成功時にプラットフォームから返される情報。
type PublishResult struct {
	ExternalID  string     `json:"external_id"`
	ExternalURL string     `json:"external_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Publisher は出品をプラットフォームに送信するインターフェース。
// テスト時にモックに差し替え可能。
type Publisher interface {
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

// HTTPPublisher はプラットフォーム設定のpublish_urlに出品内容をPOSTするPublisher。
// auth_dataが設定されている場合はBearerトークンとして送信する。
type HTTPPublisher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPPublisher はHTTPPublisherの新しいインスタンスを生成する。
// httpClientにはSSRF対策済みのクライアントを渡す。
func NewHTTPPublisher(httpClient *http.Client, logger *slog.Logger) *HTTPPublisher {
	return &HTTPPublisher{
		httpClient: httpClient,
		logger:     logger,
	}
}

// publishPayload は出品APIに送信するリクエストボディ。
type publishPayload struct {
	ListingID   int64    `json:"listing_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"price"`
	Currency    string   `json:"currency"`
	Category    string   `json:"category,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Publish は出品内容を送信する。HTTPステータスに応じてエラーの種別を分ける。
//   - 401/403: AuthenticationError
//   - 429: RateLimitError（Retry-Afterヘッダーを待機時間のヒントにする）
//   - 5xx: 回復可能なPlatformError
//   - その他: 回復不能なPlatformError
func (p *HTTPPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	platform := req.Platform.Name
	endpoint, _ := req.Platform.Config[PublishURLConfigKey].(string)
	if endpoint == "" {
		return nil, model.NewPlatformError(
			fmt.Sprintf("Platform %s has no %s configured", platform, PublishURLConfigKey), platform, false)
	}

	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("出品データのエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewPlatformError("Invalid publish URL: "+err.Error(), platform, false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Resaleman/1.0")
	if req.Platform.AuthData != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Platform.AuthData)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("出品APIの呼び出しに失敗しました",
			slog.String("platform", platform),
			slog.String("error", err.Error()),
		)
		// 接続エラーは一時的な障害として再試行対象にする
		pe := model.NewPlatformError("Failed to reach "+platform, platform, true)
		pe.Err = err
		return nil, pe
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		pe := model.NewPlatformError("Failed to read response from "+platform, platform, true)
		pe.Err = err
		return nil, pe
	}

	if err := classifyStatus(resp, platform); err != nil {
		p.logger.Error("出品APIがエラーステータスを返しました",
			slog.String("platform", platform),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, err
	}

	var result PublishResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, model.NewPlatformError("Invalid response from "+platform+": "+err.Error(), platform, false)
	}
	if result.ExternalID == "" {
		return nil, model.NewPlatformError("Response from "+platform+" has no external_id", platform, false)
	}
	return &result, nil
}

func buildPayload(req *PublishRequest) publishPayload {
	l := req.Listing
	payload := publishPayload{
		ListingID:   l.ID,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price.StringFixed(2),
		Currency:    model.DefaultCurrency,
	}
	if item := req.Item; item != nil {
		if payload.Description == "" {
			payload.Description = item.Description
		}
		if item.Currency != "" {
			payload.Currency = item.Currency
		}
		payload.Category = item.Category
		payload.Condition = string(item.Condition)
		payload.Brand = item.Brand
	}
	for _, img := range req.Images {
		path := img.ProcessedPath
		if path == "" {
			path = img.OriginalPath
		}
		payload.Images = append(payload.Images, path)
	}
	return payload
}

// classifyStatus はHTTPステータスをエラー種別に変換する。2xxの場合はnilを返す。
func classifyStatus(resp *http.Response, platform string) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.NewAuthenticationError(fmt.Sprintf("%s rejected the credentials (status %d)", platform, code), platform)
	case code == http.StatusTooManyRequests:
		return model.NewRateLimitError(platform+" rate limit exceeded", platform, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case code >= 500:
		return model.NewPlatformError(fmt.Sprintf("%s returned status %d", platform, code), platform, true)
	default:
		return model.NewPlatformError(fmt.Sprintf("%s returned status %d", platform, code), platform, false)
	}
}

// parseRetryAfter はRetry-Afterヘッダー（秒数またはHTTP日付）を待機時間に変換する。
// 解釈できない場合は0を返す。
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
