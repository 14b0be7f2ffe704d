package model

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AppError はアプリケーション共通のエラーを表す。
// 種別コードとHTTP相当のステータスコードを持つ。ステータスコードは分類用で、
// ローカルブリッジのHTTPステータスには使用しない。
type AppError struct {
	Code    string // エラー種別コード
	Message string // UIに表示するメッセージ
	Status  int    // 分類用ステータスコード

	Field       string        // ValidationErrorの対象フィールド
	Platform    string        // PlatformError/AuthenticationError/RateLimitErrorの対象プラットフォーム
	Recoverable bool          // 再試行で回復しうるか
	RetryAfter  time.Duration // RateLimitErrorの待機時間ヒント（0は指定なし）

	Err error // 原因となったエラー
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *AppError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeImageProcessing = "IMAGE_PROCESSING_ERROR"
	ErrCodePlatform        = "PLATFORM_ERROR"
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeAuthentication  = "AUTHENTICATION_ERROR"
	ErrCodeRateLimit       = "RATE_LIMIT_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAINotConfigured = "AI_NOT_CONFIGURED"
	ErrCodeAIParse         = "AI_PARSE_ERROR"
	ErrCodeAIRequest       = "AI_REQUEST_ERROR"
)

// NewImageProcessingError は画像加工・ファイル操作の失敗を表すエラーを生成する。
func NewImageProcessingError(message string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeImageProcessing,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     cause,
	}
}

// NewPlatformError はマーケットプレイス固有の失敗を表すエラーを生成する。
func NewPlatformError(message, platform string, recoverable bool) *AppError {
	return &AppError{
		Code:        ErrCodePlatform,
		Message:     message,
		Status:      http.StatusInternalServerError,
		Platform:    platform,
		Recoverable: recoverable,
	}
}

// NewDatabaseError はストレージ層の失敗を表すエラーを生成する。
func NewDatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeDatabase,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     cause,
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(message, field string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
		Field:   field,
	}
}

// NewAuthenticationError はプラットフォーム認証の失敗を表すエラーを生成する。
func NewAuthenticationError(message, platform string) *AppError {
	return &AppError{
		Code:     ErrCodeAuthentication,
		Message:  message,
		Status:   http.StatusUnauthorized,
		Platform: platform,
	}
}

// NewRateLimitError はレート制限超過を表すエラーを生成する。
// retryAfterが0の場合は待機時間のヒントなし。
func NewRateLimitError(message, platform string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:        ErrCodeRateLimit,
		Message:     message,
		Status:      http.StatusTooManyRequests,
		Platform:    platform,
		Recoverable: true,
		RetryAfter:  retryAfter,
	}
}

// NewNotFoundError はエンティティ未検出エラーを生成する。
// entityには "Item" や "Platform" などのエンティティ名を指定する。
func NewNotFoundError(entity string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: entity + " not found",
		Status:  http.StatusNotFound,
	}
}

// NewAINotConfiguredError はAI分析サービス未設定エラーを生成する。
func NewAINotConfiguredError() *AppError {
	return &AppError{
		Code:    ErrCodeAINotConfigured,
		Message: "AI analysis is not configured. Set ANTHROPIC_API_KEY in the environment or the .env file in the data directory.",
		Status:  http.StatusServiceUnavailable,
	}
}

// NewAIParseError はAI応答の解析失敗エラーを生成する。
func NewAIParseError(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeAIParse,
		Message: "Failed to parse AI response. Please try again.",
		Status:  http.StatusBadGateway,
		Err:     cause,
	}
}

// NewAIRequestError はAI APIの呼び出し失敗エラーを生成する。
func NewAIRequestError(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeAIRequest,
		Message: "Failed to analyze images",
		Status:  http.StatusBadGateway,
		Err:     cause,
	}
}

// CodeOf はエラーチェーン中のAppErrorの種別コードを返す。
// AppErrorを含まない場合は空文字列を返す。
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRecoverable はエラーが再試行で回復しうるかを返す。
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// RetryAfterOf はRateLimitErrorが持つ待機時間のヒントを返す。
func RetryAfterOf(err error) (time.Duration, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeRateLimit && appErr.RetryAfter > 0 {
		return appErr.RetryAfter, true
	}
	return 0, false
}

// IsNotFound はエラーがエンティティ未検出を表すかを返す。
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
