package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
)

// BridgeTokenHeader はブリッジトークンを送信するリクエストヘッダー名。
const BridgeTokenHeader = "X-Bridge-Token"

// NewBridgeTokenMiddleware はブリッジトークンを検証するミドルウェアを返す。
// ループバックで待ち受けるブリッジを同一端末上の他のプロセスやWebページから
// 呼び出されないよう、状態変更メソッド（POST, PUT, PATCH, DELETE）ではトークンを必須とする。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証しない。
func NewBridgeTokenMiddleware(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(BridgeTokenHeader)
			if got == "" {
				logger.Warn("bridge token validation failed: missing header",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "bridge token is required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.Warn("bridge token validation failed: token mismatch",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "bridge token is invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// GenerateToken は暗号的に安全なブリッジトークンを生成する。
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
