package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/resaleman/internal/metrics"
	"github.com/hitoshi/resaleman/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Invoker       Invoker
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger

	// BridgeToken は状態を変更するリクエストに要求する共有トークン。
	BridgeToken string
	// AllowedOrigin が空の場合はCORSヘッダーを付与しない。
	AllowedOrigin string
}

// NewRouter はブリッジのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (/invoke のみ) BridgeToken
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigin))

	h := NewBridgeHandler(deps.Invoker, deps.HealthChecker, logger)

	r.Get("/health", h.Health)
	r.Get("/channels", h.ListChannels)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBridgeTokenMiddleware(deps.BridgeToken, logger))
		r.Post("/invoke/{channel}", h.Invoke)
	})

	return r
}
