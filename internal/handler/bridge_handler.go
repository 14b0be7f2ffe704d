package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/resaleman/internal/dispatch"
	"github.com/hitoshi/resaleman/internal/middleware"
)

// MaxInvokeBodyBytes は/invokeのリクエストボディの上限。
const MaxInvokeBodyBytes = 8 << 20

// Invoker はブリッジが必要とするディスパッチャーのインターフェース。
type Invoker interface {
	Has(channel string) bool
	Channels() []string
	Invoke(ctx context.Context, channel string, args dispatch.Args) dispatch.Envelope
}

// HealthChecker はDB接続の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// BridgeHandler はデスクトップUIからのチャネル呼び出しを受け付けるHTTPハンドラー。
type BridgeHandler struct {
	invoker Invoker
	health  HealthChecker
	logger  *slog.Logger
}

// NewBridgeHandler はBridgeHandlerを生成する。
func NewBridgeHandler(invoker Invoker, health HealthChecker, logger *slog.Logger) *BridgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BridgeHandler{
		invoker: invoker,
		health:  health,
		logger:  logger,
	}
}

// channelsResponse は登録済みチャネル一覧のレスポンス。
type channelsResponse struct {
	Channels []string `json:"channels"`
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// Invoke はチャネルを呼び出し、Envelopeをそのまま返す。
// POST /invoke/{channel}
//
// ボディは位置引数のJSON配列。空ボディは引数なしとして扱う。
// エンドポイントの失敗はHTTP 200の success:false で返し、
// トランスポート層の失敗（不正なJSON、未登録チャネル）のみHTTPエラーにする。
func (h *BridgeHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !h.invoker.Has(channel) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "UNKNOWN_CHANNEL", "Unknown endpoint: "+channel)
		return
	}

	args, err := readArgs(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body is too large")
			return
		}
		h.logger.Warn("invalid invoke arguments",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENTS", "request body must be a JSON array")
		return
	}

	writeJSON(w, http.StatusOK, h.invoker.Invoke(r.Context(), channel, args))
}

// ListChannels は登録済みチャネル名を辞書順で返す。
// GET /channels
func (h *BridgeHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, channelsResponse{Channels: h.invoker.Channels()})
}

// Health はDBへの疎通を確認する。
// GET /health
func (h *BridgeHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.PingContext(r.Context()); err != nil {
			h.logger.Error("health check failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database is unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func readArgs(w http.ResponseWriter, r *http.Request) (dispatch.Args, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxInvokeBodyBytes))
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var args dispatch.Args
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
