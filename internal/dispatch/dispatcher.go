// Package dispatch はリポジトリとサービスの各操作を名前付きエンドポイントとして公開する。
//
// エンドポイントは "items:create" のような "<ドメイン>:<操作>" 形式のチャネル名で登録し、
// 呼び出し結果は必ずEnvelopeに変換して返す。エラーやpanicがこの層より上に伝播することはない。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

// Endpoint は1つの操作を実行し、Envelopeのdataに入れる値を返す。
type Endpoint func(ctx context.Context, args Args) (any, error)

// FlagEndpoint は真偽値の結果をそのままEnvelopeのsuccessとして返す操作。
// falseの場合もエラーメッセージは付かない。
type FlagEndpoint func(ctx context.Context, args Args) (bool, error)

// Recorder はエンドポイント呼び出しの結果を記録する。metrics.Collectorが満たす。
type Recorder interface {
	RecordDispatch(channel string, success bool, duration time.Duration)
}

// internalErrorMessage はpanic時にUIへ返すメッセージ。詳細はログのみに記録する。
const internalErrorMessage = "Internal error"

type endpoint struct {
	call Endpoint
	flag bool
}

// Dispatcher はチャネル名とエンドポイントの対応を管理する。
// 登録は起動時に行い、Invokeの呼び出し開始後は変更しない。
type Dispatcher struct {
	endpoints map[string]endpoint
	logger    *slog.Logger
	recorder  Recorder
}

// New はDispatcherを生成する。recorderはnilでもよい。
func New(logger *slog.Logger, recorder Recorder) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		endpoints: make(map[string]endpoint),
		logger:    logger,
		recorder:  recorder,
	}
}

// Register はチャネルにエンドポイントを登録する。同名のチャネルが既にある場合はpanicする。
func (d *Dispatcher) Register(channel string, fn Endpoint) {
	d.register(channel, endpoint{call: fn})
}

// RegisterFlag は真偽値を返すエンドポイントを登録する。
func (d *Dispatcher) RegisterFlag(channel string, fn FlagEndpoint) {
	d.register(channel, endpoint{
		call: func(ctx context.Context, args Args) (any, error) {
			return fn(ctx, args)
		},
		flag: true,
	})
}

func (d *Dispatcher) register(channel string, ep endpoint) {
	if _, exists := d.endpoints[channel]; exists {
		panic(fmt.Sprintf("dispatch: duplicate channel %q", channel))
	}
	d.endpoints[channel] = ep
}

// Has はチャネルが登録済みかを返す。
func (d *Dispatcher) Has(channel string) bool {
	_, ok := d.endpoints[channel]
	return ok
}

// Channels は登録済みチャネル名を辞書順で返す。
func (d *Dispatcher) Channels() []string {
	channels := make([]string, 0, len(d.endpoints))
	for ch := range d.endpoints {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Invoke はチャネルのエンドポイントを実行し、結果をEnvelopeで返す。
// 未登録のチャネル、エンドポイントのエラー、panicはいずれも失敗のEnvelopeになる。
func (d *Dispatcher) Invoke(ctx context.Context, channel string, args Args) (env Envelope) {
	start := time.Now()
	defer func() {
		if d.recorder != nil {
			d.recorder.RecordDispatch(channel, env.Success, time.Since(start))
		}
	}()

	ep, found := d.endpoints[channel]
	if !found {
		d.logger.Warn("unknown channel", slog.String("channel", channel))
		return fail("Unknown endpoint: " + channel)
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("endpoint panicked",
				slog.String("channel", channel),
				slog.Any("panic", rec),
			)
			env = fail(internalErrorMessage)
		}
	}()

	data, err := ep.call(ctx, args)
	if err != nil {
		d.logError(channel, err)
		return fail(errorMessage(channel, err))
	}
	if ep.flag {
		success, _ := data.(bool)
		return Envelope{Success: success, Data: success}
	}
	return ok(data)
}

func (d *Dispatcher) logError(channel string, err error) {
	level := slog.LevelError
	code := model.CodeOf(err)
	switch code {
	case model.ErrCodeNotFound, model.ErrCodeValidation, model.ErrCodeAINotConfigured:
		level = slog.LevelWarn
	}
	d.logger.Log(context.Background(), level, "endpoint failed",
		slog.String("channel", channel),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
}

// errorMessage はUIに表示するエラーメッセージを返す。
// AppErrorの場合は原因を含まないメッセージ部分のみを使う。
// それ以外のエラーは詳細をログにのみ残し、チャネル名を含む定型文を返す。
func errorMessage(channel string, err error) string {
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return channel + " failed"
}
