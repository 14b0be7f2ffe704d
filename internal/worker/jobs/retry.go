package jobs

import (
	"time"

	"github.com/hitoshi/resaleman/internal/model"
)

const (
	// initialBackoff は指数バックオフの初回遅延（1分）。
	initialBackoff = time.Minute
	// maxBackoff は指数バックオフの最大遅延（1時間）。
	maxBackoff = time.Hour
)

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 1回目の失敗で1分、以降2倍ずつ増加、最大1時間。
func CalculateBackoff(attempts int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// RetryDelay は失敗したジョブを再実行するまでの待機時間を返す。
// RateLimitErrorが待機時間を指定している場合はバックオフより優先する。
func RetryDelay(err error, attempts int) time.Duration {
	if d, ok := model.RetryAfterOf(err); ok {
		return d
	}
	return CalculateBackoff(attempts)
}

// ShouldRetry は失敗したジョブを再実行するかを判定する。
// 回復可能なエラーで、試行回数が上限に達していない場合のみ再実行する。
func ShouldRetry(err error, attempts, maxAttempts int) bool {
	return model.IsRecoverable(err) && attempts < maxAttempts
}
