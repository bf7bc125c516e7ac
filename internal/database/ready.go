package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialRetryDelay は接続確認の再試行の初回遅延。
	initialRetryDelay = 500 * time.Millisecond
	// maxRetryDelay は接続確認の再試行の最大遅延。
	maxRetryDelay = 8 * time.Second
	// pingTimeout は1回の接続確認のタイムアウト。
	pingTimeout = 5 * time.Second
)

// Pinger はDBの疎通確認を行う。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RetryDelay は失敗回数に基づいて指数バックオフの遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大8秒。
func RetryDelay(failures int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// WaitForReady はDBが応答するまで最大attempts回接続を確認する。
// コンテナ起動直後などDBの準備が整う前に呼ばれることを想定している。
// attemptsが1未満の場合は1回だけ確認する。
func WaitForReady(ctx context.Context, db Pinger, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := RetryDelay(i)
		slog.Warn("database not ready, retrying",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for database: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("database not ready after %d attempts: %w", attempts, lastErr)
}
