package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRetriesExhausted = errors.New("operation failed after maximum retries")

const (
	DefaultMaxRetries   = 5
	DefaultInitialDelay = time.Second
)

// SleepFunc 等待 d, ctx 取消时提前返回
type SleepFunc func(ctx context.Context, d time.Duration) error

// Backoff 指数退避重试: 第 n 次失败后等待 InitialDelay*2^n
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	Sleep        SleepFunc
}

func NewBackoff(maxRetries int, initialDelay time.Duration) *Backoff {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	return &Backoff{
		MaxRetries:   maxRetries,
		InitialDelay: initialDelay,
		Sleep:        SleepContext,
	}
}

// Delay 返回第 attempt 次失败后的等待时间, attempt 从 0 开始
func (b *Backoff) Delay(attempt int) time.Duration {
	return b.InitialDelay * time.Duration(1<<uint(attempt))
}

// Retry 执行 op 直到成功或用完重试次数。
// 最后一次失败后不再等待, 直接返回包含最后一次错误的 ErrRetriesExhausted。
func Retry[T any](ctx context.Context, b *Backoff, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	sleep := b.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 0; attempt < b.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == b.MaxRetries-1 {
			break
		}
		if err := sleep(ctx, b.Delay(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w (%d attempts): %w", ErrRetriesExhausted, b.MaxRetries, lastErr)
}

func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
