package startup

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clinicsync/internal/logger"
	redisstorage "github.com/clinicsync/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с экспоненциальными повторами (2s..30s).
// После maxWait возвращает последнюю ошибку: вызывающий решает, падать ли
// или работать с кешем в памяти.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Client, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = maxWait

	connect := func() (*redisstorage.Client, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return redisstorage.New(attemptCtx, redisURL)
	}
	notify := func(err error, wait time.Duration) {
		logger.Errorf("redis connect failed, retry in %v: %v", wait.Round(time.Millisecond), err)
	}
	return backoff.RetryNotifyWithData(connect, backoff.WithContext(b, ctx), notify)
}
