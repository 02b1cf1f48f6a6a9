package shared

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RedisClient struct {
	client           *redis.Client
	mu               sync.RWMutex
	done             chan struct{}
	url              string
	options          *redis.Options
	retryCount       int
	keepliveInterval time.Duration
	logger           zerolog.Logger
}

const (
	redisCurrentPricePrefix = "price:current:"
	redisLockPrefix         = "lock:"
	currentPriceTTL         = 5 * time.Minute
)

// 只删除自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(cfg *koanf.Koanf, logger zerolog.Logger) *RedisClient {
	url := cfg.String("redis.url")
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Panic().Err(err).Msg("invalid redis.url")
	}

	return &RedisClient{
		options:          opts,
		logger:           logger,
		url:              url,
		retryCount:       cfg.Int("redis.retry-count"),
		keepliveInterval: cfg.Duration("redis.keeplive-interval"),
	}
}

func (r *RedisClient) getClient() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

func (r *RedisClient) reconnect() {
	r.mu.Lock()
	// Close 之后不再重连
	if r.done == nil {
		r.mu.Unlock()
		return
	}
	old := r.client
	r.client = redis.NewClient(r.options)
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

func (r *RedisClient) keeplive(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-time.After(r.keepliveInterval):
		}

		for i := 1; i <= r.retryCount; i++ {
			_, err := r.getClient().Ping(context.Background()).Result()
			if err == nil {
				break
			}
			if i == r.retryCount {
				r.logger.Error().Err(err).Msgf("Failed to reach Redis after %d attempts", i)
				break
			}

			r.logger.Warn().Err(err).Msgf("Failed to reach Redis, reconnecting (%d)...", i)
			r.reconnect()
		}
	}
}

func (r *RedisClient) Connect() {
	done := make(chan struct{})
	r.mu.Lock()
	r.done = done
	r.mu.Unlock()

	r.reconnect()
	go r.keeplive(done)
}

func (r *RedisClient) Close() error {
	r.mu.Lock()
	client, done := r.client, r.done
	r.done = nil
	r.mu.Unlock()

	if done != nil {
		close(done)
	}
	if client == nil {
		return nil
	}
	return client.Close()
}

// AcquireLock 获取分布式锁, 返回本次持有者的 token
func (r *RedisClient) AcquireLock(lockKey string, ttl time.Duration) (string, bool) {
	ctx := context.Background()
	token := uuid.NewString()
	ok, err := r.getClient().SetNX(ctx, redisLockPrefix+lockKey, token, ttl).Result()
	if err != nil {
		r.logger.Debug().Err(err).Msg("获取锁失败 key:" + lockKey)
		return "", false
	}
	if !ok {
		r.logger.Debug().Msg("任务已经被其他实例锁定 key:" + lockKey)
		return "", false
	}
	return token, true
}

func (r *RedisClient) ReleaseLock(lockKey string, token string) {
	ctx := context.Background()
	if err := releaseLockScript.Run(ctx, r.getClient(), []string{redisLockPrefix + lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn().Err(err).Msg("释放锁失败 key:" + lockKey)
	}
}

func (r *RedisClient) SetCurrentPriceCache(coinID string, price string) error {
	return r.getClient().Set(context.Background(), redisCurrentPricePrefix+coinID, price, currentPriceTTL).Err()
}

// GetCurrentPriceCache 缓存不存在时返回 redis.Nil
func (r *RedisClient) GetCurrentPriceCache(coinID string) (string, error) {
	return r.getClient().Get(context.Background(), redisCurrentPricePrefix+coinID).Result()
}
