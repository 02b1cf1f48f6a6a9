package shared_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 没有 redis 时 keeplive 不断重连, 同时业务调用读取连接
func TestRedisClientReconnectWhileInUse(t *testing.T) {
	cfg := shared.SetupCfg(map[string]interface{}{
		"redis.url":               "redis://127.0.0.1:1/0",
		"redis.keeplive-interval": time.Millisecond,
		"redis.retry-count":       3,
	})
	r := shared.NewRedisClient(cfg, zerolog.Nop())
	r.Connect()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(50 * time.Millisecond)
			for time.Now().Before(deadline) {
				_, ok := r.AcquireLock("reconnect", time.Second)
				assert.False(t, ok)
				_, err := r.GetCurrentPriceCache("ethereum")
				assert.Error(t, err)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, r.Close())

	// 关闭后 keeplive 不再替换连接
	time.Sleep(10 * time.Millisecond)
	_, ok := r.AcquireLock("reconnect", time.Second)
	assert.False(t, ok)
}
