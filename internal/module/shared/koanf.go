package shared

import (
	"log"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "launch_watcher_"

// DefaultValues 默认配置，yaml 与环境变量会覆盖这里的值
func DefaultValues() map[string]interface{} {
	return map[string]interface{}{
		"app.name":                         "launch-watcher",
		"app.host":                         ":8080",
		"app.idle-timeout":                 50 * time.Second,
		"app.prefork":                      false,
		"app.production":                   false,
		"logger.time-format":               time.RFC3339,
		"logger.level":                     1,
		"redis.keeplive-interval":          30 * time.Second,
		"redis.retry-count":                3,
		"amqp.enabled":                     false,
		"amqp.exchange":                    "launch-watcher",
		"amqp.exchange-type":               "topic",
		"amqp.keeplive-interval":           30 * time.Second,
		"amqp.retry-count":                 3,
		"chain.chain-id":                   1,
		"chain.factory-address":            "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
		"chain.base-token-address":         "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"chain.base-token-decimals":        18,
		"etherscan.url":                    "https://api.etherscan.io/api",
		"etherscan.rate-limit":             5,
		"dexscreener.url":                  "https://api.dexscreener.com",
		"dexscreener.chain":                "ethereum",
		"dexscreener.rate-limit":           4,
		"coingecko.url":                    "https://api.coingecko.com/api/v3",
		"chainbase.url":                    "https://api.chainbase.online/v1",
		"telegram.channel-username":        "dumbtokens",
		"slack.channel":                    "#launch-watcher-alert",
		"pipeline.cooldown":                60 * time.Second,
		"pipeline.batch-size":              30,
		"pipeline.abi-max-retries":         5,
		"pipeline.abi-initial-delay":       time.Second,
		"pipeline.http-timeout":            15 * time.Second,
		"scheduler.initial-price-interval": 3 * time.Minute,
		"scheduler.rug-pull-interval":      30 * time.Minute,
		"scheduler.daily-report-time":      "23:59",
		"api.rate-limit":                   2,
		"api.burst":                        5,
	}
}

func NewKoanfInstance() *koanf.Koanf {
	k := koanf.New(".")

	// 使用 confmap provider 加载默认值。
	if err := k.Load(confmap.Provider(DefaultValues(), "."), nil); err != nil {
		log.Fatalf("error loading default values: %v", err)
	}

	// 加载本地配置文件
	if err := k.Load(file.Provider("config/default.yaml"), yaml.Parser()); err != nil {
		log.Panicf("Error loading default config: %v", err)
	}
	log.Println("Load local config!")

	// 加载环境变量并合并到已加载的配置中。
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		log.Panicf("Error loading env: %v", err)
	}

	return k
}

// envKey 去掉前缀, 并将 _ 替换为 .
// launch_watcher_telegram_chat-id -> telegram.chat-id
func envKey(s string, v string) (string, interface{}) {
	key := strings.Replace(strings.TrimPrefix(strings.ToLower(s), envPrefix), "_", ".", -1)

	// 如果值中包含空格，将值拆分成一个切片
	if strings.Contains(v, " ") {
		return key, strings.Split(v, " ")
	}
	return key, v
}
