package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

// RequiredKeys 启动前必须配置的项
var RequiredKeys = []string{
	"db.postgres.dsn",
	"redis.url",
	"chain.ws-url",
	"chain.factory-address",
	"chain.base-token-address",
	"etherscan.api-key",
	"telegram.channel-username",
}

// Validate 检查必填配置, 返回缺失的 key
func Validate(cfg *koanf.Koanf, keys ...string) error {
	if len(keys) == 0 {
		keys = RequiredKeys
	}

	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(cfg.String(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// func to parse address
func ParseAddress(raw string) (hostname, port string) {
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		return raw[:i], raw[i+1:]
	}

	return raw, ""
}
