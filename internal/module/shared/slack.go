package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

type SlackPayload struct {
	Channel   string `json:"channel"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// 常量配置
const (
	RedisErrorCountPrefix   = "error_count:"
	RedisErrorCountDuration = 10 * time.Minute // 计数过期时间
	RedisErrorThreshold     = 5                // 阈值
)

type SlackAlerter struct {
	webhookURL  string
	channel     string
	redisClient *RedisClient
	httpClient  HTTPClient
	logger      zerolog.Logger
}

func NewSlackAlerter(cfg *koanf.Koanf, redisClient *RedisClient, logger zerolog.Logger) *SlackAlerter {
	return &SlackAlerter{
		webhookURL:  cfg.String("slack.webhook-url"),
		channel:     cfg.String("slack.channel"),
		redisClient: redisClient,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

func (s *SlackAlerter) SendSlackAlert(ctx context.Context, message string) error {
	if s.webhookURL == "" {
		s.logger.Warn().Str("alert", message).Msg("slack.webhook-url is empty, alert dropped")
		return nil
	}

	payloadBytes, err := json.Marshal(SlackPayload{
		Channel:  s.channel,
		Username: "launch-watcher",
		Text:     message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack request failed with status code: %d", resp.StatusCode)
	}

	s.logger.Info().Msg("Slack notification sent successfully")
	return nil
}

// HandleErrorWithThrottling 同一个 key 在计数周期内错误达到阈值才发送告警
func (s *SlackAlerter) HandleErrorWithThrottling(key string, errorMsg string) {
	ctx := context.Background()
	errorCountKey := RedisErrorCountPrefix + key
	alertedKey := errorCountKey + ":alerted"

	lockToken, ok := s.redisClient.AcquireLock(errorCountKey, 10*time.Second)
	if !ok {
		return
	}
	defer s.redisClient.ReleaseLock(errorCountKey, lockToken)

	client := s.redisClient.getClient()

	// 检查是否已经发送过告警
	if _, err := client.Get(ctx, alertedKey).Result(); err == nil {
		return
	}

	count, err := client.Incr(ctx, errorCountKey).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("增加错误计数 异常！")
		return
	}
	if count == 1 {
		client.Expire(ctx, errorCountKey, RedisErrorCountDuration)
	}

	// 达到阈值时发送通知并重置计数
	if count >= RedisErrorThreshold {
		client.Set(ctx, alertedKey, "1", RedisErrorCountDuration)
		if err := s.SendSlackAlert(ctx, fmt.Sprintf("错误已达到阈值 %s: %s", key, errorMsg)); err != nil {
			s.logger.Error().Err(err).Msg("Failed to send Slack alert")
		}
		client.Del(ctx, errorCountKey)
	}
}
