package shared

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	amqplib "github.com/streadway/amqp"
)

var ErrAmqpDisabled = errors.New("amqp is disabled")

type Amqp struct {
	Conn             *amqplib.Connection
	Channel          *amqplib.Channel
	Exchange         string // 交换机
	ExchangeType     string // 交换机类型
	Enabled          bool
	url              string
	logger           zerolog.Logger
	keepliveInterval time.Duration
	retryCount       int
	mu               sync.RWMutex
}

func NewRabbitMQ(cfg *koanf.Koanf, logger zerolog.Logger) *Amqp {
	return &Amqp{
		Exchange:         cfg.String("amqp.exchange"),
		ExchangeType:     cfg.String("amqp.exchange-type"),
		Enabled:          cfg.Bool("amqp.enabled"),
		url:              cfg.String("amqp.url"),
		logger:           logger,
		retryCount:       cfg.Int("amqp.retry-count"),
		keepliveInterval: cfg.Duration("amqp.keeplive-interval"),
	}
}

func (a *Amqp) dial() error {
	conn, err := amqplib.Dial(a.url)
	if err != nil {
		return fmt.Errorf("amqp链接失败: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建Channel失败: %w", err)
	}

	if err := channel.ExchangeDeclare(a.Exchange, a.ExchangeType, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("创建交换机失败: %w", err)
	}

	a.mu.Lock()
	a.Conn = conn
	a.Channel = channel
	a.mu.Unlock()
	return nil
}

// keeplive 连接断开后按 retryCount 重连
func (a *Amqp) keeplive() {
	for {
		time.Sleep(a.keepliveInterval)

		a.mu.RLock()
		closed := a.Conn == nil || a.Conn.IsClosed()
		a.mu.RUnlock()
		if !closed {
			continue
		}

		for i := 1; i <= a.retryCount; i++ {
			err := a.dial()
			if err == nil {
				a.logger.Info().Msg("Reconnected to Amqp succesfully!")
				break
			}
			a.logger.Warn().Err(err).Msgf("Failed to reconnect to Amqp, attempt %d", i)
		}
	}
}

func (a *Amqp) Connect() error {
	if !a.Enabled {
		return ErrAmqpDisabled
	}
	if err := a.dial(); err != nil {
		return err
	}

	go a.keeplive()
	return nil
}

// Publish 以 json 格式发布到交换机
func (a *Amqp) Publish(routingKey string, body []byte) error {
	if !a.Enabled {
		return ErrAmqpDisabled
	}

	a.mu.RLock()
	channel := a.Channel
	a.mu.RUnlock()
	if channel == nil {
		return errors.New("amqp channel is not ready")
	}

	return channel.Publish(a.Exchange, routingKey, false, false, amqplib.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqplib.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (a *Amqp) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Channel != nil {
		a.Channel.Close()
	}
	if a.Conn != nil {
		a.Conn.Close()
	}
}
