package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Telegram 图片说明的长度上限
const CaptionLimit = 1024

var ErrBotNotConfigured = errors.New("telegram bot is not configured")

// Notification 新交易对通知, ImageBuffer 优先于 ImageURL
type Notification struct {
	Text         string
	ImageURL     string
	ImageBuffer  []byte
	TokenAddress string
	PairAddress  string
}

type TelegramService interface {
	Connect() error
	// NotifyAboutNewPair 返回频道中的消息 id
	NotifyAboutNewPair(ctx context.Context, n Notification) (int, error)
	SendMessageToChannel(ctx context.Context, text string) error
	SendMessage(ctx context.Context, chatID int64, text string) error
	GetImageBufferFromTgChannel(ctx context.Context, channelURL string) Result[[]byte]
	Updates() (tgbotapi.UpdatesChannel, error)
	StopUpdates()
}

type telegramService struct {
	token       string
	apiEndpoint string
	chatID      int64
	timeout     time.Duration
	httpClient  shared.HTTPClient
	bot         *tgbotapi.BotAPI
	mu          sync.RWMutex
	logger      zerolog.Logger
}

func NewTelegramService(cfg *koanf.Koanf, logger zerolog.Logger) TelegramService {
	endpoint := cfg.String("telegram.api-url")
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &telegramService{
		token:       cfg.String("telegram.token"),
		apiEndpoint: endpoint,
		chatID:      cfg.Int64("telegram.chat-id"),
		timeout:     cfg.Duration("pipeline.http-timeout"),
		httpClient:  &http.Client{},
		logger:      logger.With().Str("service", "telegram").Logger(),
	}
}

// Connect 调用 getMe 校验 token
func (s *telegramService) Connect() error {
	if s.token == "" {
		return ErrBotNotConfigured
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(s.token, s.apiEndpoint)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	s.mu.Lock()
	s.bot = bot
	s.mu.Unlock()
	s.logger.Info().Str("bot", bot.Self.UserName).Msg("Authorized on telegram")
	return nil
}

func (s *telegramService) getBot() (*tgbotapi.BotAPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bot == nil {
		return nil, ErrBotNotConfigured
	}
	return s.bot, nil
}

func LinkButtons(tokenAddress string, pairAddress string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📈 DEXT", "https://www.dextools.io/app/en/ether/pair-explorer/"+pairAddress),
			tgbotapi.NewInlineKeyboardButtonURL("🔗 ETHSCAN", "https://etherscan.io/token/"+tokenAddress),
			tgbotapi.NewInlineKeyboardButtonURL("🦅 DEXS", "https://dexscreener.com/ethereum/"+tokenAddress),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🍌 BANANA", "https://t.me/BananaGunSniper_bot"),
			tgbotapi.NewInlineKeyboardButtonURL("Ⓜ️ MAESTRO", "https://t.me/MaestroBots"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🦄 UNISWAP", "https://app.uniswap.org/swap?outputCurrency="+tokenAddress+"&chain=ethereum"),
		),
	)
}

func (s *telegramService) textMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	return msg
}

func (s *telegramService) NotifyAboutNewPair(ctx context.Context, n Notification) (int, error) {
	bot, err := s.getBot()
	if err != nil {
		return 0, err
	}
	buttons := LinkButtons(n.TokenAddress, n.PairAddress)

	var file tgbotapi.RequestFileData
	switch {
	case len(n.ImageBuffer) > 0:
		file = tgbotapi.FileBytes{Name: "preview.jpg", Bytes: n.ImageBuffer}
	case n.ImageURL != "":
		file = tgbotapi.FileURL(n.ImageURL)
	}

	if file != nil {
		photo := tgbotapi.NewPhoto(s.chatID, file)
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyMarkup = buttons
		if len([]rune(n.Text)) <= CaptionLimit {
			photo.Caption = n.Text
		}

		sent, err := bot.Send(photo)
		switch {
		case err != nil:
			// 图片发送失败时退回纯文本
			s.logger.Warn().Err(err).Str("token", n.TokenAddress).Msg("failed to send photo, falling back to text")
		case photo.Caption != "":
			return sent.MessageID, nil
		}
	}

	msg := s.textMessage(s.chatID, n.Text)
	msg.ReplyMarkup = buttons
	sent, err := bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}
	return sent.MessageID, nil
}

func (s *telegramService) SendMessageToChannel(ctx context.Context, text string) error {
	return s.SendMessage(ctx, s.chatID, text)
}

func (s *telegramService) SendMessage(ctx context.Context, chatID int64, text string) error {
	bot, err := s.getBot()
	if err != nil {
		return err
	}
	if _, err := bot.Send(s.textMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return nil
}

// channelTag https://t.me/foo -> foo
func channelTag(channelURL string) string {
	trimmed := strings.TrimRight(channelURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimPrefix(trimmed, "@")
}

func (s *telegramService) GetImageBufferFromTgChannel(ctx context.Context, channelURL string) Result[[]byte] {
	bot, err := s.getBot()
	if err != nil {
		return Failed[[]byte](err)
	}

	tag := channelTag(channelURL)
	if tag == "" {
		return Absent[[]byte]()
	}

	chat, err := bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + tag}})
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", tag).Msg("Error getting image from Telegram channel")
		return Failed[[]byte](err)
	}
	if chat.Photo == nil || chat.Photo.BigFileID == "" {
		return Absent[[]byte]()
	}

	fileURL, err := bot.GetFileDirectURL(chat.Photo.BigFileID)
	if err != nil {
		return Failed[[]byte](err)
	}

	body, _, err := shared.DoRequest(ctx, s.httpClient, fileURL, nil, s.timeout)
	if err != nil {
		return Failed[[]byte](err)
	}
	return Found(body)
}

func (s *telegramService) Updates() (tgbotapi.UpdatesChannel, error) {
	bot, err := s.getBot()
	if err != nil {
		return nil, err
	}
	config := tgbotapi.NewUpdate(0)
	config.Timeout = 60
	return bot.GetUpdatesChan(config), nil
}

func (s *telegramService) StopUpdates() {
	if bot, err := s.getBot(); err == nil {
		bot.StopReceivingUpdates()
	}
}
