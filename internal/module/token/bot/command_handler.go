package bot

import (
	"context"
	"sync"

	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

const (
	CommandGainers     = "gainers"
	CommandDailyReport = "dailyreport"

	reportUnavailableText = "Daily report is not available right now, try again later."
)

// CommandHandler 处理 /gainers 和 /dailyreport
type CommandHandler struct {
	telegram       service.TelegramService
	reconciliation service.ReconciliationService
	channel        string
	logger         zerolog.Logger

	wg sync.WaitGroup
}

func NewCommandHandler(cfg *koanf.Koanf, telegram service.TelegramService, reconciliation service.ReconciliationService, logger zerolog.Logger) *CommandHandler {
	return &CommandHandler{
		telegram:       telegram,
		reconciliation: reconciliation,
		channel:        cfg.String("telegram.channel-username"),
		logger:         logger.With().Str("component", "bot").Logger(),
	}
}

// Start 开始轮询 bot 更新, 直到 ctx 取消
func (h *CommandHandler) Start(ctx context.Context) error {
	updates, err := h.telegram.Updates()
	if err != nil {
		return err
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Serve(ctx, updates)
	}()
	return nil
}

func (h *CommandHandler) Serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

func (h *CommandHandler) Stop() {
	h.telegram.StopUpdates()
	h.wg.Wait()
}

func (h *CommandHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	reply, ok := h.Reply(ctx, msg.Command())
	if !ok {
		return
	}
	if err := h.telegram.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		h.logger.Error().Err(err).Int64("chat", msg.Chat.ID).Str("command", msg.Command()).Msg("failed to reply to command")
	}
}

// Reply 返回命令的回复文本, 内部错误只记录日志
func (h *CommandHandler) Reply(ctx context.Context, command string) (string, bool) {
	switch command {
	case CommandGainers:
		gainers, err := h.reconciliation.GetTopGainers(ctx)
		if err != nil {
			h.logger.Error().Err(err).Msg("/gainers failed")
			return service.NoGainersReplyText, true
		}
		if gainers.Empty() {
			return service.NoGainersReplyText, true
		}
		return service.FormTopGainersMessage(gainers, h.channel), true
	case CommandDailyReport:
		report, err := h.reconciliation.GetDailyReportData(ctx)
		if err != nil {
			h.logger.Error().Err(err).Msg("/dailyreport failed")
			return reportUnavailableText, true
		}
		return service.FormDailyReport(*report, h.channel), true
	default:
		return "", false
	}
}
