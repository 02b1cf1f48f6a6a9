package bot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/token/bot"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciliation struct {
	gainers service.TopGainers
	report  *service.DailyReport
	err     error
}

func (f *fakeReconciliation) CheckAndFillInitialTokenPrice(ctx context.Context) error { return nil }
func (f *fakeReconciliation) CheckRugPulls(ctx context.Context) error { return nil }

func (f *fakeReconciliation) GetTopGainers(ctx context.Context) (service.TopGainers, error) {
	return f.gainers, f.err
}

func (f *fakeReconciliation) GetDailyReportData(ctx context.Context) (*service.DailyReport, error) {
	return f.report, f.err
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeTelegram struct {
	sent    []sentMessage
	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeTelegram) Connect() error { return nil }
func (f *fakeTelegram) NotifyAboutNewPair(ctx context.Context, n service.Notification) (int, error) {
	return 0, nil
}
func (f *fakeTelegram) SendMessageToChannel(ctx context.Context, text string) error { return nil }
func (f *fakeTelegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}
func (f *fakeTelegram) GetImageBufferFromTgChannel(ctx context.Context, channelURL string) service.Result[[]byte] {
	return service.Absent[[]byte]()
}
func (f *fakeTelegram) Updates() (tgbotapi.UpdatesChannel, error) {
	if f.updates == nil {
		return nil, service.ErrBotNotConfigured
	}
	return f.updates, nil
}
func (f *fakeTelegram) StopUpdates() {
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func newHandler(t *testing.T, reconciliation *fakeReconciliation, telegram *fakeTelegram) *bot.CommandHandler {
	t.Helper()

	cfg := koanf.New(".")
	require.NoError(t, cfg.Load(confmap.Provider(map[string]interface{}{
		"telegram.channel-username": "dumbtokens",
	}, "."), nil))
	return bot.NewCommandHandler(cfg, telegram, reconciliation, zerolog.Nop())
}

func command(chatID int64, text string) tgbotapi.Update {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func topGainers() service.TopGainers {
	id := 12
	return service.TopGainers{
		{ID: 1, TokenSymbol: "AAA", MessageID: &id, Gain: decimal.NewFromInt(120)},
		{ID: 2, TokenSymbol: "BBB", Gain: decimal.NewFromInt(80)},
		{ID: 3, TokenSymbol: "CCC", Gain: decimal.NewFromInt(-5)},
	}
}

func TestReplyGainers(t *testing.T) {
	reconciliation := &fakeReconciliation{gainers: topGainers()}
	h := newHandler(t, reconciliation, &fakeTelegram{})

	reply, ok := h.Reply(context.Background(), bot.CommandGainers)
	require.True(t, ok)
	assert.Contains(t, reply, "https://t.me/dumbtokens/12")
	assert.Contains(t, reply, "-5.00%")

	reconciliation.gainers = topGainers()[:2]
	reply, ok = h.Reply(context.Background(), bot.CommandGainers)
	require.True(t, ok)
	assert.Equal(t, service.NoGainersReplyText, reply)

	reconciliation.err = errors.New("dexscreener down")
	reply, ok = h.Reply(context.Background(), bot.CommandGainers)
	require.True(t, ok)
	assert.Equal(t, service.NoGainersReplyText, reply)
}

func TestReplyDailyReport(t *testing.T) {
	reconciliation := &fakeReconciliation{report: &service.DailyReport{
		Date:       time.Date(2026, 10, 16, 0, 0, 0, 0, time.Local),
		Total:      2,
		Successful: 2,
	}}
	h := newHandler(t, reconciliation, &fakeTelegram{})

	reply, ok := h.Reply(context.Background(), bot.CommandDailyReport)
	require.True(t, ok)
	assert.Contains(t, reply, "@dumbtokens daily stats for 16/10/2026")
	assert.Contains(t, reply, "LAUNCHED: 2")

	reconciliation.err = errors.New("db down")
	reply, ok = h.Reply(context.Background(), bot.CommandDailyReport)
	require.True(t, ok)
	assert.NotContains(t, reply, "daily stats")

	_, ok = h.Reply(context.Background(), "start")
	assert.False(t, ok)
}

func TestHandleUpdate(t *testing.T) {
	telegram := &fakeTelegram{}
	h := newHandler(t, &fakeReconciliation{gainers: topGainers()}, telegram)

	h.HandleUpdate(context.Background(), command(42, "/gainers"))
	h.HandleUpdate(context.Background(), command(42, "/gainers@dumbtokens_bot"))
	h.HandleUpdate(context.Background(), command(42, "/unknown"))
	h.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "gainers", Chat: &tgbotapi.Chat{ID: 42}}})
	h.HandleUpdate(context.Background(), tgbotapi.Update{})

	require.Len(t, telegram.sent, 2)
	for _, msg := range telegram.sent {
		assert.Equal(t, int64(42), msg.chatID)
		assert.Contains(t, msg.text, "TOP 3 GAINERS")
	}
}

func TestStartServesUntilStopped(t *testing.T) {
	telegram := &fakeTelegram{updates: make(chan tgbotapi.Update, 1)}
	h := newHandler(t, &fakeReconciliation{gainers: topGainers()}, telegram)

	require.NoError(t, h.Start(context.Background()))
	telegram.updates <- command(7, "/gainers")

	h.Stop()

	require.Len(t, telegram.sent, 1)
	assert.Equal(t, int64(7), telegram.sent[0].chatID)
}

func TestStartWithoutBot(t *testing.T) {
	h := newHandler(t, &fakeReconciliation{}, &fakeTelegram{})
	assert.ErrorIs(t, h.Start(context.Background()), service.ErrBotNotConfigured)
}
