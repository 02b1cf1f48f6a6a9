package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/database/schema"
	"github.com/dumbtokens/launch-watcher/internal/module/token/controller"
	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
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

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func call(t *testing.T, handler fasthttp.RequestHandler, userValues map[string]string) envelope {
	t.Helper()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range userValues {
		ctx.SetUserValue(k, v)
	}
	handler(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var body envelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body
}

func newController(reconciliation *fakeReconciliation, repo repository.TokenRepository) controller.TokenController {
	return controller.NewTokenController(reconciliation, repo, "dumbtokens", zerolog.Nop())
}

func TestGetTopGainers(t *testing.T) {
	id := 7
	reconciliation := &fakeReconciliation{gainers: service.TopGainers{
		{ID: 1, TokenSymbol: "AAA", MessageID: &id, Gain: decimal.NewFromInt(200)},
		{ID: 2, TokenSymbol: "BBB", Gain: decimal.NewFromInt(50)},
		{ID: 3, TokenSymbol: "CCC", Gain: decimal.NewFromInt(10)},
	}}
	c := newController(reconciliation, repository.NewMemoryTokenRepository())

	body := call(t, c.GetTopGainers, nil)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "Request successful", body.Message)

	var data struct {
		Gainers []struct {
			TokenSymbol string `json:"token_symbol"`
		} `json:"gainers"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	require.Len(t, data.Gainers, 3)
	assert.Equal(t, "AAA", data.Gainers[0].TokenSymbol)
	assert.Contains(t, data.Message, "https://t.me/dumbtokens/7")
}

func TestGetTopGainersFailure(t *testing.T) {
	c := newController(&fakeReconciliation{err: errors.New("dexscreener down")}, repository.NewMemoryTokenRepository())

	body := call(t, c.GetTopGainers, nil)
	assert.Equal(t, 500, body.Code)
	assert.Equal(t, "dexscreener down", body.Message)
}

func TestGetDailyReport(t *testing.T) {
	reconciliation := &fakeReconciliation{report: &service.DailyReport{
		Date:       time.Date(2026, 10, 16, 0, 0, 0, 0, time.Local),
		Total:      4,
		RugPulls:   1,
		Successful: 3,
	}}
	c := newController(reconciliation, repository.NewMemoryTokenRepository())

	body := call(t, c.GetDailyReport, nil)
	assert.Equal(t, 0, body.Code)

	var data struct {
		Total      int64  `json:"total"`
		RugPulls   int64  `json:"rug_pulls"`
		Successful int64  `json:"successful"`
		Message    string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, int64(4), data.Total)
	assert.Equal(t, int64(1), data.RugPulls)
	assert.Equal(t, int64(3), data.Successful)
	assert.Contains(t, data.Message, "16/10/2026")
}

func TestGetToken(t *testing.T) {
	repo := repository.NewMemoryTokenRepository()
	require.NoError(t, repo.Create(context.Background(), &schema.Token{
		TokenAddress: "0xAbCdEf0000000000000000000000000000000001",
		PairAddress:  "0x2222222222222222222222222222222222222222",
		TokenName:    "Launch",
		TokenSymbol:  "LNCH",
	}))
	c := newController(&fakeReconciliation{}, repo)

	body := call(t, c.GetToken, map[string]string{"address": "0xabcdef0000000000000000000000000000000001"})
	assert.Equal(t, 0, body.Code)

	var token schema.Token
	require.NoError(t, json.Unmarshal(body.Data, &token))
	assert.Equal(t, "LNCH", token.TokenSymbol)

	body = call(t, c.GetToken, map[string]string{"address": "0x0000000000000000000000000000000000000009"})
	assert.Equal(t, 404, body.Code)

	body = call(t, c.GetToken, nil)
	assert.Equal(t, 400, body.Code)
}

func TestCheckHealthz(t *testing.T) {
	c := newController(&fakeReconciliation{}, repository.NewMemoryTokenRepository())

	body := call(t, c.CheckHealthz, nil)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "Successfully checked service status", body.Message)
}
