package controller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const requestTimeout = 60 * time.Second

type TokenController interface {
	GetTopGainers(ctx *fasthttp.RequestCtx)
	GetDailyReport(ctx *fasthttp.RequestCtx)
	GetToken(ctx *fasthttp.RequestCtx)
	CheckHealthz(ctx *fasthttp.RequestCtx)
}

type tokenController struct {
	reconciliation service.ReconciliationService
	repo           repository.TokenRepository
	channel        string
	logger         zerolog.Logger
}

func NewTokenController(reconciliation service.ReconciliationService, repo repository.TokenRepository, channel string, logger zerolog.Logger) TokenController {
	return &tokenController{
		reconciliation: reconciliation,
		repo:           repo,
		channel:        channel,
		logger:         logger,
	}
}

func (_i *tokenController) respond(ctx *fasthttp.RequestCtx, code int, data interface{}, message string) {
	response := map[string]interface{}{
		"code":    code,
		"data":    data,
		"message": message,
	}

	responseBody, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Failed to serialize response ", fasthttp.StatusInternalServerError)
		return
	}

	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetBody(responseBody)
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
}

// withTimeout fn 超时后返回 504
func (_i *tokenController) withTimeout(ctx *fasthttp.RequestCtx, fn func(context.Context) (interface{}, error)) {
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	type result struct {
		data interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := fn(c)
		done <- result{data: data, err: err}
	}()

	select {
	case <-c.Done():
		if errors.Is(c.Err(), context.DeadlineExceeded) {
			_i.respond(ctx, 504, nil, "Request timed out")
		} else {
			_i.respond(ctx, 500, nil, "Request canceled")
		}
	case res := <-done:
		if res.err != nil {
			_i.logger.Err(res.err).Str("path", string(ctx.Path())).Msg("request failed")
			_i.respond(ctx, 500, nil, res.err.Error())
			return
		}
		_i.respond(ctx, 0, res.data, "Request successful")
	}
}

type gainersResponse struct {
	Gainers service.TopGainers `json:"gainers"`
	Message string             `json:"message"`
}

func (_i *tokenController) GetTopGainers(ctx *fasthttp.RequestCtx) {
	_i.withTimeout(ctx, func(c context.Context) (interface{}, error) {
		gainers, err := _i.reconciliation.GetTopGainers(c)
		if err != nil {
			return nil, err
		}
		return gainersResponse{
			Gainers: gainers,
			Message: service.FormTopGainersMessage(gainers, _i.channel),
		}, nil
	})
}

type reportResponse struct {
	*service.DailyReport
	Message string `json:"message"`
}

func (_i *tokenController) GetDailyReport(ctx *fasthttp.RequestCtx) {
	_i.withTimeout(ctx, func(c context.Context) (interface{}, error) {
		report, err := _i.reconciliation.GetDailyReportData(c)
		if err != nil {
			return nil, err
		}
		return reportResponse{
			DailyReport: report,
			Message:     service.FormDailyReport(*report, _i.channel),
		}, nil
	})
}

func (_i *tokenController) GetToken(ctx *fasthttp.RequestCtx) {
	address, _ := ctx.UserValue("address").(string)
	if address == "" {
		_i.respond(ctx, 400, nil, "address is required")
		return
	}

	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	token, err := _i.repo.GetByAddress(c, address)
	if errors.Is(err, repository.ErrTokenNotFound) {
		_i.respond(ctx, 404, nil, "token not found")
		return
	}
	if err != nil {
		_i.logger.Err(err).Str("address", address).Msg("failed to load token")
		_i.respond(ctx, 500, nil, "failed to load token")
		return
	}
	_i.respond(ctx, 0, token, "Request successful")
}

func (_i *tokenController) CheckHealthz(ctx *fasthttp.RequestCtx) {
	_i.respond(ctx, 0, nil, "Successfully checked service status")
}
