package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

var ErrHoldersUnavailable = errors.New("token holders unavailable")

type TokenHolders struct {
	Count   int      `json:"count"`
	Holders []string `json:"data"`
}

type ChainbaseService interface {
	GetTokenHolders(ctx context.Context, tokenAddress string) (*TokenHolders, error)
}

type chainbaseService struct {
	baseURL    string
	apiKey     string
	chainID    int
	timeout    time.Duration
	httpClient shared.HTTPClient
	logger     zerolog.Logger
}

type chainbaseResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    []string `json:"data"`
	Count   int      `json:"count"`
}

func NewChainbaseService(cfg *koanf.Koanf, logger zerolog.Logger) ChainbaseService {
	return &chainbaseService{
		baseURL:    cfg.String("chainbase.url"),
		apiKey:     cfg.String("chainbase.api-key"),
		chainID:    cfg.Int("chain.chain-id"),
		timeout:    cfg.Duration("pipeline.http-timeout"),
		httpClient: &http.Client{},
		logger:     logger.With().Str("service", "chainbase").Logger(),
	}
}

func (s *chainbaseService) GetTokenHolders(ctx context.Context, tokenAddress string) (*TokenHolders, error) {
	params := url.Values{
		"chain_id":         {fmt.Sprint(s.chainID)},
		"contract_address": {tokenAddress},
	}
	headers := map[string]string{
		"accept":    "application/json",
		"x-api-key": s.apiKey,
	}

	body, _, err := shared.DoRequest(ctx, s.httpClient, s.baseURL+"/token/holders?"+params.Encode(), headers, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHoldersUnavailable, err)
	}

	var resp chainbaseResponse
	if err := shared.ParseJSONResponse(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHoldersUnavailable, err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: code %d %s", ErrHoldersUnavailable, resp.Code, resp.Message)
	}

	return &TokenHolders{Count: resp.Count, Holders: resp.Data}, nil
}
