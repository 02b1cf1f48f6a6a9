package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type PairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type TxnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type PairTxns struct {
	M5  TxnCount `json:"m5"`
	H1  TxnCount `json:"h1"`
	H6  TxnCount `json:"h6"`
	H24 TxnCount `json:"h24"`
}

type PairPeriods struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type PairLiquidity struct {
	Usd   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// Pair DexScreener 返回的交易对市场数据
type Pair struct {
	ChainID       string         `json:"chainId"`
	DexID         string         `json:"dexId"`
	URL           string         `json:"url"`
	PairAddress   string         `json:"pairAddress"`
	BaseToken     PairToken      `json:"baseToken"`
	QuoteToken    PairToken      `json:"quoteToken"`
	PriceNative   string         `json:"priceNative"`
	PriceUsd      string         `json:"priceUsd"`
	Txns          PairTxns       `json:"txns"`
	Volume        PairPeriods    `json:"volume"`
	PriceChange   PairPeriods    `json:"priceChange"`
	Liquidity     *PairLiquidity `json:"liquidity"`
	Fdv           float64        `json:"fdv"`
	PairCreatedAt int64          `json:"pairCreatedAt"`
}

type pairsResponse struct {
	Pairs []Pair `json:"pairs"`
}

type DexScreenerService interface {
	// GetDexScreenerData 搜索代币, 返回该链上第一个包含此代币的交易对
	GetDexScreenerData(ctx context.Context, tokenAddress string) Result[*Pair]
	// GetPairs 批量查询交易对, 调用方负责控制数量
	GetPairs(ctx context.Context, pairAddresses []string) ([]Pair, error)
}

type dexScreenerService struct {
	baseURL    string
	chain      string
	timeout    time.Duration
	httpClient shared.HTTPClient
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

func NewDexScreenerService(cfg *koanf.Koanf, logger zerolog.Logger) DexScreenerService {
	return &dexScreenerService{
		baseURL:    strings.TrimRight(cfg.String("dexscreener.url"), "/"),
		chain:      cfg.String("dexscreener.chain"),
		timeout:    cfg.Duration("pipeline.http-timeout"),
		httpClient: &http.Client{},
		limiter:    newLimiter(cfg.Float64("dexscreener.rate-limit")),
		logger:     logger.With().Str("service", "dexscreener").Logger(),
	}
}

func (s *dexScreenerService) fetchPairs(ctx context.Context, endpoint string) ([]Pair, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, _, err := shared.DoRequest(ctx, s.httpClient, endpoint, map[string]string{"accept": "application/json"}, s.timeout)
	if err != nil {
		return nil, err
	}

	var resp pairsResponse
	if err := shared.ParseJSONResponse(body, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

func (s *dexScreenerService) GetDexScreenerData(ctx context.Context, tokenAddress string) Result[*Pair] {
	endpoint := fmt.Sprintf("%s/latest/dex/search/?q=%s", s.baseURL, url.QueryEscape(tokenAddress))
	pairs, err := s.fetchPairs(ctx, endpoint)
	if err != nil {
		s.logger.Warn().Err(err).Str("token", tokenAddress).Msg("Error fetching DexScreener data")
		return Failed[*Pair](err)
	}

	for i := range pairs {
		pair := pairs[i]
		if s.chain != "" && pair.ChainID != s.chain {
			continue
		}
		if strings.EqualFold(pair.BaseToken.Address, tokenAddress) || strings.EqualFold(pair.QuoteToken.Address, tokenAddress) {
			return Found(&pair)
		}
	}
	return Absent[*Pair]()
}

func (s *dexScreenerService) GetPairs(ctx context.Context, pairAddresses []string) ([]Pair, error) {
	if len(pairAddresses) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", s.baseURL, s.chain, strings.Join(pairAddresses, ","))
	pairs, err := s.fetchPairs(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %d pairs: %w", len(pairAddresses), err)
	}
	return pairs, nil
}
