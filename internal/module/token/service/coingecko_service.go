package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const ethereumCoinID = "ethereum"

// PriceCache 由 shared.RedisClient 实现
type PriceCache interface {
	SetCurrentPriceCache(coinID string, price string) error
	GetCurrentPriceCache(coinID string) (string, error)
}

type CoinGeckoService interface {
	GetETHPrice(ctx context.Context) Result[decimal.Decimal]
}

type coinGeckoService struct {
	baseURL    string
	timeout    time.Duration
	httpClient shared.HTTPClient
	cache      PriceCache
	logger     zerolog.Logger
}

func NewCoinGeckoService(cfg *koanf.Koanf, redisClient *shared.RedisClient, logger zerolog.Logger) CoinGeckoService {
	return newCoinGeckoService(cfg, redisClient, logger)
}

// NewCoinGeckoServiceWithCache cache 为 nil 时不使用缓存
func NewCoinGeckoServiceWithCache(cfg *koanf.Koanf, cache PriceCache, logger zerolog.Logger) CoinGeckoService {
	return newCoinGeckoService(cfg, cache, logger)
}

func newCoinGeckoService(cfg *koanf.Koanf, cache PriceCache, logger zerolog.Logger) *coinGeckoService {
	return &coinGeckoService{
		baseURL:    cfg.String("coingecko.url"),
		timeout:    cfg.Duration("pipeline.http-timeout"),
		httpClient: &http.Client{},
		cache:      cache,
		logger:     logger.With().Str("service", "coingecko").Logger(),
	}
}

func (s *coinGeckoService) GetETHPrice(ctx context.Context) Result[decimal.Decimal] {
	if s.cache != nil {
		cached, err := s.cache.GetCurrentPriceCache(ethereumCoinID)
		if err == nil {
			if price, err := decimal.NewFromString(cached); err == nil {
				return Found(price)
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Debug().Err(err).Msg("failed to read ETH price cache")
		}
	}

	body, _, err := shared.DoRequest(ctx, s.httpClient, s.baseURL+"/simple/price?ids=ethereum&vs_currencies=usd", nil, s.timeout)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Error fetching ETH price")
		return Failed[decimal.Decimal](err)
	}

	var resp map[string]map[string]decimal.Decimal
	if err := shared.ParseJSONResponse(body, &resp); err != nil {
		return Failed[decimal.Decimal](err)
	}

	price, ok := resp[ethereumCoinID]["usd"]
	if !ok {
		return Absent[decimal.Decimal]()
	}

	if s.cache != nil {
		if err := s.cache.SetCurrentPriceCache(ethereumCoinID, price.String()); err != nil {
			s.logger.Debug().Err(err).Msg("failed to write ETH price cache")
		}
	}
	return Found(price)
}
