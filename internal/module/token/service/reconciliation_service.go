package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/database/schema"
	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultBatchSize = 30
	// RugPullLiquidityThreshold 流动性低于该美元值视为 rug pull
	RugPullLiquidityThreshold = 500
	TopGainersSize            = 3
)

var hundred = decimal.NewFromInt(100)

type TokenGainer struct {
	ID           uint64          `json:"id"`
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	MessageID    *int            `json:"message_id"`
	Gain         decimal.Decimal `json:"gain"`
}

// GainString 保留两位小数的涨幅
func (g TokenGainer) GainString() string {
	return g.Gain.StringFixed(2)
}

type TopGainers []TokenGainer

// Empty 不足 TopGainersSize 个时不发送排行
func (g TopGainers) Empty() bool {
	return len(g) < TopGainersSize
}

type DailyReport struct {
	Date       time.Time  `json:"date"`
	Total      int64      `json:"total"`
	RugPulls   int64      `json:"rug_pulls"`
	Successful int64      `json:"successful"`
	TopGainers TopGainers `json:"top_gainers"`
}

// StartOfDay 本地时间当天零点
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

type ReconciliationService interface {
	CheckAndFillInitialTokenPrice(ctx context.Context) error
	CheckRugPulls(ctx context.Context) error
	GetTopGainers(ctx context.Context) (TopGainers, error)
	GetDailyReportData(ctx context.Context) (*DailyReport, error)
}

type reconciliationService struct {
	repo      repository.TokenRepository
	dex       DexScreenerService
	batchSize int
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReconciliationService(cfg *koanf.Koanf, repo repository.TokenRepository, dex DexScreenerService, logger zerolog.Logger) ReconciliationService {
	return NewReconciliationServiceWithClock(cfg, repo, dex, logger, time.Now)
}

func NewReconciliationServiceWithClock(cfg *koanf.Koanf, repo repository.TokenRepository, dex DexScreenerService, logger zerolog.Logger, now func() time.Time) ReconciliationService {
	batchSize := cfg.Int("pipeline.batch-size")
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &reconciliationService{
		repo:      repo,
		dex:       dex,
		batchSize: batchSize,
		now:       now,
		logger:    logger.With().Str("service", "reconciliation").Logger(),
	}
}

func (s *reconciliationService) window(dexAvailable, rugPull *bool) repository.TokenFilter {
	now := s.now()
	return repository.TokenFilter{
		From:                 StartOfDay(now),
		To:                   now,
		IsDexScreenAvailable: dexAvailable,
		IsRugPull:            rugPull,
	}
}

// scan 按批次查询交易对, fn 返回需要保存的行。单个批次失败不影响后续批次。
func (s *reconciliationService) scan(ctx context.Context, tokens []schema.Token, fn func(token *schema.Token, pair *Pair) bool) error {
	var errs []error

	for start := 0; start < len(tokens); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + s.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		addresses := make([]string, 0, len(chunk))
		for _, token := range chunk {
			addresses = append(addresses, token.PairAddress)
		}

		pairs, err := s.dex.GetPairs(ctx, addresses)
		if err != nil {
			s.logger.Error().Err(err).Int("offset", start).Msg("批次查询交易对失败")
			errs = append(errs, err)
			continue
		}

		byAddress := make(map[string]*Pair, len(pairs))
		for i := range pairs {
			byAddress[strings.ToLower(pairs[i].PairAddress)] = &pairs[i]
		}

		changed := make([]schema.Token, 0, len(chunk))
		for i := range chunk {
			pair, ok := byAddress[strings.ToLower(chunk[i].PairAddress)]
			if !ok {
				continue
			}
			if fn(&chunk[i], pair) {
				changed = append(changed, chunk[i])
			}
		}

		if err := s.repo.SaveScanned(ctx, changed); err != nil {
			s.logger.Error().Err(err).Int("offset", start).Msg("批次保存失败")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *reconciliationService) CheckAndFillInitialTokenPrice(ctx context.Context) error {
	tokens, err := s.repo.FindInWindow(ctx, s.window(repository.Bool(false), nil))
	if err != nil {
		return fmt.Errorf("failed to load tokens without market data: %w", err)
	}

	filled := 0
	err = s.scan(ctx, tokens, func(token *schema.Token, pair *Pair) bool {
		if pair.PriceNative == "" {
			return false
		}
		price := pair.PriceNative
		token.InitialTokenPriceNative = &price
		token.CurrentTokenPriceNative = &price
		token.IsDexScreenAvailable = true
		filled++
		return true
	})

	s.logger.Info().Int("scanned", len(tokens)).Int("filled", filled).Msg("initial price backfill finished")
	return err
}

func (s *reconciliationService) CheckRugPulls(ctx context.Context) error {
	tokens, err := s.repo.FindInWindow(ctx, s.window(repository.Bool(true), repository.Bool(false)))
	if err != nil {
		return fmt.Errorf("failed to load tokens for rug pull check: %w", err)
	}

	flagged := 0
	err = s.scan(ctx, tokens, func(token *schema.Token, pair *Pair) bool {
		if pair.Liquidity == nil || pair.Liquidity.Usd >= RugPullLiquidityThreshold {
			return false
		}
		token.IsRugPull = true
		flagged++
		s.logger.Info().
			Str("token", token.TokenAddress).
			Float64("liquidity_usd", pair.Liquidity.Usd).
			Msg("rug pull detected")
		return true
	})

	s.logger.Info().Int("scanned", len(tokens)).Int("flagged", flagged).Msg("rug pull check finished")
	return err
}

func (s *reconciliationService) GetTopGainers(ctx context.Context) (TopGainers, error) {
	tokens, err := s.repo.FindInWindow(ctx, s.window(repository.Bool(true), repository.Bool(false)))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens for gainers: %w", err)
	}

	scanErr := s.scan(ctx, tokens, func(token *schema.Token, pair *Pair) bool {
		if pair.PriceNative != "" {
			price := pair.PriceNative
			token.CurrentTokenPriceNative = &price
		}
		return true
	})
	if scanErr != nil {
		s.logger.Warn().Err(scanErr).Msg("部分价格刷新失败, 使用已保存价格")
	}

	gainers := make(TopGainers, 0, len(tokens))
	for _, token := range tokens {
		gain, ok := computeGain(token.InitialTokenPriceNative, token.CurrentTokenPriceNative)
		if !ok {
			continue
		}
		gainers = append(gainers, TokenGainer{
			ID:           token.ID,
			TokenAddress: token.TokenAddress,
			TokenSymbol:  token.TokenSymbol,
			MessageID:    token.MessageID,
			Gain:         gain,
		})
	}

	sort.SliceStable(gainers, func(i, j int) bool {
		return gainers[i].Gain.GreaterThan(gainers[j].Gain)
	})
	if len(gainers) > TopGainersSize {
		gainers = gainers[:TopGainersSize]
	}
	return gainers, nil
}

// computeGain (current - initial) / initial * 100, 初始价格为空或为 0 时跳过
func computeGain(initial, current *string) (decimal.Decimal, bool) {
	if initial == nil || current == nil {
		return decimal.Zero, false
	}
	p0, err := decimal.NewFromString(*initial)
	if err != nil || p0.IsZero() {
		return decimal.Zero, false
	}
	p1, err := decimal.NewFromString(*current)
	if err != nil {
		return decimal.Zero, false
	}
	return p1.Sub(p0).Div(p0).Mul(hundred), true
}

func (s *reconciliationService) GetDailyReportData(ctx context.Context) (*DailyReport, error) {
	if err := s.CheckAndFillInitialTokenPrice(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("daily report: initial price backfill incomplete")
	}
	if err := s.CheckRugPulls(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("daily report: rug pull check incomplete")
	}

	now := s.now()
	total, err := s.repo.CountInWindow(ctx, s.window(nil, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}
	rugPulls, err := s.repo.CountInWindow(ctx, s.window(nil, repository.Bool(true)))
	if err != nil {
		return nil, fmt.Errorf("failed to count rug pulls: %w", err)
	}

	gainers, err := s.GetTopGainers(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("daily report: gainers unavailable")
		gainers = nil
	}

	return &DailyReport{
		Date:       StartOfDay(now),
		Total:      total,
		RugPulls:   rugPulls,
		Successful: total - rugPulls,
		TopGainers: gainers,
	}, nil
}
