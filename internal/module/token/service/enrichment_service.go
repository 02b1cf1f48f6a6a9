package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"runtime/debug"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/database/schema"
	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCooldown     = 60 * time.Second
	LaunchRoutingKey    = "token.launched"
	defaultBaseDecimals = 18
)

// LaunchPublisher 由 shared.Amqp 实现
type LaunchPublisher interface {
	Publish(routingKey string, body []byte) error
}

// LaunchEvent 新代币入库后发布到 amqp 的消息
type LaunchEvent struct {
	TokenAddress      string    `json:"token_address"`
	PairAddress       string    `json:"pair_address"`
	Name              string    `json:"name"`
	Symbol            string    `json:"symbol"`
	Verified          bool      `json:"verified"`
	InitialTokenPrice string    `json:"initial_token_price"`
	Liquidity         string    `json:"liquidity"`
	MessageID         *int      `json:"message_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// ContractProfile 合约画像。Verified 为 false 时 Socials / Taxes / Owner 均为空
type ContractProfile struct {
	Verified bool
	ABI      *abi.ABI
	Socials  *SocialLinks
	Taxes    *TaxRates
	Owner    string
}

type EnrichmentResult struct {
	Token             *schema.Token
	Profile           ContractProfile
	InitialTokenPrice decimal.Decimal
	Liquidity         decimal.Decimal
	Notified          bool
}

type EnrichmentService interface {
	HandlePairCreated(ctx context.Context, ev PairCreatedEvent) (*EnrichmentResult, error)
}

type enrichmentService struct {
	baseToken    common.Address
	baseDecimals int32
	cooldown     time.Duration
	sleep        shared.SleepFunc

	chain     ChainService
	etherscan EtherscanService
	dex       DexScreenerService
	chainbase ChainbaseService
	coingecko CoinGeckoService
	preview   PreviewService
	telegram  TelegramService
	repo      repository.TokenRepository
	publisher LaunchPublisher
	logger    zerolog.Logger
}

func NewEnrichmentService(cfg *koanf.Koanf, chain ChainService, etherscan EtherscanService, dex DexScreenerService, chainbase ChainbaseService, coingecko CoinGeckoService, preview PreviewService, telegram TelegramService, repo repository.TokenRepository, publisher LaunchPublisher, logger zerolog.Logger) EnrichmentService {
	return NewEnrichmentServiceWithSleep(cfg, chain, etherscan, dex, chainbase, coingecko, preview, telegram, repo, publisher, logger, shared.SleepContext)
}

// NewEnrichmentServiceWithSleep sleep 用于冷却等待, 测试中可替换
func NewEnrichmentServiceWithSleep(cfg *koanf.Koanf, chain ChainService, etherscan EtherscanService, dex DexScreenerService, chainbase ChainbaseService, coingecko CoinGeckoService, preview PreviewService, telegram TelegramService, repo repository.TokenRepository, publisher LaunchPublisher, logger zerolog.Logger, sleep shared.SleepFunc) EnrichmentService {
	cooldown := cfg.Duration("pipeline.cooldown")
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	baseDecimals := cfg.Int("chain.base-token-decimals")
	if baseDecimals <= 0 {
		baseDecimals = defaultBaseDecimals
	}
	if sleep == nil {
		sleep = shared.SleepContext
	}

	return &enrichmentService{
		baseToken:    common.HexToAddress(cfg.String("chain.base-token-address")),
		baseDecimals: int32(baseDecimals),
		cooldown:     cooldown,
		sleep:        sleep,
		chain:        chain,
		etherscan:    etherscan,
		dex:          dex,
		chainbase:    chainbase,
		coingecko:    coingecko,
		preview:      preview,
		telegram:     telegram,
		repo:         repo,
		publisher:    publisher,
		logger:       logger.With().Str("service", "enrichment").Logger(),
	}
}

// NewToken 返回交易对中不是基础币的一方
func NewToken(ev PairCreatedEvent, baseToken common.Address) common.Address {
	if ev.Token0 == baseToken {
		return ev.Token1
	}
	return ev.Token0
}

// TokenPrice baseAmount / tokenAmount, baseAmount 不为正时返回 0
func TokenPrice(baseAmount decimal.Decimal, tokenAmount decimal.Decimal) decimal.Decimal {
	if !baseAmount.IsPositive() || !tokenAmount.IsPositive() {
		return decimal.Zero
	}
	return baseAmount.DivRound(tokenAmount, 18)
}

func toUnits(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

func (s *enrichmentService) HandlePairCreated(ctx context.Context, ev PairCreatedEvent) (result *EnrichmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("pair", ev.Pair.Hex()).
				Str("stack", string(debug.Stack())).
				Msg("处理新交易对时发生 panic")
			result = nil
			err = fmt.Errorf("enrichment panic: %v", r)
		}
	}()

	token := NewToken(ev, s.baseToken)
	tokenAddress := token.Hex()
	pairAddress := ev.Pair.Hex()
	logger := s.logger.With().Str("token", tokenAddress).Str("pair", pairAddress).Logger()
	logger.Info().Msg("new pair created")

	ethPrice := s.coingecko.GetETHPrice(ctx)
	if ethPrice.Err != nil {
		logger.Warn().Err(ethPrice.Err).Msg("ETH price unavailable")
	}

	profile := s.resolveContract(ctx, token, logger)

	meta, err := s.chain.ReadTokenMetadata(ctx, token, profile.ABI)
	if err != nil {
		return nil, fmt.Errorf("failed to read token metadata %s: %w", tokenAddress, err)
	}

	baseAmount, tokenAmount := s.poolBalances(ctx, token, ev.Pair, meta.Decimals, logger)
	price := TokenPrice(baseAmount, tokenAmount)

	if s.cooldown > 0 {
		logger.Debug().Dur("cooldown", s.cooldown).Msg("waiting for indexers")
		if err := s.sleep(ctx, s.cooldown); err != nil {
			return nil, err
		}
	}

	var (
		market   Result[*Pair]
		holders  int
		deployer Result[string]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		market = s.dex.GetDexScreenerData(gctx, tokenAddress)
		return nil
	})
	g.Go(func() error {
		h, err := s.chainbase.GetTokenHolders(gctx, tokenAddress)
		if err != nil {
			logger.Warn().Err(err).Msg("holders unavailable")
			return nil
		}
		holders = h.Count
		return nil
	})
	g.Go(func() error {
		deployer = s.etherscan.FindDeployerAddress(gctx, tokenAddress)
		return nil
	})
	_ = g.Wait()

	data := MessageData{
		TokenAddress:    tokenAddress,
		Name:            meta.Name,
		Symbol:          meta.Symbol,
		Socials:         profile.Socials,
		Taxes:           profile.Taxes,
		Owner:           profile.Owner,
		TotalSupply:     toUnits(meta.TotalSupply, int32(meta.Decimals)),
		BaseAmount:      baseAmount,
		DeployerAddress: deployer.OrElse(""),
		HoldersCount:    holders,
	}
	if ethPrice.OK() {
		data.ETHPrice = &ethPrice.Value
	}
	if market.OK() {
		data.Market = market.Value
	}

	notification := Notification{
		Text:         FormMessage(data),
		TokenAddress: tokenAddress,
		PairAddress:  pairAddress,
	}
	s.attachImage(ctx, &notification, profile.Socials, logger)

	record := &schema.Token{
		TokenAddress:          tokenAddress,
		PairAddress:           pairAddress,
		DeployerAddress:       shared.StringPtr(data.DeployerAddress),
		TokenName:             meta.Name,
		TokenSymbol:           meta.Symbol,
		TokenInitialLiquidity: liquidityPtr(baseAmount),
	}
	if data.Market != nil {
		record.InitialTokenPriceNative = shared.StringPtr(data.Market.PriceNative)
		record.CurrentTokenPriceNative = shared.StringPtr(data.Market.PriceNative)
		record.IsDexScreenAvailable = true
	}
	if profile.Socials != nil {
		record.TelegramLink = shared.StringPtr(profile.Socials.Telegram)
		record.Website = shared.StringPtr(profile.Socials.Website)
		record.Twitter = shared.StringPtr(profile.Socials.Twitter)
	}
	if profile.Taxes != nil {
		record.BuyTax = shared.IntPtr(profile.Taxes.Buy)
		record.SellTax = shared.IntPtr(profile.Taxes.Sell)
	}

	result = &EnrichmentResult{
		Token:             record,
		Profile:           profile,
		InitialTokenPrice: price,
		Liquidity:         baseAmount,
	}

	messageID, err := s.telegram.NotifyAboutNewPair(ctx, notification)
	if err != nil {
		logger.Error().Err(err).Msg("failed to notify about new pair")
	} else {
		record.MessageID = shared.IntPtr(messageID)
		result.Notified = true
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateToken) {
			logger.Warn().Err(err).Msg("token already stored")
			return result, nil
		}
		return result, fmt.Errorf("failed to save token %s: %w", tokenAddress, err)
	}

	s.publish(result, logger)
	logger.Info().
		Bool("verified", profile.Verified).
		Str("price", price.String()).
		Bool("dexscreener", record.IsDexScreenAvailable).
		Msg("处理新交易对成功")
	return result, nil
}

// resolveContract ABI 获取成功走已验证路径, 否则使用最小 ABI 继续
func (s *enrichmentService) resolveContract(ctx context.Context, token common.Address, logger zerolog.Logger) ContractProfile {
	contractABI := s.etherscan.FetchContractABI(ctx, token.Hex())
	if !contractABI.OK() {
		logger.Info().Msg("contract is not verified, using minimal ERC-20 ABI")
		return ContractProfile{}
	}

	profile := ContractProfile{Verified: true, ABI: contractABI.Value}

	source, err := s.etherscan.FetchContractSourceCode(ctx, token.Hex())
	if err != nil {
		logger.Warn().Err(err).Msg("source code unavailable, skip socials, taxes and owner")
		return profile
	}

	socials := ExtractSocialLinks(source)
	taxes := ExtractTaxRates(source)
	profile.Socials = &socials
	profile.Taxes = &taxes

	owner := s.chain.ReadOwner(ctx, token, profile.ABI)
	if owner.Err != nil {
		logger.Debug().Err(owner.Err).Msg("owner() unavailable")
	}
	profile.Owner = owner.OrElse("")
	return profile
}

func (s *enrichmentService) poolBalances(ctx context.Context, token common.Address, pair common.Address, tokenDecimals uint8, logger zerolog.Logger) (decimal.Decimal, decimal.Decimal) {
	baseRaw, err := s.etherscan.GetBalanceOfToken(ctx, s.baseToken.Hex(), pair.Hex())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read base token balance of pair")
		return decimal.Zero, decimal.Zero
	}
	tokenRaw, err := s.etherscan.GetBalanceOfToken(ctx, token.Hex(), pair.Hex())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read token balance of pair")
		return toUnits(baseRaw, s.baseDecimals), decimal.Zero
	}
	return toUnits(baseRaw, s.baseDecimals), toUnits(tokenRaw, int32(tokenDecimals))
}

// attachImage 优先使用 tg 频道头像, 其次是网站的预览图
func (s *enrichmentService) attachImage(ctx context.Context, n *Notification, socials *SocialLinks, logger zerolog.Logger) {
	if socials == nil {
		return
	}
	if socials.Telegram != "" {
		photo := s.telegram.GetImageBufferFromTgChannel(ctx, socials.Telegram)
		if photo.OK() {
			n.ImageBuffer = photo.Value
			return
		}
		if photo.Err != nil {
			logger.Debug().Err(photo.Err).Msg("telegram channel photo unavailable")
		}
	}
	if socials.Website != "" {
		image := s.preview.FetchPreviewImageFromHtml(ctx, socials.Website)
		if image.OK() {
			n.ImageURL = image.Value
		}
	}
}

func liquidityPtr(baseAmount decimal.Decimal) *float64 {
	v := baseAmount.InexactFloat64()
	return &v
}

func (s *enrichmentService) publish(result *EnrichmentResult, logger zerolog.Logger) {
	if s.publisher == nil {
		return
	}

	record := result.Token
	body, err := json.Marshal(LaunchEvent{
		TokenAddress:      record.TokenAddress,
		PairAddress:       record.PairAddress,
		Name:              record.TokenName,
		Symbol:            record.TokenSymbol,
		Verified:          result.Profile.Verified,
		InitialTokenPrice: result.InitialTokenPrice.String(),
		Liquidity:         result.Liquidity.String(),
		MessageID:         record.MessageID,
		CreatedAt:         record.CreatedAt,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode launch event")
		return
	}

	if err := s.publisher.Publish(LaunchRoutingKey, body); err != nil {
		if errors.Is(err, shared.ErrAmqpDisabled) {
			return
		}
		logger.Warn().Err(err).Msg("failed to publish launch event")
	}
}
