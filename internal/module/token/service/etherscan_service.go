package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrContractNotVerified = errors.New("contract source code is not verified")

// errNotOK etherscan 正常返回但 status 不为 1
var errNotOK = errors.New("etherscan returned NOTOK")

type EtherscanService interface {
	// FetchContractABI 带指数退避重试。最后一次仍是 NOTOK 时返回 Absent, 请求失败时返回 Failed
	FetchContractABI(ctx context.Context, address string) Result[*abi.ABI]
	FetchContractSourceCode(ctx context.Context, address string) (string, error)
	FindDeployerAddress(ctx context.Context, address string) Result[string]
	GetBalanceOfToken(ctx context.Context, tokenAddress string, holderAddress string) (*big.Int, error)
}

type etherscanService struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient shared.HTTPClient
	limiter    *rate.Limiter
	backoff    *shared.Backoff
	logger     zerolog.Logger
}

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *etherscanResponse) ok() bool {
	return r.Status == "1" && r.Message == "OK"
}

// resultText 错误时 result 通常是一段说明文字
func (r *etherscanResponse) resultText() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

type etherscanSource struct {
	SourceCode   string `json:"SourceCode"`
	ContractName string `json:"ContractName"`
}

type etherscanTx struct {
	Hash string `json:"hash"`
	From string `json:"from"`
}

func NewEtherscanService(cfg *koanf.Koanf, logger zerolog.Logger) EtherscanService {
	return &etherscanService{
		baseURL:    cfg.String("etherscan.url"),
		apiKey:     cfg.String("etherscan.api-key"),
		timeout:    cfg.Duration("pipeline.http-timeout"),
		httpClient: &http.Client{},
		limiter:    newLimiter(cfg.Float64("etherscan.rate-limit")),
		backoff:    shared.NewBackoff(cfg.Int("pipeline.abi-max-retries"), cfg.Duration("pipeline.abi-initial-delay")),
		logger:     logger.With().Str("service", "etherscan").Logger(),
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func (s *etherscanService) query(ctx context.Context, params url.Values) (*etherscanResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", s.apiKey)
	body, _, err := shared.DoRequest(ctx, s.httpClient, s.baseURL+"?"+params.Encode(), nil, s.timeout)
	if err != nil {
		return nil, err
	}

	var resp etherscanResponse
	if err := shared.ParseJSONResponse(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *etherscanService) FetchContractABI(ctx context.Context, address string) Result[*abi.ABI] {
	raw, err := shared.Retry(ctx, s.backoff, func(ctx context.Context) (string, error) {
		resp, err := s.query(ctx, url.Values{
			"module":  {"contract"},
			"action":  {"getabi"},
			"address": {address},
		})
		if err != nil {
			return "", err
		}
		if !resp.ok() {
			return "", fmt.Errorf("%w: getabi %s: %s", errNotOK, resp.Message, resp.resultText())
		}
		return resp.resultText(), nil
	})
	if err != nil {
		if errors.Is(err, errNotOK) {
			s.logger.Info().Err(err).Str("address", address).Msg("contract ABI not available")
			return Absent[*abi.ABI]()
		}
		s.logger.Warn().Err(err).Str("address", address).Msg("failed to fetch contract ABI")
		return Failed[*abi.ABI](err)
	}

	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		s.logger.Warn().Err(err).Str("address", address).Msg("failed to parse contract ABI")
		return Failed[*abi.ABI](err)
	}
	return Found(&parsed)
}

func (s *etherscanService) FetchContractSourceCode(ctx context.Context, address string) (string, error) {
	resp, err := s.query(ctx, url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address},
	})
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", fmt.Errorf("%w: %s", ErrContractNotVerified, resp.resultText())
	}

	var sources []etherscanSource
	if err := json.Unmarshal(resp.Result, &sources); err != nil {
		return "", fmt.Errorf("failed to decode source code: %w", err)
	}
	if len(sources) == 0 || sources[0].SourceCode == "" {
		return "", ErrContractNotVerified
	}
	return sources[0].SourceCode, nil
}

func (s *etherscanService) FindDeployerAddress(ctx context.Context, address string) Result[string] {
	resp, err := s.query(ctx, url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {address},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"page":       {"1"},
		"offset":     {"10"},
		"sort":       {"asc"},
	})
	if err != nil {
		return Failed[string](err)
	}

	var txs []etherscanTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		// 没有交易时 result 可能是字符串
		if resp.Status == "0" {
			return Absent[string]()
		}
		return Failed[string](fmt.Errorf("failed to decode txlist: %w", err))
	}
	if len(txs) == 0 || txs[0].From == "" {
		return Absent[string]()
	}
	return Found(txs[0].From)
}

func (s *etherscanService) GetBalanceOfToken(ctx context.Context, tokenAddress string, holderAddress string) (*big.Int, error) {
	resp, err := s.query(ctx, url.Values{
		"module":          {"account"},
		"action":          {"tokenbalance"},
		"contractaddress": {tokenAddress},
		"address":         {holderAddress},
		"tag":             {"latest"},
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, fmt.Errorf("tokenbalance %s: %s", resp.Message, resp.resultText())
	}

	balance, ok := new(big.Int).SetString(resp.resultText(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid token balance %q", resp.resultText())
	}
	return balance, nil
}
