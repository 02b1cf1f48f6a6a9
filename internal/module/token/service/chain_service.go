package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// 未验证合约使用的最小 ERC-20 ABI
const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const factoryABIJSON = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":false,"name":"pair","type":"address"},
		{"indexed":false,"name":"","type":"uint256"}
	],"name":"PairCreated","type":"event"}
]`

var (
	ERC20ABI   = mustParseABI(erc20ABIJSON)
	FactoryABI = mustParseABI(factoryABIJSON)
)

var ErrChainNotConnected = errors.New("chain client is not connected")

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PairCreatedEvent 工厂合约的 PairCreated 事件
type PairCreatedEvent struct {
	Token0      common.Address
	Token1      common.Address
	Pair        common.Address
	BlockNumber uint64
	TxHash      common.Hash
}

type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

type ChainService interface {
	Connect(ctx context.Context) error
	Close()
	// ReadTokenMetadata contractABI 为 nil 或缺少方法时使用最小 ERC-20 ABI
	ReadTokenMetadata(ctx context.Context, token common.Address, contractABI *abi.ABI) (*TokenMetadata, error)
	ReadOwner(ctx context.Context, token common.Address, contractABI *abi.ABI) Result[string]
	SubscribePairCreated(ctx context.Context, sink chan<- PairCreatedEvent) (event.Subscription, error)
}

type chainService struct {
	wsURL   string
	factory common.Address
	client  *ethclient.Client
	mu      sync.RWMutex
	logger  zerolog.Logger
}

func NewChainService(cfg *koanf.Koanf, logger zerolog.Logger) ChainService {
	return &chainService{
		wsURL:   cfg.String("chain.ws-url"),
		factory: common.HexToAddress(cfg.String("chain.factory-address")),
		logger:  logger.With().Str("service", "chain").Logger(),
	}
}

func (s *chainService) Connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, s.wsURL)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", redactURL(s.wsURL), err)
	}

	s.mu.Lock()
	previous := s.client
	s.client = client
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

// redactURL 去掉 url 中的 api key
func redactURL(raw string) string {
	if i := strings.LastIndex(raw, "/"); i > len("wss://") {
		return raw[:i] + "/***"
	}
	return raw
}

func (s *chainService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

func (s *chainService) getClient() (*ethclient.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrChainNotConnected
	}
	return s.client, nil
}

func methodABI(contractABI *abi.ABI, method string) *abi.ABI {
	if contractABI != nil {
		if _, ok := contractABI.Methods[method]; ok {
			return contractABI
		}
	}
	return &ERC20ABI
}

func (s *chainService) call(ctx context.Context, token common.Address, contractABI *abi.ABI, method string) ([]interface{}, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	parsed := methodABI(contractABI, method)
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	output, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (s *chainService) ReadTokenMetadata(ctx context.Context, token common.Address, contractABI *abi.ABI) (*TokenMetadata, error) {
	meta := &TokenMetadata{}

	name, err := s.call(ctx, token, contractABI, "name")
	if err != nil {
		return nil, err
	}
	meta.Name, _ = name[0].(string)

	symbol, err := s.call(ctx, token, contractABI, "symbol")
	if err != nil {
		return nil, err
	}
	meta.Symbol, _ = symbol[0].(string)

	decimals, err := s.call(ctx, token, contractABI, "decimals")
	if err != nil {
		return nil, err
	}
	switch v := decimals[0].(type) {
	case uint8:
		meta.Decimals = v
	case *big.Int:
		meta.Decimals = uint8(v.Uint64())
	default:
		return nil, fmt.Errorf("unexpected decimals type %T", decimals[0])
	}

	supply, err := s.call(ctx, token, contractABI, "totalSupply")
	if err != nil {
		return nil, err
	}
	totalSupply, ok := supply[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected totalSupply type %T", supply[0])
	}
	meta.TotalSupply = totalSupply

	return meta, nil
}

func (s *chainService) ReadOwner(ctx context.Context, token common.Address, contractABI *abi.ABI) Result[string] {
	values, err := s.call(ctx, token, contractABI, "owner")
	if err != nil {
		return Failed[string](err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return Absent[string]()
	}
	return Found(owner.Hex())
}

// DecodePairCreated 解析 PairCreated 日志
func DecodePairCreated(log types.Log) (PairCreatedEvent, error) {
	if len(log.Topics) < 3 {
		return PairCreatedEvent{}, fmt.Errorf("unexpected topic count %d", len(log.Topics))
	}

	values, err := FactoryABI.Unpack("PairCreated", log.Data)
	if err != nil {
		return PairCreatedEvent{}, fmt.Errorf("unpack PairCreated: %w", err)
	}
	pair, ok := values[0].(common.Address)
	if !ok {
		return PairCreatedEvent{}, fmt.Errorf("unexpected pair type %T", values[0])
	}

	return PairCreatedEvent{
		Token0:      common.BytesToAddress(log.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(log.Topics[2].Bytes()),
		Pair:        pair,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// SubscribePairCreated 订阅断开后自动重新订阅
func (s *chainService) SubscribePairCreated(ctx context.Context, sink chan<- PairCreatedEvent) (event.Subscription, error) {
	if _, err := s.getClient(); err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.factory},
		Topics:    [][]common.Hash{{FactoryABI.Events["PairCreated"].ID}},
	}

	sub := event.ResubscribeErr(2*time.Minute, func(ctx context.Context, lastErr error) (event.Subscription, error) {
		if lastErr != nil {
			s.logger.Warn().Err(lastErr).Msg("PairCreated subscription dropped, resubscribing")
			if err := s.Connect(ctx); err != nil {
				return nil, err
			}
		}
		client, err := s.getClient()
		if err != nil {
			return nil, err
		}

		logs := make(chan types.Log, 64)
		logSub, err := client.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			return nil, err
		}

		return event.NewSubscription(func(quit <-chan struct{}) error {
			defer logSub.Unsubscribe()
			for {
				select {
				case vLog := <-logs:
					if vLog.Removed {
						continue
					}
					ev, err := DecodePairCreated(vLog)
					if err != nil {
						s.logger.Warn().Err(err).Str("tx", vLog.TxHash.Hex()).Msg("failed to decode PairCreated")
						continue
					}
					select {
					case sink <- ev:
					case <-quit:
						return nil
					}
				case err := <-logSub.Err():
					return err
				case <-quit:
					return nil
				}
			}
		}), nil
	})

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return sub, nil
}
