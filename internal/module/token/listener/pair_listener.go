package listener

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
)

var ErrListenerRunning = errors.New("pair listener is already running")

// PairListener 订阅 PairCreated 事件, 每个事件在独立的 goroutine 中处理, 不保证顺序
type PairListener struct {
	chain      service.ChainService
	enrichment service.EnrichmentService
	logger     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	sub    event.Subscription
	wg     sync.WaitGroup
}

func NewPairListener(chain service.ChainService, enrichment service.EnrichmentService, logger zerolog.Logger) *PairListener {
	return &PairListener{
		chain:      chain,
		enrichment: enrichment,
		logger:     logger.With().Str("component", "pair-listener").Logger(),
	}
}

func (l *PairListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return ErrListenerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan service.PairCreatedEvent, 64)
	sub, err := l.chain.SubscribePairCreated(ctx, events)
	if err != nil {
		cancel()
		return err
	}
	l.cancel = cancel
	l.sub = sub

	l.wg.Add(1)
	go l.loop(ctx, events, sub)

	l.logger.Info().Msg("listening for PairCreated events")
	return nil
}

func (l *PairListener) loop(ctx context.Context, events <-chan service.PairCreatedEvent, sub event.Subscription) {
	defer l.wg.Done()

	for {
		select {
		case ev := <-events:
			l.wg.Add(1)
			go l.handle(ctx, ev)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				l.logger.Error().Err(err).Msg("PairCreated subscription failed")
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *PairListener) handle(ctx context.Context, ev service.PairCreatedEvent) {
	defer l.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("pair handler panic")
		}
	}()

	if _, err := l.enrichment.HandlePairCreated(ctx, ev); err != nil {
		l.logger.Error().
			Err(err).
			Str("pair", ev.Pair.Hex()).
			Str("tx", ev.TxHash.Hex()).
			Msg("处理新交易对失败")
	}
}

// Stop 取消订阅并等待处理中的事件结束
func (l *PairListener) Stop() {
	l.mu.Lock()
	cancel, sub := l.cancel, l.sub
	l.cancel, l.sub = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	sub.Unsubscribe()
	cancel()
	l.wg.Wait()
}
