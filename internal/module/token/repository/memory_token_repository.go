package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/database/schema"
)

// MemoryTokenRepository 进程内实现, 语义与 gorm 实现一致, 用于测试和本地调试
type MemoryTokenRepository struct {
	mu     sync.RWMutex
	nextID uint64
	rows   map[string]*schema.Token
	Now    func() time.Time
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{
		rows: make(map[string]*schema.Token),
		Now:  time.Now,
	}
}

func key(address string) string {
	return strings.ToLower(address)
}

func (r *MemoryTokenRepository) Create(ctx context.Context, token *schema.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[key(token.TokenAddress)]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, token.TokenAddress)
	}

	r.nextID++
	token.ID = r.nextID
	now := r.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	stored := *token
	r.rows[key(token.TokenAddress)] = &stored
	return nil
}

func (r *MemoryTokenRepository) GetByAddress(ctx context.Context, tokenAddress string) (*schema.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[key(tokenAddress)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	token := *row
	return &token, nil
}

func (r *MemoryTokenRepository) match(row *schema.Token, filter TokenFilter) bool {
	if row.CreatedAt.Before(filter.From) || row.CreatedAt.After(filter.To) {
		return false
	}
	if filter.IsDexScreenAvailable != nil && row.IsDexScreenAvailable != *filter.IsDexScreenAvailable {
		return false
	}
	if filter.IsRugPull != nil && row.IsRugPull != *filter.IsRugPull {
		return false
	}
	return true
}

func (r *MemoryTokenRepository) FindInWindow(ctx context.Context, filter TokenFilter) ([]schema.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tokens []schema.Token
	for _, row := range r.rows {
		if r.match(row, filter) {
			tokens = append(tokens, *row)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].ID < tokens[j].ID
		}
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (r *MemoryTokenRepository) CountInWindow(ctx context.Context, filter TokenFilter) (int64, error) {
	tokens, err := r.FindInWindow(ctx, filter)
	return int64(len(tokens)), err
}

func (r *MemoryTokenRepository) SaveScanned(ctx context.Context, tokens []schema.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range tokens {
		row, ok := r.rows[key(token.TokenAddress)]
		if !ok || row.ID != token.ID {
			continue
		}
		row.CurrentTokenPriceNative = token.CurrentTokenPriceNative
		if row.InitialTokenPriceNative == nil {
			row.InitialTokenPriceNative = token.InitialTokenPriceNative
		}
		row.IsDexScreenAvailable = row.IsDexScreenAvailable || token.IsDexScreenAvailable
		row.IsRugPull = row.IsRugPull || token.IsRugPull
		row.UpdatedAt = r.Now()
	}
	return nil
}
