package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/database"
	"github.com/dumbtokens/launch-watcher/internal/database/schema"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrDuplicateToken = errors.New("token already stored")
	ErrTokenNotFound  = errors.New("token not found")
)

// TokenFilter 按创建时间窗口和状态筛选, 指针为 nil 表示不限制
type TokenFilter struct {
	From                 time.Time
	To                   time.Time
	IsDexScreenAvailable *bool
	IsRugPull            *bool
}

func Bool(v bool) *bool {
	return &v
}

type TokenRepository interface {
	Create(ctx context.Context, token *schema.Token) error
	GetByAddress(ctx context.Context, tokenAddress string) (*schema.Token, error)
	FindInWindow(ctx context.Context, filter TokenFilter) ([]schema.Token, error)
	CountInWindow(ctx context.Context, filter TokenFilter) (int64, error)
	// SaveScanned 保存批处理扫描结果。is_rug_pull / is_dex_screen_available 只会从 false 变为 true,
	// initial_token_price_native 只写入一次。
	SaveScanned(ctx context.Context, tokens []schema.Token) error
}

type tokenRepository struct {
	db     *database.Database
	logger zerolog.Logger
}

func NewTokenRepository(db *database.Database, logger zerolog.Logger) TokenRepository {
	return &tokenRepository{
		db:     db,
		logger: logger,
	}
}

func (r *tokenRepository) Create(ctx context.Context, token *schema.Token) error {
	err := r.db.DB.WithContext(ctx).Create(token).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, token.TokenAddress)
	}
	return err
}

func (r *tokenRepository) GetByAddress(ctx context.Context, tokenAddress string) (*schema.Token, error) {
	var token schema.Token
	err := r.db.DB.WithContext(ctx).
		Where("LOWER(token_address) = ?", strings.ToLower(tokenAddress)).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) scope(ctx context.Context, filter TokenFilter) *gorm.DB {
	query := r.db.DB.WithContext(ctx).Model(&schema.Token{}).
		Where("created_at >= ? AND created_at <= ?", filter.From, filter.To)
	if filter.IsDexScreenAvailable != nil {
		query = query.Where("is_dex_screen_available = ?", *filter.IsDexScreenAvailable)
	}
	if filter.IsRugPull != nil {
		query = query.Where("is_rug_pull = ?", *filter.IsRugPull)
	}
	return query
}

func (r *tokenRepository) FindInWindow(ctx context.Context, filter TokenFilter) ([]schema.Token, error) {
	var tokens []schema.Token
	if err := r.scope(ctx, filter).Order("created_at ASC, id ASC").Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *tokenRepository) CountInWindow(ctx context.Context, filter TokenFilter) (int64, error) {
	var count int64
	if err := r.scope(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *tokenRepository) SaveScanned(ctx context.Context, tokens []schema.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, token := range tokens {
			updates := map[string]interface{}{
				"current_token_price_native": token.CurrentTokenPriceNative,
				"initial_token_price_native": gorm.Expr("COALESCE(initial_token_price_native, ?)", token.InitialTokenPriceNative),
				"is_dex_screen_available":    gorm.Expr("is_dex_screen_available OR ?", token.IsDexScreenAvailable),
				"is_rug_pull":                gorm.Expr("is_rug_pull OR ?", token.IsRugPull),
				"updated_at":                 time.Now(),
			}
			if err := tx.Model(&schema.Token{}).Where("id = ?", token.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to save token %s: %w", token.TokenAddress, err)
			}
		}
		return nil
	})
}
