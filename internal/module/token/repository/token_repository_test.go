//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/database"
	"github.com/dumbtokens/launch-watcher/internal/database/schema"
	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresRepository(t *testing.T) repository.TokenRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("launch_watcher"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db := database.NewDatabase(shared.SetupCfg(map[string]interface{}{"db.postgres.dsn": dsn}), zerolog.Nop())
	require.NoError(t, db.ConnectDatabase())
	require.NoError(t, db.MigrateModels())
	t.Cleanup(db.ShutdownDatabase)

	return repository.NewTokenRepository(db, zerolog.Nop())
}

func TestTokenRepositoryPostgres(t *testing.T) {
	repo := setupPostgresRepository(t)
	ctx := context.Background()

	token := &schema.Token{
		TokenAddress: "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		PairAddress:  "0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11",
		TokenName:    "Dai",
		TokenSymbol:  "DAI",
		BuyTax:       shared.IntPtr(0),
	}
	require.NoError(t, repo.Create(ctx, token))
	assert.NotZero(t, token.ID)

	t.Run("duplicate address is rejected", func(t *testing.T) {
		dup := &schema.Token{TokenAddress: token.TokenAddress, PairAddress: "0x0"}
		assert.ErrorIs(t, repo.Create(ctx, dup), repository.ErrDuplicateToken)
	})

	t.Run("scan saves keep flags monotonic", func(t *testing.T) {
		scanned := *token
		scanned.IsRugPull = true
		scanned.IsDexScreenAvailable = true
		scanned.InitialTokenPriceNative = shared.StringPtr("0.001")
		scanned.CurrentTokenPriceNative = shared.StringPtr("0.001")
		require.NoError(t, repo.SaveScanned(ctx, []schema.Token{scanned}))

		scanned.IsRugPull = false
		scanned.InitialTokenPriceNative = shared.StringPtr("9")
		scanned.CurrentTokenPriceNative = shared.StringPtr("0.002")
		require.NoError(t, repo.SaveScanned(ctx, []schema.Token{scanned}))

		stored, err := repo.GetByAddress(ctx, token.TokenAddress)
		require.NoError(t, err)
		assert.True(t, stored.IsRugPull)
		assert.True(t, stored.IsDexScreenAvailable)
		assert.Equal(t, "0.001", *stored.InitialTokenPriceNative)
		assert.Equal(t, "0.002", *stored.CurrentTokenPriceNative)
	})

	t.Run("window queries", func(t *testing.T) {
		now := time.Now()
		filter := repository.TokenFilter{From: now.Add(-time.Hour), To: now.Add(time.Minute)}

		tokens, err := repo.FindInWindow(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)

		filter.IsRugPull = repository.Bool(true)
		count, err := repo.CountInWindow(ctx, filter)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)

		_, err = repo.GetByAddress(ctx, "0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, repository.ErrTokenNotFound)
	})
}
