package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/web3-frozen/ethyields/internal/pools"
)

func setupPostgres(t *testing.T) Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("yields"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresURL(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func setupMySQL(t *testing.T) Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "test",
			"MYSQL_DATABASE":      "yields",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	s, err := Open(ctx, Config{
		Driver:   DriverMySQL,
		Host:     host,
		Port:     port.Port(),
		User:     "root",
		Password: "test",
		Database: "yields",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	// second migration must be a no-op
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresStore(t *testing.T) {
	runStoreContract(t, setupPostgres(t))
}

func TestMySQLStore(t *testing.T) {
	runStoreContract(t, setupMySQL(t))
}

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	known, err := s.KnownPoolIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)

	at := time.Now().Truncate(time.Second)
	batch := []pools.Pool{
		{Chain: "Ethereum", Project: "lido", Symbol: "STETH", TVLUsd: 500000, APY: 5.2, Pool: "p1",
			APYBase: f64(5.2), RewardTokens: []string{}, UnderlyingTokens: []string{"0xu"}},
		{Chain: "Base", Project: "aerodrome", Symbol: "WETH-USDC", TVLUsd: 300000, APY: 12.5, Pool: "p2",
			RewardTokens: []string{"0xr1", "0xr2"}},
	}
	require.NoError(t, s.InsertPools(ctx, batch, at))

	known, err = s.KnownPoolIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, known, 2)
	assert.True(t, known.Has("p1"))
	assert.True(t, known.Has("p2"))

	// empty batch is a no-op
	require.NoError(t, s.InsertPools(ctx, nil, at))

	t.Run("rollback on failure", func(t *testing.T) {
		// 70k NUL bytes: Postgres rejects NUL in text, MySQL rejects the
		// length in strict mode
		bad := []pools.Pool{
			{Chain: "Ethereum", Project: "ok", Symbol: "ETH", TVLUsd: 1, APY: 4, Pool: "p3"},
			{Chain: string(make([]byte, 70000)), Project: "bad", Symbol: "ETH", TVLUsd: 1, APY: 4, Pool: "p4"},
		}
		err := s.InsertPools(ctx, bad, at)
		require.ErrorIs(t, err, ErrPersistence)

		known, err := s.KnownPoolIDs(ctx)
		require.NoError(t, err)
		assert.False(t, known.Has("p3"), "first row of a failed batch must not be committed")
		assert.Len(t, known, 2)
	})
}
