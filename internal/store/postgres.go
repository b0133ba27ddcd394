package store

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/ethyields/internal/pools"
)

const (
	DriverPostgres = "postgres"

	postgresInsertSQL = `INSERT INTO lsds (` + lsdsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
)

// Postgres is a Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres dials and pings the database described by cfg.
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	return NewPostgresURL(ctx, postgresURL(cfg))
}

// NewPostgresURL dials and pings databaseURL.
func NewPostgresURL(ctx context.Context, databaseURL string) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, persistErr("parse database url", err)
	}
	// a single pass needs one connection
	pcfg.MaxConns = 2
	pcfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, persistErr("create pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistErr("ping database", err)
	}

	return &Postgres{pool: pool}, nil
}

func postgresURL(cfg Config) string {
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   hostPort(cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	return u.String()
}

// hostPort keeps a port already present in host.
func hostPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigrationSQL); err != nil {
		return persistErr("migrate", err)
	}
	return nil
}

func (s *Postgres) KnownPoolIDs(ctx context.Context) (pools.IDSet, error) {
	rows, err := s.pool.Query(ctx, selectKnownSQL)
	if err != nil {
		return nil, persistErr("select known pools", err)
	}
	defer rows.Close()

	known := make(pools.IDSet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistErr("scan pool id", err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("select known pools", err)
	}
	return known, nil
}

// InsertPools writes every pool in one transaction. Nothing is committed
// unless all inserts succeed.
func (s *Postgres) InsertPools(ctx context.Context, ps []pools.Pool, at time.Time) error {
	if len(ps) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistErr("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, p := range ps {
		if _, err := tx.Exec(ctx, postgresInsertSQL, NewRow(p, at).args()...); err != nil {
			return persistErr(fmt.Sprintf("insert pool %s", p.Pool), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return persistErr("commit", err)
	}
	return nil
}
