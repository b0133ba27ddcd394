package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/web3-frozen/ethyields/internal/pools"
)

// ErrPersistence wraps every database failure: dial, query, insert or commit.
var ErrPersistence = errors.New("persistence")

// Store is an append-only log of discovered pools backed by the lsds table.
//
// KnownPoolIDs and InsertPools are not atomic as a pair. Two processes running
// at once can both see a pool as new and both insert it; the table carries no
// unique constraint on pool.
type Store interface {
	Migrate(ctx context.Context) error
	KnownPoolIDs(ctx context.Context) (pools.IDSet, error)
	InsertPools(ctx context.Context, ps []pools.Pool, at time.Time) error
	Close() error
}

// Row is the lsds row written for a newly seen pool.
type Row struct {
	Date             time.Time
	Chain            string
	Project          string
	Symbol           string
	TVLUsd           float64
	APYBase          *float64
	APYReward        *float64
	APY              float64
	RewardTokens     *string
	Pool             string
	APYPct1D         *float64
	APYPct7D         *float64
	APYPct30D        *float64
	UnderlyingTokens *string
	APYMean30d       *float64
}

// NewRow stamps p with at and flattens its token lists.
func NewRow(p pools.Pool, at time.Time) Row {
	return Row{
		Date:             at,
		Chain:            p.Chain,
		Project:          p.Project,
		Symbol:           p.Symbol,
		TVLUsd:           p.TVLUsd,
		APYBase:          p.APYBase,
		APYReward:        p.APYReward,
		APY:              p.APY,
		RewardTokens:     joinTokens(p.RewardTokens),
		Pool:             p.Pool,
		APYPct1D:         p.APYPct1D,
		APYPct7D:         p.APYPct7D,
		APYPct30D:        p.APYPct30D,
		UnderlyingTokens: joinTokens(p.UnderlyingTokens),
		APYMean30d:       p.APYMean30d,
	}
}

func (r Row) args() []any {
	return []any{
		r.Date, r.Chain, r.Project, r.Symbol, r.TVLUsd, r.APYBase, r.APYReward, r.APY,
		r.RewardTokens, r.Pool, r.APYPct1D, r.APYPct7D, r.APYPct30D, r.UnderlyingTokens, r.APYMean30d,
	}
}

// joinTokens returns nil (SQL NULL) for an empty list.
func joinTokens(tokens []string) *string {
	if len(tokens) == 0 {
		return nil
	}
	s := strings.Join(tokens, ", ")
	return &s
}

const (
	selectKnownSQL = `SELECT DISTINCT pool FROM lsds`
	lsdsColumns    = `date, chain, project, symbol, tvlUsd, apyBase, apyReward, apy, rewardTokens, pool, apyPct1D, apyPct7D, apyPct30D, underlyingTokens, apyMean30d`
)

// Config selects and addresses the database.
type Config struct {
	Driver   string // "mysql" or "postgres"
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// Open connects to the configured backend and creates lsds if it is missing.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", DriverMySQL:
		s, err = NewMySQL(ctx, cfg)
	case DriverPostgres:
		s, err = NewPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrPersistence, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
