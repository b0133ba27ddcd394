package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/web3-frozen/ethyields/internal/pools"
)

const (
	DriverMySQL = "mysql"

	mysqlInsertSQL = `INSERT INTO lsds (` + lsdsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// MySQL is a Store on database/sql with the go-sql-driver/mysql driver.
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens and pings the database described by cfg.
func NewMySQL(ctx context.Context, cfg Config) (*MySQL, error) {
	return NewMySQLDSN(ctx, mysqlDSN(cfg))
}

// NewMySQLDSN opens and pings dsn.
func NewMySQLDSN(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, persistErr("open database", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, persistErr("ping database", err)
	}
	return &MySQL{db: db}, nil
}

func mysqlDSN(cfg Config) string {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(cfg.Host, port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.Local
	return mc.FormatDSN()
}

func (s *MySQL) Close() error { return s.db.Close() }

func (s *MySQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mysqlMigrationSQL); err != nil {
		return persistErr("migrate", err)
	}
	return nil
}

func (s *MySQL) KnownPoolIDs(ctx context.Context) (pools.IDSet, error) {
	rows, err := s.db.QueryContext(ctx, selectKnownSQL)
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
func (s *MySQL) InsertPools(ctx context.Context, ps []pools.Pool, at time.Time) error {
	if len(ps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, mysqlInsertSQL)
	if err != nil {
		return persistErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, p := range ps {
		if _, err := stmt.ExecContext(ctx, NewRow(p, at).args()...); err != nil {
			return persistErr(fmt.Sprintf("insert pool %s", p.Pool), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}
