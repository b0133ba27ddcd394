package store

// pool is indexed but not unique: rows are an append-only log and identity
// is enforced by the read-before-insert check.

const postgresMigrationSQL = `
CREATE TABLE IF NOT EXISTS lsds (
    date TIMESTAMPTZ NOT NULL,
    chain TEXT NOT NULL,
    project TEXT NOT NULL,
    symbol TEXT NOT NULL,
    tvlUsd DOUBLE PRECISION NOT NULL,
    apyBase DOUBLE PRECISION,
    apyReward DOUBLE PRECISION,
    apy DOUBLE PRECISION NOT NULL,
    rewardTokens TEXT,
    pool TEXT NOT NULL,
    apyPct1D DOUBLE PRECISION,
    apyPct7D DOUBLE PRECISION,
    apyPct30D DOUBLE PRECISION,
    underlyingTokens TEXT,
    apyMean30d DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_lsds_pool ON lsds (pool);
`

// MySQL executes one statement per Exec unless multiStatements is enabled,
// so the index is declared inline.
const mysqlMigrationSQL = `
CREATE TABLE IF NOT EXISTS lsds (
    date DATETIME(6) NOT NULL,
    chain VARCHAR(64) NOT NULL,
    project VARCHAR(128) NOT NULL,
    symbol VARCHAR(255) NOT NULL,
    tvlUsd DOUBLE NOT NULL,
    apyBase DOUBLE NULL,
    apyReward DOUBLE NULL,
    apy DOUBLE NOT NULL,
    rewardTokens TEXT NULL,
    pool VARCHAR(128) NOT NULL,
    apyPct1D DOUBLE NULL,
    apyPct7D DOUBLE NULL,
    apyPct30D DOUBLE NULL,
    underlyingTokens TEXT NULL,
    apyMean30d DOUBLE NULL,
    INDEX idx_lsds_pool (pool)
)`
