package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/ethyields/internal/llama"
	"github.com/web3-frozen/ethyields/internal/notify"
	"github.com/web3-frozen/ethyields/internal/pools"
	"github.com/web3-frozen/ethyields/internal/store"
)

var fixedNow = time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	records []pools.Record
	err     error
}

func (f *fakeFetcher) FetchPools(context.Context) (*llama.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llama.Response{Status: "success", Data: f.records}, nil
}

// memStore is an in-memory lsds table shared across runs.
type memStore struct {
	rows      []store.Row
	insertErr error
	openErr   error

	opens, closes int
	open          bool
}

func (m *memStore) opener() OpenStoreFunc {
	return func(context.Context) (Store, error) {
		if m.openErr != nil {
			return nil, m.openErr
		}
		m.opens++
		m.open = true
		return m, nil
	}
}

func (m *memStore) KnownPoolIDs(context.Context) (pools.IDSet, error) {
	known := make(pools.IDSet)
	for _, r := range m.rows {
		known[r.Pool] = struct{}{}
	}
	return known, nil
}

func (m *memStore) InsertPools(_ context.Context, ps []pools.Pool, at time.Time) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, p := range ps {
		m.rows = append(m.rows, store.NewRow(p, at))
	}
	return nil
}

func (m *memStore) Close() error {
	m.closes++
	m.open = false
	return nil
}

type chat struct {
	messages []string
	err      error
	// storeOpen records whether the store was open when the message went out
	storeOpen []bool
	db        *memStore
}

func (c *chat) send(_ context.Context, _ string, text string) error {
	if c.db != nil {
		c.storeOpen = append(c.storeOpen, c.db.open)
	}
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, text)
	return nil
}

func newRunner(f Fetcher, db *memStore, c *chat, opts ...Option) *Runner {
	n := notify.New(c.send, "-100", slog.Default())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRunner(f, db.opener(), n, slog.Default(), opts...)
}

func wstETH() pools.Record {
	return pools.Record{
		Chain:      "Ethereum",
		Project:    "lido",
		Symbol:     "wstETH",
		TVLUsd:     500000,
		APY:        5.2,
		Pool:       "747c1d2a-c668-4682-b9f9-296708a3dd90",
		ILRisk:     "no",
		Stablecoin: false,
	}
}

func TestRunNewPool(t *testing.T) {
	db := &memStore{}
	c := &chat{db: db}
	r := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, c)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageDone, res.Stage)
	require.Len(t, res.New, 1)
	assert.Equal(t, wstETH().Pool, res.New[0].Pool)

	require.Len(t, db.rows, 1)
	assert.Equal(t, wstETH().Pool, db.rows[0].Pool)
	assert.True(t, db.rows[0].Date.Equal(fixedNow))
	assert.Nil(t, db.rows[0].RewardTokens)

	require.Len(t, c.messages, 1)
	assert.Contains(t, c.messages[0], "wstETH")
	assert.Contains(t, c.messages[0], "5.20")
	assert.True(t, strings.HasPrefix(c.messages[0], "March 05, 2024\n\nNew ETH pools were found:"))
}

func TestRunStablecoinIsFiltered(t *testing.T) {
	rec := wstETH()
	rec.Stablecoin = true
	db := &memStore{}
	c := &chat{}
	r := newRunner(&fakeFetcher{records: []pools.Record{rec}}, db, c)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.New)
	assert.Empty(t, db.rows)
	require.Len(t, c.messages, 1)
	assert.Equal(t, "March 05, 2024\n\nNo new ETH pools were found.", c.messages[0])
}

func TestRunSecondPassFindsNothingNew(t *testing.T) {
	db := &memStore{}
	c := &chat{}
	f := &fakeFetcher{records: []pools.Record{wstETH()}}

	_, err := newRunner(f, db, c).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, db.rows, 1)

	res, err := newRunner(f, db, c).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.New)
	assert.Equal(t, 1, res.Known)
	assert.Len(t, db.rows, 1, "second run must not insert")
	require.Len(t, c.messages, 2)
	assert.Equal(t, "March 05, 2024\n\nNo new ETH pools were found.", c.messages[1])
}

func TestRunMixedBatch(t *testing.T) {
	known := wstETH()
	known.Pool = "old"
	newer := wstETH()
	newer.Pool = "fresh"
	newer.RewardTokens = []string{"0xr"}
	rejected := wstETH()
	rejected.Pool = "lowtvl"
	rejected.TVLUsd = 1000

	db := &memStore{rows: []store.Row{store.NewRow(pools.Pool{Pool: "old"}, fixedNow)}}
	c := &chat{}
	res, err := newRunner(&fakeFetcher{records: []pools.Record{known, rejected, newer}}, db, c).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Known)
	require.Len(t, res.New, 1)
	assert.Equal(t, "fresh", res.New[0].Pool)
	require.Len(t, db.rows, 2)
	require.NotNil(t, db.rows[1].RewardTokens)
	assert.Equal(t, "0xr", *db.rows[1].RewardTokens)
	assert.Equal(t, 1, strings.Count(c.messages[0], "pool : "))
}

func TestRunFetchFailureTouchesNothing(t *testing.T) {
	db := &memStore{}
	c := &chat{}
	fetchErr := errors.Join(llama.ErrFetch, errors.New("connection refused"))
	r := newRunner(&fakeFetcher{err: fetchErr}, db, c)

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, llama.ErrFetch)

	assert.Equal(t, StageFailed, res.Stage)
	assert.Equal(t, StageFetching, res.FailedAt)
	assert.Zero(t, db.opens, "store must not be opened when fetch fails")
	assert.Empty(t, c.messages)
}

func TestRunPersistenceFailureAbortsBeforeNotify(t *testing.T) {
	db := &memStore{insertErr: errors.Join(store.ErrPersistence, errors.New("deadlock"))}
	c := &chat{}
	r := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, c)

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, store.ErrPersistence)

	assert.Equal(t, StagePersisting, res.FailedAt)
	assert.Empty(t, db.rows)
	assert.Equal(t, db.opens, db.closes, "store must be released on failure")
	assert.Empty(t, c.messages)
}

func TestRunStoreUnreachable(t *testing.T) {
	db := &memStore{openErr: errors.Join(store.ErrPersistence, errors.New("dial tcp: refused"))}
	c := &chat{}
	res, err := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, c).Run(context.Background())

	require.ErrorIs(t, err, store.ErrPersistence)
	assert.Equal(t, StageLoadingKnownIDs, res.FailedAt)
	assert.Empty(t, c.messages)
}

func TestRunDeliveryFailureKeepsRows(t *testing.T) {
	db := &memStore{}
	c := &chat{err: errors.New("telegram API error 502"), db: db}
	r := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, c)

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, notify.ErrDelivery)

	assert.Equal(t, StageNotifying, res.FailedAt)
	assert.Len(t, db.rows, 1, "committed rows survive a delivery failure")
	assert.Equal(t, []bool{false}, c.storeOpen, "store must be closed before notifying")
}

func TestRunReleasesStoreBeforeNotify(t *testing.T) {
	db := &memStore{}
	c := &chat{db: db}
	_, err := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, c).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, db.opens)
	assert.Equal(t, 1, db.closes)
	assert.Equal(t, []bool{false}, c.storeOpen)
}

func TestRunDryRun(t *testing.T) {
	db := &memStore{}
	c := &chat{}
	r := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, c, WithDryRun(true))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.New, 1)
	assert.Empty(t, db.rows, "dry run must not insert")
	assert.Len(t, c.messages, 1)
}

func TestRunCustomCriteria(t *testing.T) {
	c := pools.DefaultCriteria()
	c.MinAPY = 10
	db := &memStore{}
	ch := &chat{}

	res, err := newRunner(&fakeFetcher{records: []pools.Record{wstETH()}}, db, ch, WithCriteria(c)).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Matched)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "loading_known_ids", StageLoadingKnownIDs.String())
	assert.Equal(t, "failed", StageFailed.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
