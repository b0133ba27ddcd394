package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/web3-frozen/ethyields/internal/llama"
	"github.com/web3-frozen/ethyields/internal/metrics"
	"github.com/web3-frozen/ethyields/internal/notify"
	"github.com/web3-frozen/ethyields/internal/pools"
)

// Fetcher returns the provider's pool list.
type Fetcher interface {
	FetchPools(ctx context.Context) (*llama.Response, error)
}

// Store is the part of store.Store the runner uses.
type Store interface {
	KnownPoolIDs(ctx context.Context) (pools.IDSet, error)
	InsertPools(ctx context.Context, ps []pools.Pool, at time.Time) error
	Close() error
}

// OpenStoreFunc connects to the store. The runner closes what it returns.
type OpenStoreFunc func(ctx context.Context) (Store, error)

// Notifier delivers the run digest.
type Notifier interface {
	Notify(ctx context.Context, date time.Time, fresh []pools.Pool) error
}

// Result summarises one run.
type Result struct {
	Fetched  int
	Matched  int
	Known    int
	New      []pools.Pool
	Stage    Stage // StageDone or StageFailed
	FailedAt Stage // stage that returned the error, StageInit on success
}

// Runner executes Fetch → Filter → LoadKnownIDs → Diff → Persist → Notify
// once per Run. It never retries.
type Runner struct {
	fetcher   Fetcher
	openStore OpenStoreFunc
	notifier  Notifier
	logger    *slog.Logger

	criteria pools.Criteria
	now      func() time.Time
	dryRun   bool

	stage      Stage
	stageStart time.Time
}

type Option func(*Runner)

// WithCriteria replaces the default filter rules.
func WithCriteria(c pools.Criteria) Option {
	return func(r *Runner) { r.criteria = c }
}

// WithClock sets the source of insert timestamps and the digest date.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithDryRun skips inserts. The store is still read to compute new pools.
func WithDryRun(dry bool) Option {
	return func(r *Runner) { r.dryRun = dry }
}

func NewRunner(f Fetcher, open OpenStoreFunc, n Notifier, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		fetcher:   f,
		openStore: open,
		notifier:  n,
		logger:    logger,
		criteria:  pools.DefaultCriteria(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run performs one pass. On error the Result holds whatever was computed
// before the failing stage.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.stage = StageInit
	r.stageStart = time.Now()
	res := &Result{}

	if err := r.run(ctx, res); err != nil {
		res.FailedAt = r.stage
		r.enter(StageFailed)
		res.Stage = StageFailed
		status := "failed"
		if errors.Is(err, notify.ErrDelivery) {
			status = "delivery_failed"
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
		r.logger.Error("run failed", "stage", res.FailedAt.String(), "error", err)
		return res, err
	}

	r.enter(StageDone)
	res.Stage = StageDone
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.LastSuccess.SetToCurrentTime()
	r.logger.Info("run complete",
		"fetched", res.Fetched, "matched", res.Matched, "known", res.Known, "new", len(res.New))
	return res, nil
}

func (r *Runner) run(ctx context.Context, res *Result) error {
	r.enter(StageFetching)
	resp, err := r.fetcher.FetchPools(ctx)
	if err != nil {
		return err
	}
	res.Fetched = len(resp.Data)
	metrics.PoolsCount.WithLabelValues("fetched").Set(float64(res.Fetched))

	r.enter(StageFiltering)
	matched := pools.Filter(resp.Data, r.criteria)
	res.Matched = len(matched)
	metrics.PoolsCount.WithLabelValues("matched").Set(float64(res.Matched))

	if err := r.persist(ctx, matched, res); err != nil {
		return err
	}

	r.enter(StageNotifying)
	return r.notifier.Notify(ctx, r.now(), res.New)
}

// persist owns the store connection: it is opened on entry to
// StageLoadingKnownIDs and closed before returning, on every path.
func (r *Runner) persist(ctx context.Context, matched []pools.Pool, res *Result) error {
	r.enter(StageLoadingKnownIDs)
	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			r.logger.Warn("close store", "error", cerr)
		}
	}()

	known, err := s.KnownPoolIDs(ctx)
	if err != nil {
		return err
	}

	r.enter(StageDiffing)
	fresh, seen := pools.SplitNew(known, matched)
	res.Known = len(seen)
	res.New = fresh
	metrics.PoolsCount.WithLabelValues("new").Set(float64(len(fresh)))

	r.enter(StagePersisting)
	if r.dryRun {
		r.logger.Info("dry run, skipping insert", "new", len(fresh))
		return nil
	}
	if err := s.InsertPools(ctx, fresh, r.now()); err != nil {
		return err
	}
	metrics.RowsInsertedTotal.Add(float64(len(fresh)))
	return nil
}

func (r *Runner) enter(next Stage) {
	now := time.Now()
	if r.stage != StageInit {
		metrics.StageDuration.WithLabelValues(r.stage.String()).Observe(now.Sub(r.stageStart).Seconds())
	}
	r.logger.Debug("stage", "from", r.stage.String(), "to", next.String())
	r.stage = next
	r.stageStart = now
}
