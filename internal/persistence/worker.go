package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/observability"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

// Sources are the in-memory components the flush worker reads current
// state from. All of them hand out snapshot copies, so reading here
// never blocks trading for long.
type Sources struct {
	Ledger    *ledger.Ledger
	Registry  *market.Registry
	Book      *position.Book
	Maker     *prediction.Maker
	Snapshots *market.SnapshotRecorder
	Monitor   *position.Monitor
	Funding   *position.FundingProcessor
}

// FlushWorker periodically writes dirty entities to the store. A failed
// flush retries with exponential backoff and never drops the batch: the
// tracker keeps the entities marked until a cycle commits.
type FlushWorker struct {
	tracker  *Tracker
	store    Store
	sources  Sources
	interval time.Duration

	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewFlushWorker(tracker *Tracker, store Store, sources Sources, interval time.Duration, metrics *observability.Metrics) *FlushWorker {
	return &FlushWorker{
		tracker:  tracker,
		store:    store,
		sources:  sources,
		interval: interval,
		metrics:  metrics,
		log:      observability.NewLogger("flush-worker"),
	}
}

// Run flushes on the configured interval until ctx is cancelled, then
// performs one final flush so a graceful shutdown loses nothing.
func (fw *FlushWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(fw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := fw.FlushOnce(context.Background()); err != nil {
				fw.log.Error().Err(err).Msg("final flush failed")
				return fmt.Errorf("final flush: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := fw.flushWithRetry(ctx); err != nil {
				fw.log.Error().Err(err).Msg("flush abandoned")
			}
		}
	}
}

// flushWithRetry retries a failing flush with exponential backoff until
// it succeeds or the context is cancelled.
func (fw *FlushWorker) flushWithRetry(ctx context.Context) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			fw.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("flush retry")
			select {
			case <-ctx.Done():
				return fw.FlushOnce(context.Background())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := fw.FlushOnce(ctx)
		if err == nil {
			if attempt > 0 {
				fw.log.Info().Int("retries", attempt).Msg("flush recovered")
			}
			return nil
		}
		if fw.metrics != nil {
			fw.metrics.FlushErrors.WithLabelValues("retry").Inc()
		}
	}
}

// FlushOnce runs one flush cycle: snapshot the dirty set, collect the
// matching rows, write them in one transaction, commit the tracker cut.
func (fw *FlushWorker) FlushOnce(ctx context.Context) error {
	set := fw.tracker.Begin()
	if set.Empty() {
		return nil
	}
	start := time.Now()

	batch := fw.collect(set)
	if err := fw.store.Flush(ctx, batch); err != nil {
		if fw.metrics != nil {
			fw.metrics.FlushErrors.WithLabelValues("write").Inc()
		}
		return err
	}
	fw.tracker.Commit(set)

	if fw.metrics != nil {
		fw.metrics.FlushBatches.Inc()
		fw.metrics.FlushDirtyRows.Observe(float64(batch.Size()))
		fw.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}
	fw.log.Debug().Int("rows", batch.Size()).Dur("took", time.Since(start)).Msg("flush cycle")
	return nil
}

// collect resolves dirty IDs into current snapshot rows. IDs whose
// entity has meanwhile disappeared are skipped.
func (fw *FlushWorker) collect(set DirtySet) Batch {
	var b Batch

	for _, ownerID := range set.Wallets {
		if w, ok := fw.sources.Ledger.GetWallet(ownerID); ok {
			b.Wallets = append(b.Wallets, w)
		}
	}
	for _, ticker := range set.Markets {
		if m, ok := fw.sources.Registry.Get(ticker); ok {
			b.Markets = append(b.Markets, m)
		}
	}
	for _, id := range set.Positions {
		pid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		if p, ok := fw.sources.Book.Get(pid); ok {
			b.Positions = append(b.Positions, p)
		}
	}
	for _, id := range set.PredictionMarkets {
		mid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		if m, ok := fw.sources.Maker.GetMarket(mid); ok {
			b.PredictionMarkets = append(b.PredictionMarkets, m)
			b.PredictionPositions = append(b.PredictionPositions, fw.sources.Maker.Positions(mid)...)
		}
	}
	for _, key := range set.DailySnapshots {
		ticker, date, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		if row, ok := fw.sources.Snapshots.Get(ticker, date); ok {
			b.DailySnapshots = append(b.DailySnapshots, row)
		}
	}
	for _, key := range set.FundingRecords {
		if rec, ok := fw.sources.Funding.Record(key); ok {
			b.FundingRecords = append(b.FundingRecords, rec)
		}
	}
	for _, id := range set.Liquidations {
		lid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		if rec, ok := fw.sources.Monitor.Get(lid); ok {
			b.Liquidations = append(b.Liquidations, rec)
		}
	}
	return b
}

// Hydrate rebuilds in-memory state from the store after a restart.
// Persisted markets replace configured base-price defaults, open
// positions re-enter the book, and the funding boundary is restored so
// a restart inside an already-settled epoch does not double-charge.
func Hydrate(ctx context.Context, store Store, s Sources) error {
	batch, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	for _, w := range batch.Wallets {
		s.Ledger.RestoreWallet(w)
	}
	for _, m := range batch.Markets {
		s.Registry.Restore(m)
	}
	for _, p := range batch.Positions {
		s.Book.Restore(p)
	}

	posByMarket := make(map[uuid.UUID][]prediction.Position)
	for _, p := range batch.PredictionPositions {
		posByMarket[p.MarketID] = append(posByMarket[p.MarketID], p)
	}
	for _, m := range batch.PredictionMarkets {
		s.Maker.Restore(m, posByMarket[m.ID])
	}

	s.Snapshots.Restore(batch.DailySnapshots)
	s.Funding.RestoreRecords(batch.FundingRecords)
	s.Monitor.Restore(batch.Liquidations)

	logger := observability.NewLogger("hydration")
	logger.Info().
		Int("wallets", len(batch.Wallets)).
		Int("markets", len(batch.Markets)).
		Int("positions", len(batch.Positions)).
		Int("prediction_markets", len(batch.PredictionMarkets)).
		Msg("state hydrated")
	return nil
}
