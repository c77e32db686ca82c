package persistence

import (
	"context"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

// Batch is one flush cycle's write set, or a full hydration load.
type Batch struct {
	Wallets             []ledger.Wallet
	Markets             []market.Market
	Positions           []position.Position
	PredictionMarkets   []prediction.Market
	PredictionPositions []prediction.Position
	DailySnapshots      []market.DailySnapshot
	FundingRecords      []position.FundingRecord
	Liquidations        []position.Liquidation
}

// Empty reports whether the batch carries no rows.
func (b Batch) Empty() bool { return b.Size() == 0 }

// Size returns the total row count across all tables.
func (b Batch) Size() int {
	return len(b.Wallets) + len(b.Markets) + len(b.Positions) +
		len(b.PredictionMarkets) + len(b.PredictionPositions) +
		len(b.DailySnapshots) + len(b.FundingRecords) + len(b.Liquidations)
}

// Store is the persistence boundary. Flush upserts one batch in a single
// transaction; Load returns everything needed to rebuild in-memory state
// after a restart (open positions only, full history for the rest).
type Store interface {
	EnsureSchema(ctx context.Context) error
	Flush(ctx context.Context, b Batch) error
	Load(ctx context.Context) (Batch, error)
	Close() error
}
