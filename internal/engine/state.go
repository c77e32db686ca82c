package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

// State is a full serializable snapshot of the engine. Export and
// Import round-trip it; the JSON form is what operational tooling moves
// between environments.
type State struct {
	Wallets             []ledger.Wallet          `json:"wallets"`
	Markets             []market.Market          `json:"markets"`
	Positions           []position.Position      `json:"positions"`
	PredictionMarkets   []prediction.Market      `json:"prediction_markets"`
	PredictionPositions []prediction.Position    `json:"prediction_positions"`
	DailySnapshots      []market.DailySnapshot   `json:"daily_snapshots"`
	FundingRecords      []position.FundingRecord `json:"funding_records"`
	Liquidations        []position.Liquidation   `json:"liquidations"`
	LastFundingTime     time.Time                `json:"last_funding_time"`
	CurrentDate         string                   `json:"current_date"`
	ExportedAt          time.Time                `json:"exported_at"`
}

// ExportState snapshots every component. The result is safe to hold:
// all slices are copies.
func (e *TradingEngine) ExportState() State {
	now := e.now()

	var predPositions []prediction.Position
	markets := e.maker.Markets()
	for _, m := range markets {
		predPositions = append(predPositions, e.maker.Positions(m.ID)...)
	}

	return State{
		Wallets:             e.ledger.Wallets(),
		Markets:             e.registry.List(),
		Positions:           e.book.All(),
		PredictionMarkets:   markets,
		PredictionPositions: predPositions,
		DailySnapshots:      e.snapshots.All(),
		FundingRecords:      e.funding.Records(),
		Liquidations:        e.monitor.Records(),
		LastFundingTime:     e.funding.LastBoundary(),
		CurrentDate:         now.UTC().Format(market.DateFormat),
		ExportedAt:          now,
	}
}

// ImportState restores a snapshot into the engine. Meant for a freshly
// constructed engine; imported entries replace same-keyed in-memory
// state.
func (e *TradingEngine) ImportState(st State) {
	for _, w := range st.Wallets {
		e.ledger.RestoreWallet(w)
	}
	for _, m := range st.Markets {
		e.registry.Restore(m)
	}
	for _, p := range st.Positions {
		e.book.Restore(p)
	}

	posByMarket := make(map[uuid.UUID][]prediction.Position)
	for _, p := range st.PredictionPositions {
		posByMarket[p.MarketID] = append(posByMarket[p.MarketID], p)
	}
	for _, m := range st.PredictionMarkets {
		e.maker.Restore(m, posByMarket[m.ID])
	}

	e.snapshots.Restore(st.DailySnapshots)
	e.funding.RestoreRecords(st.FundingRecords)
	e.funding.RestoreLastBoundary(st.LastFundingTime)
	e.monitor.Restore(st.Liquidations)

	e.log.Info().
		Int("wallets", len(st.Wallets)).
		Int("markets", len(st.Markets)).
		Int("positions", len(st.Positions)).
		Str("exported_at", st.ExportedAt.Format(time.RFC3339)).
		Msg("state imported")
}

// ExportJSON serializes the current state.
func (e *TradingEngine) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(e.ExportState(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export state: %w", err)
	}
	return data, nil
}

// ImportJSON restores state from its serialized form.
func (e *TradingEngine) ImportJSON(data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("import state: %w", err)
	}
	e.ImportState(st)
	return nil
}
