package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/observability"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

// PostgresStore persists engine state with multi-row upserts. Money
// columns are NUMERIC and cross the driver boundary as strings, so no
// precision is lost in transit.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenPostgres connects and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, log: observability.NewLogger("postgres-store")}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// EnsureSchema creates all tables if they do not exist. The schema is
// fixed DDL applied at startup; there is no migration history to manage.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			owner_id        TEXT PRIMARY KEY,
			balance         NUMERIC NOT NULL,
			total_deposited NUMERIC NOT NULL,
			total_withdrawn NUMERIC NOT NULL,
			lifetime_pnl    NUMERIC NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS markets (
			ticker            TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			current_price     NUMERIC NOT NULL,
			index_price       NUMERIC NOT NULL,
			mark_price        NUMERIC NOT NULL,
			high_24h          NUMERIC NOT NULL,
			low_24h           NUMERIC NOT NULL,
			change_24h        NUMERIC NOT NULL,
			volume_24h        NUMERIC NOT NULL,
			open_interest     NUMERIC NOT NULL,
			funding_rate      NUMERIC NOT NULL,
			next_funding_time TIMESTAMPTZ NOT NULL,
			max_leverage      INT NOT NULL,
			min_order_size    NUMERIC NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS positions (
			id                UUID PRIMARY KEY,
			owner_id          TEXT NOT NULL,
			ticker            TEXT NOT NULL,
			side              TEXT NOT NULL,
			size              NUMERIC NOT NULL,
			entry_price       NUMERIC NOT NULL,
			leverage          INT NOT NULL,
			margin            NUMERIC NOT NULL,
			liquidation_price NUMERIC NOT NULL,
			unrealized_pnl    NUMERIC NOT NULL,
			funding_paid      NUMERIC NOT NULL,
			status            TEXT NOT NULL,
			opened_at         TIMESTAMPTZ NOT NULL,
			closed_at         TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS positions_owner_idx ON positions (owner_id);
		CREATE INDEX IF NOT EXISTS positions_ticker_status_idx ON positions (ticker, status);

		CREATE TABLE IF NOT EXISTS prediction_markets (
			id          UUID PRIMARY KEY,
			question    TEXT NOT NULL,
			liquidity   DOUBLE PRECISION NOT NULL,
			q_yes       DOUBLE PRECISION NOT NULL,
			q_no        DOUBLE PRECISION NOT NULL,
			price_yes   DOUBLE PRECISION NOT NULL,
			price_no    DOUBLE PRECISION NOT NULL,
			status      TEXT NOT NULL,
			outcome     TEXT,
			created_at  TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS prediction_positions (
			market_id  UUID NOT NULL,
			owner_id   TEXT NOT NULL,
			shares_yes DOUBLE PRECISION NOT NULL,
			shares_no  DOUBLE PRECISION NOT NULL,
			cost_basis NUMERIC NOT NULL,
			PRIMARY KEY (market_id, owner_id)
		);

		CREATE TABLE IF NOT EXISTS daily_snapshots (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   NUMERIC NOT NULL,
			high   NUMERIC NOT NULL,
			low    NUMERIC NOT NULL,
			close  NUMERIC NOT NULL,
			volume NUMERIC NOT NULL,
			PRIMARY KEY (ticker, date)
		);

		CREATE TABLE IF NOT EXISTS funding_records (
			ticker     TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL,
			rate       NUMERIC NOT NULL,
			PRIMARY KEY (ticker, applied_at)
		);

		CREATE TABLE IF NOT EXISTS liquidations (
			id                UUID PRIMARY KEY,
			position_id       UUID NOT NULL,
			ticker            TEXT NOT NULL,
			trigger_price     NUMERIC NOT NULL,
			actual_fill_price NUMERIC NOT NULL,
			margin_lost       NUMERIC NOT NULL,
			ts                TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// Flush upserts the whole batch in one transaction: the database either
// reflects the full cycle or none of it.
func (s *PostgresStore) Flush(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	defer tx.Rollback()

	if err := upsertWallets(ctx, tx, b.Wallets); err != nil {
		return fmt.Errorf("flush wallets: %w", err)
	}
	if err := upsertMarkets(ctx, tx, b.Markets); err != nil {
		return fmt.Errorf("flush markets: %w", err)
	}
	if err := upsertPositions(ctx, tx, b.Positions); err != nil {
		return fmt.Errorf("flush positions: %w", err)
	}
	if err := upsertPredictionMarkets(ctx, tx, b.PredictionMarkets); err != nil {
		return fmt.Errorf("flush prediction markets: %w", err)
	}
	if err := upsertPredictionPositions(ctx, tx, b.PredictionPositions); err != nil {
		return fmt.Errorf("flush prediction positions: %w", err)
	}
	if err := upsertDailySnapshots(ctx, tx, b.DailySnapshots); err != nil {
		return fmt.Errorf("flush daily snapshots: %w", err)
	}
	if err := upsertFundingRecords(ctx, tx, b.FundingRecords); err != nil {
		return fmt.Errorf("flush funding records: %w", err)
	}
	if err := upsertLiquidations(ctx, tx, b.Liquidations); err != nil {
		return fmt.Errorf("flush liquidations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush tx: %w", err)
	}
	return nil
}

// placeholders builds "($1, $2, ...), ($w+1, ...)" for n rows of width w.
func placeholders(n, w int) string {
	rows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ps := make([]string, 0, w)
		for j := 0; j < w; j++ {
			ps = append(ps, fmt.Sprintf("$%d", i*w+j+1))
		}
		rows = append(rows, "("+strings.Join(ps, ", ")+")")
	}
	return strings.Join(rows, ", ")
}

func upsertWallets(ctx context.Context, tx *sql.Tx, rows []ledger.Wallet) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 5
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.OwnerID, r.Balance.String(), r.TotalDeposited.String(),
			r.TotalWithdrawn.String(), r.LifetimePnL.String())
	}
	query := `INSERT INTO wallets (owner_id, balance, total_deposited, total_withdrawn, lifetime_pnl) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (owner_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			total_deposited = EXCLUDED.total_deposited,
			total_withdrawn = EXCLUDED.total_withdrawn,
			lifetime_pnl = EXCLUDED.lifetime_pnl,
			updated_at = NOW()`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertMarkets(ctx context.Context, tx *sql.Tx, rows []market.Market) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 15
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.Ticker, r.Name, r.CurrentPrice.String(), r.IndexPrice.String(),
			r.MarkPrice.String(), r.High24h.String(), r.Low24h.String(), r.Change24h.String(),
			r.Volume24h.String(), r.OpenInterest.String(), r.FundingRate.String(),
			r.NextFundingTime, r.MaxLeverage, r.MinOrderSize.String(), r.UpdatedAt)
	}
	query := `INSERT INTO markets (ticker, name, current_price, index_price, mark_price,
			high_24h, low_24h, change_24h, volume_24h, open_interest, funding_rate,
			next_funding_time, max_leverage, min_order_size, updated_at) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (ticker) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			index_price = EXCLUDED.index_price,
			mark_price = EXCLUDED.mark_price,
			high_24h = EXCLUDED.high_24h,
			low_24h = EXCLUDED.low_24h,
			change_24h = EXCLUDED.change_24h,
			volume_24h = EXCLUDED.volume_24h,
			open_interest = EXCLUDED.open_interest,
			funding_rate = EXCLUDED.funding_rate,
			next_funding_time = EXCLUDED.next_funding_time,
			max_leverage = EXCLUDED.max_leverage,
			min_order_size = EXCLUDED.min_order_size,
			updated_at = EXCLUDED.updated_at`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertPositions(ctx context.Context, tx *sql.Tx, rows []position.Position) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 14
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.ID, r.OwnerID, r.Ticker, string(r.Side), r.Size.String(),
			r.EntryPrice.String(), r.Leverage, r.Margin.String(), r.LiquidationPrice.String(),
			r.UnrealizedPnL.String(), r.FundingPaid.String(), string(r.Status), r.OpenedAt, r.ClosedAt)
	}
	query := `INSERT INTO positions (id, owner_id, ticker, side, size, entry_price, leverage,
			margin, liquidation_price, unrealized_pnl, funding_paid, status, opened_at, closed_at) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (id) DO UPDATE SET
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			funding_paid = EXCLUDED.funding_paid,
			status = EXCLUDED.status,
			closed_at = EXCLUDED.closed_at`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertPredictionMarkets(ctx context.Context, tx *sql.Tx, rows []prediction.Market) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 11
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		var outcome *string
		if r.Outcome != nil {
			s := string(*r.Outcome)
			outcome = &s
		}
		args = append(args, r.ID, r.Question, r.Liquidity, r.QYes, r.QNo,
			r.PriceYes, r.PriceNo, string(r.Status), outcome, r.CreatedAt, r.ResolvedAt)
	}
	query := `INSERT INTO prediction_markets (id, question, liquidity, q_yes, q_no,
			price_yes, price_no, status, outcome, created_at, resolved_at) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (id) DO UPDATE SET
			q_yes = EXCLUDED.q_yes,
			q_no = EXCLUDED.q_no,
			price_yes = EXCLUDED.price_yes,
			price_no = EXCLUDED.price_no,
			status = EXCLUDED.status,
			outcome = EXCLUDED.outcome,
			resolved_at = EXCLUDED.resolved_at`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertPredictionPositions(ctx context.Context, tx *sql.Tx, rows []prediction.Position) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 5
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.MarketID, r.OwnerID, r.SharesYes, r.SharesNo, r.CostBasis.String())
	}
	query := `INSERT INTO prediction_positions (market_id, owner_id, shares_yes, shares_no, cost_basis) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (market_id, owner_id) DO UPDATE SET
			shares_yes = EXCLUDED.shares_yes,
			shares_no = EXCLUDED.shares_no,
			cost_basis = EXCLUDED.cost_basis`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertDailySnapshots(ctx context.Context, tx *sql.Tx, rows []market.DailySnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 7
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.Ticker, r.Date, r.Open.String(), r.High.String(),
			r.Low.String(), r.Close.String(), r.Volume.String())
	}
	query := `INSERT INTO daily_snapshots (ticker, date, open, high, low, close, volume) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertFundingRecords(ctx context.Context, tx *sql.Tx, rows []position.FundingRecord) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 3
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.Ticker, r.AppliedAt, r.Rate.String())
	}
	query := `INSERT INTO funding_records (ticker, applied_at, rate) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (ticker, applied_at) DO NOTHING`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertLiquidations(ctx context.Context, tx *sql.Tx, rows []position.Liquidation) error {
	if len(rows) == 0 {
		return nil
	}
	const w = 7
	args := make([]interface{}, 0, len(rows)*w)
	for _, r := range rows {
		args = append(args, r.ID, r.PositionID, r.Ticker, r.TriggerPrice.String(),
			r.ActualFillPrice.String(), r.MarginLost.String(), r.Timestamp)
	}
	query := `INSERT INTO liquidations (id, position_id, ticker, trigger_price, actual_fill_price, margin_lost, ts) VALUES ` +
		placeholders(len(rows), w) + `
		ON CONFLICT (id) DO NOTHING`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// Load reads everything the engine hydrates at startup. Positions come
// back open-only; closed history stays queryable in the database but is
// not rebuilt in memory.
func (s *PostgresStore) Load(ctx context.Context) (Batch, error) {
	var b Batch
	var err error

	if b.Wallets, err = s.loadWallets(ctx); err != nil {
		return Batch{}, fmt.Errorf("load wallets: %w", err)
	}
	if b.Markets, err = s.loadMarkets(ctx); err != nil {
		return Batch{}, fmt.Errorf("load markets: %w", err)
	}
	if b.Positions, err = s.loadOpenPositions(ctx); err != nil {
		return Batch{}, fmt.Errorf("load positions: %w", err)
	}
	if b.PredictionMarkets, err = s.loadPredictionMarkets(ctx); err != nil {
		return Batch{}, fmt.Errorf("load prediction markets: %w", err)
	}
	if b.PredictionPositions, err = s.loadPredictionPositions(ctx); err != nil {
		return Batch{}, fmt.Errorf("load prediction positions: %w", err)
	}
	if b.DailySnapshots, err = s.loadDailySnapshots(ctx); err != nil {
		return Batch{}, fmt.Errorf("load daily snapshots: %w", err)
	}
	if b.FundingRecords, err = s.loadFundingRecords(ctx); err != nil {
		return Batch{}, fmt.Errorf("load funding records: %w", err)
	}
	if b.Liquidations, err = s.loadLiquidations(ctx); err != nil {
		return Batch{}, fmt.Errorf("load liquidations: %w", err)
	}
	return b, nil
}

func scanDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *PostgresStore) loadWallets(ctx context.Context) ([]ledger.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, balance, total_deposited, total_withdrawn, lifetime_pnl FROM wallets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Wallet
	for rows.Next() {
		var w ledger.Wallet
		var balance, deposited, withdrawn, pnl string
		if err := rows.Scan(&w.OwnerID, &balance, &deposited, &withdrawn, &pnl); err != nil {
			return nil, err
		}
		w.Balance = scanDecimal(balance)
		w.TotalDeposited = scanDecimal(deposited)
		w.TotalWithdrawn = scanDecimal(withdrawn)
		w.LifetimePnL = scanDecimal(pnl)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadMarkets(ctx context.Context) ([]market.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, name, current_price, index_price, mark_price, high_24h, low_24h,
		       change_24h, volume_24h, open_interest, funding_rate, next_funding_time,
		       max_leverage, min_order_size, updated_at
		FROM markets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Market
	for rows.Next() {
		var m market.Market
		var current, index, mark, high, low, change, volume, oi, rate, minOrder string
		if err := rows.Scan(&m.Ticker, &m.Name, &current, &index, &mark, &high, &low,
			&change, &volume, &oi, &rate, &m.NextFundingTime,
			&m.MaxLeverage, &minOrder, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.CurrentPrice = scanDecimal(current)
		m.IndexPrice = scanDecimal(index)
		m.MarkPrice = scanDecimal(mark)
		m.High24h = scanDecimal(high)
		m.Low24h = scanDecimal(low)
		m.Change24h = scanDecimal(change)
		m.Volume24h = scanDecimal(volume)
		m.OpenInterest = scanDecimal(oi)
		m.FundingRate = scanDecimal(rate)
		m.MinOrderSize = scanDecimal(minOrder)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadOpenPositions(ctx context.Context) ([]position.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, ticker, side, size, entry_price, leverage, margin,
		       liquidation_price, unrealized_pnl, funding_paid, status, opened_at, closed_at
		FROM positions WHERE status = 'open'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.Position
	for rows.Next() {
		var p position.Position
		var side, status, size, entry, margin, liqPrice, upnl, funding string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Ticker, &side, &size, &entry, &p.Leverage,
			&margin, &liqPrice, &upnl, &funding, &status, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		p.Side = position.Side(side)
		p.Status = position.Status(status)
		p.Size = scanDecimal(size)
		p.EntryPrice = scanDecimal(entry)
		p.Margin = scanDecimal(margin)
		p.LiquidationPrice = scanDecimal(liqPrice)
		p.UnrealizedPnL = scanDecimal(upnl)
		p.FundingPaid = scanDecimal(funding)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadPredictionMarkets(ctx context.Context) ([]prediction.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, liquidity, q_yes, q_no, price_yes, price_no, status, outcome,
		       created_at, resolved_at
		FROM prediction_markets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []prediction.Market
	for rows.Next() {
		var m prediction.Market
		var status string
		var outcome *string
		if err := rows.Scan(&m.ID, &m.Question, &m.Liquidity, &m.QYes, &m.QNo,
			&m.PriceYes, &m.PriceNo, &status, &outcome, &m.CreatedAt, &m.ResolvedAt); err != nil {
			return nil, err
		}
		m.Status = prediction.MarketStatus(status)
		if outcome != nil {
			side := prediction.Side(*outcome)
			m.Outcome = &side
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadPredictionPositions(ctx context.Context) ([]prediction.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, owner_id, shares_yes, shares_no, cost_basis FROM prediction_positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []prediction.Position
	for rows.Next() {
		var p prediction.Position
		var basis string
		if err := rows.Scan(&p.MarketID, &p.OwnerID, &p.SharesYes, &p.SharesNo, &basis); err != nil {
			return nil, err
		}
		p.CostBasis = scanDecimal(basis)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadDailySnapshots(ctx context.Context) ([]market.DailySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, date, open, high, low, close, volume FROM daily_snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.DailySnapshot
	for rows.Next() {
		var d market.DailySnapshot
		var open, high, low, closeP, volume string
		if err := rows.Scan(&d.Ticker, &d.Date, &open, &high, &low, &closeP, &volume); err != nil {
			return nil, err
		}
		d.Open = scanDecimal(open)
		d.High = scanDecimal(high)
		d.Low = scanDecimal(low)
		d.Close = scanDecimal(closeP)
		d.Volume = scanDecimal(volume)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadFundingRecords(ctx context.Context) ([]position.FundingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, applied_at, rate FROM funding_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.FundingRecord
	for rows.Next() {
		var r position.FundingRecord
		var rate string
		if err := rows.Scan(&r.Ticker, &r.AppliedAt, &rate); err != nil {
			return nil, err
		}
		r.AppliedAt = r.AppliedAt.UTC()
		r.Rate = scanDecimal(rate)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadLiquidations(ctx context.Context) ([]position.Liquidation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, ticker, trigger_price, actual_fill_price, margin_lost, ts
		FROM liquidations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.Liquidation
	for rows.Next() {
		var l position.Liquidation
		var trigger, fill, lost string
		if err := rows.Scan(&l.ID, &l.PositionID, &l.Ticker, &trigger, &fill, &lost, &l.Timestamp); err != nil {
			return nil, err
		}
		l.TriggerPrice = scanDecimal(trigger)
		l.ActualFillPrice = scanDecimal(fill)
		l.MarginLost = scanDecimal(lost)
		out = append(out, l)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
