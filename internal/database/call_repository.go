package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// Both *pgxpool.Pool and pgxmock pools satisfy it.
type DatabasePool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const callsSchema = `
	CREATE TABLE IF NOT EXISTS calls (
		id                 TEXT PRIMARY KEY,
		handle             TEXT NOT NULL,
		kind               TEXT NOT NULL,
		token_id           TEXT NOT NULL,
		symbol             TEXT NOT NULL DEFAULT '',
		signal_id          TEXT NOT NULL DEFAULT '',
		called_at          TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL,
		entry_price        NUMERIC NOT NULL,
		entry_market_cap   NUMERIC NOT NULL,
		current_price      NUMERIC NOT NULL,
		current_market_cap NUMERIC NOT NULL,
		ath_price          NUMERIC NOT NULL,
		ath_at             TIMESTAMPTZ NOT NULL,
		price_24h          NUMERIC,
		price_7d           NUMERIC,
		current_roi        DOUBLE PRECISION NOT NULL,
		ath_roi            DOUBLE PRECISION NOT NULL,
		roi_24h            DOUBLE PRECISION,
		roi_7d             DOUBLE PRECISION,
		status             TEXT NOT NULL,
		profitable         BOOLEAN NOT NULL DEFAULT false,
		settled            BOOLEAN NOT NULL DEFAULT false
	);
	CREATE INDEX IF NOT EXISTS idx_calls_handle ON calls (handle);
	CREATE INDEX IF NOT EXISTS idx_calls_signal_id ON calls (signal_id) WHERE signal_id <> ''
`

const upsertCallSQL = `
	INSERT INTO calls (
		id, handle, kind, token_id, symbol, signal_id, called_at, updated_at,
		entry_price, entry_market_cap, current_price, current_market_cap, ath_price, ath_at,
		price_24h, price_7d, current_roi, ath_roi, roi_24h, roi_7d, status, profitable, settled
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	ON CONFLICT (id) DO UPDATE SET
		signal_id = EXCLUDED.signal_id,
		updated_at = EXCLUDED.updated_at,
		current_price = EXCLUDED.current_price,
		current_market_cap = EXCLUDED.current_market_cap,
		ath_price = EXCLUDED.ath_price,
		ath_at = EXCLUDED.ath_at,
		price_24h = EXCLUDED.price_24h,
		price_7d = EXCLUDED.price_7d,
		current_roi = EXCLUDED.current_roi,
		ath_roi = EXCLUDED.ath_roi,
		roi_24h = EXCLUDED.roi_24h,
		roi_7d = EXCLUDED.roi_7d,
		status = EXCLUDED.status,
		profitable = EXCLUDED.profitable,
		settled = EXCLUDED.settled
	WHERE calls.updated_at <= EXCLUDED.updated_at
`

const selectCallsSQL = `
	SELECT id, handle, kind, token_id, symbol, signal_id, called_at, updated_at,
		entry_price::text, entry_market_cap::text, current_price::text, current_market_cap::text,
		ath_price::text, ath_at, price_24h::text, price_7d::text,
		current_roi, ath_roi, roi_24h, roi_7d, status, profitable, settled
	FROM calls
	ORDER BY called_at ASC
`

// CallRepository persists call snapshots to PostgreSQL.
type CallRepository struct {
	pool DatabasePool
}

func NewCallRepository(pool DatabasePool) *CallRepository {
	return &CallRepository{pool: pool}
}

// EnsureSchema creates the calls table when it does not exist.
func (r *CallRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, callsSchema); err != nil {
		return fmt.Errorf("failed to create calls schema: %w", err)
	}
	return nil
}

// SaveCalls upserts every call in a single transaction. A row already
// holding a newer update is left untouched.
func (r *CallRepository) SaveCalls(ctx context.Context, calls []*models.Call) (err error) {
	if len(calls) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, c := range calls {
		if _, err = tx.Exec(ctx, upsertCallSQL,
			c.ID, c.Handle, string(c.Kind), c.TokenID, c.Symbol, c.SignalID, c.CalledAt, c.UpdatedAt,
			c.EntryPrice, c.EntryMarketCap, c.CurrentPrice, c.CurrentMarketCap, c.ATHPrice, c.ATHAt,
			c.Price24h, c.Price7d, c.CurrentROI, c.ATHROI, c.ROI24h, c.ROI7d,
			string(c.Status), c.Profitable, c.Settled,
		); err != nil {
			return fmt.Errorf("failed to save call %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit calls: %w", err)
	}
	return nil
}

// LoadCalls returns every stored call, oldest first.
func (r *CallRepository) LoadCalls(ctx context.Context) ([]*models.Call, error) {
	rows, err := r.pool.Query(ctx, selectCallsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var calls []*models.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calls: %w", err)
	}
	return calls, nil
}

func scanCall(rows pgx.Rows) (*models.Call, error) {
	var c models.Call
	var kind, status string
	var entry, entryMcap, current, currentMcap, ath string
	var price24h, price7d *string
	var calledAt, updatedAt, athAt time.Time
	if err := rows.Scan(
		&c.ID, &c.Handle, &kind, &c.TokenID, &c.Symbol, &c.SignalID, &calledAt, &updatedAt,
		&entry, &entryMcap, &current, &currentMcap, &ath, &athAt, &price24h, &price7d,
		&c.CurrentROI, &c.ATHROI, &c.ROI24h, &c.ROI7d, &status, &c.Profitable, &c.Settled,
	); err != nil {
		return nil, fmt.Errorf("failed to scan call: %w", err)
	}

	c.Kind = models.EntityKind(kind)
	c.Status = models.CallStatus(status)
	c.CalledAt = calledAt.UTC()
	c.UpdatedAt = updatedAt.UTC()
	c.ATHAt = athAt.UTC()

	var err error
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{entry, &c.EntryPrice},
		{entryMcap, &c.EntryMarketCap},
		{current, &c.CurrentPrice},
		{currentMcap, &c.CurrentMarketCap},
		{ath, &c.ATHPrice},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return nil, fmt.Errorf("invalid decimal in call %s: %w", c.ID, err)
		}
	}
	if c.Price24h, err = optionalDecimal(price24h); err != nil {
		return nil, fmt.Errorf("invalid price_24h in call %s: %w", c.ID, err)
	}
	if c.Price7d, err = optionalDecimal(price7d); err != nil {
		return nil, fmt.Errorf("invalid price_7d in call %s: %w", c.ID, err)
	}
	return &c, nil
}

func optionalDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
