package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CallStatus is the outcome state of a tracked call.
type CallStatus string

const (
	CallStatusOpen    CallStatus = "OPEN"
	CallStatusWin     CallStatus = "WIN"
	CallStatusLoss    CallStatus = "LOSS"
	CallStatusExpired CallStatus = "EXPIRED"
)

// IsOutcome reports whether the status is a decided WIN or LOSS.
func (s CallStatus) IsOutcome() bool {
	return s == CallStatusWin || s == CallStatusLoss
}

// EntityKind distinguishes signal source types from named individuals.
type EntityKind string

const (
	EntityKindSource EntityKind = "source"
	EntityKindKOL    EntityKind = "kol"
)

// Call is one attributed mention of a token by an entity, tracked to an outcome.
type Call struct {
	ID        string     `json:"id" db:"id"`
	Handle    string     `json:"handle" db:"handle"`
	Kind      EntityKind `json:"kind" db:"kind"`
	TokenID   string     `json:"token_id" db:"token_id"`
	Symbol    string     `json:"symbol" db:"symbol"`
	SignalID  string     `json:"signal_id,omitempty" db:"signal_id"`
	CalledAt  time.Time  `json:"called_at" db:"called_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`

	EntryPrice       decimal.Decimal `json:"entry_price" db:"entry_price"`
	EntryMarketCap   decimal.Decimal `json:"entry_market_cap" db:"entry_market_cap"`
	CurrentPrice     decimal.Decimal `json:"current_price" db:"current_price"`
	CurrentMarketCap decimal.Decimal `json:"current_market_cap" db:"current_market_cap"`
	ATHPrice         decimal.Decimal `json:"ath_price" db:"ath_price"`
	ATHAt            time.Time       `json:"ath_at" db:"ath_at"`

	Price24h *decimal.Decimal `json:"price_24h,omitempty" db:"price_24h"`
	Price7d  *decimal.Decimal `json:"price_7d,omitempty" db:"price_7d"`

	CurrentROI float64  `json:"current_roi" db:"current_roi"`
	ATHROI     float64  `json:"ath_roi" db:"ath_roi"`
	ROI24h     *float64 `json:"roi_24h,omitempty" db:"roi_24h"`
	ROI7d      *float64 `json:"roi_7d,omitempty" db:"roi_7d"`

	Status     CallStatus `json:"status" db:"status"`
	Profitable bool       `json:"profitable" db:"profitable"`
	// Settled marks an outcome set explicitly through RecordOutcome.
	Settled bool `json:"settled" db:"settled"`
}

// Age returns how long ago the call was made relative to now.
func (c *Call) Age(now time.Time) time.Duration {
	return now.Sub(c.CalledAt)
}

// TimeToATH returns the delay between the call and its ATH observation.
func (c *Call) TimeToATH() time.Duration {
	if c.ATHAt.IsZero() || c.ATHAt.Before(c.CalledAt) {
		return 0
	}
	return c.ATHAt.Sub(c.CalledAt)
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Call) Clone() *Call {
	out := *c
	if c.Price24h != nil {
		v := *c.Price24h
		out.Price24h = &v
	}
	if c.Price7d != nil {
		v := *c.Price7d
		out.Price7d = &v
	}
	if c.ROI24h != nil {
		v := *c.ROI24h
		out.ROI24h = &v
	}
	if c.ROI7d != nil {
		v := *c.ROI7d
		out.ROI7d = &v
	}
	return &out
}
