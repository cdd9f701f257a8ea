package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// StatusPolicy holds the thresholds of the call status machine. ROI values
// are percentages.
type StatusPolicy struct {
	ExpiryAge           time.Duration `mapstructure:"expiry_age" json:"expiry_age"`
	EvaluationAge       time.Duration `mapstructure:"evaluation_age" json:"evaluation_age"`
	WinROI              float64       `mapstructure:"win_roi" json:"win_roi"`
	LossROI             float64       `mapstructure:"loss_roi" json:"loss_roi"`
	LateWinROI          float64       `mapstructure:"late_win_roi" json:"late_win_roi"`
	LateLossROI         float64       `mapstructure:"late_loss_roi" json:"late_loss_roi"`
	ProfitableATHROI    float64       `mapstructure:"profitable_ath_roi" json:"profitable_ath_roi"`
	StickyOutcomes      bool          `mapstructure:"sticky_outcomes" json:"sticky_outcomes"`
	DuplicateCallWindow time.Duration `mapstructure:"duplicate_call_window" json:"duplicate_call_window"`
}

// DefaultStatusPolicy returns the production thresholds.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{
		ExpiryAge:           7 * 24 * time.Hour,
		EvaluationAge:       24 * time.Hour,
		WinROI:              100,
		LossROI:             -50,
		LateWinROI:          20,
		LateLossROI:         -30,
		ProfitableATHROI:    20,
		StickyOutcomes:      true,
		DuplicateCallWindow: time.Hour,
	}
}

// NextStatus evaluates the status machine for a call of the given age and
// current ROI. EXPIRED is terminal; WIN and LOSS are terminal only when
// StickyOutcomes is set.
func (p StatusPolicy) NextStatus(current models.CallStatus, roi float64, age time.Duration) models.CallStatus {
	if current == models.CallStatusExpired {
		return current
	}
	if p.StickyOutcomes && current.IsOutcome() {
		return current
	}

	switch {
	case age >= p.ExpiryAge:
		return models.CallStatusExpired
	case roi >= p.WinROI:
		return models.CallStatusWin
	case roi <= p.LossROI:
		return models.CallStatusLoss
	case age >= p.EvaluationAge && roi >= p.LateWinROI:
		return models.CallStatusWin
	case age >= p.EvaluationAge && roi <= p.LateLossROI:
		return models.CallStatusLoss
	default:
		return models.CallStatusOpen
	}
}

// IsFinal reports whether a call no longer needs price refreshes.
func (p StatusPolicy) IsFinal(c *models.Call) bool {
	return c.Status == models.CallStatusExpired || c.Price7d != nil
}

// ROI returns (price-entry)/entry*100, or 0 for a zero entry price.
func ROI(entry, price decimal.Decimal) float64 {
	if entry.IsZero() {
		return 0
	}
	return price.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// applyPrice folds a new price observation into the call.
func (p StatusPolicy) applyPrice(c *models.Call, price, marketCap decimal.Decimal, now time.Time) {
	c.CurrentPrice = price
	if !marketCap.IsZero() {
		c.CurrentMarketCap = marketCap
	}
	c.UpdatedAt = now

	if price.GreaterThan(c.ATHPrice) {
		c.ATHPrice = price
		c.ATHAt = now
	}

	age := c.Age(now)
	if age >= p.EvaluationAge && c.Price24h == nil {
		snap := price
		c.Price24h = &snap
	}
	if age >= p.ExpiryAge && c.Price7d == nil {
		snap := price
		c.Price7d = &snap
	}

	p.recompute(c)

	if !c.Settled {
		c.Status = p.NextStatus(c.Status, c.CurrentROI, age)
	}
}

func (p StatusPolicy) recompute(c *models.Call) {
	c.CurrentROI = ROI(c.EntryPrice, c.CurrentPrice)
	c.ATHROI = ROI(c.EntryPrice, c.ATHPrice)
	if c.Price24h != nil {
		v := ROI(c.EntryPrice, *c.Price24h)
		c.ROI24h = &v
	}
	if c.Price7d != nil {
		v := ROI(c.EntryPrice, *c.Price7d)
		c.ROI7d = &v
	}
	c.Profitable = c.ATHROI >= p.ProfitableATHROI
}
