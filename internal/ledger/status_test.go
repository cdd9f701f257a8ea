package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

func TestStatusPolicy_NextStatus(t *testing.T) {
	policy := DefaultStatusPolicy()
	policy.StickyOutcomes = false

	tests := []struct {
		name     string
		current  models.CallStatus
		roi      float64
		age      time.Duration
		expected models.CallStatus
	}{
		{name: "fresh flat call stays open", current: models.CallStatusOpen, roi: 5, age: time.Hour, expected: models.CallStatusOpen},
		{name: "doubled early is a win", current: models.CallStatusOpen, roi: 100, age: time.Hour, expected: models.CallStatusWin},
		{name: "halved early is a loss", current: models.CallStatusOpen, roi: -50, age: time.Hour, expected: models.CallStatusLoss},
		{name: "moderate gain before a day stays open", current: models.CallStatusOpen, roi: 25, age: 23 * time.Hour, expected: models.CallStatusOpen},
		{name: "moderate gain after a day is a win", current: models.CallStatusOpen, roi: 20, age: 24 * time.Hour, expected: models.CallStatusWin},
		{name: "moderate drop after a day is a loss", current: models.CallStatusOpen, roi: -30, age: 25 * time.Hour, expected: models.CallStatusLoss},
		{name: "small move after a day stays open", current: models.CallStatusOpen, roi: -10, age: 48 * time.Hour, expected: models.CallStatusOpen},
		{name: "a week old expires", current: models.CallStatusOpen, roi: 500, age: 7 * 24 * time.Hour, expected: models.CallStatusExpired},
		{name: "expired is terminal", current: models.CallStatusExpired, roi: 500, age: time.Hour, expected: models.CallStatusExpired},
		{name: "non-sticky win re-evaluates", current: models.CallStatusWin, roi: 0, age: time.Hour, expected: models.CallStatusOpen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, policy.NextStatus(tc.current, tc.roi, tc.age))
		})
	}
}

func TestStatusPolicy_StickyOutcomes(t *testing.T) {
	policy := DefaultStatusPolicy()
	assert.True(t, policy.StickyOutcomes)

	// A win that retraces into loss territory keeps its outcome.
	assert.Equal(t, models.CallStatusWin, policy.NextStatus(models.CallStatusWin, -60, 2*time.Hour))
	assert.Equal(t, models.CallStatusLoss, policy.NextStatus(models.CallStatusLoss, 150, 2*time.Hour))
	// Outcomes survive the expiry age so they keep counting toward win rate.
	assert.Equal(t, models.CallStatusWin, policy.NextStatus(models.CallStatusWin, 0, 8*24*time.Hour))
}

func TestROI(t *testing.T) {
	assert.InDelta(t, 100.0, ROI(decimal.NewFromFloat(1), decimal.NewFromFloat(2)), 1e-9)
	assert.InDelta(t, -25.0, ROI(decimal.NewFromFloat(4), decimal.NewFromFloat(3)), 1e-9)
	assert.Equal(t, 0.0, ROI(decimal.Zero, decimal.NewFromFloat(3)))
}
