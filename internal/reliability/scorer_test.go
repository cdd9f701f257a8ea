package reliability

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/models"
)

type harness struct {
	ledger *ledger.Ledger
	scorer *Scorer
	now    time.Time
}

func newHarness() *harness {
	h := &harness{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	h.ledger = ledger.New(nil, ledger.WithClock(func() time.Time { return h.now }))
	h.scorer = NewScorer(h.ledger, DefaultPolicy(), nil)
	return h
}

// call records a call on a fresh token and moves it to the given price.
func (h *harness) call(t *testing.T, handle, token string, exit float64) *models.Call {
	t.Helper()
	c, created, err := h.ledger.RecordCall(ledger.NewCall{
		Handle:  handle,
		TokenID: token,
		Symbol:  token,
		Price:   decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.True(t, created)

	h.now = h.now.Add(10 * time.Minute)
	updated, err := h.ledger.UpdateCallPrice(c.ID, decimal.NewFromFloat(exit), decimal.Zero)
	require.NoError(t, err)
	return updated
}

func TestScorer_StatsAndCacheInvalidation(t *testing.T) {
	h := newHarness()
	h.call(t, "@Alpha", "t1", 2.5)
	h.call(t, "alpha", "t2", 0.4)

	stats, ok := h.scorer.GetKOLStats("ALPHA")
	require.True(t, ok)
	assert.Equal(t, "alpha", stats.Handle)
	assert.Equal(t, models.EntityKindKOL, stats.Kind)
	assert.Equal(t, 2, stats.TotalCalls)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)

	// Mutating the returned value must not leak into the cache.
	stats.Badges = append(stats.Badges, "mutated")
	again, ok := h.scorer.GetKOLStats("alpha")
	require.True(t, ok)
	assert.NotContains(t, again.Badges, "mutated")

	h.call(t, "alpha", "t3", 3)
	after, ok := h.scorer.GetKOLStats("alpha")
	require.True(t, ok)
	assert.Equal(t, 3, after.TotalCalls)
	assert.Equal(t, 2, after.Wins)
}

func TestScorer_UnknownEntity(t *testing.T) {
	h := newHarness()

	_, ok := h.scorer.GetKOLStats("ghost")
	assert.False(t, ok)
	_, ok = h.scorer.GetKOLReliabilityScore("ghost")
	assert.False(t, ok)
	assert.Equal(t, 1.0, h.scorer.GetKOLSignalWeight("ghost"))
	assert.False(t, h.scorer.ShouldIgnoreKOL("ghost"))
	assert.Empty(t, h.scorer.GetKOLHistory("ghost", 10))
}

func TestScorer_WeightTracksScore(t *testing.T) {
	h := newHarness()
	for i := 0; i < 6; i++ {
		h.call(t, "good", "g"+string(rune('a'+i)), 2.5)
		h.call(t, "bad", "b"+string(rune('a'+i)), 0.3)
	}

	goodScore, ok := h.scorer.GetKOLReliabilityScore("good")
	require.True(t, ok)
	badScore, ok := h.scorer.GetKOLReliabilityScore("bad")
	require.True(t, ok)
	assert.Greater(t, goodScore, badScore)

	goodWeight := h.scorer.GetKOLSignalWeight("good")
	badWeight := h.scorer.GetKOLSignalWeight("bad")
	assert.Greater(t, goodWeight, badWeight)
	assert.InDelta(t, 0.5+goodScore/100, goodWeight, 1e-9)
}

func TestScorer_ShouldIgnore(t *testing.T) {
	h := newHarness()
	p := DefaultPolicy()

	pump := &models.ReliabilityStats{TotalCalls: 10, IsPumpAndDump: true, ReliabilityScore: 70}
	assert.True(t, h.scorer.ShouldIgnore(pump))

	pump.TotalCalls = p.IgnorePumpMinCalls - 1
	assert.False(t, h.scorer.ShouldIgnore(pump))

	weak := &models.ReliabilityStats{TotalCalls: 20, ReliabilityScore: 19.9}
	assert.True(t, h.scorer.ShouldIgnore(weak))

	weak.TotalCalls = 19
	assert.False(t, h.scorer.ShouldIgnore(weak))
}

func TestScorer_AllStatsByKind(t *testing.T) {
	h := newHarness()
	h.call(t, "kol", "t1", 2)
	_, _, err := h.ledger.RecordCall(ledger.NewCall{
		Handle:  "dexscreener",
		Kind:    models.EntityKindSource,
		TokenID: "t1",
		Price:   decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	kols := h.scorer.AllStats(models.EntityKindKOL)
	require.Len(t, kols, 1)
	assert.Equal(t, "kol", kols[0].Handle)

	assert.Len(t, h.scorer.AllStats(""), 2)

	h.scorer.Reset()
	assert.Len(t, h.scorer.GetKOLHistory("kol", 0), 1)
}
