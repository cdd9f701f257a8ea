package sector

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/oracle-alpha-go/internal/models"
	"github.com/irfndi/oracle-alpha-go/internal/timeseries"
)

type fakeCorrelator struct {
	corr    map[[2]string]models.CorrelationResult
	leadLag map[[2]string]models.LeadLagResult
}

func newFakeCorrelator() *fakeCorrelator {
	return &fakeCorrelator{
		corr:    make(map[[2]string]models.CorrelationResult),
		leadLag: make(map[[2]string]models.LeadLagResult),
	}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (f *fakeCorrelator) setCorrelation(a, b string, r, confidence float64) {
	f.corr[pairKey(a, b)] = models.CorrelationResult{TokenA: a, TokenB: b, Coefficient: r, Confidence: confidence}
}

func (f *fakeCorrelator) setLeadLag(leader, follower string, lag int, r float64) {
	f.leadLag[pairKey(leader, follower)] = models.LeadLagResult{
		Leader:      leader,
		Follower:    follower,
		LagMinutes:  lag,
		Correlation: r,
	}
}

func (f *fakeCorrelator) CalculateCorrelation(a, b string) (*models.CorrelationResult, bool) {
	res, ok := f.corr[pairKey(a, b)]
	if !ok {
		return nil, false
	}
	return &res, true
}

func (f *fakeCorrelator) AnalyzeLeadLag(a, b string, _ int) (*models.LeadLagResult, bool) {
	res, ok := f.leadLag[pairKey(a, b)]
	if !ok {
		return nil, false
	}
	return &res, true
}

var now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func newStore() *timeseries.Store {
	return timeseries.NewStore(nil, timeseries.WithClock(func() time.Time { return now }))
}

func addToken(store *timeseries.Store, id, symbol string, prices ...float64) {
	if len(prices) == 0 {
		prices = []float64{1}
	}
	for i, p := range prices {
		store.RecordPrice(models.PriceObservation{
			TokenID:   id,
			Symbol:    symbol,
			Price:     p,
			Timestamp: now.Add(-time.Hour + time.Duration(i)*time.Minute),
		})
	}
}

func TestGetSectorCorrelation(t *testing.T) {
	store := newStore()
	addToken(store, "catai", "CATAI", 1, 2)
	addToken(store, "gptx", "GPTX", 2, 3)
	addToken(store, "botz", "BOTZ", 0, 5)

	corr := newFakeCorrelator()
	corr.setCorrelation("catai", "gptx", 0.8, 40)
	corr.setCorrelation("botz", "catai", 0.4, 40)
	corr.setLeadLag("catai", "botz", 10, 0.6)
	corr.setLeadLag("catai", "gptx", 5, 0.8)
	corr.setLeadLag("gptx", "botz", 15, 0.5)

	agg := NewAggregator(store, corr, 0, nil)
	res, ok := agg.GetSectorCorrelation("AI")
	require.True(t, ok)

	assert.Equal(t, "AI & Agents", res.Label)
	assert.Equal(t, []string{"botz", "catai", "gptx"}, res.Tokens)
	assert.Equal(t, 2, res.PairCount)
	assert.InDelta(t, 0.6, res.AvgCorrelation, 1e-9)

	require.Len(t, res.LeadingTokens, 2)
	assert.Equal(t, "catai", res.LeadingTokens[0].TokenID)
	assert.Equal(t, "CATAI", res.LeadingTokens[0].Symbol)
	assert.InDelta(t, 0.7, res.LeadingTokens[0].LeadScore, 1e-9)
	assert.Equal(t, 2, res.LeadingTokens[0].LeadCount)
	assert.Equal(t, "gptx", res.LeadingTokens[1].TokenID)

	// botz starts at zero and is left out of the performance average.
	assert.InDelta(t, 75.0, res.AvgPerformance24h, 1e-9)
}

func TestGetSectorCorrelation_NeedsTwoTokens(t *testing.T) {
	store := newStore()
	addToken(store, "gptx", "GPTX")

	agg := NewAggregator(store, newFakeCorrelator(), 0, nil)
	_, ok := agg.GetSectorCorrelation("AI")
	assert.False(t, ok)
	_, ok = agg.GetSectorCorrelation("GAMING")
	assert.False(t, ok)
}

func TestGetAllSectorCorrelations_SortedByAverage(t *testing.T) {
	store := newStore()
	addToken(store, "gptx", "GPTX")
	addToken(store, "botz", "BOTZ")
	addToken(store, "pepe", "PEPE")
	addToken(store, "wif", "WIF")
	addToken(store, "solo", "QUEST")

	corr := newFakeCorrelator()
	corr.setCorrelation("gptx", "botz", 0.2, 10)
	corr.setCorrelation("pepe", "wif", 0.9, 10)

	agg := NewAggregator(store, corr, 0, nil)
	all := agg.GetAllSectorCorrelations()
	require.Len(t, all, 2)
	assert.Equal(t, "MEME", all[0].Sector)
	assert.Equal(t, "AI", all[1].Sector)
}

func TestGetRelatedTokens(t *testing.T) {
	store := newStore()
	addToken(store, "catai", "CATAI")
	addToken(store, "gptx", "GPTX")
	addToken(store, "dogx", "DOGX")
	addToken(store, "lead", "LEAD")
	addToken(store, "qqq", "QQQ")
	addToken(store, "zzz", "ZZZ")

	corr := newFakeCorrelator()
	corr.setCorrelation("catai", "gptx", 0.9, 40)
	corr.setCorrelation("catai", "qqq", -0.5, 30)
	corr.setCorrelation("catai", "zzz", 0.1, 90)
	corr.setLeadLag("lead", "catai", 15, 0.7)

	agg := NewAggregator(store, corr, 0, nil)
	related := agg.GetRelatedTokens("catai")
	require.Len(t, related, 4)

	assert.Equal(t, "dogx", related[0].TokenID)
	assert.Equal(t, models.RelationshipSameSector, related[0].Relationship)
	assert.Equal(t, []string{"ANIMAL"}, related[0].SharedSectors)
	assert.Nil(t, related[0].Correlation)
	assert.Equal(t, 70.0, related[0].Confidence)

	assert.Equal(t, "lead", related[1].TokenID)
	assert.Equal(t, models.RelationshipLeads, related[1].Relationship)
	assert.Equal(t, 15, related[1].LagMinutes)
	assert.Equal(t, 50.0, related[1].Confidence)

	assert.Equal(t, "gptx", related[2].TokenID)
	assert.Equal(t, models.RelationshipCorrelated, related[2].Relationship)
	require.NotNil(t, related[2].Correlation)
	assert.InDelta(t, 0.9, *related[2].Correlation, 1e-9)

	assert.Equal(t, "qqq", related[3].TokenID)
	assert.Equal(t, models.RelationshipCorrelated, related[3].Relationship)

	// From the leader's side the same pair reads as "follows".
	fromLead := agg.GetRelatedTokens("lead")
	require.Len(t, fromLead, 1)
	assert.Equal(t, "catai", fromLead[0].TokenID)
	assert.Equal(t, models.RelationshipFollows, fromLead[0].Relationship)
}

func TestGetRelatedTokens_ThresholdOverride(t *testing.T) {
	store := newStore()
	addToken(store, "catai", "CATAI")
	addToken(store, "gptx", "GPTX")
	addToken(store, "qqq", "QQQ")

	corr := newFakeCorrelator()
	corr.setCorrelation("catai", "gptx", 0.9, 40)
	corr.setCorrelation("catai", "qqq", -0.5, 30)

	ids := func(in []models.RelatedToken) []string {
		out := make([]string, len(in))
		for i, rt := range in {
			out[i] = rt.TokenID
		}
		return out
	}

	assert.ElementsMatch(t, []string{"gptx", "qqq"}, ids(NewAggregator(store, corr, 0, nil).GetRelatedTokens("catai")))
	assert.Equal(t, []string{"gptx"}, ids(NewAggregator(store, corr, 0.6, nil).GetRelatedTokens("catai")))
}

func TestGetRelatedTokens_CappedAndUnknown(t *testing.T) {
	store := newStore()
	for i := 1; i <= 12; i++ {
		addToken(store, fmt.Sprintf("gpt%02d", i), fmt.Sprintf("GPT%d", i))
	}

	agg := NewAggregator(store, newFakeCorrelator(), 0, nil)
	assert.Len(t, agg.GetRelatedTokens("gpt01"), 10)
	assert.Empty(t, agg.GetRelatedTokens("missing"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "DeFi", Label("DEFI"))
	assert.Equal(t, "Layer Two", Label("LAYER TWO"))
}
