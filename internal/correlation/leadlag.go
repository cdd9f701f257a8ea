package correlation

import (
	"math"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// AnalyzeLeadLag compares the percentage returns of two tokens at a set of
// candidate lags and reports which token tends to move first. A positive
// best lag means tokenA leads. maxLag <= 0 uses the configured default.
// ok is false when neither alignment reaches the minimum correlation.
func (e *Engine) AnalyzeLeadLag(tokenA, tokenB string, maxLag int) (*models.LeadLagResult, bool) {
	a, okA := e.source.GetSeries(tokenA)
	b, okB := e.source.GetSeries(tokenB)
	if !okA || !okB {
		return nil, false
	}
	if maxLag <= 0 {
		maxLag = e.cfg.DefaultMaxLag
	}

	returnsA := PercentReturns(prices(a.History))
	returnsB := PercentReturns(prices(b.History))
	n := min(len(returnsA), len(returnsB))
	if n < e.cfg.MinAlignedPairs {
		return nil, false
	}

	best := Pearson(returnsA[:n], returnsB[:n])
	bestLag := 0

	for _, lag := range e.cfg.LagCandidates {
		if lag <= 0 || lag > maxLag {
			continue
		}
		if c, ok := e.shifted(returnsA, returnsB, lag); ok && c > best {
			best, bestLag = c, lag
		}
		if c, ok := e.shifted(returnsB, returnsA, lag); ok && c > best {
			best, bestLag = c, -lag
		}
	}

	if math.Abs(best) < e.cfg.MinLeadLagCorrelation {
		return nil, false
	}

	res := &models.LeadLagResult{
		Leader:         a.TokenID,
		Follower:       b.TokenID,
		LeaderSymbol:   a.Symbol,
		FollowerSymbol: b.Symbol,
		LagMinutes:     bestLag,
		Correlation:    best,
		Confidence:     math.Min(100, 3*float64(n)),
	}
	if bestLag < 0 {
		res.Leader, res.Follower = b.TokenID, a.TokenID
		res.LeaderSymbol, res.FollowerSymbol = b.Symbol, a.Symbol
		res.LagMinutes = -bestLag
	}
	return res, true
}

// shifted correlates leader returns with follower returns delayed by lag
// steps.
func (e *Engine) shifted(leader, follower []float64, lag int) (float64, bool) {
	if len(follower) <= lag {
		return 0, false
	}
	delayed := follower[lag:]
	n := min(len(leader), len(delayed))
	if n < e.cfg.MinAlignedPairs {
		return 0, false
	}
	return Pearson(leader[:n], delayed[:n]), true
}

func prices(points []models.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}
