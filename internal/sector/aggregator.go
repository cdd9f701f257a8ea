// Package sector rolls up token correlations by thematic sector and builds
// related-token lists.
package sector

import (
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/oracle-alpha-go/internal/correlation"
	"github.com/irfndi/oracle-alpha-go/internal/models"
	"github.com/irfndi/oracle-alpha-go/internal/timeseries"
)

const (
	maxLeadingTokens     = 5
	maxRelatedTokens     = 10
	sameSectorConfidence = 70.0
	fallbackConfidence   = 50.0
)

var sectorLabels = map[string]string{
	"AI":                   "AI & Agents",
	"MEME":                 "Memes",
	"ANIMAL":               "Animals",
	"POLITICAL":            "Political",
	"GAMING":               "Gaming",
	"DEFI":                 "DeFi",
	"CELEBRITY":            "Celebrity",
	timeseries.SectorOther: "Other",
}

// Label returns the display name of a sector.
func Label(sector string) string {
	if label, ok := sectorLabels[sector]; ok {
		return label
	}
	return cases.Title(language.English).String(strings.ToLower(sector))
}

// SeriesSource is the part of the time-series store the aggregator reads.
type SeriesSource interface {
	GetSeries(tokenID string) (*models.TokenSeries, bool)
	Tokens() []string
	TokensInSector(sector string) []string
	Sectors() []string
}

// Correlator computes pairwise relationships between tokens.
type Correlator interface {
	CalculateCorrelation(tokenA, tokenB string) (*models.CorrelationResult, bool)
	AnalyzeLeadLag(tokenA, tokenB string, maxLag int) (*models.LeadLagResult, bool)
}

// Aggregator composes correlation results per sector and per token.
type Aggregator struct {
	series           SeriesSource
	correlator       Correlator
	relatedThreshold float64
	logger           *logrus.Logger
}

// NewAggregator takes the engine's correlated threshold so related tokens
// and correlated tokens agree. A non-positive threshold uses the default.
func NewAggregator(series SeriesSource, correlator Correlator, relatedThreshold float64, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	if relatedThreshold <= 0 {
		relatedThreshold = correlation.DefaultConfig().CorrelatedThreshold
	}
	return &Aggregator{series: series, correlator: correlator, relatedThreshold: relatedThreshold, logger: logger}
}

type leadTally struct {
	sum   float64
	count int
}

// GetSectorCorrelation averages pairwise correlation across the tokens of a
// sector and ranks the tokens that most often lead their peers. ok is false
// when the sector has fewer than two tokens.
func (a *Aggregator) GetSectorCorrelation(sector string) (*models.SectorCorrelation, bool) {
	tokens := a.series.TokensInSector(sector)
	if len(tokens) < 2 {
		return nil, false
	}

	var sum float64
	pairs := 0
	leads := make(map[string]*leadTally)

	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			if res, ok := a.correlator.CalculateCorrelation(tokens[i], tokens[j]); ok {
				sum += res.Coefficient
				pairs++
			}
			ll, ok := a.correlator.AnalyzeLeadLag(tokens[i], tokens[j], 0)
			if !ok || ll.LagMinutes <= 0 {
				continue
			}
			tally, exists := leads[ll.Leader]
			if !exists {
				tally = &leadTally{}
				leads[ll.Leader] = tally
			}
			tally.sum += ll.Correlation
			tally.count++
		}
	}

	result := &models.SectorCorrelation{
		Sector:            sector,
		Label:             Label(sector),
		Tokens:            tokens,
		PairCount:         pairs,
		LeadingTokens:     a.rankLeaders(leads),
		AvgPerformance24h: a.averagePerformance(tokens),
	}
	if pairs > 0 {
		result.AvgCorrelation = sum / float64(pairs)
	}
	return result, true
}

func (a *Aggregator) rankLeaders(leads map[string]*leadTally) []models.LeadingToken {
	ranked := make([]models.LeadingToken, 0, len(leads))
	for tokenID, tally := range leads {
		lt := models.LeadingToken{
			TokenID:   tokenID,
			LeadScore: tally.sum / float64(tally.count),
			LeadCount: tally.count,
		}
		if s, ok := a.series.GetSeries(tokenID); ok {
			lt.Symbol = s.Symbol
		}
		ranked = append(ranked, lt)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].LeadScore != ranked[j].LeadScore {
			return ranked[i].LeadScore > ranked[j].LeadScore
		}
		if ranked[i].LeadCount != ranked[j].LeadCount {
			return ranked[i].LeadCount > ranked[j].LeadCount
		}
		return ranked[i].TokenID < ranked[j].TokenID
	})
	if len(ranked) > maxLeadingTokens {
		ranked = ranked[:maxLeadingTokens]
	}
	return ranked
}

// averagePerformance is the mean first-to-last percentage move over the
// retained window.
func (a *Aggregator) averagePerformance(tokens []string) float64 {
	var sum float64
	counted := 0
	for _, tokenID := range tokens {
		s, ok := a.series.GetSeries(tokenID)
		if !ok || len(s.History) == 0 {
			continue
		}
		first := s.History[0].Price
		if first == 0 {
			continue
		}
		last := s.History[len(s.History)-1].Price
		sum += (last - first) / first * 100
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// GetAllSectorCorrelations runs GetSectorCorrelation for every known sector,
// highest average correlation first.
func (a *Aggregator) GetAllSectorCorrelations() []models.SectorCorrelation {
	results := []models.SectorCorrelation{}
	for _, sector := range a.series.Sectors() {
		if res, ok := a.GetSectorCorrelation(sector); ok {
			results = append(results, *res)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].AvgCorrelation != results[j].AvgCorrelation {
			return results[i].AvgCorrelation > results[j].AvgCorrelation
		}
		return results[i].Sector < results[j].Sector
	})

	a.logger.WithField("sectors", len(results)).Debug("Computed sector correlations")
	return results
}

// GetRelatedTokens lists the tokens linked to tokenID by a shared sector, a
// meaningful correlation or a lead/lag relationship. The relationship is
// described from the other token's side: "leads" means it moves first.
func (a *Aggregator) GetRelatedTokens(tokenID string) []models.RelatedToken {
	related := []models.RelatedToken{}
	base, ok := a.series.GetSeries(tokenID)
	if !ok {
		return related
	}

	for _, other := range a.series.Tokens() {
		if other == tokenID {
			continue
		}
		otherSeries, ok := a.series.GetSeries(other)
		if !ok {
			continue
		}

		shared := sharedSectors(base.SectorTags, otherSeries.SectorTags)
		corr, hasCorr := a.correlator.CalculateCorrelation(tokenID, other)
		correlated := hasCorr && math.Abs(corr.Coefficient) >= a.relatedThreshold
		ll, hasLeadLag := a.correlator.AnalyzeLeadLag(tokenID, other, 0)
		leadLag := hasLeadLag && ll.LagMinutes > 0

		if len(shared) == 0 && !correlated && !leadLag {
			continue
		}

		rt := models.RelatedToken{
			TokenID:       other,
			Symbol:        otherSeries.Symbol,
			SharedSectors: shared,
		}
		switch {
		case leadLag && ll.Leader == other:
			rt.Relationship = models.RelationshipLeads
		case leadLag:
			rt.Relationship = models.RelationshipFollows
		case correlated:
			rt.Relationship = models.RelationshipCorrelated
		default:
			rt.Relationship = models.RelationshipSameSector
		}
		if leadLag {
			rt.LagMinutes = ll.LagMinutes
		}

		switch {
		case hasCorr:
			coef := corr.Coefficient
			rt.Correlation = &coef
			rt.Confidence = corr.Confidence
		case len(shared) > 0:
			rt.Confidence = sameSectorConfidence
		default:
			rt.Confidence = fallbackConfidence
		}

		related = append(related, rt)
	}

	sort.SliceStable(related, func(i, j int) bool {
		if related[i].Confidence != related[j].Confidence {
			return related[i].Confidence > related[j].Confidence
		}
		return related[i].TokenID < related[j].TokenID
	})
	if len(related) > maxRelatedTokens {
		related = related[:maxRelatedTokens]
	}
	return related
}

// sharedSectors intersects two tag lists. OTHER marks the absence of a
// sector and is never shared.
func sharedSectors(a, b []string) []string {
	var shared []string
	for _, x := range a {
		if x == timeseries.SectorOther {
			continue
		}
		for _, y := range b {
			if x == y {
				shared = append(shared, x)
				break
			}
		}
	}
	return shared
}
