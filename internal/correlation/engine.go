// Package correlation measures statistical relationships between token
// price series.
package correlation

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// SeriesSource is the read side of the time-series store.
type SeriesSource interface {
	GetSeries(tokenID string) (*models.TokenSeries, bool)
	Tokens() []string
}

// Config holds the engine thresholds.
type Config struct {
	ResampleStep          time.Duration `mapstructure:"resample_step"`
	Tolerance             time.Duration `mapstructure:"tolerance"`
	MinPoints             int           `mapstructure:"min_points"`
	MinAlignedPairs       int           `mapstructure:"min_aligned_pairs"`
	LagCandidates         []int         `mapstructure:"lag_candidates"`
	DefaultMaxLag         int           `mapstructure:"default_max_lag"`
	MinLeadLagCorrelation float64       `mapstructure:"min_lead_lag_correlation"`
	StrongThreshold       float64       `mapstructure:"strong_threshold"`
	ModerateThreshold     float64       `mapstructure:"moderate_threshold"`
	CorrelatedThreshold   float64       `mapstructure:"correlated_threshold"`
	MaxCorrelatedTokens   int           `mapstructure:"max_correlated_tokens"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ResampleStep:          5 * time.Minute,
		Tolerance:             10 * time.Minute,
		MinPoints:             5,
		MinAlignedPairs:       5,
		LagCandidates:         []int{5, 10, 15, 30, 45, 60},
		DefaultMaxLag:         60,
		MinLeadLagCorrelation: 0.3,
		StrongThreshold:       0.7,
		ModerateThreshold:     0.4,
		CorrelatedThreshold:   0.4,
		MaxCorrelatedTokens:   10,
	}
}

// Engine computes correlations on demand from the current store state.
type Engine struct {
	source SeriesSource
	cfg    Config
	logger *logrus.Logger
}

// NewEngine creates an engine over a series source.
func NewEngine(source SeriesSource, cfg Config, logger *logrus.Logger) *Engine {
	def := DefaultConfig()
	if cfg.ResampleStep <= 0 {
		cfg.ResampleStep = def.ResampleStep
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = def.MinPoints
	}
	if cfg.MinAlignedPairs <= 0 {
		cfg.MinAlignedPairs = def.MinAlignedPairs
	}
	if len(cfg.LagCandidates) == 0 {
		cfg.LagCandidates = def.LagCandidates
	}
	if cfg.DefaultMaxLag <= 0 {
		cfg.DefaultMaxLag = def.DefaultMaxLag
	}
	if cfg.MaxCorrelatedTokens <= 0 {
		cfg.MaxCorrelatedTokens = def.MaxCorrelatedTokens
	}
	if cfg.MinLeadLagCorrelation <= 0 {
		cfg.MinLeadLagCorrelation = def.MinLeadLagCorrelation
	}
	if cfg.StrongThreshold <= 0 {
		cfg.StrongThreshold = def.StrongThreshold
	}
	if cfg.ModerateThreshold <= 0 {
		cfg.ModerateThreshold = def.ModerateThreshold
	}
	if cfg.CorrelatedThreshold <= 0 {
		cfg.CorrelatedThreshold = def.CorrelatedThreshold
	}
	cfg.LagCandidates = append([]int(nil), cfg.LagCandidates...)
	sort.Ints(cfg.LagCandidates)

	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{source: source, cfg: cfg, logger: logger}
}

// CalculateCorrelation resamples both series onto a common grid and returns
// their Pearson coefficient. ok is false when either token lacks data.
func (e *Engine) CalculateCorrelation(tokenA, tokenB string) (*models.CorrelationResult, bool) {
	a, okA := e.source.GetSeries(tokenA)
	b, okB := e.source.GetSeries(tokenB)
	if !okA || !okB {
		return nil, false
	}
	if len(a.History) < e.cfg.MinPoints || len(b.History) < e.cfg.MinPoints {
		return nil, false
	}

	xs, ys := e.resample(a.History, b.History)
	if len(xs) < e.cfg.MinAlignedPairs {
		return nil, false
	}

	r := Pearson(xs, ys)
	return &models.CorrelationResult{
		TokenA:      a.TokenID,
		TokenB:      b.TokenID,
		SymbolA:     a.Symbol,
		SymbolB:     b.Symbol,
		Coefficient: r,
		Strength:    e.classify(r),
		DataPoints:  len(xs),
		Confidence:  math.Min(100, 2*float64(len(xs))),
	}, true
}

// resample walks a fixed-step grid over the overlapping time range and keeps
// the grid steps where both tokens have an observation within tolerance.
func (e *Engine) resample(a, b []models.PricePoint) ([]float64, []float64) {
	start := a[0].Timestamp
	if b[0].Timestamp.After(start) {
		start = b[0].Timestamp
	}
	end := a[len(a)-1].Timestamp
	if b[len(b)-1].Timestamp.Before(end) {
		end = b[len(b)-1].Timestamp
	}

	var xs, ys []float64
	for t := start; !t.After(end); t = t.Add(e.cfg.ResampleStep) {
		pa, okA := nearest(a, t, e.cfg.Tolerance)
		if !okA {
			continue
		}
		pb, okB := nearest(b, t, e.cfg.Tolerance)
		if !okB {
			continue
		}
		xs = append(xs, pa.Price)
		ys = append(ys, pb.Price)
	}
	return xs, ys
}

// nearest finds the observation closest to t within tolerance. Equal
// distances resolve to the earlier observation.
func nearest(points []models.PricePoint, t time.Time, tolerance time.Duration) (models.PricePoint, bool) {
	idx := sort.Search(len(points), func(i int) bool { return !points[i].Timestamp.Before(t) })

	best := -1
	var bestDist time.Duration
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(points) {
			continue
		}
		d := absDuration(points[i].Timestamp.Sub(t))
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == -1 || bestDist > tolerance {
		return models.PricePoint{}, false
	}
	return points[best], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (e *Engine) classify(r float64) string {
	abs := math.Abs(r)
	switch {
	case r >= 0 && abs >= e.cfg.StrongThreshold:
		return models.StrengthStrongPositive
	case r >= 0 && abs >= e.cfg.ModerateThreshold:
		return models.StrengthModeratePositive
	case r >= 0:
		return models.StrengthWeakPositive
	case abs >= e.cfg.StrongThreshold:
		return models.StrengthStrongNegative
	case abs >= e.cfg.ModerateThreshold:
		return models.StrengthModerateNegative
	default:
		return models.StrengthWeakNegative
	}
}

// GetCorrelatedTokens returns the tokens whose correlation with tokenID
// reaches the correlated threshold, strongest first.
func (e *Engine) GetCorrelatedTokens(tokenID string) []models.CorrelationResult {
	results := []models.CorrelationResult{}
	if _, ok := e.source.GetSeries(tokenID); !ok {
		return results
	}

	for _, other := range e.source.Tokens() {
		if other == tokenID {
			continue
		}
		res, ok := e.CalculateCorrelation(tokenID, other)
		if !ok || math.Abs(res.Coefficient) < e.cfg.CorrelatedThreshold {
			continue
		}
		results = append(results, *res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		ai, aj := math.Abs(results[i].Coefficient), math.Abs(results[j].Coefficient)
		if ai != aj {
			return ai > aj
		}
		return results[i].TokenB < results[j].TokenB
	})
	if len(results) > e.cfg.MaxCorrelatedTokens {
		results = results[:e.cfg.MaxCorrelatedTokens]
	}

	e.logger.WithFields(logrus.Fields{
		"token":   tokenID,
		"matches": len(results),
	}).Debug("Computed correlated tokens")
	return results
}
