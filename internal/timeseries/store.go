// Package timeseries keeps per-token price observations inside a trailing
// retention window.
package timeseries

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// DefaultRetention is the trailing window of retained observations.
const DefaultRetention = 24 * time.Hour

// Store owns the token series.
type Store struct {
	mu        sync.RWMutex
	series    map[string]*models.TokenSeries
	retention time.Duration
	now       func() time.Time
	logger    *logrus.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(logger *logrus.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		series:    make(map[string]*models.TokenSeries),
		retention: DefaultRetention,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordPrice appends an observation, merges narrative tags and trims
// points that fell out of the retention window.
func (s *Store) RecordPrice(obs models.PriceObservation) {
	now := s.now()
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[obs.TokenID]
	if !ok {
		series = &models.TokenSeries{
			TokenID:    obs.TokenID,
			Symbol:     obs.Symbol,
			SectorTags: ClassifySectors(obs.Symbol),
			FirstSeen:  ts,
		}
		s.series[obs.TokenID] = series
		s.logger.WithFields(logrus.Fields{
			"token":   obs.TokenID,
			"symbol":  obs.Symbol,
			"sectors": series.SectorTags,
		}).Debug("Tracking new token series")
	}

	point := models.PricePoint{
		Timestamp: ts,
		Price:     obs.Price,
		MarketCap: obs.MarketCap,
		Volume:    obs.Volume,
	}

	// Observations may arrive late; keep the history ordered.
	n := len(series.History)
	if n == 0 || !ts.Before(series.History[n-1].Timestamp) {
		series.History = append(series.History, point)
	} else {
		idx := sort.Search(n, func(i int) bool { return series.History[i].Timestamp.After(ts) })
		series.History = append(series.History, models.PricePoint{})
		copy(series.History[idx+1:], series.History[idx:])
		series.History[idx] = point
	}

	series.NarrativeTags = mergeTags(series.NarrativeTags, obs.NarrativeTags)
	series.LastUpdate = now
	s.trim(series, now)
}

func (s *Store) trim(series *models.TokenSeries, now time.Time) {
	cutoff := now.Add(-s.retention)
	idx := sort.Search(len(series.History), func(i int) bool {
		return !series.History[i].Timestamp.Before(cutoff)
	})
	if idx > 0 {
		series.History = append([]models.PricePoint(nil), series.History[idx:]...)
	}
}

func mergeTags(existing, incoming []string) []string {
	for _, tag := range incoming {
		if tag == "" {
			continue
		}
		found := false
		for _, have := range existing {
			if have == tag {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, tag)
		}
	}
	return existing
}

// GetPriceHistory returns the retained observations oldest first, or an
// empty slice for an unknown token.
func (s *Store) GetPriceHistory(tokenID string) []models.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[tokenID]
	if !ok {
		return []models.PricePoint{}
	}
	out := make([]models.PricePoint, len(series.History))
	copy(out, series.History)
	return out
}

// GetSeries returns a copy of a token series.
func (s *Store) GetSeries(tokenID string) (*models.TokenSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[tokenID]
	if !ok {
		return nil, false
	}
	return cloneSeries(series), true
}

// Tokens returns the known token ids in a stable order.
func (s *Store) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.series))
	for id := range s.series {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TokensInSector returns the tokens tagged with a sector.
func (s *Store) TokensInSector(sector string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, series := range s.series {
		if series.HasSector(sector) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Sectors returns every sector tag in use.
func (s *Store) Sectors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, series := range s.series {
		for _, tag := range series.SectorTags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

// Snapshot returns a deep copy of every series.
func (s *Store) Snapshot() map[string]*models.TokenSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.TokenSeries, len(s.series))
	for id, series := range s.series {
		out[id] = cloneSeries(series)
	}
	return out
}

// Clear drops all state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = make(map[string]*models.TokenSeries)
}

func cloneSeries(in *models.TokenSeries) *models.TokenSeries {
	out := *in
	out.History = append([]models.PricePoint(nil), in.History...)
	out.SectorTags = append([]string(nil), in.SectorTags...)
	out.NarrativeTags = append([]string(nil), in.NarrativeTags...)
	return &out
}
