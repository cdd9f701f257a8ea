// Package reliability scores signal sources and KOLs from their call
// history.
package reliability

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// CallSource is the read side of the call ledger.
type CallSource interface {
	CallsFor(handle string) []*models.Call
	History(handle string, limit int) []*models.Call
	Kind(handle string) (models.EntityKind, bool)
	Version(handle string) uint64
	Handles(kind models.EntityKind) []string
}

type cachedStats struct {
	version uint64
	stats   models.ReliabilityStats
}

// Scorer computes reliability stats on demand and caches them per entity
// until the ledger reports a write for that entity.
type Scorer struct {
	calls  CallSource
	policy Policy
	logger *logrus.Logger

	mu    sync.Mutex
	cache map[string]cachedStats
}

// NewScorer creates a scorer over a call source.
func NewScorer(calls CallSource, policy Policy, logger *logrus.Logger) *Scorer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scorer{
		calls:  calls,
		policy: policy,
		logger: logger,
		cache:  make(map[string]cachedStats),
	}
}

// Policy returns the thresholds in use.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// GetKOLStats returns the reliability stats of an entity. ok is false for an
// entity with no calls.
func (s *Scorer) GetKOLStats(handle string) (*models.ReliabilityStats, bool) {
	handle = ledger.NormalizeHandle(handle)
	// Read the version before the calls so a concurrent write can only make
	// the cached entry older than its data, never newer.
	version := s.calls.Version(handle)

	s.mu.Lock()
	entry, hit := s.cache[handle]
	s.mu.Unlock()
	if hit && entry.version == version {
		stats := copyStats(entry.stats)
		return &stats, true
	}

	calls := s.calls.CallsFor(handle)
	if len(calls) == 0 {
		return nil, false
	}
	kind, _ := s.calls.Kind(handle)
	stats := Compute(handle, kind, calls, s.policy)

	s.mu.Lock()
	s.cache[handle] = cachedStats{version: version, stats: stats}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"handle":  handle,
		"calls":   stats.TotalCalls,
		"score":   stats.ReliabilityScore,
		"version": version,
	}).Debug("Recomputed reliability stats")

	out := copyStats(stats)
	return &out, true
}

// GetKOLHistory returns at most limit of an entity's most recent calls.
func (s *Scorer) GetKOLHistory(handle string, limit int) []*models.Call {
	return s.calls.History(handle, limit)
}

// GetKOLReliabilityScore returns the composite 0-100 score of an entity.
func (s *Scorer) GetKOLReliabilityScore(handle string) (float64, bool) {
	stats, ok := s.GetKOLStats(handle)
	if !ok {
		return 0, false
	}
	return stats.ReliabilityScore, true
}

// GetKOLSignalWeight returns the signal multiplier of an entity. Unknown
// entities are neutral.
func (s *Scorer) GetKOLSignalWeight(handle string) float64 {
	score, ok := s.GetKOLReliabilityScore(handle)
	if !ok {
		return 1.0
	}
	return s.policy.Weight(score)
}

// ShouldIgnoreKOL reports whether signals from an entity should be dropped.
func (s *Scorer) ShouldIgnoreKOL(handle string) bool {
	stats, ok := s.GetKOLStats(handle)
	if !ok {
		return false
	}
	return s.ShouldIgnore(stats)
}

// ShouldIgnore applies the suppression rule to precomputed stats.
func (s *Scorer) ShouldIgnore(stats *models.ReliabilityStats) bool {
	if stats.IsPumpAndDump && stats.TotalCalls >= s.policy.IgnorePumpMinCalls {
		return true
	}
	return stats.ReliabilityScore < s.policy.IgnoreScore && stats.TotalCalls >= s.policy.IgnoreScoreMinCalls
}

// AllStats returns the stats of every entity of a kind, or of every kind
// when kind is empty.
func (s *Scorer) AllStats(kind models.EntityKind) []models.ReliabilityStats {
	handles := s.calls.Handles(kind)
	out := make([]models.ReliabilityStats, 0, len(handles))
	for _, h := range handles {
		if stats, ok := s.GetKOLStats(h); ok {
			out = append(out, *stats)
		}
	}
	return out
}

// Reset drops every cached entry.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedStats)
}

func copyStats(in models.ReliabilityStats) models.ReliabilityStats {
	out := in
	out.Badges = append([]string{}, in.Badges...)
	if in.AvgROI24h != nil {
		v := *in.AvgROI24h
		out.AvgROI24h = &v
	}
	if in.AvgROI7d != nil {
		v := *in.AvgROI7d
		out.AvgROI7d = &v
	}
	return out
}
