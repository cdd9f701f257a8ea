// Package leaderboard ranks scored KOLs into the public leaderboard views.
package leaderboard

import (
	"sort"

	"github.com/irfndi/oracle-alpha-go/internal/models"
	"github.com/irfndi/oracle-alpha-go/internal/reliability"
)

const (
	DefaultLimit   = 10
	minCalls       = 3
	topCallerCount = 5
	unreliableMax  = 40.0
	unreliableMin  = 10
	pumpSuspectMin = 50.0
)

// StatsSource provides precomputed reliability stats per entity kind.
type StatsSource interface {
	AllStats(kind models.EntityKind) []models.ReliabilityStats
}

// Assembler shares the reliability policy with the scorer so the rising
// stars view agrees with the Rising Star badge.
type Assembler struct {
	stats  StatsSource
	policy reliability.Policy
}

func NewAssembler(stats StatsSource, policy reliability.Policy) *Assembler {
	return &Assembler{stats: stats, policy: policy}
}

// GetKOLLeaderboard builds every leaderboard view from KOLs with enough
// calls. limit caps each view; a non-positive limit uses DefaultLimit.
func (a *Assembler) GetKOLLeaderboard(limit int) models.Leaderboard {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var eligible []models.ReliabilityStats
	for _, s := range a.stats.AllStats(models.EntityKindKOL) {
		if s.TotalCalls >= minCalls {
			eligible = append(eligible, s)
		}
	}

	board := models.Leaderboard{
		TopReliable:  []models.ReliabilityStats{},
		Unreliable:   []models.ReliabilityStats{},
		RisingStars:  []models.ReliabilityStats{},
		MostActive:   []models.ReliabilityStats{},
		PumpSuspects: []models.ReliabilityStats{},
	}

	top := rank(eligible, nil, func(x, y models.ReliabilityStats) bool {
		return x.ReliabilityScore > y.ReliabilityScore
	}, limit)
	for i := range top {
		if i < topCallerCount {
			top[i].Badges = append(append([]string{}, top[i].Badges...), models.BadgeTopCaller)
		}
	}
	board.TopReliable = top

	board.Unreliable = rank(eligible, func(s models.ReliabilityStats) bool {
		return s.ReliabilityScore < unreliableMax && s.TotalCalls >= unreliableMin
	}, func(x, y models.ReliabilityStats) bool {
		return x.ReliabilityScore < y.ReliabilityScore
	}, limit)

	board.RisingStars = rank(eligible, func(s models.ReliabilityStats) bool {
		return s.TotalCalls >= a.policy.RisingMinCalls && s.TotalCalls <= a.policy.RisingMaxCalls && s.WinRate > a.policy.RisingWinRate
	}, func(x, y models.ReliabilityStats) bool {
		return x.WinRate > y.WinRate
	}, limit)

	board.MostActive = rank(eligible, nil, func(x, y models.ReliabilityStats) bool {
		return x.TotalCalls > y.TotalCalls
	}, limit)

	board.PumpSuspects = rank(eligible, func(s models.ReliabilityStats) bool {
		return s.PumpScore >= pumpSuspectMin
	}, func(x, y models.ReliabilityStats) bool {
		return x.PumpScore > y.PumpScore
	}, limit)

	return board
}

// rank filters, orders and truncates a copy of the input. Equal entries
// fall back to handle order.
func rank(in []models.ReliabilityStats, keep func(models.ReliabilityStats) bool, less func(x, y models.ReliabilityStats) bool, limit int) []models.ReliabilityStats {
	out := []models.ReliabilityStats{}
	for _, s := range in {
		if keep == nil || keep(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].Handle < out[j].Handle
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
