package reliability

import (
	"math"
	"sort"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// Compute derives the reliability view of one entity from its calls.
func Compute(handle string, kind models.EntityKind, calls []*models.Call, p Policy) models.ReliabilityStats {
	stats := models.ReliabilityStats{
		Handle: handle,
		Kind:   kind,
		Trend:  models.TrendStable,
		Badges: []string{},
	}
	if len(calls) == 0 {
		return stats
	}

	ordered := append([]*models.Call(nil), calls...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CalledAt.After(ordered[j].CalledAt) })

	stats.TotalCalls = len(ordered)

	var sumROI, sumATH, sum24h, sum7d, sumATHMinutes float64
	var n24h, n7d, nATH int
	for _, c := range ordered {
		switch c.Status {
		case models.CallStatusWin:
			stats.Wins++
		case models.CallStatusLoss:
			stats.Losses++
		case models.CallStatusExpired:
			stats.Expired++
		default:
			stats.Open++
		}
		if c.Profitable {
			stats.ProfitableCalls++
		}
		sumROI += c.CurrentROI
		sumATH += c.ATHROI
		if c.ROI24h != nil {
			sum24h += *c.ROI24h
			n24h++
		}
		if c.ROI7d != nil {
			sum7d += *c.ROI7d
			n7d++
		}
		if !c.ATHAt.IsZero() {
			sumATHMinutes += c.TimeToATH().Minutes()
			nATH++
		}
	}

	total := float64(stats.TotalCalls)
	if decided := stats.Wins + stats.Losses; decided > 0 {
		stats.WinRate = float64(stats.Wins) / float64(decided) * 100
	}
	stats.AvgROI = sumROI / total
	stats.AvgATHROI = sumATH / total
	if n24h > 0 {
		avg := sum24h / float64(n24h)
		stats.AvgROI24h = &avg
	}
	if n7d > 0 {
		avg := sum7d / float64(n7d)
		stats.AvgROI7d = &avg
	}
	if nATH > 0 {
		stats.AvgTimeToATH = sumATHMinutes / float64(nATH)
	}

	stats.Trend = trend(ordered, p)
	stats.PumpScore = pumpScore(ordered, p)
	stats.IsPumpAndDump = stats.PumpScore >= p.PumpFlagScore
	stats.ReliabilityScore = compositeScore(&stats, p)
	stats.Badges = badges(&stats, ordered, p)
	return stats
}

// trend compares the win rate of the most recent window of calls with the
// window before it. Calls are ordered most recent first.
func trend(calls []*models.Call, p Policy) models.Trend {
	w := p.TrendWindow
	if len(calls) <= w {
		return models.TrendStable
	}
	recent := calls[:w]
	older := calls[w:min(len(calls), 2*w)]

	recentRate, okRecent := terminalWinRate(recent, p.TrendMinTerminal)
	olderRate, okOlder := terminalWinRate(older, p.TrendMinTerminal)
	if !okRecent || !okOlder {
		return models.TrendStable
	}

	switch {
	case recentRate-olderRate > p.TrendDelta:
		return models.TrendImproving
	case olderRate-recentRate > p.TrendDelta:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

func terminalWinRate(calls []*models.Call, minTerminal int) (float64, bool) {
	wins, decided := 0, 0
	for _, c := range calls {
		if !c.Status.IsOutcome() {
			continue
		}
		decided++
		if c.Status == models.CallStatusWin {
			wins++
		}
	}
	if decided < minTerminal || decided == 0 {
		return 0, false
	}
	return float64(wins) / float64(decided), true
}

// pumpScore is the share of calls that spiked early and then gave the move
// back.
func pumpScore(calls []*models.Call, p Policy) float64 {
	if len(calls) < p.PumpMinCalls {
		return 0
	}
	suspicious := 0
	for _, c := range calls {
		if isSuspicious(c, p) {
			suspicious++
		}
	}
	return math.Min(100, 100*float64(suspicious)/float64(len(calls)))
}

func isSuspicious(c *models.Call, p Policy) bool {
	earlyPeak := !c.ATHAt.IsZero() &&
		c.TimeToATH() <= p.PumpATHWindow &&
		c.ATHROI > p.PumpATHROI &&
		c.CurrentROI < 0
	return earlyPeak || c.ATHROI-c.CurrentROI > p.PumpDrawdown
}

func compositeScore(s *models.ReliabilityStats, p Policy) float64 {
	score := math.Min(s.WinRate*p.WinRateWeight, p.WinRateCap)

	if s.AvgROI > 0 {
		score += math.Min(s.AvgROI/p.ROIDivisor, p.ROICap)
	} else {
		score += math.Max(s.AvgROI/p.NegativeROIDivisor, p.NegativeROIFloor)
	}

	score += math.Min(math.Sqrt(float64(s.TotalCalls))*p.SampleFactor, p.SampleCap)

	switch s.Trend {
	case models.TrendImproving:
		score += p.TrendImproving
	case models.TrendDeclining:
		score += p.TrendDeclining
	default:
		score += p.TrendStable
	}

	score -= s.PumpScore / 100 * p.PumpPenalty
	return clamp(score, 0, 100)
}

func badges(s *models.ReliabilityStats, calls []*models.Call, p Policy) []string {
	out := []string{}
	if s.TotalCalls >= p.VeteranCalls {
		out = append(out, models.BadgeVeteran)
	}
	if s.TotalCalls >= p.RateBadgeMinCalls && s.WinRate >= p.AccurateWinRate {
		out = append(out, models.BadgeAccurate)
	}
	if s.TotalCalls >= p.RateBadgeMinCalls && s.WinRate < p.UnreliableWinRate {
		out = append(out, models.BadgeUnreliable)
	}
	if s.IsPumpAndDump {
		out = append(out, models.BadgePumpAndDump)
	}
	if s.TotalCalls >= p.MoonMakerMinCalls && s.AvgATHROI >= p.MoonMakerATHROI {
		out = append(out, models.BadgeMoonMaker)
	}
	if s.AvgTimeToATH > p.DiamondHandsMinutes {
		out = append(out, models.BadgeDiamondHands)
	}
	if s.Trend == models.TrendDeclining {
		out = append(out, models.BadgeDeclining)
	}
	if s.TotalCalls >= p.RisingMinCalls && s.TotalCalls <= p.RisingMaxCalls && s.WinRate > p.RisingWinRate {
		out = append(out, models.BadgeRisingStar)
	}
	switch streak(calls, p.StreakLength) {
	case models.CallStatusWin:
		out = append(out, models.BadgeHotStreak)
	case models.CallStatusLoss:
		out = append(out, models.BadgeColdStreak)
	}
	return out
}

// streak returns WIN or LOSS when the last n decided calls all share that
// outcome, and an empty status otherwise.
func streak(calls []*models.Call, n int) models.CallStatus {
	if n <= 0 {
		return ""
	}
	var first models.CallStatus
	seen := 0
	for _, c := range calls {
		if !c.Status.IsOutcome() {
			continue
		}
		if seen == 0 {
			first = c.Status
		} else if c.Status != first {
			return ""
		}
		seen++
		if seen == n {
			return first
		}
	}
	return ""
}
