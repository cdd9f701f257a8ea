package reliability

import "time"

// Policy holds every scoring threshold. The defaults encode product policy
// and may be overridden through configuration.
type Policy struct {
	// Trend
	TrendWindow      int     `mapstructure:"trend_window"`
	TrendMinTerminal int     `mapstructure:"trend_min_terminal"`
	TrendDelta       float64 `mapstructure:"trend_delta"`

	// Pump and dump
	PumpMinCalls  int           `mapstructure:"pump_min_calls"`
	PumpATHWindow time.Duration `mapstructure:"pump_ath_window"`
	PumpATHROI    float64       `mapstructure:"pump_ath_roi"`
	PumpDrawdown  float64       `mapstructure:"pump_drawdown"`
	PumpFlagScore float64       `mapstructure:"pump_flag_score"`

	// Composite score
	WinRateWeight      float64 `mapstructure:"win_rate_weight"`
	WinRateCap         float64 `mapstructure:"win_rate_cap"`
	ROIDivisor         float64 `mapstructure:"roi_divisor"`
	ROICap             float64 `mapstructure:"roi_cap"`
	NegativeROIDivisor float64 `mapstructure:"negative_roi_divisor"`
	NegativeROIFloor   float64 `mapstructure:"negative_roi_floor"`
	SampleFactor       float64 `mapstructure:"sample_factor"`
	SampleCap          float64 `mapstructure:"sample_cap"`
	TrendImproving     float64 `mapstructure:"trend_improving"`
	TrendStable        float64 `mapstructure:"trend_stable"`
	TrendDeclining     float64 `mapstructure:"trend_declining"`
	PumpPenalty        float64 `mapstructure:"pump_penalty"`

	// Badges
	VeteranCalls        int     `mapstructure:"veteran_calls"`
	RateBadgeMinCalls   int     `mapstructure:"rate_badge_min_calls"`
	AccurateWinRate     float64 `mapstructure:"accurate_win_rate"`
	UnreliableWinRate   float64 `mapstructure:"unreliable_win_rate"`
	MoonMakerATHROI     float64 `mapstructure:"moon_maker_ath_roi"`
	MoonMakerMinCalls   int     `mapstructure:"moon_maker_min_calls"`
	DiamondHandsMinutes float64 `mapstructure:"diamond_hands_minutes"`
	RisingMinCalls      int     `mapstructure:"rising_min_calls"`
	RisingMaxCalls      int     `mapstructure:"rising_max_calls"`
	RisingWinRate       float64 `mapstructure:"rising_win_rate"`
	StreakLength        int     `mapstructure:"streak_length"`

	// Weight and suppression
	MinWeight           float64 `mapstructure:"min_weight"`
	MaxWeight           float64 `mapstructure:"max_weight"`
	IgnorePumpMinCalls  int     `mapstructure:"ignore_pump_min_calls"`
	IgnoreScore         float64 `mapstructure:"ignore_score"`
	IgnoreScoreMinCalls int     `mapstructure:"ignore_score_min_calls"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		TrendWindow:      10,
		TrendMinTerminal: 5,
		TrendDelta:       0.10,

		PumpMinCalls:  5,
		PumpATHWindow: 2 * time.Hour,
		PumpATHROI:    50,
		PumpDrawdown:  80,
		PumpFlagScore: 60,

		WinRateWeight:      0.4,
		WinRateCap:         40,
		ROIDivisor:         5,
		ROICap:             20,
		NegativeROIDivisor: 10,
		NegativeROIFloor:   -10,
		SampleFactor:       3,
		SampleCap:          15,
		TrendImproving:     15,
		TrendStable:        10,
		TrendDeclining:     0,
		PumpPenalty:        10,

		VeteranCalls:        50,
		RateBadgeMinCalls:   10,
		AccurateWinRate:     60,
		UnreliableWinRate:   40,
		MoonMakerATHROI:     100,
		MoonMakerMinCalls:   5,
		DiamondHandsMinutes: 240,
		RisingMinCalls:      5,
		RisingMaxCalls:      19,
		RisingWinRate:       50,
		StreakLength:        5,

		MinWeight:           0.5,
		MaxWeight:           1.5,
		IgnorePumpMinCalls:  10,
		IgnoreScore:         20,
		IgnoreScoreMinCalls: 20,
	}
}

// Weight maps a reliability score onto the signal weight range. A score of
// 50 maps to the midpoint.
func (p Policy) Weight(score float64) float64 {
	w := p.MinWeight + (p.MaxWeight-p.MinWeight)*score/100
	return clamp(w, p.MinWeight, p.MaxWeight)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
