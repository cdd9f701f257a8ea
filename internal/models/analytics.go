package models

// Correlation strength labels.
const (
	StrengthStrongPositive   = "strong_positive"
	StrengthModeratePositive = "moderate_positive"
	StrengthWeakPositive     = "weak_positive"
	StrengthWeakNegative     = "weak_negative"
	StrengthModerateNegative = "moderate_negative"
	StrengthStrongNegative   = "strong_negative"
)

// CorrelationResult is the Pearson relationship between two resampled series.
type CorrelationResult struct {
	TokenA      string  `json:"token_a"`
	TokenB      string  `json:"token_b"`
	SymbolA     string  `json:"symbol_a"`
	SymbolB     string  `json:"symbol_b"`
	Coefficient float64 `json:"coefficient"`
	Strength    string  `json:"strength"`
	DataPoints  int     `json:"data_points"`
	Confidence  float64 `json:"confidence"`
}

// LeadLagResult describes which of two tokens tends to move first.
type LeadLagResult struct {
	Leader         string  `json:"leader"`
	Follower       string  `json:"follower"`
	LeaderSymbol   string  `json:"leader_symbol"`
	FollowerSymbol string  `json:"follower_symbol"`
	LagMinutes     int     `json:"lag_minutes"`
	Correlation    float64 `json:"correlation"`
	Confidence     float64 `json:"confidence"`
}

// LeadingToken ranks a token by how often it leads its sector peers.
type LeadingToken struct {
	TokenID   string  `json:"token_id"`
	Symbol    string  `json:"symbol"`
	LeadScore float64 `json:"lead_score"`
	LeadCount int     `json:"lead_count"`
}

// SectorCorrelation is the co-movement rollup of one sector.
type SectorCorrelation struct {
	Sector            string         `json:"sector"`
	Label             string         `json:"label"`
	Tokens            []string       `json:"tokens"`
	AvgCorrelation    float64        `json:"avg_correlation"`
	PairCount         int            `json:"pair_count"`
	LeadingTokens     []LeadingToken `json:"leading_tokens"`
	AvgPerformance24h float64        `json:"avg_performance_24h"`
}

// Relationship labels used for related tokens, in display priority order.
const (
	RelationshipLeads      = "leads"
	RelationshipFollows    = "follows"
	RelationshipCorrelated = "correlated"
	RelationshipSameSector = "same_sector"
)

// RelatedToken is one entry of the related-token list for a token.
type RelatedToken struct {
	TokenID       string   `json:"token_id"`
	Symbol        string   `json:"symbol"`
	Relationship  string   `json:"relationship"`
	Correlation   *float64 `json:"correlation,omitempty"`
	LagMinutes    int      `json:"lag_minutes,omitempty"`
	SharedSectors []string `json:"shared_sectors,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// Trend labels for an entity's recent performance.
type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendStable    Trend = "STABLE"
	TrendDeclining Trend = "DECLINING"
)

// Badge names.
const (
	BadgeVeteran      = "Veteran"
	BadgeAccurate     = "Accurate"
	BadgeUnreliable   = "Unreliable"
	BadgePumpAndDump  = "Pump & Dump"
	BadgeMoonMaker    = "Moon Maker"
	BadgeDiamondHands = "Diamond Hands"
	BadgeDeclining    = "Declining"
	BadgeRisingStar   = "Rising Star"
	BadgeHotStreak    = "Hot Streak"
	BadgeColdStreak   = "Cold Streak"
	BadgeTopCaller    = "Top Caller"
)

// ReliabilityStats is the scored view of one entity's call history.
type ReliabilityStats struct {
	Handle           string     `json:"handle"`
	Kind             EntityKind `json:"kind"`
	TotalCalls       int        `json:"total_calls"`
	Wins             int        `json:"wins"`
	Losses           int        `json:"losses"`
	Open             int        `json:"open"`
	Expired          int        `json:"expired"`
	ProfitableCalls  int        `json:"profitable_calls"`
	WinRate          float64    `json:"win_rate"`
	AvgROI           float64    `json:"avg_roi"`
	AvgATHROI        float64    `json:"avg_ath_roi"`
	AvgROI24h        *float64   `json:"avg_roi_24h,omitempty"`
	AvgROI7d         *float64   `json:"avg_roi_7d,omitempty"`
	AvgTimeToATH     float64    `json:"avg_time_to_ath_minutes"`
	Trend            Trend      `json:"trend"`
	PumpScore        float64    `json:"pump_score"`
	IsPumpAndDump    bool       `json:"is_pump_and_dump"`
	ReliabilityScore float64    `json:"reliability_score"`
	Badges           []string   `json:"badges"`
}

// HasBadge reports whether the stats carry a badge.
func (s *ReliabilityStats) HasBadge(badge string) bool {
	for _, b := range s.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// Leaderboard groups the ranked entity views.
type Leaderboard struct {
	TopReliable  []ReliabilityStats `json:"top_reliable"`
	Unreliable   []ReliabilityStats `json:"unreliable"`
	RisingStars  []ReliabilityStats `json:"rising_stars"`
	MostActive   []ReliabilityStats `json:"most_active"`
	PumpSuspects []ReliabilityStats `json:"pump_suspects"`
}

// SourcePerformance is the reliability view of one signal source type.
type SourcePerformance struct {
	ReliabilityStats
	Signals      int     `json:"signals"`
	SignalWeight float64 `json:"signal_weight"`
}
