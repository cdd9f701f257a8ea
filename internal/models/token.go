package models

import "time"

// PricePoint is a single price observation. Immutable once appended.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	MarketCap float64   `json:"market_cap"`
	Volume    *float64  `json:"volume,omitempty"`
}

// TokenSeries holds the retained observations and thematic tags of one token.
type TokenSeries struct {
	TokenID       string       `json:"token_id"`
	Symbol        string       `json:"symbol"`
	History       []PricePoint `json:"history"`
	SectorTags    []string     `json:"sector_tags"`
	NarrativeTags []string     `json:"narrative_tags"`
	FirstSeen     time.Time    `json:"first_seen"`
	LastUpdate    time.Time    `json:"last_update"`
}

// PriceObservation is the write-side input of the time-series store.
type PriceObservation struct {
	TokenID       string    `json:"token_id" binding:"required"`
	Symbol        string    `json:"symbol" binding:"required"`
	Price         float64   `json:"price"`
	MarketCap     float64   `json:"market_cap"`
	Volume        *float64  `json:"volume,omitempty"`
	NarrativeTags []string  `json:"narrative_tags,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// HasSector reports whether the series carries the given sector tag.
func (s *TokenSeries) HasSector(sector string) bool {
	for _, tag := range s.SectorTags {
		if tag == sector {
			return true
		}
	}
	return false
}
