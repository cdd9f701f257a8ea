package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceScore is one weighted sub-score contributed by a signal source type.
type SourceScore struct {
	Source string  `json:"source"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

// MarketSnapshot is the market state attached to a signal.
type MarketSnapshot struct {
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Liquidity decimal.Decimal `json:"liquidity"`
}

// Signal is an aggregated trading signal as delivered by the ingestion layer.
type Signal struct {
	ID         string         `json:"id" binding:"required"`
	TokenID    string         `json:"token" binding:"required"`
	Symbol     string         `json:"symbol" binding:"required"`
	Name       string         `json:"name,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Score      float64        `json:"score"`
	Sources    []SourceScore  `json:"sources"`
	Market     MarketSnapshot `json:"market"`
	Narratives []string       `json:"narratives,omitempty"`
	KOLHandles []string       `json:"kol_handles,omitempty"`
}
