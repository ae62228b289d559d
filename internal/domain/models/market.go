package models

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"timestamp"`
	Symbol string    `json:"symbol,omitempty"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Tick is a single trade print from a live feed.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketContext is everything one symbol task knows about the market this cycle.
type MarketContext struct {
	Symbol      string
	Price       float64
	Volatility  float64 // annualized realized volatility of Series
	Series      []Candle
	MarketHours bool
	AsOf        time.Time
}
