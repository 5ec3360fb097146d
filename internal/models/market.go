package models

import "time"

// MarketSummary is a compact snapshot of a Polymarket market, captured when
// the trending-markets endpoint is served and kept for the stats/anomaly
// surface.
type MarketSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	YesPrice   float64   `json:"yesPrice"`
	VolumeNum  float64   `json:"volumeNum"`
	CapturedAt time.Time `json:"timestamp"`
}

// Anomaly records a market flagged by the anomaly scan: either an outsized
// price swing or a volume spike relative to the market's daily average.
type Anomaly struct {
	ID         string    `json:"-"`
	MarketID   string    `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	ChangePct  float64   `json:"changePct"`
	Volume24hr float64   `json:"vol24hr"`
	VolRatio   float64   `json:"volRatio"`
	Note       string    `json:"note"`
	DetectedAt time.Time `json:"detectedAt"`
}

// MarketAnalysis is the derived trend/sentiment view of a single market.
type MarketAnalysis struct {
	MarketID   string   `json:"marketId"`
	Title      string   `json:"title"`
	Outcomes   []string `json:"outcomes"`
	YesPrice   float64  `json:"yesPrice"`
	NoPrice    float64  `json:"noPrice"`
	ChangePct  float64  `json:"changePct"`
	Volume24hr float64  `json:"volume24hr"`
	Liquidity  float64  `json:"liquidityNum"`
	Sentiment  string   `json:"sentiment"`
	Summary    string   `json:"summary"`
}
