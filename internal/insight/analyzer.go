// Package insight derives trend and anomaly views from Gamma market data.
package insight

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"marketmover/internal/gamma"
	"marketmover/internal/logger"
	"marketmover/internal/models"
	"marketmover/internal/storage"
)

// Default scan thresholds, matching the anomaly surface's documented
// behavior: a 10% absolute price swing or a 24h volume at twice the market's
// assumed daily average.
const (
	DefaultPriceThreshold = 10.0
	DefaultVolumeRatio    = 2.0

	// Total volume is spread over an assumed week to estimate a daily
	// average; Gamma has no per-day history endpoint.
	assumedVolumeDays = 7.0
)

// Analyzer combines the Gamma client with snapshot/anomaly persistence.
type Analyzer struct {
	client *gamma.Client
	store  *storage.Storage
}

func NewAnalyzer(client *gamma.Client, store *storage.Storage) *Analyzer {
	return &Analyzer{client: client, store: store}
}

// AnalyzeMarket derives the 24h trend and a sentiment label for one market.
func (a *Analyzer) AnalyzeMarket(ctx context.Context, marketID string) (*models.MarketAnalysis, error) {
	market, err := a.client.MarketDetails(ctx, marketID)
	if err != nil {
		return nil, err
	}
	view := market.View()

	var yesPrice float64
	if len(view.OutcomePrices) > 0 {
		yesPrice = view.OutcomePrices[0]
	}
	noPrice := 1 - yesPrice
	if len(view.OutcomePrices) > 1 {
		noPrice = view.OutcomePrices[1]
	}

	lastTrade := yesPrice
	if view.LastTradePrice != nil {
		lastTrade = *view.LastTradePrice
	}
	var changePct float64
	if yesPrice != 0 && lastTrade != 0 {
		changePct = (yesPrice - lastTrade) / lastTrade * 100
	}

	sentiment := "neutral"
	mood := "steady sentiment"
	switch {
	case changePct > 2:
		sentiment = "bullish"
		mood = "increasing optimism"
	case changePct < -2:
		sentiment = "bearish"
		mood = "declining confidence"
	}

	return &models.MarketAnalysis{
		MarketID:   marketID,
		Title:      view.Title,
		Outcomes:   view.Outcomes,
		YesPrice:   yesPrice,
		NoPrice:    noPrice,
		ChangePct:  changePct,
		Volume24hr: view.Volume24hr,
		Liquidity:  view.LiquidityNum,
		Sentiment:  sentiment,
		Summary: fmt.Sprintf("Market %q shows %s. YES ≈ %d%%, change %.2f%% over 24h.",
			view.Title, mood, int(math.Round(yesPrice*100)), changePct),
	}, nil
}

// FindAnomalies scans the top-volume markets for outsized price swings or
// volume spikes, persisting snapshots of everything scanned and every
// anomaly found.
func (a *Analyzer) FindAnomalies(ctx context.Context, limit int, priceThreshold, volumeRatio float64) ([]models.Anomaly, error) {
	if priceThreshold <= 0 {
		priceThreshold = DefaultPriceThreshold
	}
	if volumeRatio <= 0 {
		volumeRatio = DefaultVolumeRatio
	}

	markets, err := a.client.TrendingMarkets(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := a.store.SaveSnapshots(SnapshotsFromMarkets(markets, now)); err != nil {
		logger.Warn("Failed to persist scan snapshots: %v", err)
	}

	anomalies := DetectAnomalies(markets, priceThreshold, volumeRatio, now)
	if len(anomalies) > 0 {
		if err := a.store.SaveAnomalies(anomalies); err != nil {
			logger.Warn("Failed to persist anomalies: %v", err)
		}
	}
	return anomalies, nil
}

// DetectAnomalies is the pure scan over already-fetched markets.
func DetectAnomalies(markets []gamma.MarketView, priceThreshold, volumeRatio float64, now time.Time) []models.Anomaly {
	anomalies := []models.Anomaly{}
	for _, m := range markets {
		var yesPrice float64
		if len(m.OutcomePrices) > 0 {
			yesPrice = m.OutcomePrices[0]
		}
		lastTrade := yesPrice
		if m.LastTradePrice != nil {
			lastTrade = *m.LastTradePrice
		}

		var changePct float64
		if yesPrice != 0 && lastTrade != 0 {
			changePct = (yesPrice - lastTrade) / lastTrade * 100
		}

		var volRatio float64
		if avgVol := m.VolumeNum / assumedVolumeDays; avgVol > 0 && m.Volume24hr > 0 {
			volRatio = m.Volume24hr / avgVol
		}

		priceSwing := math.Abs(changePct) > priceThreshold
		volumeSpike := volRatio > volumeRatio
		if !priceSwing && !volumeSpike {
			continue
		}

		note := fmt.Sprintf("Volume spike %.1fx average", volRatio)
		if priceSwing {
			note = fmt.Sprintf("Price swing %.1f%%", changePct)
		}
		anomalies = append(anomalies, models.Anomaly{
			ID:         uuid.New().String(),
			MarketID:   m.MarketID,
			Title:      m.Title,
			Category:   m.Category,
			ChangePct:  round2(changePct),
			Volume24hr: m.Volume24hr,
			VolRatio:   round2(volRatio),
			Note:       note,
			DetectedAt: now,
		})
	}
	return anomalies
}

// SnapshotsFromMarkets converts fetched markets into storable snapshots.
func SnapshotsFromMarkets(markets []gamma.MarketView, now time.Time) []models.MarketSummary {
	snapshots := make([]models.MarketSummary, 0, len(markets))
	for _, m := range markets {
		var yesPrice float64
		if len(m.OutcomePrices) > 0 {
			yesPrice = m.OutcomePrices[0]
		}
		snapshots = append(snapshots, models.MarketSummary{
			ID:         m.MarketID,
			Title:      m.Title,
			YesPrice:   yesPrice,
			VolumeNum:  m.VolumeNum,
			CapturedAt: now,
		})
	}
	return snapshots
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
