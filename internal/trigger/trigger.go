// Package trigger decides whether a generated price pair crossed a watch
// configuration's target. Evaluation is pure: no storage reads, no writes,
// same inputs always produce the same result.
package trigger

import (
	"time"

	"marketmover/internal/models"
)

// Alert messages, one per (direction, side) pair.
const (
	msgBuyYes  = "BUY signal: YES price reached target"
	msgBuyNo   = "BUY signal: NO price reached target"
	msgSellYes = "SELL signal: YES price reached target"
	msgSellNo  = "SELL signal: NO price reached target"
)

// Evaluate checks the price pair against the config. BUY triggers when a
// price falls to or below its target, SELL when it rises to or above it.
// The YES side is checked first; when both sides would fire on the same tick
// only the YES message is emitted. A nil config or a config with no targets
// never triggers (activation validation prevents both, this is defensive).
func Evaluate(priceYes, priceNo float64, cfg *models.WatchConfig, now time.Time) models.AlertResult {
	res := models.AlertResult{
		PriceYes:  priceYes,
		PriceNo:   priceNo,
		Timestamp: now,
	}
	if cfg == nil {
		return res
	}

	switch cfg.Direction {
	case models.DirectionBuy:
		if cfg.TargetYes != nil && priceYes <= *cfg.TargetYes {
			res.Triggered = true
			res.Message = msgBuyYes
		} else if cfg.TargetNo != nil && priceNo <= *cfg.TargetNo {
			res.Triggered = true
			res.Message = msgBuyNo
		}
	case models.DirectionSell:
		if cfg.TargetYes != nil && priceYes >= *cfg.TargetYes {
			res.Triggered = true
			res.Message = msgSellYes
		} else if cfg.TargetNo != nil && priceNo >= *cfg.TargetNo {
			res.Triggered = true
			res.Message = msgSellNo
		}
	}
	return res
}
