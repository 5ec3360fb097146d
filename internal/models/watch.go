// Package models defines the core domain entities: bots, watch configurations, and alerts.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction determines the comparison polarity when a target price is checked.
// BUY triggers when the price falls to or below the target, SELL when it rises
// to or above it.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ParseDirection converts a user-supplied string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return DirectionBuy, nil
	case "sell":
		return DirectionSell, nil
	default:
		return "", fmt.Errorf("direction must be buy or sell, got %q", s)
	}
}

// WatchConfig is the trigger specification stored when the Market Mover bot is
// activated. A later activation for the same user supersedes earlier ones;
// the evaluator always sees the most recently created config.
type WatchConfig struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	MarketID   string     `json:"marketId"`
	MarketName string     `json:"marketName"`
	Direction  Direction  `json:"direction"`
	TargetYes  *float64   `json:"targetYes"`
	TargetNo   *float64   `json:"targetNo"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Validate checks the activation invariants. Configs that fail here are
// rejected before they ever reach the price walk or the evaluator.
func (c *WatchConfig) Validate() error {
	if c.UserID == "" {
		return errors.New("user ID must not be empty")
	}
	if c.MarketID == "" || c.MarketName == "" {
		return errors.New("marketId and marketName are required")
	}
	if c.Direction != DirectionBuy && c.Direction != DirectionSell {
		return fmt.Errorf("direction must be buy or sell, got %q", c.Direction)
	}
	if c.TargetYes == nil && c.TargetNo == nil {
		return errors.New("at least one of targetYes or targetNo required")
	}
	if c.TargetYes != nil && (*c.TargetYes < 0.0 || *c.TargetYes > 1.0) {
		return errors.New("targetYes must be between 0.0 and 1.0")
	}
	if c.TargetNo != nil && (*c.TargetNo < 0.0 || *c.TargetNo > 1.0) {
		return errors.New("targetNo must be between 0.0 and 1.0")
	}
	return nil
}

// Bot statuses as stored in the registry.
const (
	BotStatusActive   = "active"
	BotStatusInactive = "inactive"
)

// Bot is one per-user registry row. Descriptions are not persisted; they are
// attached from the static catalog when listing.
type Bot struct {
	UserID        string     `json:"-"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	LastActivated *time.Time `json:"last_activated"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AlertResult is the outcome of one trigger evaluation. It is produced fresh
// on every poll and never stored.
type AlertResult struct {
	Triggered bool
	Message   string
	PriceYes  float64
	PriceNo   float64
	Timestamp time.Time
}
