// Package bots implements the per-user bot registry and the Market Mover
// status loop: advance the price walk, evaluate the trigger, report.
package bots

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketmover/internal/logger"
	"marketmover/internal/models"
	"marketmover/internal/pricewalk"
	"marketmover/internal/storage"
	"marketmover/internal/trigger"
)

// MarketMoverName is the registry name of the watch/alert bot.
const MarketMoverName = "Market Mover Bot"

// Definition describes one bot in the static catalog. Descriptions live here,
// not in the store.
type Definition struct {
	Name        string
	Description string
}

// Catalog lists every bot a user can see. Missing registry rows are seeded
// from it on listing.
var Catalog = []Definition{
	{
		Name:        MarketMoverName,
		Description: "Watches one market and alerts when the YES or NO price crosses your target.",
	},
}

// Notifier forwards a triggered alert out of process. Implementations must
// tolerate being called once per poll while the condition holds.
type Notifier interface {
	SendAlert(cfg *models.WatchConfig, res models.AlertResult) error
}

// Service composes the store, the price walk, and the trigger evaluator.
type Service struct {
	store    *storage.Storage
	engine   *pricewalk.Engine
	notifier Notifier // nil disables notifications
	now      func() time.Time
}

func NewService(store *storage.Storage, engine *pricewalk.Engine, notifier Notifier) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ActivateRequest carries the client-supplied watch parameters.
type ActivateRequest struct {
	MarketID   string   `json:"marketId"`
	MarketName string   `json:"marketName"`
	TargetYes  *float64 `json:"targetYes"`
	TargetNo   *float64 `json:"targetNo"`
	Direction  string   `json:"direction"`
}

// ValidationError marks a rejected activation; the HTTP layer maps it to a
// client error rather than a server failure.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Activate validates the request, stores a new watch config, and marks the
// bot active. A second activation supersedes the first; it never merges.
func (s *Service) Activate(userID string, req ActivateRequest) (*models.WatchConfig, error) {
	direction, err := models.ParseDirection(req.Direction)
	if err != nil {
		return nil, &ValidationError{msg: err.Error()}
	}
	cfg := &models.WatchConfig{
		ID:         uuid.New().String(),
		UserID:     userID,
		MarketID:   req.MarketID,
		MarketName: req.MarketName,
		Direction:  direction,
		TargetYes:  req.TargetYes,
		TargetNo:   req.TargetNo,
		CreatedAt:  s.now(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{msg: err.Error()}
	}
	if err := s.store.ActivateMarketMover(MarketMoverName, cfg); err != nil {
		return nil, fmt.Errorf("failed to activate market mover: %w", err)
	}
	logger.Info("Market Mover activated for user %s (market %s, direction %s)",
		userID, cfg.MarketID, cfg.Direction)
	return cfg, nil
}

// Deactivate marks the named bot inactive and reports whether it existed.
// The subject's price state is deliberately left intact; a reactivated bot
// resumes from the same walk.
func (s *Service) Deactivate(userID, name string) (bool, error) {
	found, err := s.store.SetBotStatus(userID, name, models.BotStatusInactive)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate bot: %w", err)
	}
	if found {
		logger.Info("Bot %q deactivated for user %s", name, userID)
	}
	return found, nil
}

// List seeds any catalog bots missing from the user's registry, then returns
// the full list with catalog descriptions attached.
func (s *Service) List(userID string) ([]models.Bot, error) {
	for _, def := range Catalog {
		if err := s.store.EnsureBot(userID, def.Name); err != nil {
			return nil, err
		}
	}
	bots, err := s.store.ListBots(userID)
	if err != nil {
		return nil, err
	}
	for i := range bots {
		bots[i].Description = describe(bots[i].Name)
	}
	return bots, nil
}

func describe(name string) string {
	for _, def := range Catalog {
		if def.Name == name {
			return def.Description
		}
	}
	return "Polymarket bot"
}

// Watching echoes the stored watch config in the status payload.
type Watching struct {
	MarketID   string           `json:"marketId"`
	MarketName string           `json:"marketName"`
	TargetYes  *float64         `json:"targetYes"`
	TargetNo   *float64         `json:"targetNo"`
	Direction  models.Direction `json:"direction"`
}

// Runner is the per-poll evaluation result.
type Runner struct {
	PriceYes  float64          `json:"priceYes"`
	PriceNo   float64          `json:"priceNo"`
	TargetYes *float64         `json:"targetYes"`
	TargetNo  *float64         `json:"targetNo"`
	Direction models.Direction `json:"direction"`
	Alert     *string          `json:"alert"`
	Timestamp string           `json:"timestamp"`
}

// Status is the poll endpoint payload.
type Status struct {
	Active   bool      `json:"active"`
	Watching *Watching `json:"watching"`
	Runner   *Runner   `json:"runner"`
}

// Status runs one tick for the user: load the latest config, advance the
// walk, evaluate the trigger. A missing or inactive bot, or an active bot
// with no stored config, reports inactive rather than failing.
func (s *Service) Status(userID string) (*Status, error) {
	bot, err := s.store.GetBot(userID, MarketMoverName)
	if err != nil {
		return nil, err
	}
	if bot == nil || bot.Status != models.BotStatusActive {
		return &Status{Active: false}, nil
	}

	cfg, err := s.store.LatestWatchConfig(userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &Status{Active: false}, nil
	}

	priceYes := s.engine.Advance(userID, cfg.TargetYes, cfg.TargetNo)
	priceNo := 1 - priceYes
	result := trigger.Evaluate(priceYes, priceNo, cfg, s.now())

	var alert *string
	if result.Triggered {
		msg := result.Message
		alert = &msg
		logger.Info("Alert for user %s on market %s: %s (YES %.3f)", userID, cfg.MarketID, msg, priceYes)
		if s.notifier != nil {
			if err := s.notifier.SendAlert(cfg, result); err != nil {
				// The poll response is authoritative; a failed notification
				// must not fail the tick.
				logger.Warn("Failed to send alert notification: %v", err)
			}
		}
	}

	return &Status{
		Active: true,
		Watching: &Watching{
			MarketID:   cfg.MarketID,
			MarketName: cfg.MarketName,
			TargetYes:  cfg.TargetYes,
			TargetNo:   cfg.TargetNo,
			Direction:  cfg.Direction,
		},
		Runner: &Runner{
			PriceYes:  priceYes,
			PriceNo:   priceNo,
			TargetYes: cfg.TargetYes,
			TargetNo:  cfg.TargetNo,
			Direction: cfg.Direction,
			Alert:     alert,
			Timestamp: result.Timestamp.Format(time.RFC3339),
		},
	}, nil
}
