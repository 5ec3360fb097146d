package bots

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"marketmover/internal/models"
	"marketmover/internal/pricewalk"
	"marketmover/internal/storage"
)

type captureNotifier struct {
	calls []models.AlertResult
	err   error
}

func (n *captureNotifier) SendAlert(cfg *models.WatchConfig, res models.AlertResult) error {
	n.calls = append(n.calls, res)
	return n.err
}

func fptr(v float64) *float64 { return &v }

func newTestService(t *testing.T, seed uint64, notifier Notifier) *Service {
	t.Helper()
	store, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	engine := pricewalk.NewEngine(pricewalk.NewMemoryStore(), rand.New(rand.NewPCG(seed, seed+1)))
	return NewService(store, engine, notifier)
}

func activateReq(direction string, targetYes, targetNo *float64) ActivateRequest {
	return ActivateRequest{
		MarketID:   "market-1",
		MarketName: "Test market",
		TargetYes:  targetYes,
		TargetNo:   targetNo,
		Direction:  direction,
	}
}

func TestActivateValidation(t *testing.T) {
	svc := newTestService(t, 1, nil)

	tests := []struct {
		name string
		req  ActivateRequest
	}{
		{"bad direction", activateReq("hold", fptr(0.4), nil)},
		{"no targets", activateReq("buy", nil, nil)},
		{"missing market", ActivateRequest{Direction: "buy", TargetYes: fptr(0.4)}},
		{"target out of range", activateReq("buy", fptr(1.5), nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Activate("user-1", tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Activate error = %v, want ValidationError", err)
			}
		})
	}
}

func TestStatusWithoutBot(t *testing.T) {
	svc := newTestService(t, 2, nil)
	status, err := svc.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Active {
		t.Error("unknown user reported active")
	}
	if status.Watching != nil || status.Runner != nil {
		t.Errorf("inactive status carries payload: %+v", status)
	}
}

func TestStatusAfterDeactivate(t *testing.T) {
	svc := newTestService(t, 3, nil)
	if _, err := svc.Activate("user-1", activateReq("buy", fptr(0.4), nil)); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	found, err := svc.Deactivate("user-1", MarketMoverName)
	if err != nil || !found {
		t.Fatalf("Deactivate = (%v, %v), want (true, nil)", found, err)
	}
	status, err := svc.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Active {
		t.Error("deactivated bot reported active")
	}
}

func TestDeactivateUnknownBot(t *testing.T) {
	svc := newTestService(t, 4, nil)
	found, err := svc.Deactivate("user-1", "No Such Bot")
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if found {
		t.Error("Deactivate reported an unknown bot as found")
	}
}

func TestList_SeedsCatalog(t *testing.T) {
	svc := newTestService(t, 5, nil)
	bots, err := svc.List("user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bots) != len(Catalog) {
		t.Fatalf("got %d bots, want %d", len(bots), len(Catalog))
	}
	if bots[0].Name != MarketMoverName {
		t.Errorf("bot name = %q, want %q", bots[0].Name, MarketMoverName)
	}
	if bots[0].Description == "" {
		t.Error("catalog description not attached")
	}
	if bots[0].Status != models.BotStatusInactive {
		t.Errorf("seeded bot status = %q, want inactive", bots[0].Status)
	}
}

func TestStatusTick(t *testing.T) {
	svc := newTestService(t, 6, nil)
	cfg, err := svc.Activate("user-1", activateReq("buy", fptr(0.4), nil))
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if cfg.ID == "" {
		t.Error("activation did not assign a config ID")
	}

	status, err := svc.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Active {
		t.Fatal("activated bot reported inactive")
	}
	if status.Watching == nil || status.Watching.MarketID != "market-1" {
		t.Fatalf("watching = %+v, want market-1", status.Watching)
	}
	r := status.Runner
	if r == nil {
		t.Fatal("runner missing from active status")
	}
	if diff := r.PriceYes + r.PriceNo - 1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("prices not complementary: YES %v + NO %v", r.PriceYes, r.PriceNo)
	}
	if r.Direction != models.DirectionBuy {
		t.Errorf("runner direction = %q, want buy", r.Direction)
	}
	if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
		t.Errorf("runner timestamp %q is not RFC3339: %v", r.Timestamp, err)
	}
}

// pollUntilAlert drives the status loop until a trigger fires. The walk is
// clamped to [0.05, 0.95] and keeps moving, so any interior target is crossed
// well within the budget.
func pollUntilAlert(t *testing.T, svc *Service, userID string, maxPolls int) *Runner {
	t.Helper()
	for i := 0; i < maxPolls; i++ {
		status, err := svc.Status(userID)
		if err != nil {
			t.Fatalf("Status on poll %d: %v", i, err)
		}
		if !status.Active || status.Runner == nil {
			t.Fatal("bot went inactive while polling")
		}
		if status.Runner.Alert != nil {
			return status.Runner
		}
	}
	t.Fatalf("no alert after %d polls", maxPolls)
	return nil
}

func TestBuyAlertOnYesTarget(t *testing.T) {
	notifier := &captureNotifier{}
	svc := newTestService(t, 7, notifier)
	if _, err := svc.Activate("user-1", activateReq("buy", fptr(0.4), nil)); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	r := pollUntilAlert(t, svc, "user-1", 20000)
	if !strings.Contains(*r.Alert, "BUY") || !strings.Contains(*r.Alert, "YES") {
		t.Errorf("alert = %q, want a BUY/YES message", *r.Alert)
	}
	if r.PriceYes > 0.4 {
		t.Errorf("alert fired at YES %v, above the 0.4 target", r.PriceYes)
	}
	if len(notifier.calls) == 0 {
		t.Error("notifier was not called for the alert")
	}
}

func TestSellAlertOnNoTarget(t *testing.T) {
	svc := newTestService(t, 8, nil)
	if _, err := svc.Activate("user-1", activateReq("sell", nil, fptr(0.3))); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	r := pollUntilAlert(t, svc, "user-1", 20000)
	if !strings.Contains(*r.Alert, "SELL") || !strings.Contains(*r.Alert, "NO") {
		t.Errorf("alert = %q, want a SELL/NO message", *r.Alert)
	}
	if r.PriceNo < 0.3 {
		t.Errorf("alert fired at NO %v, below the 0.3 target", r.PriceNo)
	}
}

func TestNotifierFailureDoesNotFailTick(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("telegram down")}
	svc := newTestService(t, 9, notifier)
	// A BUY target of 1.0 triggers on every tick regardless of the walk.
	if _, err := svc.Activate("user-1", activateReq("buy", fptr(1.0), nil)); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	status, err := svc.Status("user-1")
	if err != nil {
		t.Fatalf("Status failed on notifier error: %v", err)
	}
	if status.Runner == nil || status.Runner.Alert == nil {
		t.Fatal("guaranteed trigger produced no alert")
	}
	if len(notifier.calls) != 1 {
		t.Errorf("notifier called %d times, want 1", len(notifier.calls))
	}
}

func TestReactivationSupersedes(t *testing.T) {
	svc := newTestService(t, 10, nil)
	if _, err := svc.Activate("user-1", activateReq("buy", fptr(0.4), nil)); err != nil {
		t.Fatalf("first activation: %v", err)
	}
	if _, err := svc.Deactivate("user-1", MarketMoverName); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	second := activateReq("sell", nil, fptr(0.3))
	second.MarketID = "market-2"
	second.MarketName = "Another market"
	if _, err := svc.Activate("user-1", second); err != nil {
		t.Fatalf("second activation: %v", err)
	}

	status, err := svc.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Active {
		t.Fatal("reactivated bot reported inactive")
	}
	if status.Watching.MarketID != "market-2" {
		t.Errorf("watching %s, want superseding market-2", status.Watching.MarketID)
	}
	if status.Runner.Direction != models.DirectionSell {
		t.Errorf("runner direction = %q, want sell", status.Runner.Direction)
	}
}
