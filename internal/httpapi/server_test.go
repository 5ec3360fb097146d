package httpapi

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketmover/internal/bots"
	"marketmover/internal/config"
	"marketmover/internal/gamma"
	"marketmover/internal/insight"
	"marketmover/internal/pricewalk"
	"marketmover/internal/storage"
)

// newTestServer wires a full stack over in-memory storage. gammaURL may point
// at an httptest server; bot endpoints never call it.
func newTestServer(t *testing.T, gammaURL string) (*Server, *storage.Storage) {
	t.Helper()
	store, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := gamma.NewClient(gammaURL, 5*time.Second, 1, time.Millisecond)
	analyzer := insight.NewAnalyzer(client, store)
	engine := pricewalk.NewEngine(pricewalk.NewMemoryStore(), rand.New(rand.NewPCG(1, 2)))
	botSvc := bots.NewService(store, engine, nil)
	return New(config.ServerConfig{ListenAddr: ":0"}, botSvc, client, analyzer, store), store
}

func doRequest(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("user-id", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	rec := doRequest(t, srv.Router(), "GET", "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	payload := decode(t, rec)
	if payload["message"] != "Polymarket Bot Backend (Multi-tenant) is running!" {
		t.Errorf("message = %v", payload["message"])
	}
}

func TestBotsRequireUserID(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	router := srv.Router()

	for _, path := range []string{
		"/api/bots",
		"/api/bots/market-mover/status",
	} {
		rec := doRequest(t, router, "GET", path, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s without user-id = %d, want 400", path, rec.Code)
			continue
		}
		payload := decode(t, rec)
		if payload["error"] != "Missing user-id header" {
			t.Errorf("GET %s error = %v", path, payload["error"])
		}
	}
}

func TestListBots(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	rec := doRequest(t, srv.Router(), "GET", "/api/bots", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	botsList, ok := payload["bots"].([]any)
	if !ok || len(botsList) == 0 {
		t.Fatalf("bots = %v, want seeded catalog", payload["bots"])
	}
	first := botsList[0].(map[string]any)
	if first["name"] != "Market Mover Bot" {
		t.Errorf("bot name = %v", first["name"])
	}
	if first["status"] != "inactive" {
		t.Errorf("seeded status = %v, want inactive", first["status"])
	}
}

func TestActivateValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	router := srv.Router()

	tests := []struct {
		name    string
		body    map[string]any
		wantErr string
	}{
		{
			name:    "missing market fields",
			body:    map[string]any{"direction": "buy", "targetYes": 0.4},
			wantErr: "marketId and marketName are required",
		},
		{
			name: "no targets",
			body: map[string]any{
				"marketId": "m1", "marketName": "M1", "direction": "buy",
			},
			wantErr: "at least one of targetYes or targetNo required",
		},
		{
			name: "bad direction",
			body: map[string]any{
				"marketId": "m1", "marketName": "M1", "direction": "hold", "targetYes": 0.4,
			},
			wantErr: `direction must be buy or sell, got "hold"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, "POST", "/api/bots/market-mover/activate", "user-1", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			payload := decode(t, rec)
			if payload["error"] != tt.wantErr {
				t.Errorf("error = %v, want %q", payload["error"], tt.wantErr)
			}
		})
	}
}

func TestActivateStatusDeactivateFlow(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	router := srv.Router()

	rec := doRequest(t, router, "POST", "/api/bots/market-mover/activate", "user-1", map[string]any{
		"marketId":   "market-1",
		"marketName": "Test market",
		"direction":  "buy",
		"targetYes":  0.4,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	if payload["message"] != "Market Mover Bot activated" {
		t.Errorf("activate message = %v", payload["message"])
	}
	cfg := payload["config"].(map[string]any)
	if cfg["marketId"] != "market-1" || cfg["direction"] != "buy" {
		t.Errorf("echoed config = %v", cfg)
	}

	rec = doRequest(t, router, "GET", "/api/bots/market-mover/status", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rec.Code, rec.Body.String())
	}
	payload = decode(t, rec)
	if payload["active"] != true {
		t.Fatalf("active = %v, want true", payload["active"])
	}
	watching := payload["watching"].(map[string]any)
	if watching["marketId"] != "market-1" {
		t.Errorf("watching = %v", watching)
	}
	runner, ok := payload["runner"].(map[string]any)
	if !ok {
		t.Fatal("runner missing from active status")
	}
	priceYes, okYes := runner["priceYes"].(float64)
	priceNo, okNo := runner["priceNo"].(float64)
	if !okYes || !okNo {
		t.Fatalf("runner prices = %v", runner)
	}
	if diff := priceYes + priceNo - 1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("prices not complementary: %v + %v", priceYes, priceNo)
	}
	if _, hasAlert := runner["alert"]; !hasAlert {
		t.Error("runner payload has no alert field")
	}

	rec = doRequest(t, router, "POST", "/api/bots/market-mover/deactivate", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d", rec.Code)
	}
	payload = decode(t, rec)
	if payload["message"] != "Market Mover Bot deactivated" {
		t.Errorf("deactivate message = %v", payload["message"])
	}

	rec = doRequest(t, router, "GET", "/api/bots/market-mover/status", "user-1", nil)
	payload = decode(t, rec)
	if payload["active"] != false {
		t.Errorf("active after deactivate = %v, want false", payload["active"])
	}
}

func TestStatusIsPerUser(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	router := srv.Router()

	doRequest(t, router, "POST", "/api/bots/market-mover/activate", "user-a", map[string]any{
		"marketId": "m1", "marketName": "M1", "direction": "buy", "targetYes": 0.4,
	})

	rec := doRequest(t, router, "GET", "/api/bots/market-mover/status", "user-b", nil)
	payload := decode(t, rec)
	if payload["active"] != false {
		t.Errorf("user-b sees active = %v, want false", payload["active"])
	}
}

func TestDeactivateBotByName(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	router := srv.Router()

	rec := doRequest(t, router, "POST", "/api/bots/deactivate", "user-1", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name = %d, want 400", rec.Code)
	}
	if decode(t, rec)["error"] != "Name required" {
		t.Error("missing name did not report Name required")
	}

	rec = doRequest(t, router, "POST", "/api/bots/deactivate", "user-1", map[string]any{"name": "Ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bot = %d, want 404", rec.Code)
	}
	if decode(t, rec)["error"] != "Bot not found" {
		t.Error("unknown bot did not report Bot not found")
	}

	doRequest(t, router, "GET", "/api/bots", "user-1", nil) // seeds the catalog
	rec = doRequest(t, router, "POST", "/api/bots/deactivate", "user-1", map[string]any{"name": "Market Mover Bot"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate = %d, body %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["message"] != "Market Mover Bot deactivated for user user-1" {
		t.Errorf("message = %v", decode(t, rec)["message"])
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused.invalid")
	rec := doRequest(t, srv.Router(), "GET", "/api/markets/search", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrendingPersistsSnapshots(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"m1","question":"Will it rain?","volumeNum":7000,"volume24hr":1000,
			 "outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.75\",\"0.25\"]"}
		]`))
	}))
	t.Cleanup(backend.Close)

	srv, store := newTestServer(t, backend.URL)
	rec := doRequest(t, srv.Router(), "GET", "/api/markets/trending", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	markets, ok := payload["topVolumeMarkets"].([]any)
	if !ok || len(markets) != 1 {
		t.Fatalf("topVolumeMarkets = %v", payload["topVolumeMarkets"])
	}

	snapshots, err := store.RecentSnapshots(10)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].ID != "m1" || snapshots[0].YesPrice != 0.75 {
		t.Errorf("persisted snapshots = %+v", snapshots)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, store := newTestServer(t, "http://unused.invalid")
	if err := store.SaveSnapshots(nil); err != nil {
		t.Fatalf("SaveSnapshots: %v", err)
	}
	rec := doRequest(t, srv.Router(), "GET", "/api/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decode(t, rec)
	if payload["markets"] != float64(0) || payload["anomalies"] != float64(0) {
		t.Errorf("stats = %v", payload)
	}
}
