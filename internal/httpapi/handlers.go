package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"marketmover/internal/bots"
	"marketmover/internal/insight"
	"marketmover/internal/logger"
)

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	list, err := s.bots.List(userID(r))
	if err != nil {
		logger.Error("GET /api/bots failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch bots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bots": list})
}

func (s *Server) handleDeactivateBot(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Name == "" {
		writeError(w, http.StatusBadRequest, "Name required")
		return
	}
	found, err := s.bots.Deactivate(userID(r), payload.Name)
	if err != nil {
		logger.Error("POST /api/bots/deactivate failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to deactivate bot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s deactivated for user %s", payload.Name, userID(r)),
	})
}

func (s *Server) handleActivateMarketMover(w http.ResponseWriter, r *http.Request) {
	var req bots.ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg, err := s.bots.Activate(userID(r), req)
	if err != nil {
		var verr *bots.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		logger.Error("Market Mover activation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Activation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Market Mover Bot activated",
		"config": map[string]any{
			"marketId":   cfg.MarketID,
			"marketName": cfg.MarketName,
			"targetYes":  cfg.TargetYes,
			"targetNo":   cfg.TargetNo,
			"direction":  cfg.Direction,
		},
	})
}

func (s *Server) handleDeactivateMarketMover(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bots.Deactivate(userID(r), bots.MarketMoverName); err != nil {
		logger.Error("Market Mover deactivation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to deactivate bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Market Mover Bot deactivated",
	})
}

func (s *Server) handleMarketMoverStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.bots.Status(userID(r))
	if err != nil {
		logger.Error("Market Mover status failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleActiveMarkets(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 5)
	offset := intQuery(r, "offset", 0)
	markets, err := s.markets.ActiveEvents(r.Context(), limit, offset)
	if err != nil {
		logger.Error("GET /api/markets/active failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch active markets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activeMarkets": markets})
}

func (s *Server) handleTrendingMarkets(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 5)
	offset := intQuery(r, "offset", 0)
	markets, err := s.markets.TrendingMarkets(r.Context(), limit, offset)
	if err != nil {
		logger.Error("GET /api/markets/trending failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch trending markets")
		return
	}
	// Trending is the scan surface; keep snapshots of what was served.
	if err := s.store.SaveSnapshots(insight.SnapshotsFromMarkets(markets, timeNow())); err != nil {
		logger.Warn("Failed to persist trending snapshots: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"topVolumeMarkets": markets})
}

func (s *Server) handleSearchMarkets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}
	status := r.URL.Query().Get("events_status")
	limitPerType := intQuery(r, "limit_per_type", 5)
	page := intQuery(r, "page", 1)

	results, err := s.markets.Search(r.Context(), query, status, limitPerType, page)
	if err != nil {
		logger.Error("GET /api/markets/search failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to search markets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (s *Server) handleMarketDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	market, err := s.markets.MarketDetails(r.Context(), id)
	if err != nil {
		logger.Error("GET /api/markets/%s failed: %v", id, err)
		writeError(w, http.StatusNotFound, "Failed to fetch market details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": market.View()})
}

func (s *Server) handleMarketAnalysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	analysis, err := s.insight.AnalyzeMarket(r.Context(), id)
	if err != nil {
		logger.Error("GET /api/markets/%s/analysis failed: %v", id, err)
		writeError(w, http.StatusBadGateway, "Failed to analyze market")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 10)
	priceThreshold := floatQuery(r, "price_threshold", insight.DefaultPriceThreshold)
	volumeRatio := floatQuery(r, "volume_threshold", insight.DefaultVolumeRatio)

	anomalies, err := s.insight.FindAnomalies(r.Context(), limit, priceThreshold, volumeRatio)
	if err != nil {
		logger.Error("GET /api/anomalies failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to detect anomalies")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": anomalies, "count": len(anomalies)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshots, anomalies, err := s.store.Stats()
	if err != nil {
		logger.Error("GET /api/stats failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": snapshots, "anomalies": anomalies})
}

var timeNow = func() time.Time { return time.Now().UTC() }

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func floatQuery(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
