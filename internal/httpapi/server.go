// Package httpapi exposes the bot registry, the Market Mover endpoints, and
// the market-data/intelligence surface over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketmover/internal/bots"
	"marketmover/internal/config"
	"marketmover/internal/gamma"
	"marketmover/internal/insight"
	"marketmover/internal/logger"
	"marketmover/internal/storage"
)

type contextKey string

const userIDKey contextKey = "userID"

// Server wires the application services into an http.Server.
type Server struct {
	bots    *bots.Service
	markets *gamma.Client
	insight *insight.Analyzer
	store   *storage.Storage
	httpSrv *http.Server
}

// New builds the router and the underlying http.Server.
func New(cfg config.ServerConfig, botSvc *bots.Service, markets *gamma.Client, analyzer *insight.Analyzer, store *storage.Storage) *Server {
	s := &Server{
		bots:    botSvc,
		markets: markets,
		insight: analyzer,
		store:   store,
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router assembles all routes; exported so tests can drive the handler tree
// through httptest without binding a socket.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware, noStoreMiddleware)

	r.HandleFunc("/", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Bot endpoints are multi-tenant and require the user-id header.
	botsRouter := api.PathPrefix("/bots").Subrouter()
	botsRouter.Use(userIDMiddleware)
	botsRouter.HandleFunc("", s.handleListBots).Methods("GET")
	botsRouter.HandleFunc("/deactivate", s.handleDeactivateBot).Methods("POST")
	botsRouter.HandleFunc("/market-mover/activate", s.handleActivateMarketMover).Methods("POST")
	botsRouter.HandleFunc("/market-mover/deactivate", s.handleDeactivateMarketMover).Methods("POST")
	botsRouter.HandleFunc("/market-mover/status", s.handleMarketMoverStatus).Methods("GET")

	api.HandleFunc("/markets/active", s.handleActiveMarkets).Methods("GET")
	api.HandleFunc("/markets/trending", s.handleTrendingMarkets).Methods("GET")
	api.HandleFunc("/markets/search", s.handleSearchMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}", s.handleMarketDetails).Methods("GET")
	api.HandleFunc("/markets/{id}/analysis", s.handleMarketAnalysis).Methods("GET")
	api.HandleFunc("/anomalies", s.handleAnomalies).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logger.Info("HTTP server listening on %s", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, user-id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func noStoreMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// userIDMiddleware requires the user-id header and stashes it in the request
// context.
func userIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("user-id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "Missing user-id header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Polymarket Bot Backend (Multi-tenant) is running!",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
