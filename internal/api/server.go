// Package api exposes the HTTP control surface: status, pair management,
// on-demand reanalysis, and the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/metrics"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/risk"
)

// Strategy is the runtime surface the server reads. Implemented by the
// strategy engine.
type Strategy interface {
	Mode() string
	LiveTrading() bool
	RiskState() risk.State
	Capital(ctx context.Context) (decimal.Decimal, error)
	Reanalyze(ctx context.Context) int
}

// Server serves the control API for a running trader.
type Server struct {
	addr    string
	manager *pairs.Manager
	strat   Strategy
	logger  *zap.Logger
	srv     *http.Server
	started time.Time
}

// NewServer wires the API against a pair manager and a strategy.
func NewServer(addr string, manager *pairs.Manager, strat Strategy, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		manager: manager,
		strat:   strat,
		logger:  logger.With(zap.String("component", "api")),
		started: time.Now(),
	}
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	v1.HandleFunc("/pairs", s.handleListPairs).Methods("GET")
	v1.HandleFunc("/pairs", s.handleAddPair).Methods("POST")
	v1.HandleFunc("/pairs/{id}", s.handleGetPair).Methods("GET")
	v1.HandleFunc("/pairs/{id}", s.handleRemovePair).Methods("DELETE")
	v1.HandleFunc("/reanalyze", s.handleReanalyze).Methods("POST")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("API server listening", zap.String("addr", s.addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// StatusResponse is the GET /api/v1/status payload.
type StatusResponse struct {
	Mode           string          `json:"mode"`
	LiveTrading    bool            `json:"live_trading"`
	UptimeSeconds  float64         `json:"uptime_seconds"`
	Capital        decimal.Decimal `json:"capital"`
	PairsByStatus  map[string]int  `json:"pairs_by_status"`
	MonitoredPairs int             `json:"monitored_pairs"`
	OpenPositions  int             `json:"open_positions"`
	OpenNotional   decimal.Decimal `json:"open_notional"`
	Risk           risk.State      `json:"risk"`
	CooldownActive bool            `json:"cooldown_active"`
	Timestamp      time.Time       `json:"timestamp"`
}

// AddPairRequest is the POST /api/v1/pairs body.
type AddPairRequest struct {
	SymbolA string `json:"symbol_a"`
	SymbolB string `json:"symbol_b"`
}

// ReanalyzeResponse reports how many pairs were revalidated.
type ReanalyzeResponse struct {
	Reanalyzed int `json:"reanalyzed"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	capital, err := s.strat.Capital(r.Context())
	if err != nil {
		s.logger.Warn("capital lookup failed", zap.Error(err))
		capital = decimal.Zero
	}

	counts := make(map[string]int)
	for _, p := range s.manager.AllPairs() {
		counts[string(p.Status)]++
	}

	state := s.strat.RiskState()
	resp := StatusResponse{
		Mode:           s.strat.Mode(),
		LiveTrading:    s.strat.LiveTrading(),
		UptimeSeconds:  now.Sub(s.started).Seconds(),
		Capital:        capital,
		PairsByStatus:  counts,
		MonitoredPairs: len(s.manager.ActivePairs()),
		OpenPositions:  s.manager.OpenPositionCount(),
		OpenNotional:   s.manager.OpenNotional(),
		Risk:           state,
		CooldownActive: state.InCooldown(now),
		Timestamp:      now,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPairs(w http.ResponseWriter, r *http.Request) {
	all := s.manager.AllPairs()
	statusFilter := r.URL.Query().Get("status")

	out := make([]*pairs.Pair, 0, len(all))
	for _, p := range all {
		if statusFilter != "" && string(p.Status) != statusFilter {
			continue
		}
		out = append(out, p)
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.manager.Pair(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "pair not found", id)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddPair(w http.ResponseWriter, r *http.Request) {
	var req AddPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	p, err := s.manager.AddPair(req.SymbolA, req.SymbolB, nil)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pair", err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRemovePair(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.RemovePair(id); err != nil {
		switch {
		case errors.Is(err, pairs.ErrPairNotFound):
			s.respondError(w, http.StatusNotFound, "pair not found", id)
		case errors.Is(err, pairs.ErrPositionOpen):
			s.respondError(w, http.StatusConflict, "pair has an open position", id)
		default:
			s.respondError(w, http.StatusInternalServerError, "remove failed", err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	n := s.strat.Reanalyze(r.Context())
	s.respondJSON(w, http.StatusOK, ReanalyzeResponse{Reanalyzed: n})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg, details string) {
	s.respondJSON(w, code, errorResponse{Error: msg, Details: details})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
