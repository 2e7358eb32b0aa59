package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/cryptopilot/trade-core/internal/coordinator"
	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/monitoring"
	"github.com/cryptopilot/trade-core/internal/risk"
)

// Server serves the trade coordination HTTP API. Callers send
// structured intents only; anything conversational happens upstream.
type Server struct {
	coord    *coordinator.Coordinator
	recorder history.Recorder
	health   *monitoring.HealthChecker
}

// NewServer creates an API server around the coordinator
func NewServer(coord *coordinator.Coordinator, recorder history.Recorder, health *monitoring.HealthChecker) *Server {
	return &Server{coord: coord, recorder: recorder, health: health}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/trade/prepare", s.handlePrepare)
	mux.HandleFunc("POST /api/trade/confirm", s.handleConfirm)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("POST /api/positions/{id}/close", s.handleClose)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	if s.health != nil {
		mux.Handle("GET /healthz", s.health)
	}
	mux.Handle("GET /metrics", monitoring.NewMetricsHandler())
}

// Handler returns the fully-routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type prepareRequest struct {
	UserID     string  `json:"user_id"`
	Action     string  `json:"action"`
	Market     string  `json:"market"`
	Amount     float64 `json:"amount"`
	Leverage   float64 `json:"leverage"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

type confirmRequest struct {
	ConfirmationID string `json:"confirmation_id"`
	UserID         string `json:"user_id"`
}

type closeRequest struct {
	UserID     string  `json:"user_id"`
	Percentage float64 `json:"percentage,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Rule  string `json:"rule,omitempty"`
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.coord.Prepare(r.Context(), risk.TradeIntent{
		UserID:     req.UserID,
		Action:     risk.TradeAction(req.Action),
		Market:     req.Market,
		Amount:     req.Amount,
		Leverage:   req.Leverage,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConfirmationID == "" || req.UserID == "" {
		http.Error(w, "confirmation_id and user_id are required", http.StatusBadRequest)
		return
	}

	result, err := s.coord.Confirm(r.Context(), req.ConfirmationID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	positions, err := s.coord.Positions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if positions == nil {
		positions = []risk.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	positionID := r.PathValue("id")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Percentage == 0 {
		req.Percentage = 100
	}

	// Resolve the position so the close routes to the right venue and
	// only the owner can close it.
	positions, err := s.coord.Positions(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	var target *risk.Position
	for i := range positions {
		if positions[i].ID == positionID {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}

	outcome, err := s.coord.ClosePosition(r.Context(), *target, req.Percentage,
		history.SourceUser, "manual close")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	records, err := s.recorder.ListRecent(r.Context(), userID, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

// writeError maps the trade error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	kind := traderr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case traderr.KindValidation:
		status = http.StatusUnprocessableEntity
	case traderr.KindExpired, traderr.KindAlreadyConsumed, traderr.KindPositionClosing:
		status = http.StatusConflict
	case traderr.KindNoVenueAvailable:
		status = http.StatusServiceUnavailable
	case traderr.KindVenue, traderr.KindTimeout:
		status = http.StatusBadGateway
	case traderr.KindCredentials:
		status = http.StatusUnauthorized
	}

	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Kind:  string(kind),
		Rule:  traderr.ViolatedRule(err),
	})
}
