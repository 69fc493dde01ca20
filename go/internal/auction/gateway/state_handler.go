package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

// StateProvider returns the current coordinator view.
type StateProvider interface {
	State(ctx context.Context) (coordinator.View, error)
}

// StateResponse is the body of GET /api/auction/state.
type StateResponse struct {
	Version     uint64          `json:"version"`
	Role        string          `json:"role"`
	Subscribers int             `json:"subscribers"`
	Snapshot    engine.Snapshot `json:"snapshot"`
}

// StateHandler handles HTTP requests for the auction state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetState handles GET /api/auction/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := h.stateProvider.State(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get auction state")
		http.Error(w, "Failed to get auction state", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := StateResponse{
		Version:     view.Version,
		Role:        view.Role.String(),
		Subscribers: view.NumSubscribers,
		Snapshot:    view.Snapshot,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode auction state response")
	}
}

// RegisterStateRoutes registers state-related routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auction/state", h.HandleGetState)
}
