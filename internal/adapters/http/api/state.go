package api

import (
	"net/http"
)

type stateResponse struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// StateHandler serves the replica's loading flag and error slot.
type StateHandler struct {
	deps Dependencies
}

// NewStateHandler creates a new state handler.
func NewStateHandler(deps Dependencies) *StateHandler {
	return &StateHandler{deps: deps}
}

func (h *StateHandler) state() stateResponse {
	resp := stateResponse{Loading: h.deps.Loading()}
	if err := h.deps.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// HandleState handles GET /v1/state.
func (h *StateHandler) HandleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

// HandleReload handles POST /v1/reload.
func (h *StateHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Reload(r.Context()); err != nil {
		writeFailure(w, Wrap("api.reload", err))
		return
	}
	writeJSON(w, http.StatusOK, h.state())
}
