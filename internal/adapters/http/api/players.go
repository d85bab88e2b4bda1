package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/lighthouse/internal/domain/model"
)

type playerResponse struct {
	Entry
	Known bool `json:"known"`
}

type historyResponse struct {
	PlayerID string               `json:"player_id,omitempty"`
	Points   []model.HistoryPoint `json:"points"`
}

// handleGetPlayer handles GET /players/{id}. Unseen players report the
// default rating with known=false.
func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	id := chi.URLParam(r, "id")

	e, known, err := s.deps.Player(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, playerResponse{Entry: e, Known: known})
}

// handleGetPlayerHistory handles GET /players/{id}/history.
func (s *Server) handleGetPlayerHistory(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, "api.get_player_history", chi.URLParam(r, "id"))
}
