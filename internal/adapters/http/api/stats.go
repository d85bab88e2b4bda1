package api

import "net/http"

// handleGetStats handles GET /stats.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.get_stats", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
