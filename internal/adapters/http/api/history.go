package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
)

// handleGetHistory handles GET /history?player_id=&format=json|csv.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, "api.get_history", r.URL.Query().Get("player_id"))
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, op, playerID string) {
	switch r.URL.Query().Get("format") {
	case "", "json":
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
		if err := s.deps.ExportHistory(r.Context(), playerID, w); err != nil {
			// Headers may already be out; the status code is best effort.
			writeFailure(w, Wrap(op, err))
		}
		return
	default:
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	points, err := s.deps.History(r.Context(), playerID)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if points == nil {
		points = []model.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, historyResponse{PlayerID: playerID, Points: points})
}

// handleGetSnapshot handles GET /snapshot?at=RFC3339[&round=N]. Without a
// round every round at that instant is included.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	q := r.URL.Query()

	at, err := time.Parse(time.RFC3339Nano, q.Get("at"))
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	stamp := model.Stamp{Time: at, Round: math.MaxInt}
	if v := q.Get("round"); v != "" {
		round, err := strconv.Atoi(v)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		stamp.Round = round
	}

	snap, err := s.deps.Snapshot(r.Context(), stamp)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
