package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
)

const maxRoundBody = 1 << 20

type ackResponse struct {
	Status string `json:"status"`
	Round  string `json:"round"`
}

type appliedResponse struct {
	Status   string             `json:"status"`
	Stamp    model.Stamp        `json:"stamp"`
	Deltas   map[string]float64 `json:"deltas"`
	Ratings  map[string]float64 `json:"ratings"`
	Created  []string           `json:"created,omitempty"`
	Pairings int                `json:"pairings"`
}

func newAppliedResponse(res rating.Result) appliedResponse {
	return appliedResponse{
		Status:   "applied",
		Stamp:    res.Stamp,
		Deltas:   res.Deltas,
		Ratings:  res.Ratings,
		Created:  res.Created,
		Pairings: res.Pairings,
	}
}

// handlePostRound handles POST /rounds. The round is queued and 202 returned,
// or with ?sync=true applied before responding.
func (s *Server) handlePostRound(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_round"

	var round model.Round
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRoundBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&round); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	if sync {
		res, err := s.deps.Apply(r.Context(), round)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, newAppliedResponse(res))
		return
	}

	if err := s.deps.Submit(r.Context(), round); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Round: round.String()})
}
