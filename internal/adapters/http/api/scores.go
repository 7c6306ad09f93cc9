// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// ScoresDependencies defines the interface for raw per-scheme reads.
type ScoresDependencies interface {
	Scores(ctx context.Context, scheme model.Scheme) ([]model.Aggregate, error)
}

// ScoresHandler handles raw aggregate listing requests.
type ScoresHandler struct {
	deps ScoresDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoresDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

type scoresResponse struct {
	Scheme string            `json:"scheme"`
	Rows   []model.Aggregate `json:"rows"`
	Count  int               `json:"count"`
}

// HandleGetScores handles GET /scores?scheme=name|device requests. Unlike
// the board, this view keeps identities separate and unmerged.
func (h *ScoresHandler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	scheme := model.Scheme(r.URL.Query().Get("scheme"))
	if !scheme.Valid() {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Errorf("%w: scheme must be %q or %q", ErrBadRequest, model.SchemeName, model.SchemeDevice))
		return
	}
	rows, err := h.deps.Scores(r.Context(), scheme)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, code, err)
		return
	}
	if rows == nil {
		rows = []model.Aggregate{}
	}
	writeJSON(w, http.StatusOK, scoresResponse{Scheme: string(scheme), Rows: rows, Count: len(rows)})
}
