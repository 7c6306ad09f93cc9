// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pokearena/scoresync/internal/domain/ranking"
)

// BoardDependencies defines the interface for leaderboard reads.
type BoardDependencies interface {
	Board(ctx context.Context, limit int) ([]ranking.Entry, error)
}

// BoardHandler handles merged leaderboard requests.
type BoardHandler struct {
	deps     BoardDependencies
	maxLimit int
}

// NewBoardHandler creates a new board handler.
func NewBoardHandler(deps BoardDependencies, maxLimit int) *BoardHandler {
	return &BoardHandler{deps: deps, maxLimit: maxLimit}
}

type boardResponse struct {
	Entries []ranking.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// HandleGetBoard handles GET /board?limit=N requests. The limit defaults
// to, and is capped by, the configured maximum.
func (h *BoardHandler) HandleGetBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit := h.maxLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeBadRequest,
				fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if n < limit || limit == 0 {
			limit = n
		}
	}
	entries, err := h.deps.Board(r.Context(), limit)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, boardResponse{Entries: entries, Count: len(entries)})
}
