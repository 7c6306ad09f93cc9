// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pokearena/scoresync/internal/adapters/repository"
	"github.com/pokearena/scoresync/internal/app"
	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/ranking"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/internal/domain/signature"
)

// headerToken carries the shared token for name-scheme and admin calls.
// A token form/JSON field is accepted as a fallback.
const headerToken = "X-Board-Token"

// Error codes returned in the typed error body.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeBadSignature = "bad_signature"
	codeValidation   = "validation"
	codeStale        = "stale"
	codeDuplicate    = "duplicate"
	codeBackpressure = "backpressure"
	codeNotFound     = "not_found"
	codeInternal     = "internal"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Submit merges one submission synchronously and returns the aggregate.
	Submit(ctx context.Context, sub model.Submission, token string) (model.Aggregate, error)

	// SubmitAsync verifies a submission and queues it for background merge.
	SubmitAsync(ctx context.Context, sub model.Submission, token string) error

	// Read operations expose leaderboard data.
	Board(ctx context.Context, limit int) ([]ranking.Entry, error)
	Scores(ctx context.Context, scheme model.Scheme) ([]model.Aggregate, error)

	// Reset clears one scheme after checking the shared token.
	Reset(ctx context.Context, scheme model.Scheme, token string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	submissionsHandler *SubmissionsHandler
	boardHandler       *BoardHandler
	scoresHandler      *ScoresHandler
	adminHandler       *AdminHandler
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxBoardLimit int) *Server {
	return &Server{
		submissionsHandler: NewSubmissionsHandler(deps),
		boardHandler:       NewBoardHandler(deps, maxBoardLimit),
		scoresHandler:      NewScoresHandler(deps),
		adminHandler:       NewAdminHandler(deps),
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/submissions", MetricsMiddleware(s.submissionsHandler.HandlePostSubmission, "submissions"))
	mux.HandleFunc("/submissions/bulk", MetricsMiddleware(s.submissionsHandler.HandlePostBulk, "submissions_bulk"))
	mux.HandleFunc("/board", MetricsMiddleware(s.boardHandler.HandleGetBoard, "board"))
	mux.HandleFunc("/scores", MetricsMiddleware(s.scoresHandler.HandleGetScores, "scores"))
	mux.HandleFunc("/admin/reset", MetricsMiddleware(s.adminHandler.HandleReset, "admin_reset"))
}

// submitResponse acknowledges a synchronous submission. Duplicates are
// acknowledged with applied=false and the unchanged aggregate.
type submitResponse struct {
	Applied   bool             `json:"applied"`
	Duplicate bool             `json:"duplicate,omitempty"`
	Aggregate *model.Aggregate `json:"aggregate,omitempty"`
}

// bulkItemResult reports the outcome of one bulk item by input position.
type bulkItemResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
}

type bulkResponse struct {
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
	Results  []bulkItemResult `json:"results"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps pipeline errors to an HTTP status and error code.
// Duplicates never reach here; handlers acknowledge them with 200.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, signature.ErrBadSignature):
		return http.StatusUnauthorized, codeBadSignature
	case errors.Is(err, signature.ErrBadToken),
		errors.Is(err, signature.ErrUnknownDevice),
		errors.Is(err, signature.ErrBadSecret):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, replay.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, replay.ErrStale):
		return http.StatusConflict, codeStale
	case errors.Is(err, app.ErrBackpressure):
		return http.StatusTooManyRequests, codeBackpressure
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
