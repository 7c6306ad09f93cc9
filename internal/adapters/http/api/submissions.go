// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/pkg/metrics"
)

// SubmissionDependencies defines the interface for submission ingestion.
type SubmissionDependencies interface {
	Submit(ctx context.Context, sub model.Submission, token string) (model.Aggregate, error)
	SubmitAsync(ctx context.Context, sub model.Submission, token string) error
}

// SubmissionsHandler handles single and bulk submission requests.
type SubmissionsHandler struct {
	deps SubmissionDependencies
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps}
}

// HandlePostSubmission handles POST /submissions requests. The submission
// is merged synchronously so the response can echo the resulting
// aggregate; a replayed marker is acknowledged as a no-op, not an error.
func (h *SubmissionsHandler) HandlePostSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	sub, token, err := decodeSubmission(r)
	if err != nil {
		status, code := classify(err)
		metrics.RecordSubmissionRejected(code)
		writeError(w, status, code, err)
		return
	}

	agg, err := h.deps.Submit(r.Context(), sub, token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, submitResponse{Applied: true, Aggregate: &agg})
	case errors.Is(err, replay.ErrDuplicate):
		writeJSON(w, http.StatusOK, submitResponse{Applied: false, Duplicate: true, Aggregate: &agg})
	default:
		status, code := classify(err)
		metrics.RecordSubmissionRejected(code)
		writeError(w, status, code, err)
	}
}

// HandlePostBulk handles POST /submissions/bulk requests. Every item is
// verified and validated up front; accepted items are queued for
// background merge and acknowledged with 202.
func (h *SubmissionsHandler) HandlePostBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	subs, token, err := decodeBulk(r)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, code, err)
		return
	}

	resp := bulkResponse{Results: make([]bulkItemResult, len(subs))}
	for i, sub := range subs {
		if err := h.deps.SubmitAsync(r.Context(), sub, token); err != nil {
			_, code := classify(err)
			metrics.RecordSubmissionRejected(code)
			resp.Results[i] = bulkItemResult{Index: i, Status: "rejected", Code: code}
			resp.Rejected++
			continue
		}
		resp.Results[i] = bulkItemResult{Index: i, Status: "queued"}
		resp.Accepted++
	}
	writeJSON(w, http.StatusAccepted, resp)
}
