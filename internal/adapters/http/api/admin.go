// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// AdminDependencies defines the interface for administrative operations.
type AdminDependencies interface {
	Reset(ctx context.Context, scheme model.Scheme, token string) error
}

// AdminHandler handles administrative requests.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleReset handles POST /admin/reset?scheme=name|device requests.
// Requires the shared token.
func (h *AdminHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	scheme := model.Scheme(r.URL.Query().Get("scheme"))
	if !scheme.Valid() {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Errorf("%w: scheme must be %q or %q", ErrBadRequest, model.SchemeName, model.SchemeDevice))
		return
	}
	token := clientToken(r, r.URL.Query().Get("token"))
	if err := h.deps.Reset(r.Context(), scheme, token); err != nil {
		status, code := classify(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "scheme": string(scheme)})
}
