// Copyright (c) 2026 Castellan Authors. All rights reserved.

package loginlog

import (
	"net/http"

	"github.com/castellan-io/castellan/internal/platform/respond"
	"github.com/castellan-io/castellan/pkg/pagination"
)

// Handler exposes the login log over HTTP.
type Handler struct {
	store *PostgresStore
}

// NewHandler creates the login log HTTP handler.
func NewHandler(store *PostgresStore) *Handler {
	return &Handler{store: store}
}

// List handles GET /api/v1/logs/login.
func (h *Handler) List(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	records, total, err := h.store.List(request.Context(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, records, pagination.NewMeta(params.Page, params.Limit, total))
}
