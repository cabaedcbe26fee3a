package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/cacheadmin"
)

// CacheAdminHandler exposes feature-cache stats and targeted flush
// operations for operators.
type CacheAdminHandler struct {
	admin  *cacheadmin.Admin
	logger zerolog.Logger
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(admin *cacheadmin.Admin, logger zerolog.Logger) *CacheAdminHandler {
	return &CacheAdminHandler{admin: admin, logger: logger.With().Str("handler", "cacheadmin").Logger()}
}

// Stats handles GET /admin/cache/stats.
func (h *CacheAdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.Stats())
}

// FlushSession handles DELETE /admin/cache/session/{sessionId}.
func (h *CacheAdminHandler) FlushSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if err := h.admin.FlushSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "flush_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flushed": true, "session_id": sessionID})
}

// FlushUserTopK handles DELETE /admin/cache/user/{userId}/topk.
func (h *CacheAdminHandler) FlushUserTopK(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := h.admin.FlushUserTopK(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "flush_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flushed": true, "user_id": userID})
}

// FlushGlobalTopK handles DELETE /admin/cache/global/topk.
func (h *CacheAdminHandler) FlushGlobalTopK(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.FlushGlobalTopK(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "flush_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flushed": true})
}
