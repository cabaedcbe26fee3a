package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/diversity"
	"github.com/northstar-retail/feedcore/policy"
)

// PolicyAdminHandler provides CRUD over per-category diversity policy
// overrides.
type PolicyAdminHandler struct {
	store  *policy.Store
	logger zerolog.Logger
}

// NewPolicyAdminHandler creates a new policy admin handler.
func NewPolicyAdminHandler(store *policy.Store, logger zerolog.Logger) *PolicyAdminHandler {
	return &PolicyAdminHandler{store: store, logger: logger.With().Str("handler", "policyadmin").Logger()}
}

// ListPolicies handles GET /admin/policies.
func (h *PolicyAdminHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// CreatePolicy handles POST /admin/policies.
func (h *PolicyAdminHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var p policy.DiversityPolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.MaxConsecutive <= 0 {
		p.MaxConsecutive = diversity.Default().MaxConsecutive
	}
	if p.MaxMerchantRatio <= 0 {
		p.MaxMerchantRatio = diversity.Default().MaxMerchantRatio
	}
	if p.MaxCategoryRatio <= 0 {
		p.MaxCategoryRatio = diversity.Default().MaxCategoryRatio
	}

	if err := h.store.Create(p); err != nil {
		writeError(w, http.StatusConflict, "create_failed", err.Error())
		return
	}

	h.logger.Info().Str("id", p.ID).Str("category_id", p.CategoryID).Msg("diversity policy created")
	writeJSON(w, http.StatusCreated, p)
}

// GetPolicy handles GET /admin/policies/{id}.
func (h *PolicyAdminHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "policy not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePolicy handles PUT /admin/policies/{id}.
func (h *PolicyAdminHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		MaxConsecutive   int     `json:"max_consecutive"`
		MaxMerchantRatio float64 `json:"max_merchant_ratio"`
		MaxCategoryRatio float64 `json:"max_category_ratio"`
		Active           bool    `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	constraints := diversity.Policy{
		MaxConsecutive:   body.MaxConsecutive,
		MaxMerchantRatio: body.MaxMerchantRatio,
		MaxCategoryRatio: body.MaxCategoryRatio,
	}
	if err := h.store.Update(id, constraints, body.Active); err != nil {
		writeError(w, http.StatusNotFound, "update_failed", err.Error())
		return
	}

	h.logger.Info().Str("id", id).Bool("active", body.Active).Msg("diversity policy updated")
	p, _ := h.store.Get(id)
	writeJSON(w, http.StatusOK, p)
}

// DeletePolicy handles DELETE /admin/policies/{id}.
func (h *PolicyAdminHandler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	h.logger.Info().Str("id", id).Msg("diversity policy deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ResolveForCategory handles GET /admin/policies/resolve?category_id=....
// It returns the effective diversity policy the ranker would use right now.
func (h *PolicyAdminHandler) ResolveForCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("category_id")
	writeJSON(w, http.StatusOK, h.store.ForCategory(categoryID))
}
