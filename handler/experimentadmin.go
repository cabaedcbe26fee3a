package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/routing"
)

// ExperimentAdminHandler provides CRUD and assignment endpoints over
// ranking-weight A/B experiments.
type ExperimentAdminHandler struct {
	engine *routing.Engine
	logger zerolog.Logger
}

// NewExperimentAdminHandler creates a new experiment admin handler.
func NewExperimentAdminHandler(engine *routing.Engine, logger zerolog.Logger) *ExperimentAdminHandler {
	return &ExperimentAdminHandler{engine: engine, logger: logger.With().Str("handler", "experimentadmin").Logger()}
}

// ListExperiments handles GET /admin/experiments.
func (h *ExperimentAdminHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.List())
}

// CreateExperiment handles POST /admin/experiments.
func (h *ExperimentAdminHandler) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var exp routing.Experiment
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if err := h.engine.Create(&exp); err != nil {
		writeError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}
	h.logger.Info().Str("id", exp.ID).Str("name", exp.Name).Msg("ranking experiment created")
	writeJSON(w, http.StatusCreated, exp)
}

// GetExperiment handles GET /admin/experiments/{id}.
func (h *ExperimentAdminHandler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, metrics, err := h.engine.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"experiment": exp, "metrics": metrics})
}

// StartExperiment handles POST /admin/experiments/{id}/start.
func (h *ExperimentAdminHandler) StartExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Start(id); err != nil {
		writeError(w, http.StatusBadRequest, "start_failed", err.Error())
		return
	}
	h.logger.Info().Str("id", id).Msg("ranking experiment started")
	writeJSON(w, http.StatusOK, map[string]string{"status": "running", "id": id})
}

// ConcludeExperiment handles POST /admin/experiments/{id}/conclude.
func (h *ExperimentAdminHandler) ConcludeExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	winnerIdx, err := strconv.Atoi(r.URL.Query().Get("winner_idx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_winner_idx", err.Error())
		return
	}
	if err := h.engine.Conclude(id, winnerIdx); err != nil {
		writeError(w, http.StatusBadRequest, "conclude_failed", err.Error())
		return
	}
	h.logger.Info().Str("id", id).Int("winner_idx", winnerIdx).Msg("ranking experiment concluded")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "concluded", "id": id, "winner_idx": winnerIdx})
}

// DeleteExperiment handles DELETE /admin/experiments/{id}.
func (h *ExperimentAdminHandler) DeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignArm handles POST /admin/experiments/{id}/assign — primarily
// for operator inspection; the ranker calls engine.Assign directly.
func (h *ExperimentAdminHandler) AssignArm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		RequestKey string `json:"request_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	weights, armIdx := h.engine.Assign(id, body.RequestKey)
	writeJSON(w, http.StatusOK, map[string]interface{}{"arm_idx": armIdx, "weights": weights})
}

// RecordOutcome handles POST /admin/experiments/{id}/outcome.
func (h *ExperimentAdminHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		ArmIdx    int  `json:"arm_idx"`
		Converted bool `json:"converted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	h.engine.RecordOutcome(id, body.ArmIdx, body.Converted)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// CompareArms handles GET /admin/experiments/{id}/compare.
func (h *ExperimentAdminHandler) CompareArms(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.engine.CompareConversionRates(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "compare_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
