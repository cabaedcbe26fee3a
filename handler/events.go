package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/events"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
)

// EventsHandler accepts interaction events and pushes them onto the
// durable queue the events.Consumer drains.
type EventsHandler struct {
	cache  featurecache.Cache
	logger zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(cache featurecache.Cache, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{cache: cache, logger: logger.With().Str("handler", "events").Logger()}
}

// Post handles POST /events.
func (h *EventsHandler) Post(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "events only accepts POST")
		return
	}

	var ev events.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	typ := model.InteractionType(ev.Type)
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_type", "type must be one of VIEW, CLICK, CART, PURCHASE")
		return
	}
	if ev.SessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "sessionId is required")
		return
	}
	if ev.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing_product_id", "productId is required")
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}

	if err := h.cache.PushEvent(r.Context(), payload); err != nil {
		h.logger.Warn().Err(err).Str("product_id", ev.ProductID).Msg("event enqueue failed")
		writeError(w, http.StatusInternalServerError, "enqueue_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
