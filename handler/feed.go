package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/ranker"
)

// FeedHandler serves the ranked, paginated product feed.
type FeedHandler struct {
	ranker *ranker.Ranker
	logger zerolog.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(r *ranker.Ranker, logger zerolog.Logger) *FeedHandler {
	return &FeedHandler{ranker: r, logger: logger.With().Str("handler", "feed").Logger()}
}

type feedItemResponse struct {
	Score   float64             `json:"score"`
	Product feedProductResponse `json:"product"`
}

type feedProductResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	MerchantID string  `json:"merchant_id"`
	CategoryID string  `json:"category_id"`
	Popularity float64 `json:"popularity"`
}

type feedResponse struct {
	Items  []feedItemResponse `json:"items"`
	Cursor string             `json:"cursor"`
}

// Get handles GET /feed.
func (h *FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "feed only accepts GET")
		return
	}

	q := r.URL.Query()
	limit := ranker.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	req := ranker.Request{
		UserID:            q.Get("userId"),
		SessionID:         q.Get("sessionId"),
		SearchText:        q.Get("searchText"),
		ProductCategoryID: q.Get("productCategoryId"),
		Cursor:            q.Get("cursor"),
		Limit:             limit,
		ExperimentID:      q.Get("experimentId"),
	}

	result := h.ranker.Rank(r.Context(), req)

	items := make([]feedItemResponse, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, feedItemResponse{
			Score: it.Score,
			Product: feedProductResponse{
				ID:         it.Product.ID,
				Title:      it.Product.Title,
				MerchantID: it.Product.MerchantID,
				CategoryID: it.Product.CategoryID,
				Popularity: it.Product.Popularity,
			},
		})
	}

	writeJSON(w, http.StatusOK, feedResponse{Items: items, Cursor: result.Cursor})
}
