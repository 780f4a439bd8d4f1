package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
)

// InsightsService defines the statistics operations used by the handler.
type InsightsService interface {
	Stats(ctx context.Context, userID string) (*entities.JournalStats, error)
}

// InsightsHandler serves a user's journaling statistics.
type InsightsHandler struct {
	service InsightsService
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(service InsightsService) *InsightsHandler {
	return &InsightsHandler{service: service}
}

// GetInsights handles GET /api/insights
func (h *InsightsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		respondWithAppError(w, r, err, "failed to load insights")
		return
	}
	if stats.RecurringPatterns == nil {
		stats.RecurringPatterns = []entities.PatternCount{}
	}

	respondWithJSON(w, http.StatusOK, stats)
}
