package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
)

// MoodService defines the mood check-in operations used by the handler.
type MoodService interface {
	LogMood(ctx context.Context, userID string, score int, notes string) (*entities.MoodLog, error)
	RecentMoods(ctx context.Context, userID string, days int) ([]*entities.MoodLog, error)
}

// MoodHandler handles mood check-ins.
type MoodHandler struct {
	service MoodService
}

// NewMoodHandler creates a new mood handler
func NewMoodHandler(service MoodService) *MoodHandler {
	return &MoodHandler{service: service}
}

type moodRequest struct {
	MoodScore int    `json:"mood_score"`
	Notes     string `json:"notes"`
}

// LogMood handles POST /api/mood
func (h *MoodHandler) LogMood(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req moodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	mood, err := h.service.LogMood(r.Context(), userID, req.MoodScore, req.Notes)
	if err != nil {
		respondWithAppError(w, r, err, "failed to log mood")
		return
	}

	respondWithJSON(w, http.StatusCreated, mood)
}

// ListMoods handles GET /api/mood?days=N
func (h *MoodHandler) ListMoods(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	days, err := optionalInt(r.URL.Query().Get("days"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid days")
		return
	}

	moods, err := h.service.RecentMoods(r.Context(), userID, days)
	if err != nil {
		respondWithAppError(w, r, err, "failed to list moods")
		return
	}
	if moods == nil {
		moods = []*entities.MoodLog{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"moods": moods,
		"count": len(moods),
	})
}
