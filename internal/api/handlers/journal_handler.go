package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zatekoja/dearteddy/backend/internal/application/services"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
	"github.com/zatekoja/dearteddy/backend/pkg/utils"
)

// JournalService defines the conversation operations used by the handler.
type JournalService interface {
	SubmitEntry(ctx context.Context, in services.SubmitEntryInput) (*entities.JournalEntry, error)
	SubmitFirstReflection(ctx context.Context, userID, entryID, reflection string) (*entities.JournalEntry, error)
	SubmitSecondReflection(ctx context.Context, userID, entryID, reflection string) (*entities.JournalEntry, error)
	GetEntry(ctx context.Context, userID, entryID string) (*entities.JournalEntry, error)
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]*entities.JournalEntry, error)
	Recommendations(ctx context.Context, userID, entryID string) ([]*entities.CBTRecommendation, error)
	UpdateEntry(ctx context.Context, in services.UpdateEntryInput) (*entities.JournalEntry, error)
	DeleteEntry(ctx context.Context, userID, entryID string) error
}

// JournalHandler handles journal entry and reflection requests.
type JournalHandler struct {
	service JournalService
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(service JournalService) *JournalHandler {
	return &JournalHandler{service: service}
}

type entryRequest struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	AnxietyLevel int    `json:"anxiety_level"`
}

type reflectionRequest struct {
	Reflection string `json:"reflection"`
}

// entryResponse adds the derived conversation state to an entry.
type entryResponse struct {
	*entities.JournalEntry
	State entities.ConversationState `json:"state"`
}

func newEntryResponse(entry *entities.JournalEntry) entryResponse {
	return entryResponse{JournalEntry: entry, State: entry.State()}
}

// CreateEntry handles POST /api/journal
func (h *JournalHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entry, err := h.service.SubmitEntry(r.Context(), services.SubmitEntryInput{
		UserID:       userID,
		Title:        req.Title,
		Content:      req.Content,
		AnxietyLevel: req.AnxietyLevel,
	})
	if err != nil {
		respondWithAppError(w, r, err, "failed to create journal entry")
		return
	}

	respondWithJSON(w, http.StatusCreated, newEntryResponse(entry))
}

// ListEntries handles GET /api/journal
func (h *JournalHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := optionalInt(query.Get("offset"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	entries, err := h.service.ListEntries(r.Context(), userID, limit, offset)
	if err != nil {
		respondWithAppError(w, r, err, "failed to list journal entries")
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, newEntryResponse(entry))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entries": items,
		"count":   len(items),
	})
}

// GetEntry handles GET /api/journal/{id}. With format=html the AI-written
// fields are rendered for display.
func (h *JournalHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	entry, err := h.service.GetEntry(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err, "failed to get journal entry")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		entry = renderForDisplay(entry)
	}

	respondWithJSON(w, http.StatusOK, newEntryResponse(entry))
}

// GetRecommendations handles GET /api/journal/{id}/recommendations
func (h *JournalHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	recs, err := h.service.Recommendations(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err, "failed to get recommendations")
		return
	}
	if recs == nil {
		recs = []*entities.CBTRecommendation{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
	})
}

// SubmitReflection handles POST /api/journal/{id}/reflection
func (h *JournalHandler) SubmitReflection(w http.ResponseWriter, r *http.Request) {
	h.submitReflection(w, r, h.service.SubmitFirstReflection)
}

// SubmitSecondReflection handles POST /api/journal/{id}/second-reflection
func (h *JournalHandler) SubmitSecondReflection(w http.ResponseWriter, r *http.Request) {
	h.submitReflection(w, r, h.service.SubmitSecondReflection)
}

type reflectionFunc func(ctx context.Context, userID, entryID, reflection string) (*entities.JournalEntry, error)

func (h *JournalHandler) submitReflection(w http.ResponseWriter, r *http.Request, submit reflectionFunc) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req reflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entryID := r.PathValue("id")
	entry, err := submit(r.Context(), userID, entryID, req.Reflection)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInvalidState) {
			h.respondWithConflict(w, r, userID, entryID, "entry is not awaiting this reflection", err)
			return
		}
		respondWithAppError(w, r, err, "failed to submit reflection")
		return
	}

	respondWithJSON(w, http.StatusOK, newEntryResponse(entry))
}

// respondWithConflict reports a rejected transition together with the entry's
// current state so the client can resynchronise.
func (h *JournalHandler) respondWithConflict(w http.ResponseWriter, r *http.Request, userID, entryID, message string, cause error) {
	body := map[string]interface{}{
		"error": message,
	}

	current, err := h.service.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn().
			Err(err).
			Str("entry_id", entryID).
			Msg("failed to load entry after rejected transition")
	} else {
		body["entry"] = newEntryResponse(current)
	}

	observability.LoggerFromContext(r.Context()).Info().
		Str("entry_id", entryID).
		Str("reason", cause.Error()).
		Msg("transition rejected")
	respondWithJSON(w, http.StatusConflict, body)
}

// UpdateEntry handles PUT /api/journal/{id}. The edit restarts the conversation.
func (h *JournalHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entryID := r.PathValue("id")
	entry, err := h.service.UpdateEntry(r.Context(), services.UpdateEntryInput{
		UserID:       userID,
		EntryID:      entryID,
		Title:        req.Title,
		Content:      req.Content,
		AnxietyLevel: req.AnxietyLevel,
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInvalidState) {
			h.respondWithConflict(w, r, userID, entryID, "entry cannot be edited while it is being analyzed", err)
			return
		}
		respondWithAppError(w, r, err, "failed to update journal entry")
		return
	}

	respondWithJSON(w, http.StatusOK, newEntryResponse(entry))
}

// DeleteEntry handles DELETE /api/journal/{id}
func (h *JournalHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteEntry(r.Context(), userID, r.PathValue("id")); err != nil {
		respondWithAppError(w, r, err, "failed to delete journal entry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := userIDFromRequest(r)
	if userID == "" {
		respondWithError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return "", false
	}
	return userID, true
}

func optionalInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// renderForDisplay returns a copy of entry with the AI-written fields
// converted to display HTML. User-written text is left as submitted.
func renderForDisplay(entry *entities.JournalEntry) *entities.JournalEntry {
	rendered := *entry
	for _, field := range []**string{
		&rendered.InitialInsight,
		&rendered.ReflectionPrompt,
		&rendered.FollowupInsight,
		&rendered.ClosingMessage,
	} {
		if *field != nil {
			*field = entities.StringPtr(utils.NormalizeMarkdown(**field))
		}
	}
	return &rendered
}
