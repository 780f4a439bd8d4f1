package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/dearteddy/backend/internal/application/prompts"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

// Text stored when a stage cannot get a usable reply from the model.
const (
	FallbackInsight          = "Thank you for sharing your journal entry. Your entry has been saved successfully. Although I can't offer specific insights right now, the process of writing down your thoughts is an important step in your wellness journey."
	FallbackReflectionPrompt = "Take a moment. What feels most important to you about what you wrote today?"
	FallbackFollowup         = "Thank you for reflecting on this. Your reflection has been saved. Noticing your thoughts and feelings is a meaningful step, even when I can't respond in detail right now."
	FallbackClosing          = "Thank you for taking the time to reflect today. Your conversation has been saved. Be gentle with yourself, and come back whenever you want to write again."
)

const (
	stageInitial  = "initial"
	stageFollowup = "followup"
	stageClosing  = "closing"

	// Recurring patterns are offered to the model once a user has this many earlier entries.
	recurringPatternMinPriorEntries = 2
	recurringPatternLimit           = 3

	persistTimeout = 5 * time.Second

	conversationTemperature = 0.7
	conversationMaxTokens   = 800

	defaultListLimit = 20
	maxListLimit     = 100
)

// ConversationConfig holds the limits the conversation service enforces.
type ConversationConfig struct {
	InFlightTTLSeconds  int
	MaxEntryLength      int
	MaxReflectionLength int
}

// SubmitEntryInput is a new journal entry as written by the user.
type SubmitEntryInput struct {
	UserID       string
	Title        string
	Content      string
	AnxietyLevel int
}

// UpdateEntryInput is an owner's edit of an existing entry.
type UpdateEntryInput struct {
	UserID       string
	EntryID      string
	Title        string
	Content      string
	AnxietyLevel int
}

// ConversationService drives a journal entry through its three-stage reflection conversation.
type ConversationService struct {
	entries  repositories.JournalEntryRepository
	recs     repositories.CBTRecommendationRepository
	llm      providers.CompletionProvider
	insights *InsightsService
	guard    providers.CacheProvider
	cfg      ConversationConfig
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewConversationService creates a new conversation service. guard may be nil,
// in which case only the conditional database update prevents double processing.
func NewConversationService(
	entries repositories.JournalEntryRepository,
	recs repositories.CBTRecommendationRepository,
	llm providers.CompletionProvider,
	insights *InsightsService,
	guard providers.CacheProvider,
	cfg ConversationConfig,
	metrics *observability.Metrics,
) *ConversationService {
	if cfg.InFlightTTLSeconds <= 0 {
		cfg.InFlightTTLSeconds = 60
	}
	if cfg.MaxEntryLength <= 0 {
		cfg.MaxEntryLength = 10000
	}
	if cfg.MaxReflectionLength <= 0 {
		cfg.MaxReflectionLength = 5000
	}
	return &ConversationService{
		entries:  entries,
		recs:     recs,
		llm:      llm,
		insights: insights,
		guard:    guard,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SubmitEntry saves a new entry and runs the initial analysis. The entry is
// persisted before the model is called, so it survives any analysis failure.
func (s *ConversationService) SubmitEntry(ctx context.Context, in SubmitEntryInput) (*entities.JournalEntry, error) {
	if err := s.validateEntry(in); err != nil {
		return nil, err
	}

	priorEntries, err := s.entries.CountByUser(ctx, in.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", in.UserID).Msg("could not count earlier entries; skipping recurring patterns")
		priorEntries = 0
	}

	now := s.now().UTC()
	entry := &entities.JournalEntry{
		UserID:       in.UserID,
		Title:        strings.TrimSpace(in.Title),
		Content:      strings.TrimSpace(in.Content),
		AnxietyLevel: in.AnxietyLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	release := s.acquire(ctx, entry.ID)
	defer release()

	update, patterns := s.analyzeInitial(ctx, entry, priorEntries)

	writeCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.entries.ApplyTransition(writeCtx, entry.ID, update); err != nil {
		return nil, err
	}
	applyUpdate(entry, update, s.now().UTC())

	s.saveRecommendations(writeCtx, entry.ID, patterns)

	log.Info().Str("entry_id", entry.ID).Str("state", string(entry.State())).Bool("fallback", update.UsedFallback).Msg("journal entry analyzed")
	return entry, nil
}

// SubmitFirstReflection records the user's answer to the reflection prompt and
// asks the model for a follow-up.
func (s *ConversationService) SubmitFirstReflection(ctx context.Context, userID, entryID, reflection string) (*entities.JournalEntry, error) {
	reflection, err := s.validateReflection(reflection)
	if err != nil {
		return nil, err
	}

	entry, err := s.GetEntry(repositories.WithConsistentRead(ctx), userID, entryID)
	if err != nil {
		return nil, err
	}
	if err := expectState(entry, entities.StateAwaitingFirstReflection); err != nil {
		return nil, err
	}

	release, err := s.claim(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	claim := repositories.ConversationUpdate{
		From:           entities.StateAwaitingFirstReflection,
		UserReflection: &reflection,
	}
	if err := s.entries.ApplyTransition(ctx, entry.ID, claim); err != nil {
		return nil, err
	}
	applyUpdate(entry, claim, s.now().UTC())

	update := s.analyzeFollowup(ctx, entry)

	writeCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.entries.ApplyTransition(writeCtx, entry.ID, update); err != nil {
		return nil, err
	}
	applyUpdate(entry, update, s.now().UTC())

	return entry, nil
}

// SubmitSecondReflection records the user's reply to the follow-up and closes
// the conversation.
func (s *ConversationService) SubmitSecondReflection(ctx context.Context, userID, entryID, reflection string) (*entities.JournalEntry, error) {
	reflection, err := s.validateReflection(reflection)
	if err != nil {
		return nil, err
	}

	entry, err := s.GetEntry(repositories.WithConsistentRead(ctx), userID, entryID)
	if err != nil {
		return nil, err
	}
	if err := expectState(entry, entities.StateAwaitingSecondReflection); err != nil {
		return nil, err
	}

	release, err := s.claim(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	claim := repositories.ConversationUpdate{
		From:             entities.StateAwaitingSecondReflection,
		SecondReflection: &reflection,
	}
	if err := s.entries.ApplyTransition(ctx, entry.ID, claim); err != nil {
		return nil, err
	}
	applyUpdate(entry, claim, s.now().UTC())

	update := s.analyzeClosing(ctx, entry)

	writeCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.entries.ApplyTransition(writeCtx, entry.ID, update); err != nil {
		return nil, err
	}
	applyUpdate(entry, update, s.now().UTC())

	return entry, nil
}

// UpdateEntry saves an edit and starts the conversation over. The earlier
// replies and recommendations are dropped and the new text gets a fresh
// initial analysis. Entries waiting on the model cannot be edited.
func (s *ConversationService) UpdateEntry(ctx context.Context, in UpdateEntryInput) (*entities.JournalEntry, error) {
	if err := s.validateEntry(SubmitEntryInput{UserID: in.UserID, Content: in.Content, AnxietyLevel: in.AnxietyLevel}); err != nil {
		return nil, err
	}

	entry, err := s.GetEntry(repositories.WithConsistentRead(ctx), in.UserID, in.EntryID)
	if err != nil {
		return nil, err
	}
	from := entry.State()
	if !from.Editable() {
		return nil, apperrors.NewInvalidStateError(fmt.Sprintf("journal entry %s is being analyzed and cannot be edited", entry.ID))
	}

	release, err := s.claim(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	edit := repositories.EntryEdit{
		Title:        strings.TrimSpace(in.Title),
		Content:      strings.TrimSpace(in.Content),
		AnxietyLevel: in.AnxietyLevel,
	}
	if err := s.entries.ResetConversation(ctx, entry.ID, from, edit); err != nil {
		return nil, err
	}
	resetEntry(entry, edit, s.now().UTC())

	// The count includes this entry, which is not an earlier one.
	prior, err := s.entries.CountByUser(ctx, entry.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", entry.UserID).Msg("could not count earlier entries; skipping recurring patterns")
		prior = 1
	}
	update, patterns := s.analyzeInitial(ctx, entry, prior-1)

	writeCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.entries.ApplyTransition(writeCtx, entry.ID, update); err != nil {
		return nil, err
	}
	applyUpdate(entry, update, s.now().UTC())
	s.saveRecommendations(writeCtx, entry.ID, patterns)

	log.Info().Str("entry_id", entry.ID).Str("edited_from", string(from)).Bool("fallback", update.UsedFallback).Msg("journal entry edited and re-analyzed")
	return entry, nil
}

// GetEntry loads an entry owned by userID. Entries of other users are reported as not found.
func (s *ConversationService) GetEntry(ctx context.Context, userID, entryID string) (*entities.JournalEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("journal entry with id %s not found", entryID))
	}
	return entry, nil
}

// ListEntries returns a page of the user's entries, newest first
func (s *ConversationService) ListEntries(ctx context.Context, userID string, limit, offset int) ([]*entities.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.entries.ListByUser(ctx, userID, repositories.JournalEntryFilter{Limit: limit, Offset: offset})
}

// Recommendations returns the thought patterns stored for an entry owned by userID
func (s *ConversationService) Recommendations(ctx context.Context, userID, entryID string) ([]*entities.CBTRecommendation, error) {
	if _, err := s.GetEntry(ctx, userID, entryID); err != nil {
		return nil, err
	}
	return s.recs.ListByEntry(ctx, entryID)
}

// DeleteEntry removes an entry owned by userID together with its recommendations
func (s *ConversationService) DeleteEntry(ctx context.Context, userID, entryID string) error {
	if _, err := s.GetEntry(ctx, userID, entryID); err != nil {
		return err
	}
	return s.entries.Delete(ctx, entryID)
}

// ResumeSummary counts the outcome of a ResumeStalled run.
type ResumeSummary struct {
	Resumed int
	Skipped int
	Failed  int
}

// ResumeStalled finishes the analysis of entries left in an analysis state by a
// crashed or timed-out request.
func (s *ConversationService) ResumeStalled(ctx context.Context, olderThan time.Duration, limit int) (*ResumeSummary, error) {
	stalled, err := s.entries.ListStalled(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled entries: %w", err)
	}

	summary := &ResumeSummary{}
	for _, entry := range stalled {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		err := s.resume(ctx, entry)
		switch {
		case err == nil:
			summary.Resumed++
		case apperrors.IsType(err, apperrors.ErrorTypeInvalidState), apperrors.IsType(err, apperrors.ErrorTypeNotFound):
			summary.Skipped++
		default:
			summary.Failed++
			log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to resume stalled entry")
		}
	}
	return summary, nil
}

func (s *ConversationService) resume(ctx context.Context, entry *entities.JournalEntry) error {
	release, err := s.claim(ctx, entry.ID)
	if err != nil {
		return err
	}
	defer release()

	var update repositories.ConversationUpdate
	var patterns []prompts.ThoughtPattern
	switch entry.State() {
	case entities.StateAwaitingAnalysis:
		// The count includes this entry, which is not an earlier one.
		prior, err := s.entries.CountByUser(ctx, entry.UserID)
		if err != nil {
			prior = 1
		}
		update, patterns = s.analyzeInitial(ctx, entry, prior-1)
	case entities.StateAwaitingFollowupAnalysis:
		update = s.analyzeFollowup(ctx, entry)
	case entities.StateAwaitingClosingAnalysis:
		update = s.analyzeClosing(ctx, entry)
	default:
		return apperrors.NewInvalidStateError(fmt.Sprintf("journal entry %s is waiting for the user, not for analysis", entry.ID))
	}

	writeCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.entries.ApplyTransition(writeCtx, entry.ID, update); err != nil {
		return err
	}
	s.saveRecommendations(writeCtx, entry.ID, patterns)
	log.Info().Str("entry_id", entry.ID).Str("from", string(update.From)).Msg("resumed stalled entry")
	return nil
}

func (s *ConversationService) analyzeInitial(ctx context.Context, entry *entities.JournalEntry, priorEntries int) (repositories.ConversationUpdate, []prompts.ThoughtPattern) {
	input := prompts.InitialInput{Content: entry.Content, AnxietyLevel: entry.AnxietyLevel}
	if priorEntries >= recurringPatternMinPriorEntries && s.insights != nil {
		patterns, err := s.insights.RecurringPatterns(ctx, entry.UserID, recurringPatternLimit)
		if err != nil {
			log.Warn().Err(err).Str("user_id", entry.UserID).Msg("could not load recurring patterns")
		}
		for _, p := range patterns {
			input.RecurringPatterns = append(input.RecurringPatterns, p.Pattern)
		}
	}

	raw, callErr := s.complete(ctx, prompts.BuildInitialPrompt(input))
	outcome := prompts.Resolve(raw, callErr, prompts.ParseInitial)

	update := repositories.ConversationUpdate{From: entities.StateAwaitingAnalysis}
	if !outcome.OK() {
		s.recordFallback(ctx, entry.ID, stageInitial, outcome.Kind, outcome.Err)
		update.InitialInsight = entities.StringPtr(FallbackInsight)
		update.ReflectionPrompt = entities.StringPtr(FallbackReflectionPrompt)
		update.UsedFallback = true
		return update, nil
	}

	observability.RecordTransition(ctx, s.metrics, stageInitial, "ai")
	update.InitialInsight = entities.StringPtr(outcome.Value.InsightText)
	update.ReflectionPrompt = entities.StringPtr(outcome.Value.ReflectionPrompt)
	return update, outcome.Value.ThoughtPatterns
}

func (s *ConversationService) analyzeFollowup(ctx context.Context, entry *entities.JournalEntry) repositories.ConversationUpdate {
	raw, callErr := s.complete(ctx, prompts.BuildFollowupPrompt(prompts.FollowupInput{
		Content:        entry.Content,
		AnxietyLevel:   entry.AnxietyLevel,
		InitialInsight: deref(entry.InitialInsight),
		Reflection:     deref(entry.UserReflection),
	}))
	outcome := prompts.Resolve(raw, callErr, prompts.ParseFollowup)

	update := repositories.ConversationUpdate{From: entities.StateAwaitingFollowupAnalysis}
	if !outcome.OK() {
		s.recordFallback(ctx, entry.ID, stageFollowup, outcome.Kind, outcome.Err)
		update.FollowupInsight = entities.StringPtr(FallbackFollowup)
		update.UsedFallback = true
		return update
	}

	observability.RecordTransition(ctx, s.metrics, stageFollowup, "ai")
	update.FollowupInsight = entities.StringPtr(outcome.Value.FollowupText)
	return update
}

func (s *ConversationService) analyzeClosing(ctx context.Context, entry *entities.JournalEntry) repositories.ConversationUpdate {
	raw, callErr := s.complete(ctx, prompts.BuildClosingPrompt(prompts.ClosingInput{
		Content:          entry.Content,
		AnxietyLevel:     entry.AnxietyLevel,
		InitialInsight:   deref(entry.InitialInsight),
		Reflection:       deref(entry.UserReflection),
		FollowupInsight:  deref(entry.FollowupInsight),
		SecondReflection: deref(entry.SecondReflection),
	}))
	outcome := prompts.Resolve(raw, callErr, prompts.ParseClosing)

	update := repositories.ConversationUpdate{
		From:                 entities.StateAwaitingClosingAnalysis,
		ConversationComplete: true,
	}
	if !outcome.OK() {
		s.recordFallback(ctx, entry.ID, stageClosing, outcome.Kind, outcome.Err)
		update.ClosingMessage = entities.StringPtr(FallbackClosing)
		update.UsedFallback = true
		return update
	}

	observability.RecordTransition(ctx, s.metrics, stageClosing, "ai")
	update.ClosingMessage = entities.StringPtr(outcome.Value.ClosingMessage)
	return update
}

func (s *ConversationService) complete(ctx context.Context, prompt string) (string, error) {
	if s.llm == nil {
		return "", providers.ErrCompletionConfigMissing
	}
	return s.llm.Complete(ctx, providers.CompletionRequest{
		SystemPrompt: prompts.SystemPrompt,
		Prompt:       prompt,
		JSONMode:     true,
		Temperature:  conversationTemperature,
		MaxTokens:    conversationMaxTokens,
	})
}

func (s *ConversationService) recordFallback(ctx context.Context, entryID, stage string, kind providers.ErrorKind, err error) {
	log.Warn().Err(err).Str("entry_id", entryID).Str("stage", stage).Str("kind", string(kind)).Msg("using fallback response")
	observability.RecordTransition(ctx, s.metrics, stage, "fallback")
	observability.RecordFallback(ctx, s.metrics, stage, string(kind))
}

func (s *ConversationService) saveRecommendations(ctx context.Context, entryID string, patterns []prompts.ThoughtPattern) {
	if len(patterns) == 0 || s.recs == nil {
		return
	}
	if err := s.recs.CreateBatch(ctx, recommendationsFor(entryID, patterns)); err != nil {
		log.Error().Err(err).Str("entry_id", entryID).Int("patterns", len(patterns)).Msg("failed to save CBT recommendations")
	}
}

// claim takes the in-flight guard for a user-driven transition. Losing it means
// another request is already processing the entry.
func (s *ConversationService) claim(ctx context.Context, entryID string) (func(), error) {
	if s.guard == nil {
		return func() {}, nil
	}
	ok, err := s.guard.SetIfAbsent(ctx, inFlightKey(entryID), []byte("1"), s.cfg.InFlightTTLSeconds)
	if err != nil {
		log.Warn().Err(err).Str("entry_id", entryID).Msg("in-flight guard unavailable; relying on conditional update")
		return func() {}, nil
	}
	if !ok {
		return nil, apperrors.NewInvalidStateError(fmt.Sprintf("journal entry %s is already being processed", entryID))
	}
	return s.releaseFunc(ctx, entryID), nil
}

// acquire takes the guard for a freshly created entry, which nothing else can hold.
func (s *ConversationService) acquire(ctx context.Context, entryID string) func() {
	release, err := s.claim(ctx, entryID)
	if err != nil {
		return func() {}
	}
	return release
}

func (s *ConversationService) releaseFunc(ctx context.Context, entryID string) func() {
	return func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.guard.Delete(bgCtx, inFlightKey(entryID)); err != nil {
			log.Warn().Err(err).Str("entry_id", entryID).Msg("failed to release in-flight guard")
		}
	}
}

// persistContext is used for writes made after the model has answered. A
// client that hangs up mid-analysis must not strand the entry in an analysis state.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s *ConversationService) validateEntry(in SubmitEntryInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return apperrors.NewValidationError("user id is required")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return apperrors.NewValidationError("content is required")
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxEntryLength {
		return apperrors.NewValidationError(fmt.Sprintf("content must be at most %d characters", s.cfg.MaxEntryLength))
	}
	if in.AnxietyLevel < entities.MinAnxietyLevel || in.AnxietyLevel > entities.MaxAnxietyLevel {
		return apperrors.NewValidationError(fmt.Sprintf("anxiety level must be between %d and %d", entities.MinAnxietyLevel, entities.MaxAnxietyLevel))
	}
	return nil
}

func (s *ConversationService) validateReflection(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewValidationError("reflection is required")
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxReflectionLength {
		return "", apperrors.NewValidationError(fmt.Sprintf("reflection must be at most %d characters", s.cfg.MaxReflectionLength))
	}
	return text, nil
}

func expectState(entry *entities.JournalEntry, want entities.ConversationState) error {
	if got := entry.State(); got != want {
		return apperrors.NewInvalidStateError(fmt.Sprintf("journal entry %s is in state %s, expected %s", entry.ID, got, want))
	}
	return nil
}

// applyUpdate mirrors a successful ApplyTransition onto the in-memory entry.
func applyUpdate(entry *entities.JournalEntry, update repositories.ConversationUpdate, at time.Time) {
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	set(&entry.InitialInsight, update.InitialInsight)
	set(&entry.ReflectionPrompt, update.ReflectionPrompt)
	set(&entry.UserReflection, update.UserReflection)
	set(&entry.FollowupInsight, update.FollowupInsight)
	set(&entry.SecondReflection, update.SecondReflection)
	set(&entry.ClosingMessage, update.ClosingMessage)
	if update.ConversationComplete {
		entry.ConversationComplete = true
	}
	if update.UsedFallback {
		entry.UsedFallback = true
	}
	entry.UpdatedAt = at
}

// resetEntry mirrors a successful ResetConversation onto the in-memory entry.
func resetEntry(entry *entities.JournalEntry, edit repositories.EntryEdit, at time.Time) {
	entry.Title = edit.Title
	entry.Content = edit.Content
	entry.AnxietyLevel = edit.AnxietyLevel
	entry.InitialInsight = nil
	entry.ReflectionPrompt = nil
	entry.UserReflection = nil
	entry.FollowupInsight = nil
	entry.SecondReflection = nil
	entry.ClosingMessage = nil
	entry.ConversationComplete = false
	entry.UsedFallback = false
	entry.UpdatedAt = at
}

func recommendationsFor(entryID string, patterns []prompts.ThoughtPattern) []*entities.CBTRecommendation {
	recs := make([]*entities.CBTRecommendation, 0, len(patterns))
	for _, p := range patterns {
		text := p.Recommendation
		if p.Description != "" {
			text = p.Description + " - " + p.Recommendation
		}
		recs = append(recs, &entities.CBTRecommendation{
			JournalEntryID: entryID,
			ThoughtPattern: p.Pattern,
			Recommendation: text,
		})
	}
	return recs
}

func inFlightKey(entryID string) string {
	return "conversation:inflight:" + entryID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
