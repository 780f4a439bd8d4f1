package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
)

const (
	journalEntryKeyspace   = "journal_entry"
	defaultJournalEntryTTL = 300

	// Must outlast the slowest database read.
	journalEntryTombstoneTTL = 30
)

var journalEntryTombstone = []byte("-")

// CachedJournalEntryAdapter wraps a JournalEntryRepository with a read-through
// cache for single entries. Every write tombstones the cached copy before returning.
type CachedJournalEntryAdapter struct {
	adapter repositories.JournalEntryRepository
	cache   providers.CacheProvider
	ttl     int
	metrics *observability.Metrics
}

// NewCachedJournalEntryAdapter creates a new cached journal entry adapter
func NewCachedJournalEntryAdapter(adapter repositories.JournalEntryRepository, cache providers.CacheProvider, ttlSeconds int, metrics *observability.Metrics) repositories.JournalEntryRepository {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultJournalEntryTTL
	}
	return &CachedJournalEntryAdapter{
		adapter: adapter,
		cache:   cache,
		ttl:     ttlSeconds,
		metrics: metrics,
	}
}

func journalEntryCacheKey(id string) string {
	return fmt.Sprintf("%s:%s", journalEntryKeyspace, id)
}

// GetByID retrieves an entry, serving from cache when possible. Reads marked
// with repositories.WithConsistentRead always go to the database.
func (a *CachedJournalEntryAdapter) GetByID(ctx context.Context, id string) (*entities.JournalEntry, error) {
	consistent := repositories.ConsistentRead(ctx)
	if !consistent {
		if entry, ok := a.cached(ctx, id); ok {
			observability.RecordCacheHit(ctx, a.metrics, journalEntryKeyspace)
			return entry, nil
		}
		observability.RecordCacheMiss(ctx, a.metrics, journalEntryKeyspace)
	}

	start := time.Now()
	entry, err := a.adapter.GetByID(ctx, id)
	observability.RecordDBMetric(ctx, a.metrics, "journal_entry.get", time.Since(start))
	if err != nil {
		return nil, err
	}

	a.fill(ctx, id, entry)
	return entry, nil
}

func (a *CachedJournalEntryAdapter) cached(ctx context.Context, id string) (*entities.JournalEntry, bool) {
	data, err := a.cache.Get(ctx, journalEntryCacheKey(id))
	if err != nil || bytes.Equal(data, journalEntryTombstone) {
		return nil, false
	}
	var entry entities.JournalEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Validate() != nil {
		log.Warn().Str("entry_id", id).Msg("discarding unreadable cached journal entry")
		return nil, false
	}
	return &entry, true
}

// fill stores a freshly read entry unless the key is already taken. A write
// that landed after the read leaves a tombstone there, so the stale copy is dropped.
func (a *CachedJournalEntryAdapter) fill(ctx context.Context, id string, entry *entities.JournalEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if _, err := a.cache.SetIfAbsent(ctx, journalEntryCacheKey(id), data, a.ttl); err != nil {
		log.Warn().Err(err).Str("entry_id", id).Msg("failed to cache journal entry")
	}
}

// ApplyTransition updates the entry and invalidates its cached copy
func (a *CachedJournalEntryAdapter) ApplyTransition(ctx context.Context, id string, update repositories.ConversationUpdate) error {
	start := time.Now()
	err := a.adapter.ApplyTransition(ctx, id, update)
	observability.RecordDBMetric(ctx, a.metrics, "journal_entry.transition", time.Since(start))
	a.invalidate(ctx, id)
	return err
}

// ResetConversation saves an edit and invalidates the cached copy
func (a *CachedJournalEntryAdapter) ResetConversation(ctx context.Context, id string, from entities.ConversationState, edit repositories.EntryEdit) error {
	start := time.Now()
	err := a.adapter.ResetConversation(ctx, id, from, edit)
	observability.RecordDBMetric(ctx, a.metrics, "journal_entry.reset", time.Since(start))
	a.invalidate(ctx, id)
	return err
}

// Delete removes the entry and its cached copy
func (a *CachedJournalEntryAdapter) Delete(ctx context.Context, id string) error {
	err := a.adapter.Delete(ctx, id)
	a.invalidate(ctx, id)
	return err
}

// Create inserts an entry; nothing is cached until it is first read
func (a *CachedJournalEntryAdapter) Create(ctx context.Context, entry *entities.JournalEntry) error {
	return a.adapter.Create(ctx, entry)
}

// ListByUser is not cached
func (a *CachedJournalEntryAdapter) ListByUser(ctx context.Context, userID string, filter repositories.JournalEntryFilter) ([]*entities.JournalEntry, error) {
	return a.adapter.ListByUser(ctx, userID, filter)
}

// CountByUser is not cached
func (a *CachedJournalEntryAdapter) CountByUser(ctx context.Context, userID string) (int, error) {
	return a.adapter.CountByUser(ctx, userID)
}

// RecentAnxietyLevels is not cached
func (a *CachedJournalEntryAdapter) RecentAnxietyLevels(ctx context.Context, userID string, limit int) ([]int, error) {
	return a.adapter.RecentAnxietyLevels(ctx, userID, limit)
}

// ListWithoutRecommendations is not cached
func (a *CachedJournalEntryAdapter) ListWithoutRecommendations(ctx context.Context, afterID string, limit int) ([]*entities.JournalEntry, error) {
	return a.adapter.ListWithoutRecommendations(ctx, afterID, limit)
}

// ListStalled is not cached
func (a *CachedJournalEntryAdapter) ListStalled(ctx context.Context, updatedBefore time.Time, limit int) ([]*entities.JournalEntry, error) {
	return a.adapter.ListStalled(ctx, updatedBefore, limit)
}

// invalidate replaces the cached copy with a short-lived tombstone. Reads that
// began before the write cannot fill the key again until it expires.
func (a *CachedJournalEntryAdapter) invalidate(ctx context.Context, id string) {
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.cache.Set(bgCtx, journalEntryCacheKey(id), journalEntryTombstone, journalEntryTombstoneTTL); err != nil {
		log.Warn().Err(err).Str("entry_id", id).Msg("failed to invalidate cached journal entry")
	}
}
