package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/dearteddy/backend/internal/application/services"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
)

const (
	copingRateLimit  = 10
	copingRateWindow = time.Hour
)

// CopingService defines the coping statement operation used by the handler.
type CopingService interface {
	Generate(ctx context.Context, anxietyContext string) (*services.CopingStatement, error)
}

// CopingHandler generates coping statements. Each statement costs a model
// call, so requests are rate limited per client.
type CopingHandler struct {
	service    CopingService
	cache      providers.CacheProvider
	local      *localRateLimiter
	trustProxy bool
}

// NewCopingHandler creates a new coping handler. cache may be nil, in which
// case rate limits are tracked in process. X-Forwarded-For and X-Real-IP are
// only used to identify anonymous clients when trustProxy is set, i.e. when
// the service sits behind a proxy that overwrites them.
func NewCopingHandler(service CopingService, cache providers.CacheProvider, trustProxy bool) *CopingHandler {
	return &CopingHandler{
		service:    service,
		cache:      cache,
		local:      newLocalRateLimiter(),
		trustProxy: trustProxy,
	}
}

type copingRequest struct {
	AnxietyContext string `json:"anxiety_context"`
}

// GenerateStatement handles POST /api/coping-statement
func (h *CopingHandler) GenerateStatement(w http.ResponseWriter, r *http.Request) {
	var payload copingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	subject := userIDFromRequest(r)
	if subject == "" {
		subject = "ip:" + clientIP(r, h.trustProxy)
	}
	allowed, retryAfter := h.allowRequest(r.Context(), "coping:rate:"+subject)
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	statement, err := h.service.Generate(r.Context(), payload.AnxietyContext)
	if err != nil {
		respondWithAppError(w, r, err, "failed to generate coping statement")
		return
	}

	respondWithJSON(w, http.StatusOK, statement)
}

func (h *CopingHandler) allowRequest(ctx context.Context, key string) (bool, time.Duration) {
	if h.cache == nil {
		return h.local.allow(key, copingRateLimit, copingRateWindow)
	}

	count, remaining, err := h.cache.Increment(ctx, key, int(copingRateWindow.Seconds()))
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("shared rate limit unavailable, limiting in process")
		return h.local.allow(key, copingRateLimit, copingRateWindow)
	}
	if count > copingRateLimit {
		return false, remaining
	}
	return true, remaining
}

// retryAfterSeconds rounds up so clients never retry before the window ends.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type localRateLimiter struct {
	mu        sync.Mutex
	states    map[string]*localRateState
	nextSweep time.Time
	now       func() time.Time
}

type localRateState struct {
	count   int
	resetAt time.Time
}

func newLocalRateLimiter() *localRateLimiter {
	return &localRateLimiter{
		states: make(map[string]*localRateState),
		now:    time.Now,
	}
}

func (l *localRateLimiter) allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	now := l.now()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		l.evictExpired(now)
		l.nextSweep = now.Add(window)
	}

	state, ok := l.states[key]
	if !ok || now.After(state.resetAt) {
		state = &localRateState{count: 0, resetAt: now.Add(window)}
		l.states[key] = state
	}

	if state.count >= limit {
		return false, state.resetAt.Sub(now)
	}

	state.count++
	return true, state.resetAt.Sub(now)
}

func (l *localRateLimiter) evictExpired(now time.Time) {
	for key, state := range l.states {
		if now.After(state.resetAt) {
			delete(l.states, key)
		}
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			return strings.TrimSpace(parts[0])
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
