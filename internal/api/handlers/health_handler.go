package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

const readinessTimeout = 2 * time.Second

// HealthCheck reports whether one dependency can serve requests.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports readiness of the service's dependencies. Redis is
// optional, so its check is only registered when it is configured.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a readiness handler over the named checks
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Ready handles GET /health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	respondWithJSON(w, status, map[string]interface{}{
		"ready":        status == http.StatusOK,
		"dependencies": results,
	})
}
