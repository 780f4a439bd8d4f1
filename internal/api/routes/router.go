package routes

import (
	"net/http"

	"github.com/zatekoja/dearteddy/backend/internal/api/handlers"
	"github.com/zatekoja/dearteddy/backend/internal/api/middleware"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	journalHandler  *handlers.JournalHandler
	insightsHandler *handlers.InsightsHandler
	copingHandler   *handlers.CopingHandler
	moodHandler     *handlers.MoodHandler
	healthHandler   *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	journalHandler *handlers.JournalHandler,
	insightsHandler *handlers.InsightsHandler,
	copingHandler *handlers.CopingHandler,
	moodHandler *handlers.MoodHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		journalHandler:  journalHandler,
		insightsHandler: insightsHandler,
		copingHandler:   copingHandler,
		moodHandler:     moodHandler,
		healthHandler:   healthHandler,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Liveness never touches dependencies; readiness pings them.
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})
	r.mux.HandleFunc("GET /health/ready", r.healthHandler.Ready)

	// Journal endpoints
	r.mux.HandleFunc("POST /api/journal", r.journalHandler.CreateEntry)
	r.mux.HandleFunc("GET /api/journal", r.journalHandler.ListEntries)
	r.mux.HandleFunc("GET /api/journal/{id}", r.journalHandler.GetEntry)
	r.mux.HandleFunc("GET /api/journal/{id}/recommendations", r.journalHandler.GetRecommendations)
	r.mux.HandleFunc("POST /api/journal/{id}/reflection", r.journalHandler.SubmitReflection)
	r.mux.HandleFunc("POST /api/journal/{id}/second-reflection", r.journalHandler.SubmitSecondReflection)
	r.mux.HandleFunc("PUT /api/journal/{id}", r.journalHandler.UpdateEntry)
	r.mux.HandleFunc("DELETE /api/journal/{id}", r.journalHandler.DeleteEntry)

	// Insights endpoints
	r.mux.HandleFunc("GET /api/insights", r.insightsHandler.GetInsights)

	// Coping statement endpoint
	r.mux.HandleFunc("POST /api/coping-statement", r.copingHandler.GenerateStatement)

	// Mood check-ins
	r.mux.HandleFunc("POST /api/mood", r.moodHandler.LogMood)
	r.mux.HandleFunc("GET /api/mood", r.moodHandler.ListMoods)

	// Apply middleware in reverse order (last middleware wraps first).
	// Logging sits inside observability so it sees the routed request.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so preflight requests short-circuit
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
