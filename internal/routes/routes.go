package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/handlers"
	"github.com/mereside/opsgate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	flowHandler *handlers.LoginFlowHandler,
	db *database.DB,
) {
	rateLimitConfig := middleware.DefaultFlowRateLimit()

	// All flow endpoints are public; the otp/resend/back steps are
	// authorized by the challenge token instead of a session.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/flow/credentials", flowHandler.SubmitCredentials)
		r.Post("/auth/flow/otp", flowHandler.SubmitCode)
		r.Post("/auth/flow/resend", flowHandler.Resend)
		r.Post("/auth/flow/back", flowHandler.Back)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
