// Package httpapi: публичный и владельческий HTTP API поверх ядра бронирования.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/booking"
	"github.com/Leganyst/appointment-booking/internal/schedule"
)

type Deps struct {
	Availability *availability.Service
	Booking      *booking.Service
	Schedule     *schedule.Service
	Tokens       *auth.Manager
	// nil: без лимита.
	Limiter        *RateLimiter
	AllowedOrigins []string
	Now            func() time.Time
}

type Handler struct {
	availability *availability.Service
	booking      *booking.Service
	schedule     *schedule.Service
	now          func() time.Time
}

// NewRouter собирает chi-роутер со всеми маршрутами.
func NewRouter(d Deps) http.Handler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	h := &Handler{
		availability: d.Availability,
		booking:      d.Booking,
		schedule:     d.Schedule,
		now:          now,
	}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Appointment-Token"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(d.Tokens))

		// Публичная часть: клиент без учётки.
		r.Get("/businesses/{businessID}/availability", h.getAvailability)
		r.With(d.Limiter.Middleware).Post("/businesses/{businessID}/appointments", h.claimSlot)
		r.With(d.Limiter.Middleware).Put("/appointments/{appointmentID}", h.transition)

		// Владелец бизнеса.
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Get("/businesses/{businessID}/appointments", h.listAppointments)
			r.Get("/appointments/{appointmentID}", h.getAppointment)

			r.Get("/businesses/{businessID}/schedule/rules", h.listRules)
			r.Post("/businesses/{businessID}/schedule/rules", h.createRule)
			r.Put("/schedule/rules/{ruleID}", h.updateRule)
			r.Delete("/schedule/rules/{ruleID}", h.deleteRule)

			r.Get("/businesses/{businessID}/schedule/exceptions", h.listExceptions)
			r.Post("/businesses/{businessID}/schedule/exceptions", h.createException)
			r.Delete("/schedule/exceptions/{exceptionID}", h.deleteException)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
