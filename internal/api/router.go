package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hearsay/internal/rumorservice"
)

// NewRouter creates a chi router with all API routes mounted.
// token is the bearer credential; empty disables auth.
// moderatorToken alone may judge vote outcomes; empty disables judging.
// limiter, if non-nil, throttles the write routes.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *rumorservice.Service, token, moderatorToken string, limiter *RateLimiter, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.With(ModeratorMiddleware(moderatorToken)).Post("/votes/{id}/outcome", h.ResolveVote)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(token))
		mountParticipantRoutes(r, h, limiter, sseHandler)
	})

	return r
}

func mountParticipantRoutes(r chi.Router, h *Handler, limiter *RateLimiter, sseHandler http.Handler) {
	r.Get("/claims", h.ListClaims)
	r.Get("/claims/{id}", h.GetClaim)
	r.Get("/claims/{id}/votes/{publicKey}", h.GetUserVote)
	r.Get("/reputation/{publicKey}", h.GetReputation)
	r.Get("/trust", h.ListTrust)
	r.Get("/pow", h.GetPow)

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Post("/claims", h.CreateClaim)
		r.Delete("/claims/{id}", h.DeleteClaim)
		r.Post("/claims/{id}/votes", h.CastVote)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
}
