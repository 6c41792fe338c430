package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/mw"
)

func init() { Register(registerReputation) }

func registerReputation(r chi.Router, d deps.Deps) {
	admin := r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)

	r.Get("/api/v1/reputation", handlers.GetReputation(d))
	r.Get("/api/v1/reputation/stats", handlers.Stats(d))

	admin.Delete("/api/v1/reputation", handlers.DeleteReputation(d))
	admin.Post("/api/v1/reputation/recheck", handlers.Recheck(d))
	admin.Post("/api/v1/reputation/refresh", handlers.Refresh(d))
	admin.Get("/api/v1/reputation/entries", handlers.Entries(d))
	admin.Post("/api/v1/seed/reload", handlers.SeedReload(d))
}
