package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/mw"
)

func init() { Register(registerAnalyze) }

func registerAnalyze(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimit.Burst,
		RefillPerIPPerMin: d.RateLimit.PerMinute,
		MaxEntries:        d.RateLimit.MaxClients,
		TrustProxy:        d.TrustProxy,
	})
	r.With(limit).Post("/api/v1/analyze", handlers.Analyze(d))
}
