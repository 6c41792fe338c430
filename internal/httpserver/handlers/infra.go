package handlers

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/signals"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
}

type modelStatus struct {
	Source              string  `json:"source"`
	Path                string  `json:"path,omitempty"`
	ThresholdSuspicious float64 `json:"threshold_suspicious"`
	ThresholdMalicious  float64 `json:"threshold_malicious"`
}

type infraResponse struct {
	Mode          string                     `json:"mode"`
	Version       string                     `json:"version"`
	Components    map[string]componentStatus `json:"components"`
	Reputation    *reputation.Stats          `json:"reputation,omitempty"`
	Gatherers     []signals.Status           `json:"gatherers,omitempty"`
	Model         *modelStatus               `json:"model,omitempty"`
	SeedReloading bool                       `json:"seed_reloading"`
}

// Infra reports every backend, the gatherer breakers and the loaded model.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		resp := infraResponse{
			Version:       d.Version,
			Components:    map[string]componentStatus{},
			SeedReloading: d.SeedReloadTrigger != nil,
		}

		store := componentStatus{OK: true, Impact: "none"}
		if stats, err := d.Reputation.Stats(ctx); err != nil {
			store = componentStatus{OK: false, Impact: "analysis-results-not-cached", Error: err.Error()}
		} else {
			store.Backend = stats.Backend
			resp.Reputation = &stats
		}
		resp.Components["store"] = store

		if d.SignalCache != nil {
			cache := componentStatus{OK: true, Backend: d.SignalCache.Backend(), Impact: "none"}
			if err := pingSignalCache(ctx, d); err != nil {
				cache.OK = false
				cache.Impact = "signals-not-cached"
				cache.Error = err.Error()
			}
			resp.Components["signal_cache"] = cache
		}

		if d.Gatherers != nil {
			resp.Gatherers = d.Gatherers.Status()
		}
		if d.Model != nil {
			sus, mal := d.Model.Thresholds()
			resp.Model = &modelStatus{
				Source:              string(d.Model.Source()),
				Path:                d.Model.Path(),
				ThresholdSuspicious: sus,
				ThresholdMalicious:  mal,
			}
		}

		resp.Mode = determineMode(resp.Components, resp.Gatherers)
		writeJSON(w, http.StatusOK, resp)
	}
}

// determineMode is "critical" when the store is down, "degraded" when the
// signal cache is down or a breaker is open, else "optimal".
func determineMode(components map[string]componentStatus, gatherers []signals.Status) string {
	if store, ok := components["store"]; ok && !store.OK {
		return "critical"
	}
	if cache, ok := components["signal_cache"]; ok && !cache.OK {
		return "degraded"
	}
	for _, g := range gatherers {
		if g.Enabled && g.Breaker == "open" {
			return "degraded"
		}
	}
	return "optimal"
}
