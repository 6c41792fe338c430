package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

const (
	probeTimeout = 2 * time.Second

	checkOK     = "ok"
	checkFailed = "error"
)

type readyzResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Readyz reports ready once the reputation store answers. The signal cache
// is reported but does not affect readiness.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		resp := readyzResponse{Ready: true, Checks: map[string]string{}}
		if err := d.Reputation.Ping(ctx); err != nil {
			resp.Ready = false
			resp.Checks["store"] = checkFailed
			d.Logger.Warn("readiness check failed", logger.String("component", "store"), logger.Error(err))
		} else {
			resp.Checks["store"] = checkOK
		}
		if d.SignalCache != nil {
			if err := pingSignalCache(ctx, d); err != nil {
				resp.Checks["signal_cache"] = checkFailed
				d.Logger.Warn("readiness check failed", logger.String("component", "signal_cache"), logger.Error(err))
			} else {
				resp.Checks["signal_cache"] = checkOK
			}
		}

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// pingSignalCache reads a throwaway key; a miss is a healthy answer.
func pingSignalCache(ctx context.Context, d deps.Deps) error {
	var v struct{}
	_, err := d.SignalCache.Get(ctx, "probe", "readyz", &v)
	return err
}
