package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/scheduler"
)

const (
	defaultEntriesLimit = 100
	maxEntriesLimit     = 1000
)

type entriesResponse struct {
	List    domain.List                `json:"list"`
	Count   int                        `json:"count"`
	Entries []*domain.ReputationRecord `json:"entries"`
}

type refreshRequest struct {
	Target string `json:"target" validate:"max=16"`
	Limit  *int   `json:"limit"`
}

type acceptedResponse struct {
	Status string `json:"status"`
	Target string `json:"target,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// GetReputation returns the stored record for ?url= without counting a hit.
func GetReputation(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := urlParam(r)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		rec, err := d.Reputation.Get(r.Context(), u)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// DeleteReputation removes ?url= from both lists. Deleting an absent URL is
// not an error.
func DeleteReputation(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := urlParam(r)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		removed, err := d.Reputation.Invalidate(r.Context(), u)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		d.Logger.Info("reputation entry deleted",
			logger.String("url", u),
			logger.Bool("removed", removed))
		w.WriteHeader(http.StatusNoContent)
	}
}

// Refresh re-verifies the stalest entries of a list. With ?async=true the
// batch is queued and 202 is returned; a batch already queued yields 429.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decode(w, r, &req, true); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if _, err := scheduler.ParseTarget(req.Target); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		limit := d.RefreshLimit
		if req.Limit != nil {
			limit = *req.Limit
		}
		limit = scheduler.ClampLimit(limit)

		if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
			if !d.Refresher.Trigger(scheduler.Request{Target: req.Target, Limit: limit}) {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "refresh already queued"})
				return
			}
			writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued", Target: req.Target, Limit: limit})
			return
		}

		summary, err := d.Refresher.Refresh(r.Context(), req.Target, limit)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// Entries lists one reputation list, least recently updated first.
func Entries(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := domain.ParseList(q.Get("list"))
		if err != nil {
			writeError(w, d.Logger, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}

		limit := defaultEntriesLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, d.Logger, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
				return
			}
			limit = min(n, maxEntriesLimit)
		}

		recs, err := d.Reputation.Entries(r.Context(), list, limit)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if recs == nil {
			recs = []*domain.ReputationRecord{}
		}
		writeJSON(w, http.StatusOK, entriesResponse{List: list, Count: len(recs), Entries: recs})
	}
}

func Stats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Reputation.Stats(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// SeedReload queues a reload of the seed file.
func SeedReload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SeedReloadTrigger == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no seed file configured"})
			return
		}

		select {
		case d.SeedReloadTrigger <- struct{}{}:
			d.Logger.Info("manual seed reload triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued"})
		default:
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "seed reload already in progress"})
		}
	}
}
