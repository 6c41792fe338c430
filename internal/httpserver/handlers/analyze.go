package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/urlguard/internal/analysis"
	"github.com/MrSnakeDoc/urlguard/internal/httpserver/deps"
)

type analyzeRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
	// UseExternal defaults to true when omitted.
	UseExternal *bool `json:"use_external"`
}

type urlRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// Analyze returns the verdict for one URL, served from the reputation cache
// when possible.
func Analyze(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := decode(w, r, &req, false); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		opts := analysis.Options{UseExternal: req.UseExternal == nil || *req.UseExternal}
		res, err := d.Analysis.AnalyzeURL(r.Context(), req.URL, opts)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Recheck drops any cached verdict and re-analyses with every gatherer.
func Recheck(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest
		if err := decode(w, r, &req, false); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		res, err := d.Analysis.Recheck(r.Context(), req.URL)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
