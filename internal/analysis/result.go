package analysis

import (
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/mlmodel"
)

// Options controls one analysis.
type Options struct {
	// UseExternal enables the threat-intel gatherers (URLScan, VirusTotal).
	UseExternal bool
	// IgnoreCache skips the reputation lookup; the result is still written back.
	IgnoreCache bool
	// StrictWrite makes AnalyzeURL fail when ctx ends before the verdict is
	// stored or the write-back fails, instead of logging and returning the result.
	StrictWrite bool
}

// Result is returned by AnalyzeURL and Recheck.
type Result struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Domain     string         `json:"domain"`
	Verdict    domain.Verdict `json:"verdict"`
	Safe       *bool          `json:"safe"`
	ThreatType string         `json:"threat_type,omitempty"`
	Confidence int            `json:"confidence"`
	Source     string         `json:"source"`
	Cached     bool           `json:"cached"`

	// Signal details, absent on cache hits.
	DomainMetadata *domain.DomainMetadata  `json:"domain_metadata,omitempty"`
	Heuristics     *domain.HeuristicResult `json:"heuristics,omitempty"`
	External       *domain.ExternalResult  `json:"external,omitempty"`
	Model          *mlmodel.Result         `json:"model,omitempty"`

	// HitCount is only set on cache hits.
	HitCount int64 `json:"hit_count,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

func (r *Result) assessment() domain.Assessment {
	return domain.Assessment{
		ThreatType: r.ThreatType,
		Confidence: r.Confidence,
		Source:     r.Source,
	}
}

func safeFor(v domain.Verdict) *bool {
	switch v {
	case domain.VerdictSafe:
		return domain.BoolPtr(true)
	case domain.VerdictUnsafe:
		return domain.BoolPtr(false)
	default:
		return nil
	}
}
