package domain

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is the classification of a URL.
type Verdict string

const (
	VerdictSafe    Verdict = "safe"
	VerdictUnsafe  Verdict = "unsafe"
	VerdictUnknown Verdict = "unknown"
)

// List names one of the two logical reputation stores.
type List string

const (
	Whitelist List = "whitelist"
	Blacklist List = "blacklist"
)

// Lists is the fixed iteration order used for lookups and refresh batches.
var Lists = []List{Whitelist, Blacklist}

// ListFor maps a verdict to the list that stores it. Unknown verdicts are
// never stored.
func ListFor(v Verdict) (List, bool) {
	switch v {
	case VerdictSafe:
		return Whitelist, true
	case VerdictUnsafe:
		return Blacklist, true
	default:
		return "", false
	}
}

// Opposite returns the list a record must be removed from when written to l.
func (l List) Opposite() List {
	if l == Whitelist {
		return Blacklist
	}
	return Whitelist
}

// Verdict returns the verdict implied by membership in l.
func (l List) Verdict() Verdict {
	if l == Whitelist {
		return VerdictSafe
	}
	return VerdictUnsafe
}

func (l List) Valid() bool {
	return l == Whitelist || l == Blacklist
}

// ParseList accepts "whitelist" or "blacklist" (case-insensitive).
func ParseList(s string) (List, error) {
	l := List(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown list %q", s)
	}
	return l, nil
}

// ReputationRecord is a cached verdict for a normalised URL.
//
// A URL is held by at most one list at a time. Records are owned by the
// store: HitCount and LastSeen change on every lookup hit, everything else is
// overwritten on write-back.
type ReputationRecord struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// URL is the normalised URL and the primary key in both lists.
	URL string `json:"url"`

	// Domain is the lower-cased host extracted from URL.
	Domain string `json:"domain"`

	// List is the store currently holding the record.
	List List `json:"list"`

	// ─────────────────────────────
	// Assessment (overwritten on write-back)
	// ─────────────────────────────

	Verdict    Verdict `json:"verdict"`
	ThreatType string  `json:"threat_type,omitempty"`
	Confidence int     `json:"confidence"`

	// Source names what produced the verdict.
	// Example: virustotal, urlscan, ml, heuristic, seed, manual
	Source  string `json:"source"`
	Details string `json:"details,omitempty"`

	// ─────────────────────────────
	// Observation
	// ─────────────────────────────

	// HitCount is incremented on every lookup hit.
	HitCount int64 `json:"hit_count"`

	// LastSeen is refreshed on every lookup hit and every write.
	LastSeen time.Time `json:"last_seen"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assessment carries everything written alongside a verdict.
type Assessment struct {
	ThreatType string
	Confidence int
	Source     string
	Details    string
}

// NewRecord builds the record stored for a safe or unsafe verdict.
func NewRecord(url, domain string, v Verdict, a Assessment, now time.Time) (*ReputationRecord, error) {
	list, ok := ListFor(v)
	if !ok {
		return nil, fmt.Errorf("verdict %q cannot be stored", v)
	}
	return &ReputationRecord{
		URL:        url,
		Domain:     domain,
		List:       list,
		Verdict:    v,
		ThreatType: a.ThreatType,
		Confidence: clampConfidence(a.Confidence),
		Source:     a.Source,
		Details:    a.Details,
		LastSeen:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func clampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
