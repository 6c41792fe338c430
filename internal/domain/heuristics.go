package domain

import (
	"strings"
	"time"
	"unicode"
)

// RiskLevel buckets a heuristic score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	// Rule weights
	ScoreIPHost          = 30
	ScoreNoHTTPS         = 10
	ScoreKeyword         = 10
	ScoreKeywordCap      = 30
	ScoreDigitSubstitute = 15
	ScoreDeepSubdomain   = 10
	ScoreLongURL         = 10
	ScoreVeryLongURL     = 15
	ScoreAtSign          = 20
	ScorePunycode        = 15
	ScoreRiskyTLD        = 15
	ScoreManyHyphens     = 10
	ScoreYoungDomain     = 25
	ScoreRecentDomain    = 10
	ScoreNoCertificate   = 15
	ScoreExpiredCert     = 20
	ScoreExpiringCert    = 5
	ScoreUntrustedCert   = 15
	ScoreExternalUnsafe  = 40

	// Level cutoffs
	LevelHighMin   = 70
	LevelMediumMin = 40

	youngDomainDays  = 30
	recentDomainDays = 180
	longURLLen       = 100
	veryLongURLLen   = 200
	certExpiringIn   = 7 * 24 * time.Hour
)

// SuspiciousKeywords are matched against the lower-cased URL. The risk model
// counts the same list.
var SuspiciousKeywords = []string{
	"login",
	"signin",
	"verify",
	"secure",
	"account",
	"update",
	"billing",
	"support",
	"bank",
	"wallet",
	"crypto",
}

var riskyTLDs = map[string]struct{}{
	"zip": {}, "xyz": {}, "top": {}, "tk": {}, "ml": {}, "ga": {}, "cf": {},
	"gq": {}, "click": {}, "country": {}, "work": {}, "loan": {}, "rest": {},
}

// Factor is one rule that contributed to a heuristic score.
type Factor struct {
	Code   string `json:"code"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}

// HeuristicResult is the rule-based risk estimate.
type HeuristicResult struct {
	RiskScore int       `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`
	Factors   []Factor  `json:"factors"`
}

func (h *HeuristicResult) High() bool {
	return h != nil && h.RiskLevel == RiskHigh
}

// HeuristicInput is everything the heuristic scorer looks at.
type HeuristicInput struct {
	URL      string // normalised
	Domain   string
	Metadata DomainMetadata
	External *ExternalResult
	Now      time.Time
}

// ScoreHeuristics applies every rule and returns a score capped at 100.
func ScoreHeuristics(in HeuristicInput) HeuristicResult {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	var res HeuristicResult
	add := func(code string, points int, detail string) {
		res.Factors = append(res.Factors, Factor{Code: code, Points: points, Detail: detail})
		res.RiskScore += points
	}

	lowerURL := strings.ToLower(in.URL)
	host := in.Domain

	// ─────────────────────────────
	// Lexical rules
	// ─────────────────────────────

	if IsIPHost(host) {
		add("ip_host", ScoreIPHost, host)
	}
	if strings.HasPrefix(lowerURL, "http://") {
		add("no_https", ScoreNoHTTPS, "")
	}
	if hits := MatchKeywords(lowerURL); len(hits) > 0 {
		add("suspicious_keywords", min(len(hits)*ScoreKeyword, ScoreKeywordCap), strings.Join(hits, ","))
	}
	if !IsIPHost(host) && hasDigitSubstitution(host) {
		add("digit_substitution", ScoreDigitSubstitute, host)
	}
	if strings.Count(host, ".") >= 3 {
		add("deep_subdomain", ScoreDeepSubdomain, "")
	}
	switch {
	case len(in.URL) > veryLongURLLen:
		add("long_url", ScoreVeryLongURL, "")
	case len(in.URL) > longURLLen:
		add("long_url", ScoreLongURL, "")
	}
	if strings.Contains(hostPart(in.URL), "@") {
		add("at_sign", ScoreAtSign, "")
	}
	if strings.Contains(host, "xn--") {
		add("punycode", ScorePunycode, "")
	}
	if tld := topLevel(host); tld != "" {
		if _, ok := riskyTLDs[tld]; ok {
			add("risky_tld", ScoreRiskyTLD, tld)
		}
	}
	if strings.Count(host, "-") >= 3 {
		add("many_hyphens", ScoreManyHyphens, "")
	}

	// ─────────────────────────────
	// Gathered signals
	// ─────────────────────────────

	if age := in.Metadata.DomainAgeDays; age != nil {
		switch {
		case *age < youngDomainDays:
			add("young_domain", ScoreYoungDomain, "")
		case *age < recentDomainDays:
			add("recent_domain", ScoreRecentDomain, "")
		}
	}

	if in.Metadata.TLSChecked {
		to := in.Metadata.SSLValidTo
		switch {
		case in.Metadata.SSLIssuer == nil && to == nil:
			add("no_certificate", ScoreNoCertificate, "")
		case to != nil && to.Before(in.Now):
			add("expired_certificate", ScoreExpiredCert, to.Format(time.RFC3339))
		case in.Metadata.SSLTrusted != nil && !*in.Metadata.SSLTrusted:
			add("untrusted_certificate", ScoreUntrustedCert, "")
		case to != nil && to.Sub(in.Now) < certExpiringIn:
			add("expiring_certificate", ScoreExpiringCert, to.Format(time.RFC3339))
		}
	}

	if in.External.IsUnsafe() {
		add("external_unsafe", ScoreExternalUnsafe, in.External.Source)
	}

	if res.RiskScore > 100 {
		res.RiskScore = 100
	}
	res.RiskLevel = LevelFor(res.RiskScore)
	return res
}

// LevelFor buckets a 0-100 score.
func LevelFor(score int) RiskLevel {
	switch {
	case score >= LevelHighMin:
		return RiskHigh
	case score >= LevelMediumMin:
		return RiskMedium
	default:
		return RiskLow
	}
}

// MatchKeywords returns the suspicious keywords present in a lower-cased URL.
func MatchKeywords(lowerURL string) []string {
	var hits []string
	for _, kw := range SuspiciousKeywords {
		if strings.Contains(lowerURL, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// hasDigitSubstitution detects labels mixing letters and digits, like "ex4mpl3".
func hasDigitSubstitution(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) > 1 {
		labels = labels[:len(labels)-1]
	}
	for _, label := range labels {
		var letters, digits bool
		for _, r := range label {
			switch {
			case unicode.IsDigit(r):
				digits = true
			case unicode.IsLetter(r):
				letters = true
			}
		}
		if letters && digits {
			return true
		}
	}
	return false
}

func topLevel(host string) string {
	i := strings.LastIndex(host, ".")
	if i < 0 || i == len(host)-1 {
		return ""
	}
	return host[i+1:]
}

// hostPart returns the authority section of a URL ("user@host:port").
func hostPart(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return u
}
