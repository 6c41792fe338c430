package mlmodel

import (
	"strings"
	"unicode"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
)

// Feature names in vector order. Training and export tooling must use the
// same order.
const (
	FeatureURLLen         = "url_len"
	FeatureDomainLen      = "domain_len"
	FeatureDigitCount     = "digit_count"
	FeatureSubdomainDepth = "subdomain_depth"
	FeatureSuspKwCount    = "susp_kw_count"
	FeatureExternalFlag   = "external_flag"
	FeatureHeurScore      = "heur_score"
)

// FeatureNames is the fixed feature order.
var FeatureNames = [NumFeatures]string{
	FeatureURLLen,
	FeatureDomainLen,
	FeatureDigitCount,
	FeatureSubdomainDepth,
	FeatureSuspKwCount,
	FeatureExternalFlag,
	FeatureHeurScore,
}

const (
	NumFeatures = 7

	maxURLLen    = 3000
	maxDomainLen = 255

	// Normalisation applied in the linear term.
	urlLenScale    = 200.0
	domainLenScale = 100.0
)

// Vector holds raw feature values in FeatureNames order.
type Vector [NumFeatures]float64

// FeatureVector extracts the raw (un-normalised) features, except heur_score
// which is already divided by 100.
func FeatureVector(url, host string, external *domain.ExternalResult, heuristic *domain.HeuristicResult) Vector {
	lower := strings.ToLower(url)

	var digits int
	for _, r := range host {
		if unicode.IsDigit(r) {
			digits++
		}
	}

	var externalFlag float64
	if external.IsUnsafe() {
		externalFlag = 1
	}

	var heur float64
	if heuristic != nil {
		heur = float64(heuristic.RiskScore) / 100.0
	}

	return Vector{
		float64(min(len(url), maxURLLen)),
		float64(min(len(host), maxDomainLen)),
		float64(digits),
		float64(strings.Count(host, ".")),
		float64(len(domain.MatchKeywords(lower))),
		externalFlag,
		heur,
	}
}

// normalized applies the scaling used during training.
func (v Vector) normalized() Vector {
	out := v
	out[0] = v[0] / urlLenScale
	out[1] = v[1] / domainLenScale
	return out
}

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}
