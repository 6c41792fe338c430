package analysis

import (
	"math"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/mlmodel"
)

// Sources recorded on verdicts that no threat-intel provider produced.
const (
	SourceModel     = "ml"
	SourceHeuristic = "heuristic"
	SourceNone      = "none"
)

// Threat types assigned by local scoring.
const (
	ThreatMalicious  = "malicious_url"
	ThreatSuspicious = "suspicious_url"
)

// decision is the outcome of combining every signal.
type decision struct {
	Verdict    domain.Verdict
	ThreatType string
	Confidence int
	Source     string
}

// decide applies the verdict rules in order:
//
//	unsafe  if external unsafe, ML malicious, or ML suspicious and heuristic high
//	safe    if external safe, or ML safe and heuristic not high
//	unknown otherwise
func decide(external *domain.ExternalResult, heur *domain.HeuristicResult, ml mlmodel.Result) decision {
	switch {
	case external.IsUnsafe():
		threat := external.ThreatType
		if threat == "" {
			threat = ThreatMalicious
		}
		return decision{domain.VerdictUnsafe, threat, external.Confidence, external.Source}

	case ml.Label == mlmodel.LabelMalicious:
		return decision{domain.VerdictUnsafe, ThreatMalicious, percent(ml.Score), SourceModel}

	case ml.Label == mlmodel.LabelSuspicious && heur.High():
		return decision{domain.VerdictUnsafe, ThreatSuspicious, heur.RiskScore, SourceHeuristic}

	case external.IsSafe():
		return decision{domain.VerdictSafe, "", external.Confidence, external.Source}

	case ml.Label == mlmodel.LabelSafe && !heur.High():
		return decision{domain.VerdictSafe, "", percent(1 - ml.Score), SourceModel}

	default:
		return decision{domain.VerdictUnknown, "", 0, SourceNone}
	}
}

func percent(p float64) int {
	return int(math.Round(math.Max(0, math.Min(1, p)) * 100))
}
