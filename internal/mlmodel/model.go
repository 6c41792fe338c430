package mlmodel

import (
	"math"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
)

// Label is the risk model classification.
type Label string

const (
	LabelSafe       Label = "safe"
	LabelSuspicious Label = "suspicious"
	LabelMalicious  Label = "malicious"
)

// Result of a single evaluation.
type Result struct {
	Score float64 `json:"score"`
	Label Label   `json:"label"`
}

// Model is a logistic risk model. It is immutable after New and safe for
// concurrent use.
type Model struct {
	weights             Vector
	bias                float64
	thresholdSuspicious float64
	thresholdMalicious  float64
	source              Source
	path                string
}

// New builds a model from a resolved Config.
func New(cfg Config) *Model {
	m := &Model{
		bias:                cfg.Bias,
		thresholdSuspicious: cfg.ThresholdSuspicious,
		thresholdMalicious:  cfg.ThresholdMalicious,
		source:              cfg.Source,
		path:                cfg.Path,
	}
	for i, name := range FeatureNames {
		m.weights[i] = cfg.Weights[name]
	}
	return m
}

// Default returns the model built from the hard-coded constants.
func Default() *Model {
	return New(DefaultConfig())
}

// Evaluate scores a URL. Score is always in [0,1].
func (m *Model) Evaluate(url, host string, external *domain.ExternalResult, heuristic *domain.HeuristicResult) Result {
	return m.EvaluateVector(FeatureVector(url, host, external, heuristic))
}

// EvaluateVector scores a raw feature vector.
func (m *Model) EvaluateVector(v Vector) Result {
	n := v.normalized()
	z := m.bias
	for i := range n {
		z += m.weights[i] * n[i]
	}

	score := sigmoid(z)
	return Result{Score: score, Label: m.Classify(score)}
}

// Classify applies the thresholds to a score.
func (m *Model) Classify(score float64) Label {
	switch {
	case score >= m.thresholdMalicious:
		return LabelMalicious
	case score >= m.thresholdSuspicious:
		return LabelSuspicious
	default:
		return LabelSafe
	}
}

// Source reports which configuration layer the model was built from.
func (m *Model) Source() Source { return m.source }

// Path is the artifact file used, empty for the built-in defaults.
func (m *Model) Path() string { return m.path }

func (m *Model) Thresholds() (suspicious, malicious float64) {
	return m.thresholdSuspicious, m.thresholdMalicious
}

// Weight returns the weight of a named feature.
func (m *Model) Weight(name string) float64 {
	for i, n := range FeatureNames {
		if n == name {
			return m.weights[i]
		}
	}
	return 0
}

func (m *Model) Bias() float64 { return m.bias }

func sigmoid(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	s := 1.0 / (1.0 + math.Exp(-z))
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
