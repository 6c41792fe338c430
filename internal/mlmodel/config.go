package mlmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

// Source identifies the configuration layer a model was built from.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceBundled  Source = "bundled"
	SourceDefaults Source = "defaults"
)

const (
	DefaultBias                = -2.0
	DefaultThresholdSuspicious = 0.5
	DefaultThresholdMalicious  = 0.8
)

// DefaultWeights are used when no artifact provides a weights object.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		FeatureURLLen:         0.015,
		FeatureDomainLen:      0.0,
		FeatureDigitCount:     0.4,
		FeatureSubdomainDepth: 0.3,
		FeatureSuspKwCount:    0.6,
		FeatureExternalFlag:   1.2,
		FeatureHeurScore:      0.8,
	}
}

// Config is a fully resolved model configuration.
type Config struct {
	Weights             map[string]float64
	Bias                float64
	ThresholdSuspicious float64
	ThresholdMalicious  float64
	Source              Source
	Path                string
}

func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		Bias:                DefaultBias,
		ThresholdSuspicious: DefaultThresholdSuspicious,
		ThresholdMalicious:  DefaultThresholdMalicious,
		Source:              SourceDefaults,
	}
}

// artifact is the on-disk JSON format. Pointer fields distinguish "absent"
// from zero.
type artifact struct {
	Weights             map[string]float64 `json:"weights"`
	Bias                *float64           `json:"bias"`
	ThresholdSuspicious *float64           `json:"threshold_suspicious"`
	ThresholdMalicious  *float64           `json:"threshold_malicious"`
	FeatureNames        []string           `json:"feature_names"`
}

// LoadConfig resolves the model configuration once, in order:
//  1. explicitPath (URLGUARD_MODEL_PATH)
//  2. bundledPath (the default artifact shipped with the service)
//  3. hard-coded constants
//
// A missing file silently falls through. An unreadable, malformed or
// inconsistent file is logged as a warning and falls through. It never fails.
func LoadConfig(explicitPath, bundledPath string, log logger.Logger) Config {
	if log == nil {
		log = logger.NewNop()
	}

	layers := []struct {
		path   string
		source Source
	}{
		{explicitPath, SourceExplicit},
		{bundledPath, SourceBundled},
	}

	for _, layer := range layers {
		if layer.path == "" {
			continue
		}
		cfg, err := loadFile(layer.path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("model artifact not found", logger.String("path", layer.path), logger.String("layer", string(layer.source)))
			continue
		}
		if err != nil {
			log.Warn("ignoring model artifact", logger.String("path", layer.path), logger.String("layer", string(layer.source)), logger.Error(err))
			continue
		}
		cfg.Source = layer.source
		cfg.Path = layer.path
		return cfg
	}

	return DefaultConfig()
}

func loadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

// Parse decodes and validates a JSON artifact. Absent fields fall back to the
// defaults individually; when weights is present, unlisted features get 0.
func Parse(raw []byte) (Config, error) {
	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return Config{}, fmt.Errorf("decode model: %w", err)
	}

	if a.FeatureNames != nil {
		if err := checkFeatureNames(a.FeatureNames); err != nil {
			return Config{}, err
		}
	}

	cfg := DefaultConfig()

	if a.Weights != nil {
		cfg.Weights = make(map[string]float64, NumFeatures)
		for _, name := range FeatureNames {
			w := a.Weights[name]
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return Config{}, fmt.Errorf("weight %s is not finite", name)
			}
			cfg.Weights[name] = w
		}
	}
	if a.Bias != nil {
		cfg.Bias = *a.Bias
	}
	if a.ThresholdSuspicious != nil {
		cfg.ThresholdSuspicious = *a.ThresholdSuspicious
	}
	if a.ThresholdMalicious != nil {
		cfg.ThresholdMalicious = *a.ThresholdMalicious
	}

	if err := checkThresholds(cfg.ThresholdSuspicious, cfg.ThresholdMalicious); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func checkFeatureNames(names []string) error {
	if len(names) != NumFeatures {
		return fmt.Errorf("feature_names has %d entries, want %d", len(names), NumFeatures)
	}
	for i, name := range names {
		if name != FeatureNames[i] {
			return fmt.Errorf("feature_names[%d] = %q, want %q", i, name, FeatureNames[i])
		}
	}
	return nil
}

func checkThresholds(suspicious, malicious float64) error {
	if suspicious < 0 || malicious > 1 || suspicious > malicious {
		return fmt.Errorf("invalid thresholds: suspicious=%v malicious=%v", suspicious, malicious)
	}
	return nil
}
