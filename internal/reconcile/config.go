package reconcile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/competitor-intel/internal/conflict"
)

// Thresholds holds the tunable reconciliation heuristics.
type Thresholds struct {
	// NumericThreshold is the relative difference above which numbers conflict.
	NumericThreshold float64 `yaml:"numeric_threshold"`
	// SimilarityThreshold is the word-set similarity below which strings conflict.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// RivalCutoff is the fraction of the winner's score a record needs to be
	// considered a rival.
	RivalCutoff float64 `yaml:"rival_cutoff"`
	// StaleAfterDays flags winners older than this in freshness summaries.
	StaleAfterDays int `yaml:"stale_after_days"`
	// MaxSourcesUsed caps the sources reported per field.
	MaxSourcesUsed int `yaml:"max_sources_used"`
}

// DefaultThresholds returns the standard heuristics.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NumericThreshold:    conflict.DefaultNumericThreshold,
		SimilarityThreshold: conflict.DefaultSimilarityThreshold,
		RivalCutoff:         0.8,
		StaleAfterDays:      90,
		MaxSourcesUsed:      5,
	}
}

// Detector builds a conflict detector from the thresholds.
func (t Thresholds) Detector() conflict.Detector {
	return conflict.Detector{
		NumericThreshold:    t.NumericThreshold,
		SimilarityThreshold: t.SimilarityThreshold,
	}
}

// withDefaults fills zero values from DefaultThresholds.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.NumericThreshold <= 0 {
		t.NumericThreshold = d.NumericThreshold
	}
	if t.SimilarityThreshold <= 0 {
		t.SimilarityThreshold = d.SimilarityThreshold
	}
	if t.RivalCutoff <= 0 {
		t.RivalCutoff = d.RivalCutoff
	}
	if t.StaleAfterDays <= 0 {
		t.StaleAfterDays = d.StaleAfterDays
	}
	if t.MaxSourcesUsed <= 0 {
		t.MaxSourcesUsed = d.MaxSourcesUsed
	}
	return t
}

// LoadConfig reads thresholds from a YAML file with a top-level
// "reconcile" key. Unset values keep their defaults.
func LoadConfig(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, eris.Wrapf(err, "reconcile: read config %s", path)
	}

	var wrapper struct {
		Reconcile Thresholds `yaml:"reconcile"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Thresholds{}, eris.Wrap(err, "reconcile: parse config")
	}
	t := wrapper.Reconcile.withDefaults()
	if t.RivalCutoff > 1 {
		return Thresholds{}, eris.Errorf("reconcile: rival_cutoff must be <= 1, got %v", t.RivalCutoff)
	}
	return t, nil
}
