package core

import "github.com/signalsfoundry/conjunction-engine/model"

// ClassifierConfig holds the distance bands separating risk levels. Bands
// are evaluated from most to least severe and must be monotonic.
type ClassifierConfig struct {
	EmergencyKm float64 // below: EMERGENCY
	CriticalKm  float64 // below: CRITICAL
	HighKm      float64 // below: HIGH
	HighRiskKm  float64 // below: MEDIUM; this is also the record-retention cutoff
}

// DefaultClassifierConfig returns the operational thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		EmergencyKm: 0.5,
		CriticalKm:  2.0,
		HighKm:      5.0,
		HighRiskKm:  10.0,
	}
}

// Classifier maps closest-approach distances to discrete risk levels.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier builds a classifier, substituting defaults for unset bands.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.EmergencyKm <= 0 {
		cfg.EmergencyKm = def.EmergencyKm
	}
	if cfg.CriticalKm <= 0 {
		cfg.CriticalKm = def.CriticalKm
	}
	if cfg.HighKm <= 0 {
		cfg.HighKm = def.HighKm
	}
	if cfg.HighRiskKm <= 0 {
		cfg.HighRiskKm = def.HighRiskKm
	}
	return &Classifier{cfg: cfg}
}

// Classify returns the risk level for a closest-approach distance, taking
// the first matching band from most to least severe.
func (c *Classifier) Classify(distanceKm float64) model.RiskLevel {
	switch {
	case distanceKm < c.cfg.EmergencyKm:
		return model.RiskEmergency
	case distanceKm < c.cfg.CriticalKm:
		return model.RiskCritical
	case distanceKm < c.cfg.HighKm:
		return model.RiskHigh
	case distanceKm < c.cfg.HighRiskKm:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// RetentionCutoffKm is the distance below which a pair is retained as a
// threat record at all.
func (c *Classifier) RetentionCutoffKm() float64 { return c.cfg.HighRiskKm }
