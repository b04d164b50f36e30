package core

import (
	"testing"

	"github.com/signalsfoundry/conjunction-engine/model"
)

func TestClassifyBands(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	cases := []struct {
		distance float64
		want     model.RiskLevel
	}{
		{0.0, model.RiskEmergency},
		{0.49, model.RiskEmergency},
		{0.5, model.RiskCritical},
		{1.99, model.RiskCritical},
		{2.0, model.RiskHigh},
		{4.99, model.RiskHigh},
		{5.0, model.RiskMedium},
		{9.99, model.RiskMedium},
		{10.0, model.RiskLow},
		{50.0, model.RiskLow},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.distance); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.distance, got, tc.want)
		}
	}
}

func TestClassifyMonotonic(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	prev := c.Classify(0)
	for d := 0.1; d < 20; d += 0.1 {
		cur := c.Classify(d)
		if cur > prev {
			t.Fatalf("severity increased with distance: Classify(%v)=%v after %v", d, cur, prev)
		}
		prev = cur
	}
}

func TestClassifierDefaultsForUnsetBands(t *testing.T) {
	c := NewClassifier(ClassifierConfig{})
	if got := c.RetentionCutoffKm(); got != 10.0 {
		t.Fatalf("RetentionCutoffKm = %v, want 10.0", got)
	}
	if got := c.Classify(0.4); got != model.RiskEmergency {
		t.Fatalf("Classify(0.4) = %v, want EMERGENCY", got)
	}
}

func TestClassifierCustomBands(t *testing.T) {
	c := NewClassifier(ClassifierConfig{
		EmergencyKm: 1,
		CriticalKm:  3,
		HighKm:      6,
		HighRiskKm:  12,
	})
	if got := c.Classify(2.5); got != model.RiskCritical {
		t.Fatalf("Classify(2.5) = %v, want CRITICAL", got)
	}
	if got := c.Classify(11); got != model.RiskMedium {
		t.Fatalf("Classify(11) = %v, want MEDIUM", got)
	}
}
