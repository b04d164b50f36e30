package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel classifies a conjunction by closest-approach distance.
// Ordering is significant: higher values are more severe.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
	RiskEmergency
)

func (l RiskLevel) String() string {
	switch l {
	case RiskEmergency:
		return "EMERGENCY"
	case RiskCritical:
		return "CRITICAL"
	case RiskHigh:
		return "HIGH"
	case RiskMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// MarshalJSON encodes the level as its name so stored records stay
// readable by non-Go consumers.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts a level name.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "EMERGENCY":
		*l = RiskEmergency
	case "CRITICAL":
		*l = RiskCritical
	case "HIGH":
		*l = RiskHigh
	case "MEDIUM":
		*l = RiskMedium
	case "LOW":
		*l = RiskLow
	default:
		return fmt.Errorf("unknown risk level %q", s)
	}
	return nil
}

// Score is a deterministic per-level ranking value. It is a lookup, not a
// collision-probability estimate.
func (l RiskLevel) Score() float64 {
	switch l {
	case RiskEmergency:
		return 1.0
	case RiskCritical:
		return 0.8
	case RiskHigh:
		return 0.6
	case RiskMedium:
		return 0.4
	default:
		return 0.2
	}
}

// ClosestApproach is the minimum separation found when sampling one pair's
// relative trajectory over an analysis window.
type ClosestApproach struct {
	DistanceKm float64   `json:"min_distance_km"`
	At         time.Time `json:"closest_approach_time"`

	// Relative velocity at the minimum-distance instant, recorded only
	// when both velocity vectors were available at that sample.
	RelativeVelocityKmS float64 `json:"relative_velocity_km_s,omitempty"`
	HasVelocity         bool    `json:"has_velocity"`

	SamplesUsed    int `json:"samples_used"`
	SamplesSkipped int `json:"samples_skipped"`
}

// ThreatRecord is one classified conjunction. Records are immutable; the
// next cycle's record for the same pair key supersedes this one.
type ThreatRecord struct {
	Pair    PairKey   `json:"pair_key"`
	Object1 ObjectRef `json:"satellite1"`
	Object2 ObjectRef `json:"satellite2"`

	Approach ClosestApproach `json:"closest_approach"`
	Level    RiskLevel       `json:"threat_level"`

	// Provenance.
	CycleID     string    `json:"cycle_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// Alert is an append-only event derived from a CRITICAL-or-above threat.
type Alert struct {
	Type      string       `json:"type"`
	Severity  string       `json:"severity"`
	Threat    ThreatRecord `json:"threat"`
	CreatedAt time.Time    `json:"created_at"`

	// DedupKey is the pair key plus the closest-approach time rounded to
	// the sampling step, so an unchanged conjunction re-detected next
	// cycle overwrites rather than duplicates.
	DedupKey string `json:"dedup_key"`
}

// CycleStats aggregates counters for one analysis cycle. Counters are
// accumulated by the orchestrator as batches complete, never concurrently
// from worker goroutines.
type CycleStats struct {
	TotalObjects    int           `json:"total_satellites"`
	PairsSelected   int           `json:"pairs_selected"`
	PairsAnalyzed   int           `json:"pairs_analyzed"`
	ThreatsFound    int           `json:"threats_found"`
	CriticalThreats int           `json:"critical_threats"`
	HighThreats     int           `json:"high_threats"`
	FailedBatches   int           `json:"failed_batches"`
	Elapsed         time.Duration `json:"-"`
	ElapsedSeconds  float64       `json:"processing_time_seconds"`
}

// ThreatSummary counts threats per level for a report.
type ThreatSummary struct {
	Emergency int `json:"emergency"`
	Critical  int `json:"critical"`
	High      int `json:"high"`
	Medium    int `json:"medium"`
	Low       int `json:"low"`
}

// ThreatReport is the cycle-level audit document.
type ThreatReport struct {
	ReportTime         time.Time      `json:"report_time"`
	CycleID            string         `json:"cycle_id"`
	AnalysisStart      time.Time      `json:"analysis_start"`
	AnalysisWindowDays float64        `json:"analysis_window_days"`
	Statistics         CycleStats     `json:"statistics"`
	Summary            ThreatSummary  `json:"threat_summary"`
	TopThreats         []ThreatRecord `json:"top_threats"`
	Recommendations    []string       `json:"recommendations"`
}
