package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// PipelineConfig sizes the persisted views and controls alert escalation.
type PipelineConfig struct {
	CurrentTopN    int
	HistoricalTopN int
	ReportTopN     int

	// AlertLevel is the minimum level that produces an alert.
	AlertLevel model.RiskLevel

	// DedupStep rounds the closest-approach time inside alert dedup keys
	// so re-detections of an unchanged conjunction overwrite rather than
	// duplicate. Normally the sampling step.
	DedupStep time.Duration
}

// DefaultPipelineConfig returns the operational sizing.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CurrentTopN:    100,
		HistoricalTopN: 1000,
		ReportTopN:     20,
		AlertLevel:     model.RiskCritical,
		DedupStep:      5 * time.Minute,
	}
}

// Pipeline turns a cycle's raw threat records into the persisted views:
// ranked snapshots, per-pair alerts, and the audit report.
type Pipeline struct {
	results *store.ResultStore
	cfg     PipelineConfig
	log     logging.Logger
}

// NewPipeline builds a pipeline, substituting defaults for zero config
// fields.
func NewPipeline(results *store.ResultStore, cfg PipelineConfig, log logging.Logger) *Pipeline {
	def := DefaultPipelineConfig()
	if cfg.CurrentTopN <= 0 {
		cfg.CurrentTopN = def.CurrentTopN
	}
	if cfg.HistoricalTopN <= 0 {
		cfg.HistoricalTopN = def.HistoricalTopN
	}
	if cfg.ReportTopN <= 0 {
		cfg.ReportTopN = def.ReportTopN
	}
	if cfg.AlertLevel == 0 {
		cfg.AlertLevel = def.AlertLevel
	}
	if cfg.DedupStep <= 0 {
		cfg.DedupStep = def.DedupStep
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Pipeline{results: results, cfg: cfg, log: log}
}

// SortThreats orders records by severity descending, then distance
// ascending. This is the engine's only guaranteed global ordering.
func SortThreats(threats []model.ThreatRecord) {
	sort.SliceStable(threats, func(i, j int) bool {
		if threats[i].Level != threats[j].Level {
			return threats[i].Level > threats[j].Level
		}
		return threats[i].Approach.DistanceKm < threats[j].Approach.DistanceKm
	})
}

// Publish sorts the cycle's records and persists every view. A store
// failure is fatal to the publish step; the caller treats it as a cycle
// failure.
func (p *Pipeline) Publish(ctx context.Context, cycleStart time.Time, window time.Duration, threats []model.ThreatRecord, stats model.CycleStats) error {
	SortThreats(threats)

	cycleID := logging.CycleIDFromContext(ctx)
	stats.ElapsedSeconds = stats.Elapsed.Seconds()

	current := store.Snapshot{
		Threats:      topN(threats, p.cfg.CurrentTopN),
		Stats:        stats,
		CycleID:      cycleID,
		AnalysisTime: cycleStart,
		TotalThreats: len(threats),
	}
	if err := p.results.SaveCurrentSnapshot(ctx, current); err != nil {
		return err
	}

	historical := current
	historical.Threats = topN(threats, p.cfg.HistoricalTopN)
	if err := p.results.SaveHistoricalSnapshot(ctx, historical); err != nil {
		return err
	}

	for _, threat := range threats {
		if threat.Level < p.cfg.AlertLevel {
			continue
		}
		alert := p.buildAlert(threat)
		if err := p.results.SaveAlert(ctx, alert); err != nil {
			return err
		}
		p.log.Warn(ctx, "conjunction alert",
			logging.String("level", threat.Level.String()),
			logging.String("pair", string(threat.Pair)),
			logging.String("object1", threat.Object1.Name),
			logging.String("object2", threat.Object2.Name),
			logging.Float("distance_km", threat.Approach.DistanceKm),
		)
	}

	report := p.buildReport(cycleID, cycleStart, window, threats, stats)
	if err := p.results.SaveReport(ctx, report); err != nil {
		return err
	}

	p.log.Info(ctx, "cycle results published",
		logging.Int("threats", len(threats)),
		logging.Int("critical", stats.CriticalThreats),
		logging.Int("high", stats.HighThreats),
	)
	return nil
}

// PublishAlerts raises alerts for qualifying threats without touching the
// snapshot or report views. Targeted single-object sweeps use it so they
// cannot clobber the last full cycle's published results.
func (p *Pipeline) PublishAlerts(ctx context.Context, threats []model.ThreatRecord) (int, error) {
	published := 0
	for _, threat := range threats {
		if threat.Level < p.cfg.AlertLevel {
			continue
		}
		if err := p.results.SaveAlert(ctx, p.buildAlert(threat)); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (p *Pipeline) buildAlert(threat model.ThreatRecord) model.Alert {
	rounded := threat.Approach.At.UTC().Truncate(p.cfg.DedupStep)
	return model.Alert{
		Type:      "batch_collision_threat",
		Severity:  threat.Level.String(),
		Threat:    threat,
		CreatedAt: time.Now().UTC(),
		DedupKey:  fmt.Sprintf("%s@%s", threat.Pair, rounded.Format(time.RFC3339)),
	}
}

func (p *Pipeline) buildReport(cycleID string, cycleStart time.Time, window time.Duration, threats []model.ThreatRecord, stats model.CycleStats) model.ThreatReport {
	var summary model.ThreatSummary
	stationThreats := 0
	for _, t := range threats {
		switch t.Level {
		case model.RiskEmergency:
			summary.Emergency++
		case model.RiskCritical:
			summary.Critical++
		case model.RiskHigh:
			summary.High++
		case model.RiskMedium:
			summary.Medium++
		default:
			summary.Low++
		}
		if t.Object1.Category == "stations" || t.Object2.Category == "stations" {
			stationThreats++
		}
	}

	return model.ThreatReport{
		ReportTime:         time.Now().UTC(),
		CycleID:            cycleID,
		AnalysisStart:      cycleStart,
		AnalysisWindowDays: window.Hours() / 24,
		Statistics:         stats,
		Summary:            summary,
		TopThreats:         topN(threats, p.cfg.ReportTopN),
		Recommendations:    recommendations(summary, stats, stationThreats),
	}
}

// recommendations derives operator guidance purely from counts; there is
// no model behind these sentences.
func recommendations(summary model.ThreatSummary, stats model.CycleStats, stationThreats int) []string {
	var recs []string

	critical := summary.Emergency + summary.Critical
	if critical > 0 {
		recs = append(recs, fmt.Sprintf(
			"URGENT: %d critical collision threats detected. Immediate action required for affected satellites.",
			critical))
	}
	if stats.HighThreats > 10 {
		recs = append(recs,
			"High number of collision risks detected. Consider implementing automated collision avoidance maneuvers.")
	}
	if stationThreats > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d threats involve space stations. Priority monitoring and coordination with station operators recommended.",
			stationThreats))
	}
	return recs
}

func topN(threats []model.ThreatRecord, n int) []model.ThreatRecord {
	if len(threats) <= n {
		return threats
	}
	return threats[:n]
}
