package engine

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
	"github.com/signalsfoundry/conjunction-engine/model"
)

func threatAt(a, b int, distance float64, level model.RiskLevel, at time.Time) model.ThreatRecord {
	return model.ThreatRecord{
		Pair:     model.NewPairKey(a, b),
		Object1:  model.ObjectRef{NoradID: a, Name: "A", Category: "active"},
		Object2:  model.ObjectRef{NoradID: b, Name: "B", Category: "active"},
		Approach: model.ClosestApproach{DistanceKm: distance, At: at},
		Level:    level,
	}
}

func TestSortThreatsSeverityThenDistance(t *testing.T) {
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	threats := []model.ThreatRecord{
		threatAt(1, 2, 4.0, model.RiskHigh, at),
		threatAt(3, 4, 0.3, model.RiskEmergency, at),
		threatAt(5, 6, 1.9, model.RiskCritical, at),
		threatAt(7, 8, 1.1, model.RiskCritical, at),
	}

	SortThreats(threats)

	wantOrder := []model.PairKey{"3:4", "7:8", "5:6", "1:2"}
	for i, want := range wantOrder {
		if threats[i].Pair != want {
			t.Fatalf("position %d = %s, want %s", i, threats[i].Pair, want)
		}
	}
}

func publishCtx() context.Context {
	return logging.ContextWithCycleID(context.Background(), "20260301_000000")
}

func TestPublishPersistsAllViews(t *testing.T) {
	kv := store.NewMemoryStore()
	results := store.NewResultStore(kv, store.ResultTTLs{})
	p := NewPipeline(results, DefaultPipelineConfig(), nil)

	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := cycleStart.Add(36 * time.Hour)
	threats := []model.ThreatRecord{
		threatAt(1, 2, 4.0, model.RiskHigh, at),
		threatAt(3, 4, 0.3, model.RiskEmergency, at),
	}
	stats := model.CycleStats{PairsSelected: 2, PairsAnalyzed: 2, ThreatsFound: 2, CriticalThreats: 1, HighThreats: 1}

	if err := p.Publish(publishCtx(), cycleStart, 14*24*time.Hour, threats, stats); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	snap, ok, err := results.CurrentSnapshot(context.Background())
	if err != nil || !ok {
		t.Fatalf("CurrentSnapshot = (%v, %v)", ok, err)
	}
	if snap.CycleID != "20260301_000000" || snap.TotalThreats != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Threats[0].Level != model.RiskEmergency {
		t.Fatalf("snapshot not sorted, first = %v", snap.Threats[0].Level)
	}

	// Only the EMERGENCY threat crosses the alert level.
	alerts, err := results.RecentAlerts(context.Background())
	if err != nil {
		t.Fatalf("RecentAlerts error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != "EMERGENCY" || alerts[0].Type != "batch_collision_threat" {
		t.Fatalf("alert = %+v", alerts[0])
	}

	report, ok, err := results.Report(context.Background(), time.Now().UTC().Format("20060102"))
	if err != nil || !ok {
		t.Fatalf("Report = (%v, %v)", ok, err)
	}
	if report.AnalysisWindowDays != 14 {
		t.Fatalf("AnalysisWindowDays = %v, want 14", report.AnalysisWindowDays)
	}
	if report.Summary.Emergency != 1 || report.Summary.High != 1 {
		t.Fatalf("summary = %+v", report.Summary)
	}
	if len(report.Recommendations) == 0 {
		t.Fatalf("expected recommendations for a critical threat")
	}
}

func TestPublishAlertDedupAcrossCycles(t *testing.T) {
	kv := store.NewMemoryStore()
	results := store.NewResultStore(kv, store.ResultTTLs{})
	p := NewPipeline(results, DefaultPipelineConfig(), nil)

	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := cycleStart.Add(24 * time.Hour)

	// Two cycles re-detect the same conjunction, with the approach time
	// jittering within one sampling step.
	first := []model.ThreatRecord{threatAt(1, 2, 0.4, model.RiskEmergency, at)}
	second := []model.ThreatRecord{threatAt(1, 2, 0.4, model.RiskEmergency, at.Add(90*time.Second))}

	if err := p.Publish(publishCtx(), cycleStart, 14*24*time.Hour, first, model.CycleStats{}); err != nil {
		t.Fatalf("first Publish error: %v", err)
	}
	if err := p.Publish(publishCtx(), cycleStart.Add(5*time.Minute), 14*24*time.Hour, second, model.CycleStats{}); err != nil {
		t.Fatalf("second Publish error: %v", err)
	}

	alerts, err := results.RecentAlerts(context.Background())
	if err != nil {
		t.Fatalf("RecentAlerts error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 per-pair alert after re-detection", len(alerts))
	}

	wantKey := "1:2@" + at.Truncate(5*time.Minute).Format(time.RFC3339)
	if alerts[0].DedupKey != wantKey {
		t.Fatalf("DedupKey = %s, want %s", alerts[0].DedupKey, wantKey)
	}
}

func TestPublishTopNTruncation(t *testing.T) {
	kv := store.NewMemoryStore()
	results := store.NewResultStore(kv, store.ResultTTLs{})
	p := NewPipeline(results, PipelineConfig{CurrentTopN: 2, HistoricalTopN: 3, ReportTopN: 1}, nil)

	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := cycleStart.Add(time.Hour)
	var threats []model.ThreatRecord
	for i := 0; i < 5; i++ {
		threats = append(threats, threatAt(10+i, 20+i, 6.0+float64(i), model.RiskMedium, at))
	}

	if err := p.Publish(publishCtx(), cycleStart, 24*time.Hour, threats, model.CycleStats{}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	snap, ok, _ := results.CurrentSnapshot(context.Background())
	if !ok || len(snap.Threats) != 2 {
		t.Fatalf("current snapshot threats = %d, want 2", len(snap.Threats))
	}
	if snap.TotalThreats != 5 {
		t.Fatalf("TotalThreats = %d, want full count 5", snap.TotalThreats)
	}
}

func TestPublishAlertsOnlyQualifyingLevels(t *testing.T) {
	kv := store.NewMemoryStore()
	results := store.NewResultStore(kv, store.ResultTTLs{})
	p := NewPipeline(results, DefaultPipelineConfig(), nil)

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	threats := []model.ThreatRecord{
		threatAt(1, 2, 7.0, model.RiskMedium, at),
		threatAt(3, 4, 4.0, model.RiskHigh, at),
	}

	published, err := p.PublishAlerts(context.Background(), threats)
	if err != nil {
		t.Fatalf("PublishAlerts error: %v", err)
	}
	if published != 0 {
		t.Fatalf("published = %d, want 0 below the alert level", published)
	}

	published, err = p.PublishAlerts(context.Background(), []model.ThreatRecord{
		threatAt(5, 6, 1.0, model.RiskCritical, at),
	})
	if err != nil || published != 1 {
		t.Fatalf("PublishAlerts = (%d, %v), want 1 alert", published, err)
	}
}

func TestRecommendationsFromCounts(t *testing.T) {
	recs := recommendations(model.ThreatSummary{Emergency: 1, Critical: 2}, model.CycleStats{HighThreats: 11}, 3)
	if len(recs) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(recs))
	}

	if recs := recommendations(model.ThreatSummary{}, model.CycleStats{}, 0); len(recs) != 0 {
		t.Fatalf("quiet cycle produced recommendations: %v", recs)
	}
}
