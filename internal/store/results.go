package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// Result store key layout. Writers overwrite; readers always see the last
// successfully persisted snapshot even while the current cycle is failing.
const (
	currentSnapshotKey  = "threats:batch:current"
	historicalKeyPrefix = "batch_analysis:"
	alertKeyPrefix      = "alert:batch:"
	alertQueueKey       = "alerts:critical"
	reportKeyPrefix     = "threat_report:"
)

// ResultTTLs bounds the lifetime of each persisted granularity.
type ResultTTLs struct {
	Current    time.Duration
	Historical time.Duration
	Alert      time.Duration
	Report     time.Duration
}

// DefaultResultTTLs matches the store lifetimes the rest of the tracking
// system expects.
func DefaultResultTTLs() ResultTTLs {
	return ResultTTLs{
		Current:    24 * time.Hour,
		Historical: 7 * 24 * time.Hour,
		Alert:      3 * 24 * time.Hour,
		Report:     30 * 24 * time.Hour,
	}
}

// Snapshot is one persisted threat listing plus its provenance. The
// embedded analysis time makes staleness observable to consumers.
type Snapshot struct {
	Threats      []model.ThreatRecord `json:"threats"`
	Stats        model.CycleStats     `json:"stats"`
	CycleID      string               `json:"cycle_id"`
	AnalysisTime time.Time            `json:"analysis_time"`
	TotalThreats int                  `json:"total_threats"`
}

// ResultStore persists ranked threat lists, alerts and reports.
type ResultStore struct {
	kv   KeyValueStore
	ttls ResultTTLs
}

// NewResultStore wraps a key-value store. Zero TTL fields fall back to
// defaults.
func NewResultStore(kv KeyValueStore, ttls ResultTTLs) *ResultStore {
	def := DefaultResultTTLs()
	if ttls.Current <= 0 {
		ttls.Current = def.Current
	}
	if ttls.Historical <= 0 {
		ttls.Historical = def.Historical
	}
	if ttls.Alert <= 0 {
		ttls.Alert = def.Alert
	}
	if ttls.Report <= 0 {
		ttls.Report = def.Report
	}
	return &ResultStore{kv: kv, ttls: ttls}
}

// SaveCurrentSnapshot overwrites the short-lived "current threats" view.
func (r *ResultStore) SaveCurrentSnapshot(ctx context.Context, snap Snapshot) error {
	return r.setJSON(ctx, currentSnapshotKey, snap, r.ttls.Current)
}

// CurrentSnapshot returns the last persisted current view.
func (r *ResultStore) CurrentSnapshot(ctx context.Context) (Snapshot, bool, error) {
	var snap Snapshot
	ok, err := r.getJSON(ctx, currentSnapshotKey, &snap)
	return snap, ok, err
}

// SaveHistoricalSnapshot persists the larger per-cycle listing under a key
// derived from the cycle's start time.
func (r *ResultStore) SaveHistoricalSnapshot(ctx context.Context, snap Snapshot) error {
	key := historicalKeyPrefix + snap.AnalysisTime.UTC().Format("20060102_150405")
	return r.setJSON(ctx, key, snap, r.ttls.Historical)
}

// SaveAlert stores the alert under its pair key (overwriting any previous
// alert for the same conjunction) and pushes it onto the alert queue for
// the notification consumer. The per-pair key is what bounds alert-store
// growth across cycles.
func (r *ResultStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", alert.DedupKey, err)
	}
	if err := r.kv.Set(ctx, alertKeyPrefix+string(alert.Threat.Pair), raw, r.ttls.Alert); err != nil {
		return err
	}
	return r.kv.ListPush(ctx, alertQueueKey, raw)
}

// RecentAlerts lists the live per-pair alerts.
func (r *ResultStore) RecentAlerts(ctx context.Context) ([]model.Alert, error) {
	keys, err := r.kv.Keys(ctx, alertKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	alerts := make([]model.Alert, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := r.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var alert model.Alert
		if err := json.Unmarshal(raw, &alert); err != nil {
			continue // tolerate records written by older formats
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// SaveReport persists the cycle-level audit report under the report date.
func (r *ResultStore) SaveReport(ctx context.Context, report model.ThreatReport) error {
	key := reportKeyPrefix + report.ReportTime.UTC().Format("20060102")
	return r.setJSON(ctx, key, report, r.ttls.Report)
}

// Report loads the report for a YYYYMMDD date.
func (r *ResultStore) Report(ctx context.Context, date string) (model.ThreatReport, bool, error) {
	var report model.ThreatReport
	ok, err := r.getJSON(ctx, reportKeyPrefix+date, &report)
	return report, ok, err
}

// Ping reports store reachability for health checks.
func (r *ResultStore) Ping(ctx context.Context) error {
	return r.kv.Ping(ctx)
}

func (r *ResultStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.kv.Set(ctx, key, raw, ttl)
}

func (r *ResultStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := r.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
