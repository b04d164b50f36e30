package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/clock"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/observability"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// EngineConfig carries the loop-level knobs. Zero durations fall back to
// the operational defaults.
type EngineConfig struct {
	// AnalysisWindow is how far ahead each cycle looks.
	AnalysisWindow time.Duration

	// AnalysisInterval is the pause between successful cycles.
	AnalysisInterval time.Duration

	// ErrorBackoff is the initial pause after a failed cycle. Repeated
	// failures back off exponentially from here.
	ErrorBackoff time.Duration
}

// DefaultEngineConfig returns the loop timing the engine ships with.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AnalysisWindow:   14 * 24 * time.Hour,
		AnalysisInterval: 5 * time.Minute,
		ErrorBackoff:     60 * time.Second,
	}
}

// Engine runs complete analysis cycles: load the catalog, select pairs,
// sample and classify them, publish the results.
type Engine struct {
	catalog   *store.CatalogStore
	selector  *core.PairSelector
	orch      *Orchestrator
	pipeline  *Pipeline
	collector *observability.EngineCollector
	clk       clock.Clock
	cfg       EngineConfig
	log       logging.Logger
}

// NewEngine wires a full analysis engine. collector may be nil when the
// caller does not export metrics; clk may be nil for wall-clock time.
func NewEngine(catalog *store.CatalogStore, selector *core.PairSelector, orch *Orchestrator, pipeline *Pipeline, collector *observability.EngineCollector, clk clock.Clock, cfg EngineConfig, log logging.Logger) *Engine {
	def := DefaultEngineConfig()
	if cfg.AnalysisWindow <= 0 {
		cfg.AnalysisWindow = def.AnalysisWindow
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = def.AnalysisInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{
		catalog:   catalog,
		selector:  selector,
		orch:      orch,
		pipeline:  pipeline,
		collector: collector,
		clk:       clk,
		cfg:       cfg,
		log:       log,
	}
}

// RunOnce executes a single analysis cycle and persists its results. The
// returned stats are valid even when err is non-nil, so callers can report
// partial progress from a failed cycle.
func (e *Engine) RunOnce(ctx context.Context) (model.CycleStats, error) {
	start := e.clk.Now().UTC()
	cycleID := start.Format("20060102_150405")
	ctx, log := logging.WithCycleLogger(ctx, e.log, cycleID)

	log.Info(ctx, "analysis cycle starting")

	catalog, err := e.catalog.GetCatalog(ctx)
	if err != nil {
		stats := model.CycleStats{}
		e.record(stats, nil, err)
		return stats, fmt.Errorf("load catalog: %w", err)
	}
	if e.collector != nil {
		e.collector.CatalogObjects.Set(float64(len(catalog)))
	}

	pairs := e.selector.SelectPairs(catalog)
	log.Info(ctx, "pairs selected",
		logging.Int("objects", len(catalog)),
		logging.Int("pairs", len(pairs)))

	windowEnd := start.Add(e.cfg.AnalysisWindow)
	threats, stats := e.orch.RunCycle(ctx, pairs, start, windowEnd)
	stats.TotalObjects = len(catalog)
	stats.Elapsed = e.clk.Now().UTC().Sub(start)
	stats.ElapsedSeconds = stats.Elapsed.Seconds()

	if err := e.pipeline.Publish(ctx, start, e.cfg.AnalysisWindow, threats, stats); err != nil {
		e.record(stats, threats, err)
		return stats, fmt.Errorf("publish cycle %s: %w", cycleID, err)
	}

	e.record(stats, threats, nil)
	log.Info(ctx, "analysis cycle complete",
		logging.Int("threats", stats.ThreatsFound),
		logging.Int("critical", stats.CriticalThreats),
		logging.Float("elapsed_s", stats.ElapsedSeconds))
	return stats, nil
}

// Run executes cycles until ctx is cancelled. Successful cycles repeat at
// the configured interval; after a failure the loop backs off, growing the
// pause exponentially until a cycle succeeds again.
func (e *Engine) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.ErrorBackoff
	bo.MaxInterval = 10 * e.cfg.ErrorBackoff
	bo.Reset()

	for {
		pause := e.cfg.AnalysisInterval
		if _, err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pause = bo.NextBackOff()
			e.log.Error(ctx, "analysis cycle failed",
				logging.Err(err),
				logging.Float("retry_in_s", pause.Seconds()))
		} else {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clk.After(pause):
		}
	}
}

// CheckObject sweeps one object against the rest of the catalog and raises
// alerts for qualifying approaches. It returns the number of threats found.
// The snapshot and report views are the full cycle's responsibility and are
// left untouched.
func (e *Engine) CheckObject(ctx context.Context, noradID int) (int, error) {
	target, ok, err := e.catalog.GetObject(ctx, noradID)
	if err != nil {
		return 0, fmt.Errorf("load object %d: %w", noradID, err)
	}
	if !ok {
		return 0, fmt.Errorf("object %d not in catalog", noradID)
	}

	catalog, err := e.catalog.GetCatalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}

	start := e.clk.Now().UTC()
	ctx, _ = logging.WithCycleLogger(ctx, e.log, start.Format("20060102_150405"))

	pairs := e.selector.PairsWith(target, catalog)
	threats, _ := e.orch.RunCycle(ctx, pairs, start, start.Add(e.cfg.AnalysisWindow))
	if _, err := e.pipeline.PublishAlerts(ctx, threats); err != nil {
		return len(threats), fmt.Errorf("publish alerts for object %d: %w", noradID, err)
	}
	return len(threats), nil
}

func (e *Engine) record(stats model.CycleStats, threats []model.ThreatRecord, err error) {
	if e.collector != nil {
		e.collector.RecordCycle(stats, threats, err)
	}
}
