package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/config"
	"github.com/signalsfoundry/conjunction-engine/internal/engine"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/observability"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
)

// deps bundles everything the commands share. Each command builds its own
// set so a worker process never wires the pieces only serve needs.
type deps struct {
	cfg       config.Config
	log       logging.Logger
	kv        store.KeyValueStore
	catalog   *store.CatalogStore
	results   *store.ResultStore
	queue     *store.TaskQueue
	collector *observability.EngineCollector
	engine    *engine.Engine
}

func buildDeps(ctx context.Context, cmd *cobra.Command) (*deps, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logging.NewFromEnv()

	kv, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	catalog := store.NewCatalogStore(kv, cfg.CatalogTTL, log)
	results := store.NewResultStore(kv, store.ResultTTLs{
		Current:    cfg.CurrentTTL,
		Historical: cfg.HistoricalTTL,
		Alert:      cfg.AlertTTL,
		Report:     cfg.ReportTTL,
	})
	queue := store.NewTaskQueue(kv, cfg.RetryCeiling)

	sampler := core.NewTrajectorySampler(core.NewSGP4Propagator(), cfg.SampleStep)
	classifier := core.NewClassifier(core.ClassifierConfig{
		EmergencyKm: cfg.EmergencyThresholdKm,
		CriticalKm:  cfg.CriticalThresholdKm,
		HighKm:      cfg.HighThresholdKm,
		HighRiskKm:  cfg.HighRiskThresholdKm,
	})
	selector := core.NewPairSelector(core.SelectorConfig{
		PriorityCategories: cfg.PriorityCategories,
		PeriodSimilarity:   cfg.PeriodSimilarity,
	})

	orch := engine.NewOrchestrator(sampler, classifier, cfg.BatchSize, cfg.MaxWorkers, log)
	pipeline := engine.NewPipeline(results, engine.PipelineConfig{
		CurrentTopN:    cfg.CurrentTopN,
		HistoricalTopN: cfg.HistoricalTopN,
		DedupStep:      cfg.SampleStep,
	}, log)
	eng := engine.NewEngine(catalog, selector, orch, pipeline, collector, nil, engine.EngineConfig{
		AnalysisWindow:   cfg.AnalysisWindow,
		AnalysisInterval: cfg.AnalysisInterval,
		ErrorBackoff:     cfg.ErrorBackoff,
	}, log)

	return &deps{
		cfg:       cfg,
		log:       log,
		kv:        kv,
		catalog:   catalog,
		results:   results,
		queue:     queue,
		collector: collector,
		engine:    eng,
	}, nil
}

func (d *deps) close() {
	if d.kv != nil {
		_ = d.kv.Close()
	}
}
