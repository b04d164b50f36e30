package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// EngineCollector bundles Prometheus metrics for the conjunction analysis
// pipeline and the task-queue worker.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	PairsSelected  prometheus.Gauge
	PairsAnalyzed  prometheus.Counter
	BatchFailures  prometheus.Counter
	ThreatsByLevel *prometheus.GaugeVec

	CatalogObjects prometheus.Gauge

	TasksProcessed *prometheus.CounterVec
	TasksRequeued  prometheus.Counter
	DeadLetters    prometheus.Counter
}

// NewEngineCollector registers engine Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conjunction_cycles_total",
		Help: "Completed analysis cycles, labeled by outcome (ok or error).",
	}, []string{"outcome"})
	cycles, err := registerCounterVec(reg, cycles, "conjunction_cycles_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conjunction_cycle_duration_seconds",
		Help:    "Wall-clock duration of one full analysis cycle.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})
	duration, err = registerHistogram(reg, duration, "conjunction_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	selected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conjunction_pairs_selected",
		Help: "Pairs emitted by the selector in the most recent cycle.",
	}), "conjunction_pairs_selected")
	if err != nil {
		return nil, err
	}

	analyzed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_pairs_analyzed_total",
		Help: "Cumulative pairs run through the trajectory sampler.",
	})
	analyzed, err = registerCounter(reg, analyzed, "conjunction_pairs_analyzed_total")
	if err != nil {
		return nil, err
	}

	batchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_batch_failures_total",
		Help: "Batches whose worker failed; their results were dropped for the cycle.",
	})
	batchFailures, err = registerCounter(reg, batchFailures, "conjunction_batch_failures_total")
	if err != nil {
		return nil, err
	}

	threats := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conjunction_threats",
		Help: "Threat records from the most recent cycle, labeled by risk level.",
	}, []string{"level"})
	threats, err = registerGaugeVec(reg, threats, "conjunction_threats")
	if err != nil {
		return nil, err
	}

	catalogObjects, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conjunction_catalog_objects",
		Help: "Objects loaded from the catalog store in the most recent refresh.",
	}), "conjunction_catalog_objects")
	if err != nil {
		return nil, err
	}

	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conjunction_tasks_processed_total",
		Help: "Task-queue work items processed, labeled by type and outcome.",
	}, []string{"type", "outcome"})
	tasks, err = registerCounterVec(reg, tasks, "conjunction_tasks_processed_total")
	if err != nil {
		return nil, err
	}

	requeued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_tasks_requeued_total",
		Help: "Work items requeued after a failure below the retry ceiling.",
	})
	requeued, err = registerCounter(reg, requeued, "conjunction_tasks_requeued_total")
	if err != nil {
		return nil, err
	}

	dead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_dead_letters_total",
		Help: "Work items moved to the dead-letter store after exhausting retries.",
	})
	dead, err = registerCounter(reg, dead, "conjunction_dead_letters_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:       gatherer,
		CyclesTotal:    cycles,
		CycleDuration:  duration,
		PairsSelected:  selected,
		PairsAnalyzed:  analyzed,
		BatchFailures:  batchFailures,
		ThreatsByLevel: threats,
		CatalogObjects: catalogObjects,
		TasksProcessed: tasks,
		TasksRequeued:  requeued,
		DeadLetters:    dead,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordCycle drives the per-cycle gauges and counters from aggregated
// stats after a cycle completes. Workers never touch the collector
// directly.
func (c *EngineCollector) RecordCycle(stats model.CycleStats, threats []model.ThreatRecord, err error) {
	if c == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if c.CyclesTotal != nil {
		c.CyclesTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		return
	}

	if c.CycleDuration != nil {
		c.CycleDuration.Observe(stats.Elapsed.Seconds())
	}
	if c.PairsSelected != nil {
		c.PairsSelected.Set(float64(stats.PairsSelected))
	}
	if c.PairsAnalyzed != nil {
		c.PairsAnalyzed.Add(float64(stats.PairsAnalyzed))
	}
	if c.BatchFailures != nil {
		c.BatchFailures.Add(float64(stats.FailedBatches))
	}

	if c.ThreatsByLevel != nil {
		counts := make(map[model.RiskLevel]int)
		for _, t := range threats {
			counts[t.Level]++
		}
		for _, level := range []model.RiskLevel{model.RiskLow, model.RiskMedium, model.RiskHigh, model.RiskCritical, model.RiskEmergency} {
			c.ThreatsByLevel.WithLabelValues(level.String()).Set(float64(counts[level]))
		}
	}
}

// RecordTask counts one processed work item.
func (c *EngineCollector) RecordTask(taskType, outcome string) {
	if c == nil || c.TasksProcessed == nil {
		return
	}
	c.TasksProcessed.WithLabelValues(taskType, outcome).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, histogram prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(histogram); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return histogram, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
