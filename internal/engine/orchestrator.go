package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const tracerName = "github.com/signalsfoundry/conjunction-engine/internal/engine"

// Orchestrator partitions the selected pair set into fixed-size batches and
// runs them across a bounded pool of workers. Each worker samples and
// classifies its batch sequentially; batches complete in arbitrary order
// and their counters are aggregated here, never incremented concurrently.
type Orchestrator struct {
	sampler    *core.TrajectorySampler
	classifier *core.Classifier
	batchSize  int
	maxWorkers int
	log        logging.Logger
}

// NewOrchestrator builds an orchestrator. Non-positive sizes fall back to
// batch 100 / pool 4.
func NewOrchestrator(sampler *core.TrajectorySampler, classifier *core.Classifier, batchSize, maxWorkers int, log logging.Logger) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Orchestrator{
		sampler:    sampler,
		classifier: classifier,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		log:        log,
	}
}

type batchTask struct {
	index int
	pairs []model.AnalysisPair
}

type batchResult struct {
	index    int
	threats  []model.ThreatRecord
	analyzed int
	err      error
}

// RunCycle analyzes every pair over [windowStart, windowEnd] and returns
// the retained threat records plus aggregated counters. A failing batch
// loses its contribution for this cycle but never aborts the run.
func (o *Orchestrator) RunCycle(ctx context.Context, pairs []model.AnalysisPair, windowStart, windowEnd time.Time) ([]model.ThreatRecord, model.CycleStats) {
	cycleID := logging.CycleIDFromContext(ctx)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.RunCycle",
		trace.WithAttributes(
			attribute.Int("pairs", len(pairs)),
			attribute.String("cycle_id", cycleID),
		))
	defer span.End()

	stats := model.CycleStats{PairsSelected: len(pairs)}
	if len(pairs) == 0 {
		return nil, stats
	}

	batches := partition(pairs, o.batchSize)
	tasks := make(chan batchTask)
	results := make(chan batchResult)

	var wg sync.WaitGroup
	workers := o.maxWorkers
	if workers > len(batches) {
		workers = len(batches)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				results <- o.runBatch(ctx, task, windowStart, windowEnd, cycleID)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, b := range batches {
			select {
			case tasks <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var threats []model.ThreatRecord
	completed := 0
	for result := range results {
		completed++
		if result.err != nil {
			stats.FailedBatches++
			o.log.Error(ctx, "batch failed, dropping its results for this cycle",
				logging.Int("batch", result.index), logging.Err(result.err))
			continue
		}

		threats = append(threats, result.threats...)
		stats.PairsAnalyzed += result.analyzed
		o.log.Info(ctx, "batch complete",
			logging.Int("batch", result.index),
			logging.Int("batches_done", completed),
			logging.Int("batches_total", len(batches)),
			logging.Int("pairs_analyzed", stats.PairsAnalyzed),
			logging.Int("pairs_total", len(pairs)),
		)
	}

	stats.ThreatsFound = len(threats)
	for _, t := range threats {
		switch {
		case t.Level >= model.RiskCritical:
			stats.CriticalThreats++
		case t.Level == model.RiskHigh:
			stats.HighThreats++
		}
	}

	span.SetAttributes(
		attribute.Int("threats", stats.ThreatsFound),
		attribute.Int("failed_batches", stats.FailedBatches),
	)
	return threats, stats
}

// runBatch samples and classifies one batch sequentially. A panic anywhere
// in the batch is converted into a BatchError so one poisoned batch cannot
// take down the cycle.
func (o *Orchestrator) runBatch(ctx context.Context, task batchTask, windowStart, windowEnd time.Time, cycleID string) (result batchResult) {
	result.index = task.index

	defer func() {
		if r := recover(); r != nil {
			result = batchResult{
				index: task.index,
				err:   &BatchError{Batch: task.index, Err: fmt.Errorf("worker panic: %v", r)},
			}
		}
	}()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.runBatch",
		trace.WithAttributes(attribute.Int("batch", task.index), attribute.Int("pairs", len(task.pairs))))
	defer span.End()

	analyzedAt := time.Now().UTC()
	for _, pair := range task.pairs {
		record, err := o.analyzePair(pair, windowStart, windowEnd, cycleID, analyzedAt)
		result.analyzed++
		if err != nil {
			if errors.Is(err, core.ErrInsufficientData) {
				o.log.Debug(ctx, "pair had no valid samples",
					logging.String("pair", string(pair.Key())))
				continue
			}
			// Unexpected per-pair failure: drop the pair, keep the batch.
			o.log.Error(ctx, "pair analysis failed",
				logging.String("pair", string(pair.Key())), logging.Err(err))
			continue
		}
		if record != nil {
			result.threats = append(result.threats, *record)
		}
	}
	return result
}

// analyzePair runs the sampler and classifier for one pair. It returns
// (nil, nil) when the pair's minimum distance is at or above the retention
// cutoff.
func (o *Orchestrator) analyzePair(pair model.AnalysisPair, windowStart, windowEnd time.Time, cycleID string, analyzedAt time.Time) (*model.ThreatRecord, error) {
	approach, err := o.sampler.ClosestApproach(pair, windowStart, windowEnd)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientData) {
			return nil, err
		}
		return nil, &PairAnalysisError{Pair: pair.Key(), Err: err}
	}

	if approach.DistanceKm >= o.classifier.RetentionCutoffKm() {
		return nil, nil
	}

	return &model.ThreatRecord{
		Pair:        pair.Key(),
		Object1:     pair.A.Ref(),
		Object2:     pair.B.Ref(),
		Approach:    approach,
		Level:       o.classifier.Classify(approach.DistanceKm),
		CycleID:     cycleID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		AnalyzedAt:  analyzedAt,
	}, nil
}

func partition(pairs []model.AnalysisPair, size int) []batchTask {
	batches := make([]batchTask, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}
		batches = append(batches, batchTask{index: len(batches), pairs: pairs[start:end]})
	}
	return batches
}
