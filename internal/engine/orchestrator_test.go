package engine

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// positionPropagator places each object at a fixed point, so pair
// distances are exact and independent of the sampling instant.
type positionPropagator struct {
	positions map[int]core.Vec3
}

func (p positionPropagator) Propagate(obj *model.OrbitalObject, _ time.Time) (core.StateVector, error) {
	pos, ok := p.positions[obj.NoradID]
	if !ok {
		panic("unexpected object in propagator")
	}
	return core.StateVector{Position: pos}, nil
}

func station(id int) *model.OrbitalObject {
	return &model.OrbitalObject{NoradID: id, Name: "OBJ", Category: "stations", Type: model.ObjectTypePayload}
}

func pairOf(a, b *model.OrbitalObject) model.AnalysisPair {
	return model.AnalysisPair{A: a, B: b}
}

func testWindow() (time.Time, time.Time) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return start, start.Add(time.Hour)
}

func TestRunCycleClassifiesAndFilters(t *testing.T) {
	a, b, c, d := station(1), station(2), station(3), station(4)
	prop := positionPropagator{positions: map[int]core.Vec3{
		1: {},
		2: {X: 1.5}, // CRITICAL band
		3: {X: 1000},
		4: {X: 1050}, // 50 km apart, beyond retention
	}}
	sampler := core.NewTrajectorySampler(prop, 5*time.Minute)
	o := NewOrchestrator(sampler, core.NewClassifier(core.DefaultClassifierConfig()), 100, 4, nil)

	start, end := testWindow()
	pairs := []model.AnalysisPair{pairOf(a, b), pairOf(c, d)}
	threats, stats := o.RunCycle(context.Background(), pairs, start, end)

	if len(threats) != 1 {
		t.Fatalf("threats = %d, want 1", len(threats))
	}
	got := threats[0]
	if got.Pair != model.NewPairKey(1, 2) {
		t.Fatalf("threat pair = %s, want 1:2", got.Pair)
	}
	if got.Level != model.RiskCritical {
		t.Fatalf("threat level = %v, want CRITICAL", got.Level)
	}
	if got.Approach.DistanceKm != 1.5 {
		t.Fatalf("distance = %v, want 1.5", got.Approach.DistanceKm)
	}
	if !got.WindowStart.Equal(start) || !got.WindowEnd.Equal(end) {
		t.Fatalf("window = [%v, %v]", got.WindowStart, got.WindowEnd)
	}

	if stats.PairsSelected != 2 || stats.PairsAnalyzed != 2 {
		t.Fatalf("stats = %+v, want 2 selected and analyzed", stats)
	}
	if stats.ThreatsFound != 1 || stats.CriticalThreats != 1 || stats.HighThreats != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.FailedBatches != 0 {
		t.Fatalf("FailedBatches = %d, want 0", stats.FailedBatches)
	}
}

func TestRunCycleEmptyPairSet(t *testing.T) {
	sampler := core.NewTrajectorySampler(positionPropagator{}, 5*time.Minute)
	o := NewOrchestrator(sampler, core.NewClassifier(core.DefaultClassifierConfig()), 100, 4, nil)

	start, end := testWindow()
	threats, stats := o.RunCycle(context.Background(), nil, start, end)
	if len(threats) != 0 || stats.PairsAnalyzed != 0 {
		t.Fatalf("empty cycle produced threats=%d analyzed=%d", len(threats), stats.PairsAnalyzed)
	}
}

// erroringPropagator fails every sample for one object and positions the
// rest at fixed points.
type erroringPropagator struct {
	failID    int
	positions map[int]core.Vec3
}

func (p erroringPropagator) Propagate(obj *model.OrbitalObject, at time.Time) (core.StateVector, error) {
	if obj.NoradID == p.failID {
		return core.StateVector{}, &core.PropagationError{NoradID: obj.NoradID, At: at, Reason: "decayed"}
	}
	return core.StateVector{Position: p.positions[obj.NoradID]}, nil
}

func TestRunCycleFailingPairDoesNotAbortBatch(t *testing.T) {
	a, b, c, d := station(1), station(2), station(3), station(4)
	prop := erroringPropagator{failID: 3, positions: map[int]core.Vec3{
		1: {},
		2: {X: 0.3}, // EMERGENCY band
		4: {X: 7},
	}}
	sampler := core.NewTrajectorySampler(prop, 5*time.Minute)
	o := NewOrchestrator(sampler, core.NewClassifier(core.DefaultClassifierConfig()), 100, 4, nil)

	start, end := testWindow()
	pairs := []model.AnalysisPair{pairOf(a, b), pairOf(c, d)}
	threats, stats := o.RunCycle(context.Background(), pairs, start, end)

	if len(threats) != 1 || threats[0].Level != model.RiskEmergency {
		t.Fatalf("threats = %+v, want one EMERGENCY", threats)
	}
	// The failing pair still counts as analyzed; it just yields nothing.
	if stats.PairsAnalyzed != 2 || stats.FailedBatches != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

// panicPropagator panics for one object, poisoning whichever batch holds
// its pair.
type panicPropagator struct {
	panicID   int
	positions map[int]core.Vec3
}

func (p panicPropagator) Propagate(obj *model.OrbitalObject, _ time.Time) (core.StateVector, error) {
	if obj.NoradID == p.panicID {
		panic("corrupt element set")
	}
	return core.StateVector{Position: p.positions[obj.NoradID]}, nil
}

func TestRunCyclePanickedBatchDropped(t *testing.T) {
	a, b, c, d := station(1), station(2), station(3), station(4)
	prop := panicPropagator{panicID: 1, positions: map[int]core.Vec3{
		3: {},
		4: {X: 4.0}, // HIGH band
	}}
	sampler := core.NewTrajectorySampler(prop, 5*time.Minute)
	// Batch size 1: the panicking pair poisons only its own batch.
	o := NewOrchestrator(sampler, core.NewClassifier(core.DefaultClassifierConfig()), 1, 2, nil)

	start, end := testWindow()
	pairs := []model.AnalysisPair{pairOf(a, b), pairOf(c, d)}
	threats, stats := o.RunCycle(context.Background(), pairs, start, end)

	if stats.FailedBatches != 1 {
		t.Fatalf("FailedBatches = %d, want 1", stats.FailedBatches)
	}
	if len(threats) != 1 || threats[0].Pair != model.NewPairKey(3, 4) {
		t.Fatalf("surviving threats = %+v", threats)
	}
	if stats.HighThreats != 1 {
		t.Fatalf("HighThreats = %d, want 1", stats.HighThreats)
	}
}

func TestRunCycleIdempotentOverUnchangedInput(t *testing.T) {
	a, b := station(1), station(2)
	prop := positionPropagator{positions: map[int]core.Vec3{1: {}, 2: {X: 0.8}}}
	sampler := core.NewTrajectorySampler(prop, 5*time.Minute)
	o := NewOrchestrator(sampler, core.NewClassifier(core.DefaultClassifierConfig()), 100, 4, nil)

	start, end := testWindow()
	pairs := []model.AnalysisPair{pairOf(a, b)}

	first, _ := o.RunCycle(context.Background(), pairs, start, end)
	second, _ := o.RunCycle(context.Background(), pairs, start, end)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("threats = %d and %d, want 1 each", len(first), len(second))
	}
	if first[0].Pair != second[0].Pair ||
		first[0].Level != second[0].Level ||
		first[0].Approach.DistanceKm != second[0].Approach.DistanceKm ||
		!first[0].Approach.At.Equal(second[0].Approach.At) {
		t.Fatalf("cycles over unchanged input differ: %+v vs %+v", first[0], second[0])
	}
}

func TestPartition(t *testing.T) {
	pairs := make([]model.AnalysisPair, 7)
	batches := partition(pairs, 3)
	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}
	if len(batches[0].pairs) != 3 || len(batches[2].pairs) != 1 {
		t.Fatalf("batch sizes = %d,%d,%d", len(batches[0].pairs), len(batches[1].pairs), len(batches[2].pairs))
	}
	for i, b := range batches {
		if b.index != i {
			t.Fatalf("batch %d has index %d", i, b.index)
		}
	}
}
