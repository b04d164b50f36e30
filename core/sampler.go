package core

import (
	"errors"
	"math"
	"time"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// ErrInsufficientData means every sample in the window failed to propagate,
// or the window was empty: the pair yields no result and is excluded from
// the cycle's output. It is not a pair-analysis failure.
var ErrInsufficientData = errors.New("no valid samples in analysis window")

// TrajectorySampler walks a pair's relative trajectory at a fixed step and
// tracks the running minimum separation. Coarse fixed-step sampling is a
// deliberate trade: cheap, embarrassingly parallel, and faithful to the
// documented behaviour rather than a refinement search.
type TrajectorySampler struct {
	propagator Propagator
	step       time.Duration
}

// NewTrajectorySampler builds a sampler with the given step. Steps at or
// below zero fall back to 5 minutes.
func NewTrajectorySampler(p Propagator, step time.Duration) *TrajectorySampler {
	if step <= 0 {
		step = 5 * time.Minute
	}
	return &TrajectorySampler{propagator: p, step: step}
}

// Step returns the configured sampling step.
func (s *TrajectorySampler) Step() time.Duration { return s.step }

// ClosestApproach samples both objects over [windowStart, windowEnd) and
// returns the minimum separation found. A propagation failure at one
// instant skips that instant only; the pair still yields a minimum over its
// valid samples. ErrInsufficientData is returned when no sample was valid,
// including the windowEnd <= windowStart case.
func (s *TrajectorySampler) ClosestApproach(pair model.AnalysisPair, windowStart, windowEnd time.Time) (model.ClosestApproach, error) {
	result := model.ClosestApproach{DistanceKm: math.Inf(1)}

	var bestVelA, bestVelB Vec3
	var bestHasVel bool

	for t := windowStart; t.Before(windowEnd); t = t.Add(s.step) {
		stateA, errA := s.propagator.Propagate(pair.A, t)
		stateB, errB := s.propagator.Propagate(pair.B, t)
		if errA != nil || errB != nil {
			result.SamplesSkipped++
			continue
		}

		result.SamplesUsed++
		distance := stateA.Position.DistanceTo(stateB.Position)
		if distance < result.DistanceKm {
			result.DistanceKm = distance
			result.At = t
			bestVelA, bestVelB = stateA.Velocity, stateB.Velocity
			bestHasVel = stateA.Velocity.IsFinite() && stateB.Velocity.IsFinite()
		}
	}

	if result.SamplesUsed == 0 {
		return model.ClosestApproach{SamplesSkipped: result.SamplesSkipped}, ErrInsufficientData
	}

	if bestHasVel {
		result.RelativeVelocityKmS = bestVelA.Sub(bestVelB).Norm()
		result.HasVelocity = true
	}
	return result, nil
}
