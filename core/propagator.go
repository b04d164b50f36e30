package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// StateVector is an object's position and velocity at one instant,
// TEME frame, kilometres and kilometres per second.
type StateVector struct {
	Position Vec3
	Velocity Vec3
}

// PropagationError reports a per-object, per-instant propagation failure.
// It is always recoverable: the sampler skips the offending instant.
type PropagationError struct {
	NoradID int
	At      time.Time
	Reason  string
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed for %d at %s: %s",
		e.NoradID, e.At.Format(time.RFC3339), e.Reason)
}

// Propagator computes an object's state at a given instant. The engine
// treats this as an opaque capability; the SGP4 implementation below is the
// production one and tests substitute scripted fakes.
type Propagator interface {
	Propagate(obj *model.OrbitalObject, at time.Time) (StateVector, error)
}

// SGP4Propagator propagates objects from their two-line element sets using
// go-satellite. Parsed satellite records are cached per NORAD id and element
// set, since TLE parsing dominates the cost of a single propagation call.
type SGP4Propagator struct {
	mu    sync.Mutex
	cache map[sgp4CacheKey]satellite.Satellite
}

type sgp4CacheKey struct {
	noradID int
	line1   string
}

// NewSGP4Propagator returns an empty-cache SGP4 propagator.
func NewSGP4Propagator() *SGP4Propagator {
	return &SGP4Propagator{cache: make(map[sgp4CacheKey]satellite.Satellite)}
}

// Propagate returns the object's state at the given instant, or a
// *PropagationError when the element set is unusable or the model output
// is degenerate.
func (p *SGP4Propagator) Propagate(obj *model.OrbitalObject, at time.Time) (StateVector, error) {
	sat, err := p.satFor(obj, at)
	if err != nil {
		return StateVector{}, err
	}

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	pos, vel := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	state := StateVector{
		Position: Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: Vec3{X: vel.X, Y: vel.Y, Z: vel.Z},
	}

	// Propagate takes the satellite by value, so SGP4 error codes are not
	// visible here; failures surface as NaN/Inf or implausible magnitudes.
	if !state.Position.IsFinite() || !state.Velocity.IsFinite() {
		return StateVector{}, &PropagationError{NoradID: obj.NoradID, At: at, Reason: "non-finite model output"}
	}
	if mag := state.Position.Norm(); mag < 6200 || mag > 500000 {
		return StateVector{}, &PropagationError{
			NoradID: obj.NoradID, At: at,
			Reason: fmt.Sprintf("implausible position magnitude %.1f km", mag),
		}
	}

	return state, nil
}

func (p *SGP4Propagator) satFor(obj *model.OrbitalObject, at time.Time) (satellite.Satellite, error) {
	if !obj.HasElements() {
		return satellite.Satellite{}, &PropagationError{NoradID: obj.NoradID, At: at, Reason: "missing element set"}
	}
	if err := validateTLELines(obj.Line1, obj.Line2); err != nil {
		return satellite.Satellite{}, &PropagationError{NoradID: obj.NoradID, At: at, Reason: err.Error()}
	}

	key := sgp4CacheKey{noradID: obj.NoradID, line1: obj.Line1}

	p.mu.Lock()
	sat, ok := p.cache[key]
	p.mu.Unlock()
	if ok {
		return sat, nil
	}

	sat = satellite.TLEToSat(obj.Line1, obj.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return satellite.Satellite{}, &PropagationError{
			NoradID: obj.NoradID, At: at,
			Reason: fmt.Sprintf("sgp4 init code=%d %s", sat.Error, sat.ErrorStr),
		}
	}

	p.mu.Lock()
	p.cache[key] = sat
	p.mu.Unlock()
	return sat, nil
}

// validateTLELines rejects malformed element lines before they reach
// go-satellite, which log.Fatals on garbage input.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1'")
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2'")
	}
	return nil
}
