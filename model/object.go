package model

import (
	"fmt"
	"time"
)

// ObjectType distinguishes payloads from debris in the tracked catalog.
type ObjectType int

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypePayload
	ObjectTypeDebris
)

// ParseObjectType maps catalog OBJECT_TYPE strings onto an ObjectType.
func ParseObjectType(s string) ObjectType {
	switch s {
	case "PAYLOAD":
		return ObjectTypePayload
	case "DEBRIS":
		return ObjectTypeDebris
	default:
		return ObjectTypeUnknown
	}
}

func (t ObjectType) String() string {
	switch t {
	case ObjectTypePayload:
		return "PAYLOAD"
	case ObjectTypeDebris:
		return "DEBRIS"
	default:
		return "UNKNOWN"
	}
}

// OrbitalObject is one tracked object in a catalog snapshot. Objects are
// immutable once stored for a refresh cycle; the next refresh supersedes
// them rather than mutating in place.
type OrbitalObject struct {
	NoradID  int        `json:"norad_id"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Type     ObjectType `json:"object_type"`

	// Element set, opaque to the engine beyond being passable to a
	// Propagator.
	Line1 string `json:"tle_line1"`
	Line2 string `json:"tle_line2"`

	// PeriodMinutes is the orbital period when the catalog carries it.
	// Zero means unknown; the pair selector fails open in that case.
	PeriodMinutes float64 `json:"period_minutes,omitempty"`

	RefreshedAt time.Time `json:"refreshed_at"`
}

// HasElements reports whether the object carries a usable element set.
func (o *OrbitalObject) HasElements() bool {
	return o != nil && o.Line1 != "" && o.Line2 != ""
}

// ObjectRef is the identity slice of an OrbitalObject embedded in threat
// records and alerts.
type ObjectRef struct {
	NoradID  int    `json:"norad_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Ref returns the identity slice of the object.
func (o *OrbitalObject) Ref() ObjectRef {
	return ObjectRef{NoradID: o.NoradID, Name: o.Name, Category: o.Category}
}

// PairKey is the canonical key of an unordered object pair: the numerically
// smaller NORAD id always comes first, so (a,b) and (b,a) share a key.
type PairKey string

// NewPairKey builds the canonical key for two object identities.
func NewPairKey(a, b int) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey(fmt.Sprintf("%d:%d", a, b))
}

// AnalysisPair is an unordered pair of two distinct catalog objects
// selected for trajectory analysis.
type AnalysisPair struct {
	A *OrbitalObject
	B *OrbitalObject
}

// Key returns the canonical pair key.
func (p AnalysisPair) Key() PairKey {
	return NewPairKey(p.A.NoradID, p.B.NoradID)
}
