package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// SelectorConfig tunes the pair-pruning heuristics.
type SelectorConfig struct {
	// PriorityCategories always force a pair in when either member
	// belongs to one of them.
	PriorityCategories []string

	// PeriodSimilarity is the fractional orbital-period difference below
	// which two non-priority objects are still paired. Similar periods
	// imply orbit-crossing potential.
	PeriodSimilarity float64
}

// DefaultSelectorConfig matches the catalog categories the ingestion side
// tags as high value.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		PriorityCategories: []string{"stations", "active", "communications"},
		PeriodSimilarity:   0.10,
	}
}

// PairSelector prunes the O(n^2) pair space down to pairs worth the cost of
// trajectory sampling. This is the engine's primary cost control: every
// emitted pair costs O(samples) propagation calls downstream.
type PairSelector struct {
	priority map[string]struct{}
	simil    float64
}

// NewPairSelector builds a selector from config, falling back to defaults
// for zero values.
func NewPairSelector(cfg SelectorConfig) *PairSelector {
	if len(cfg.PriorityCategories) == 0 {
		cfg.PriorityCategories = DefaultSelectorConfig().PriorityCategories
	}
	if cfg.PeriodSimilarity <= 0 {
		cfg.PeriodSimilarity = DefaultSelectorConfig().PeriodSimilarity
	}
	priority := make(map[string]struct{}, len(cfg.PriorityCategories))
	for _, c := range cfg.PriorityCategories {
		priority[c] = struct{}{}
	}
	return &PairSelector{priority: priority, simil: cfg.PeriodSimilarity}
}

// SelectPairs returns every unordered object pair worth analyzing. Each
// pair appears exactly once, never an object with itself, and the output is
// sorted by pair key so a cycle over an unchanged catalog is reproducible.
func (s *PairSelector) SelectPairs(catalog []*model.OrbitalObject) []model.AnalysisPair {
	objects := make([]*model.OrbitalObject, 0, len(catalog))
	seen := make(map[int]struct{}, len(catalog))
	for _, obj := range catalog {
		if obj == nil {
			continue
		}
		// Identity is unique within a snapshot; drop duplicates rather
		// than emitting self-equivalent pairs.
		if _, dup := seen[obj.NoradID]; dup {
			continue
		}
		seen[obj.NoradID] = struct{}{}
		objects = append(objects, obj)
	}

	var pairs []model.AnalysisPair
	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			if s.shouldAnalyze(objects[i], objects[j]) {
				pairs = append(pairs, model.AnalysisPair{A: objects[i], B: objects[j]})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Key() < pairs[j].Key()
	})
	return pairs
}

// PairsWith returns the pairs worth analyzing between target and every
// other catalog object, under the same pruning rules as SelectPairs.
// Targeted sweeps after an element refresh use this instead of paying for
// the full pair space.
func (s *PairSelector) PairsWith(target *model.OrbitalObject, catalog []*model.OrbitalObject) []model.AnalysisPair {
	if target == nil {
		return nil
	}
	var pairs []model.AnalysisPair
	for _, obj := range catalog {
		if obj == nil || obj.NoradID == target.NoradID {
			continue
		}
		if s.shouldAnalyze(target, obj) {
			pairs = append(pairs, model.AnalysisPair{A: target, B: obj})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Key() < pairs[j].Key()
	})
	return pairs
}

// shouldAnalyze applies the pruning rules in precedence order: priority
// categories force inclusion, debris-debris pairs are dropped, then the
// period-similarity proxy decides. Missing period data fails open; a missed
// conjunction costs more than wasted compute.
func (s *PairSelector) shouldAnalyze(a, b *model.OrbitalObject) bool {
	if s.isPriority(a) || s.isPriority(b) {
		return true
	}

	if a.Type == model.ObjectTypeDebris && b.Type == model.ObjectTypeDebris {
		return false
	}

	if a.PeriodMinutes > 0 && b.PeriodMinutes > 0 {
		longer := math.Max(a.PeriodMinutes, b.PeriodMinutes)
		diff := math.Abs(a.PeriodMinutes-b.PeriodMinutes) / longer
		return diff < s.simil
	}

	return true
}

func (s *PairSelector) isPriority(obj *model.OrbitalObject) bool {
	_, ok := s.priority[obj.Category]
	return ok
}
