package core

import (
	"testing"

	"github.com/signalsfoundry/conjunction-engine/model"
)

func payload(id int, category string, period float64) *model.OrbitalObject {
	return &model.OrbitalObject{
		NoradID:       id,
		Name:          "OBJ",
		Category:      category,
		Type:          model.ObjectTypePayload,
		PeriodMinutes: period,
	}
}

func debris(id int, period float64) *model.OrbitalObject {
	obj := payload(id, "debris", period)
	obj.Type = model.ObjectTypeDebris
	return obj
}

func TestSelectPairsNeverEmitsDebrisDebris(t *testing.T) {
	s := NewPairSelector(DefaultSelectorConfig())
	catalog := []*model.OrbitalObject{
		debris(100, 92.0),
		debris(200, 92.1),
		debris(300, 92.2),
	}

	pairs := s.SelectPairs(catalog)
	if len(pairs) != 0 {
		t.Fatalf("expected no debris-debris pairs, got %d", len(pairs))
	}
}

func TestSelectPairsNeverEmitsSelfPairs(t *testing.T) {
	s := NewPairSelector(DefaultSelectorConfig())
	catalog := []*model.OrbitalObject{
		payload(100, "stations", 92.0),
		payload(100, "stations", 92.0),
		payload(200, "active", 95.0),
	}

	pairs := s.SelectPairs(catalog)
	for _, p := range pairs {
		if p.A.NoradID == p.B.NoradID {
			t.Fatalf("self pair emitted: %s", p.Key())
		}
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair after deduplication, got %d", len(pairs))
	}
}

func TestSelectPairsPriorityForcesInclusion(t *testing.T) {
	s := NewPairSelector(DefaultSelectorConfig())
	// A station and a piece of debris with a wildly different period:
	// only the priority category keeps this pair in.
	catalog := []*model.OrbitalObject{
		payload(100, "stations", 92.0),
		debris(200, 1436.0),
	}

	pairs := s.SelectPairs(catalog)
	if len(pairs) != 1 {
		t.Fatalf("expected priority pair to be selected, got %d pairs", len(pairs))
	}
	if pairs[0].Key() != model.NewPairKey(100, 200) {
		t.Fatalf("unexpected pair key %s", pairs[0].Key())
	}
}

func TestSelectPairsPeriodSimilarity(t *testing.T) {
	s := NewPairSelector(SelectorConfig{
		PriorityCategories: []string{"stations"},
		PeriodSimilarity:   0.10,
	})

	similar := []*model.OrbitalObject{
		payload(100, "weather", 100.0),
		payload(200, "weather", 105.0),
	}
	if pairs := s.SelectPairs(similar); len(pairs) != 1 {
		t.Fatalf("expected similar-period pair to be selected, got %d", len(pairs))
	}

	dissimilar := []*model.OrbitalObject{
		payload(100, "weather", 100.0),
		payload(200, "weather", 200.0),
	}
	if pairs := s.SelectPairs(dissimilar); len(pairs) != 0 {
		t.Fatalf("expected dissimilar-period pair to be pruned, got %d", len(pairs))
	}
}

func TestSelectPairsMissingPeriodFailsOpen(t *testing.T) {
	s := NewPairSelector(SelectorConfig{
		PriorityCategories: []string{"stations"},
		PeriodSimilarity:   0.10,
	})
	catalog := []*model.OrbitalObject{
		payload(100, "weather", 0),
		payload(200, "weather", 500.0),
	}

	pairs := s.SelectPairs(catalog)
	if len(pairs) != 1 {
		t.Fatalf("expected pair with unknown period to be selected, got %d", len(pairs))
	}
}

func TestSelectPairsOrderIsReproducible(t *testing.T) {
	s := NewPairSelector(DefaultSelectorConfig())
	catalog := []*model.OrbitalObject{
		payload(300, "stations", 92.0),
		payload(100, "stations", 92.0),
		payload(200, "stations", 92.0),
	}

	first := s.SelectPairs(catalog)
	second := s.SelectPairs(catalog)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 pairs, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Key() != second[i].Key() {
			t.Fatalf("pair order differs at %d: %s vs %s", i, first[i].Key(), second[i].Key())
		}
		if i > 0 && first[i].Key() < first[i-1].Key() {
			t.Fatalf("pairs not sorted: %s before %s", first[i-1].Key(), first[i].Key())
		}
	}
}

func TestPairsWithAppliesPruningRules(t *testing.T) {
	s := NewPairSelector(DefaultSelectorConfig())
	target := debris(100, 92.0)
	catalog := []*model.OrbitalObject{
		target,
		debris(200, 92.1),              // debris-debris, pruned
		payload(300, "stations", 95.0), // priority, kept
		payload(400, "weather", 93.0),  // similar period, kept
		payload(500, "weather", 300.0), // dissimilar, pruned
	}

	pairs := s.PairsWith(target, catalog)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	for _, p := range pairs {
		if p.A.NoradID != 100 && p.B.NoradID != 100 {
			t.Fatalf("pair %s does not involve target", p.Key())
		}
		if p.A.NoradID == p.B.NoradID {
			t.Fatalf("self pair emitted: %s", p.Key())
		}
	}
}
