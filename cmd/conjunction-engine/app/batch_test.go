package app

import (
	"testing"

	"github.com/signalsfoundry/conjunction-engine/model"
)

func TestBatchExitCode(t *testing.T) {
	cases := []struct {
		name  string
		stats model.CycleStats
		want  int
	}{
		{"no threats", model.CycleStats{PairsAnalyzed: 500}, exitNoThreats},
		{"non-critical only", model.CycleStats{ThreatsFound: 3, HighThreats: 2}, exitThreatsFound},
		{"critical present", model.CycleStats{ThreatsFound: 3, CriticalThreats: 1}, exitCriticalThreats},
		{"critical without others", model.CycleStats{ThreatsFound: 1, CriticalThreats: 1}, exitCriticalThreats},
	}
	for _, tc := range cases {
		if got := batchExitCode(tc.stats); got != tc.want {
			t.Errorf("%s: batchExitCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}
