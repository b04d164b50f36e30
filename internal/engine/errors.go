package engine

import (
	"fmt"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// PairAnalysisError reports an unexpected failure analyzing one pair. The
// pair is dropped from the cycle's output; the cycle continues.
type PairAnalysisError struct {
	Pair model.PairKey
	Err  error
}

func (e *PairAnalysisError) Error() string {
	return fmt.Sprintf("pair %s: %v", e.Pair, e.Err)
}

func (e *PairAnalysisError) Unwrap() error { return e.Err }

// BatchError reports a whole-batch failure (e.g. a worker panic). The
// batch's contribution to the cycle is empty; the orchestrator continues
// with the remaining batches.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
