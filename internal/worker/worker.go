// Package worker drains the shared task queue. Items arrive from the
// ingestion side (element refreshes) and from operators (targeted
// collision checks); failures are retried up to the queue's ceiling and
// then parked on the dead-letter list for inspection.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/conjunction-engine/internal/clock"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/observability"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// ElementSource fetches fresh orbital elements for one object. The
// production implementation talks to the upstream catalog service.
type ElementSource interface {
	FetchElements(ctx context.Context, noradID int) (*model.OrbitalObject, error)
}

// Sweeper runs a targeted conjunction sweep for one object.
type Sweeper interface {
	CheckObject(ctx context.Context, noradID int) (int, error)
}

// Config carries the worker loop timing. Zero values fall back to the
// operational defaults.
type Config struct {
	// PollInterval is the idle pause when the queue is empty.
	PollInterval time.Duration

	// ErrorBackoff is the pause after a queue-level failure, e.g. the
	// store being unreachable. Item-level failures do not pause the loop.
	ErrorBackoff time.Duration
}

// DefaultConfig returns the worker timing the engine ships with.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		ErrorBackoff: 60 * time.Second,
	}
}

// Worker consumes work items one at a time until its context is
// cancelled. Multiple workers may drain the same queue; the queue pop is
// atomic so items are never processed twice concurrently.
type Worker struct {
	id        string
	queue     *store.TaskQueue
	catalog   *store.CatalogStore
	elements  ElementSource
	sweeper   Sweeper
	collector *observability.EngineCollector
	clk       clock.Clock
	cfg       Config
	log       logging.Logger
}

// New builds a worker with a generated identity. collector may be nil;
// clk may be nil for wall-clock time.
func New(queue *store.TaskQueue, catalog *store.CatalogStore, elements ElementSource, sweeper Sweeper, collector *observability.EngineCollector, clk clock.Clock, cfg Config, log logging.Logger) *Worker {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logging.Noop()
	}
	id := "worker-" + uuid.NewString()[:8]
	return &Worker{
		id:        id,
		queue:     queue,
		catalog:   catalog,
		elements:  elements,
		sweeper:   sweeper,
		collector: collector,
		clk:       clk,
		cfg:       cfg,
		log:       log.With(logging.String("worker_id", id)),
	}
}

// ID returns the worker's generated identity, recorded on completion
// markers.
func (w *Worker) ID() string { return w.id }

// Run drains the queue until ctx is cancelled. An empty queue pauses the
// loop for the poll interval; a queue-level error pauses it for the error
// backoff. The item in flight when cancellation arrives is finished before
// the loop returns.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info(ctx, "worker started")
	for {
		if err := ctx.Err(); err != nil {
			w.log.Info(ctx, "worker stopping")
			return err
		}

		item, ok, err := w.queue.Pop(ctx)
		if err != nil {
			w.log.Error(ctx, "queue pop failed", logging.Err(err))
			if !w.pause(ctx, w.cfg.ErrorBackoff) {
				return ctx.Err()
			}
			continue
		}
		if !ok {
			if !w.pause(ctx, w.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		w.Process(ctx, item)
	}
}

// processTimeout bounds a single item once it has been popped. It has to
// outlast an element fetch with retries and a single-object sweep.
const processTimeout = 2 * time.Minute

// Process handles a single item end to end: dispatch, then completion
// marker on success or retry/dead-letter bookkeeping on failure. Errors
// never escape; the item's fate is recorded on the queue.
//
// A popped item exists nowhere but in this worker's memory, so shutdown
// must not interrupt it: Process runs detached from ctx's cancellation,
// bounded by processTimeout, and the item is requeued or dead-lettered
// before Run returns.
func (w *Worker) Process(ctx context.Context, item model.WorkItem) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
	defer cancel()

	log := w.log.With(
		logging.String("task_id", item.ID),
		logging.String("task_type", item.Type),
		logging.Int("norad_id", item.NoradID),
	)

	if err := w.dispatch(ctx, item); err != nil {
		w.recordTask(item.Type, "error")
		requeued, qerr := w.queue.Fail(ctx, item, err)
		if qerr != nil {
			log.Error(ctx, "failed to record task failure", logging.Err(qerr))
			return
		}
		if requeued {
			if w.collector != nil {
				w.collector.TasksRequeued.Inc()
			}
			log.Warn(ctx, "task failed, requeued",
				logging.Err(err), logging.Int("retry_count", item.RetryCount+1))
		} else {
			if w.collector != nil {
				w.collector.DeadLetters.Inc()
			}
			log.Error(ctx, "task failed permanently, dead-lettered", logging.Err(err))
		}
		return
	}

	if err := w.queue.Complete(ctx, item, w.id); err != nil {
		// The work succeeded; a missing completion marker only costs a
		// redundant re-run if the item is ever enqueued again.
		log.Warn(ctx, "failed to record task completion", logging.Err(err))
	}
	w.recordTask(item.Type, "ok")
	log.Info(ctx, "task complete")
}

func (w *Worker) dispatch(ctx context.Context, item model.WorkItem) error {
	switch item.Type {
	case model.TaskRefreshElements:
		return w.refreshElements(ctx, item.NoradID)
	case model.TaskCollisionCheck:
		return w.collisionCheck(ctx, item.NoradID)
	default:
		return fmt.Errorf("unknown task type %q", item.Type)
	}
}

func (w *Worker) refreshElements(ctx context.Context, noradID int) error {
	if w.elements == nil {
		return fmt.Errorf("no element source configured")
	}
	obj, err := w.elements.FetchElements(ctx, noradID)
	if err != nil {
		return fmt.Errorf("fetch elements for %d: %w", noradID, err)
	}
	if err := w.catalog.PutObject(ctx, obj); err != nil {
		return fmt.Errorf("store elements for %d: %w", noradID, err)
	}
	return nil
}

func (w *Worker) collisionCheck(ctx context.Context, noradID int) error {
	if w.sweeper == nil {
		return fmt.Errorf("no sweeper configured")
	}
	threats, err := w.sweeper.CheckObject(ctx, noradID)
	if err != nil {
		return err
	}
	w.log.Info(ctx, "collision check complete",
		logging.Int("norad_id", noradID), logging.Int("threats", threats))
	return nil
}

// pause waits for d or cancellation, reporting false on cancellation.
func (w *Worker) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.clk.After(d):
		return true
	}
}

func (w *Worker) recordTask(taskType, outcome string) {
	if w.collector != nil {
		w.collector.RecordTask(taskType, outcome)
	}
}

// NewWorkItem builds a queue item with a fresh identity.
func NewWorkItem(taskType string, noradID int) model.WorkItem {
	return model.WorkItem{
		ID:         uuid.NewString(),
		Type:       taskType,
		NoradID:    noradID,
		EnqueuedAt: time.Now().UTC(),
	}
}
