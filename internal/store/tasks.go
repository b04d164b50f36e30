package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalsfoundry/conjunction-engine/model"
)

const (
	taskQueueKey       = "satellite_update_queue"
	deadLetterKey      = "satellite_update_dlq"
	completedKeyPrefix = "task:completed:"
	completedTTL       = time.Hour
)

// TaskQueue is the shared work-item queue with bounded-retry and
// dead-letter semantics. A failed item is requeued at the tail with its
// retry counter incremented until the ceiling, then moved to the
// dead-letter list and never resubmitted automatically.
type TaskQueue struct {
	kv      KeyValueStore
	ceiling int
}

// NewTaskQueue wraps a key-value store. A negative ceiling falls back to 3.
func NewTaskQueue(kv KeyValueStore, retryCeiling int) *TaskQueue {
	if retryCeiling < 0 {
		retryCeiling = 3
	}
	return &TaskQueue{kv: kv, ceiling: retryCeiling}
}

// RetryCeiling returns the configured retry ceiling.
func (q *TaskQueue) RetryCeiling() int { return q.ceiling }

// Enqueue appends an item to the tail of the queue.
func (q *TaskQueue) Enqueue(ctx context.Context, item model.WorkItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item %s: %w", item.ID, err)
	}
	return q.kv.ListPush(ctx, taskQueueKey, raw)
}

// Pop removes and returns the head of the queue, reporting false when the
// queue is idle.
func (q *TaskQueue) Pop(ctx context.Context) (model.WorkItem, bool, error) {
	raw, ok, err := q.kv.ListPop(ctx, taskQueueKey)
	if err != nil || !ok {
		return model.WorkItem{}, false, err
	}
	var item model.WorkItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.WorkItem{}, false, fmt.Errorf("decode work item: %w", err)
	}
	return item, true, nil
}

// Complete records a completion marker with a short lifetime.
func (q *TaskQueue) Complete(ctx context.Context, item model.WorkItem, workerID string) error {
	marker := struct {
		Task        model.WorkItem `json:"task"`
		CompletedAt time.Time      `json:"completed_at"`
		Worker      string         `json:"worker"`
	}{Task: item, CompletedAt: time.Now().UTC(), Worker: workerID}

	raw, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode completion %s: %w", item.ID, err)
	}
	return q.kv.Set(ctx, completedKeyPrefix+item.ID, raw, completedTTL)
}

// Fail handles a failed attempt: below the retry ceiling the item is
// requeued with the error recorded, at or above it the item is moved to
// the dead-letter store. Returns whether the item was requeued.
func (q *TaskQueue) Fail(ctx context.Context, item model.WorkItem, cause error) (requeued bool, err error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}

	if item.RetryCount < q.ceiling {
		item.RetryCount++
		item.LastError = reason
		if err := q.Enqueue(ctx, item); err != nil {
			return false, err
		}
		return true, nil
	}

	dead := model.DeadLetterItem{
		Item:     item,
		Error:    reason,
		FailedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(dead)
	if err != nil {
		return false, fmt.Errorf("encode dead letter %s: %w", item.ID, err)
	}
	if err := q.kv.ListPush(ctx, deadLetterKey, raw); err != nil {
		return false, err
	}
	return false, nil
}

// DeadLetters returns up to limit items from the dead-letter store for
// manual inspection, oldest first.
func (q *TaskQueue) DeadLetters(ctx context.Context, limit int64) ([]model.DeadLetterItem, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := q.kv.ListRange(ctx, deadLetterKey, 0, limit-1)
	if err != nil {
		return nil, err
	}

	items := make([]model.DeadLetterItem, 0, len(raws))
	for _, raw := range raws {
		var item model.DeadLetterItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Depths reports queue and dead-letter lengths for observability.
func (q *TaskQueue) Depths(ctx context.Context) (queue, dead int64, err error) {
	queue, err = q.kv.ListLen(ctx, taskQueueKey)
	if err != nil {
		return 0, 0, err
	}
	dead, err = q.kv.ListLen(ctx, deadLetterKey)
	if err != nil {
		return 0, 0, err
	}
	return queue, dead, nil
}
