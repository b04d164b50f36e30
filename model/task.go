package model

import "time"

// Work item types understood by the task-queue worker.
const (
	TaskRefreshElements = "refresh_elements"
	TaskCollisionCheck  = "collision_check"
)

// WorkItem is one unit of asynchronous work popped from the shared task
// queue. A failed item is requeued with RetryCount incremented until the
// retry ceiling, then moved to the dead-letter store.
type WorkItem struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	NoradID    int       `json:"norad_id"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DeadLetterItem wraps a work item that exhausted its retries,
// pending manual inspection.
type DeadLetterItem struct {
	Item     WorkItem  `json:"task"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
