package queue

import (
	"errors"
	"sync"

	"go-tube-download/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Queue errors
var (
	ErrNotFound      = errors.New("queue entry not found")
	ErrBadTransition = errors.New("illegal status transition")
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusDownloading Status = "Downloading"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
)

// Entry is one download in the queue.
type Entry struct {
	ID       string                 `json:"id"`
	Request  models.DownloadRequest `json:"request"`
	Title    string                 `json:"title"`
	Quality  string                 `json:"quality"`
	Status   Status                 `json:"status"`
	Progress float64                `json:"progress"`
	Speed    string                 `json:"speed,omitempty"`
	ETA      string                 `json:"eta,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Queue holds download entries and enforces the status state machine.
// All transitions for one entry are applied atomically under a single lock.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{entries: make(map[string]*Entry)}
}

// Enqueue adds a new Pending entry and returns its id. Duplicate URLs are
// allowed; each call creates a distinct entry.
func (q *Queue) Enqueue(req models.DownloadRequest, title, quality string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	q.entries[id] = &Entry{
		ID:      id,
		Request: req,
		Title:   title,
		Quality: quality,
		Status:  StatusPending,
	}
	q.order = append(q.order, id)
	log.WithField("entry", id).Debugf("Enqueued %s", req.URL)
	return id
}

// MarkDownloading moves an entry into Downloading. Legal from Pending and
// Failed (retry); restarting clears stale progress bookkeeping.
func (q *Queue) MarkDownloading(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusPending && e.Status != StatusFailed {
		return ErrBadTransition
	}
	e.Status = StatusDownloading
	e.Progress = 0
	e.Speed = ""
	e.ETA = ""
	e.Error = ""
	return nil
}

// ApplyProgress updates progress for a Downloading entry. Updates for any
// other status are dropped, as are percents below the current value.
func (q *Queue) ApplyProgress(id string, percent float64, speed, eta string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Status != StatusDownloading {
		return
	}
	if percent < e.Progress {
		return
	}
	e.Progress = percent
	e.Speed = speed
	e.ETA = eta
}

// Complete moves a Downloading entry to Completed and returns a snapshot of
// the final entry for history write-through.
func (q *Queue) Complete(id string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.Status != StatusDownloading {
		return Entry{}, ErrBadTransition
	}
	e.Status = StatusCompleted
	e.Progress = 100
	e.Speed = ""
	e.ETA = ""
	log.WithField("entry", id).Info("Download completed")
	return *e, nil
}

// Fail moves a Downloading entry to Failed, recording the cause.
func (q *Queue) Fail(id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusDownloading {
		return ErrBadTransition
	}
	e.Status = StatusFailed
	e.Speed = ""
	e.ETA = ""
	if cause != nil {
		e.Error = cause.Error()
	}
	log.WithField("entry", id).Warnf("Download failed: %v", cause)
	return nil
}

// CancelToPending returns an entry to Pending. Legal from Downloading and
// Pending (the latter a no-op apart from clearing bookkeeping); the entry
// stays in the queue for a later restart.
func (q *Queue) CancelToPending(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusDownloading && e.Status != StatusPending {
		return ErrBadTransition
	}
	e.Status = StatusPending
	e.Progress = 0
	e.Speed = ""
	e.ETA = ""
	e.Error = ""
	return nil
}

// Remove deletes an entry from the queue in any status.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return ErrNotFound
	}
	delete(q.entries, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a snapshot of one entry.
func (q *Queue) Get(id string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// List returns snapshots of all entries in stable enqueue order.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.entries[id])
	}
	return out
}
