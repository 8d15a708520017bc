// Package transfer runs backup and restore jobs: bounded-parallel copies
// between a local directory and the remote service, with per-item outcome
// tracking and cooperative cancellation.
package transfer

import (
	"errors"
	"sync"
	"time"
)

// ErrPartialFailure marks a finished job in which some items failed while
// others transferred. Callers inspect the job's items for detail.
var ErrPartialFailure = errors.New("some items failed to transfer")

// ErrJobRunning is returned when a session already has a job in flight.
var ErrJobRunning = errors.New("a transfer job is already running for this session")

// Kind distinguishes the copy direction.
type Kind string

const (
	KindBackup  Kind = "backup"
	KindRestore Kind = "restore"
)

// ItemStatus is the lifecycle of one file within a job.
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemTransferred ItemStatus = "transferred"
	ItemFailed      ItemStatus = "failed"
	ItemSkipped     ItemStatus = "skipped"
)

// JobStatus is the lifecycle of the job as a whole.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobComplete  JobStatus = "complete"
	JobPartial   JobStatus = "partial"
	JobCancelled JobStatus = "cancelled"
)

// Item is one file scheduled in a job. Source and Dest are full paths on
// their respective sides.
type Item struct {
	Name   string
	Source string
	Dest   string
	Size   int64
	Status ItemStatus
	Error  string
}

// Counts tallies item outcomes for summaries.
type Counts struct {
	Transferred int
	Skipped     int
	Failed      int
	Pending     int
}

// Summary is a point-in-time copy of a job, safe to hand out and retain.
type Summary struct {
	ID         string
	Kind       Kind
	Identity   string
	Status     JobStatus
	Items      []Item
	StartedAt  time.Time
	FinishedAt time.Time
}

// Count tallies the summary's items by status.
func (s Summary) Count() Counts {
	var c Counts
	for _, it := range s.Items {
		switch it.Status {
		case ItemTransferred:
			c.Transferred++
		case ItemSkipped:
			c.Skipped++
		case ItemFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c
}

// Job tracks one running backup or restore. All mutable state sits behind
// mu; callers outside the engine only ever see Summary copies.
type Job struct {
	mu sync.Mutex

	id        string
	kind      Kind
	identity  string
	status    JobStatus
	items     []Item
	started   time.Time
	finished  time.Time
	cancelJob func()
}

// Snapshot returns a consistent copy of the job.
func (j *Job) Snapshot() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Summary{
		ID:         j.id,
		Kind:       j.kind,
		Identity:   j.identity,
		Status:     j.status,
		Items:      append([]Item(nil), j.items...),
		StartedAt:  j.started,
		FinishedAt: j.finished,
	}
}

// Cancel requests cancellation. Safe to call repeatedly and after the job
// has finished.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancelJob
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// item returns a copy of item i.
func (j *Job) item(i int) Item {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.items[i]
}

// settle records the outcome of item i and returns the updated copy.
func (j *Job) settle(i int, status ItemStatus, err error) Item {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.items[i].Status = status
	if err != nil {
		j.items[i].Error = err.Error()
	}
	return j.items[i]
}

// finish derives the terminal status from item outcomes. Skipped items
// count as success; cancellation wins over everything else.
func (j *Job) finish(cancelled bool) JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	j.cancelJob = nil

	if cancelled {
		j.status = JobCancelled
		return j.status
	}
	j.status = JobComplete
	for _, it := range j.items {
		if it.Status == ItemFailed {
			j.status = JobPartial
			break
		}
	}
	return j.status
}
