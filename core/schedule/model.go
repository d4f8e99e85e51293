// Package schedule runs delayed, durable, keyed jobs. A job is identified by the transaction it belongs to and
// its kind; scheduling the same key again replaces the pending job. Jobs survive restarts because they live in a
// Store and are re-armed on Start.
package schedule

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindReminder         Kind = "REMINDER"
	KindOverdueCheck     Kind = "OVERDUE_CHECK"
	KindOverdueNotice    Kind = "OVERDUE_NOTICE"
	KindOverdueAdmin     Kind = "OVERDUE_ADMIN_NOTICE"
	KindCompletionNotice Kind = "COMPLETION_NOTICE"
	KindRentalStart      Kind = "RENTAL_START"
)

func ParseKind(v string) (Kind, error) {
	switch Kind(v) {
	case KindReminder, KindOverdueCheck, KindOverdueNotice, KindOverdueAdmin, KindCompletionNotice, KindRentalStart:
		return Kind(v), nil
	default:
		return "", errors.Errorf("invalid job kind %q", v)
	}
}

type Status string

const (
	Pending   Status = "PENDING"
	Done      Status = "DONE"
	Failed    Status = "FAILED"
	Cancelled Status = "CANCELLED"
)

type Key struct {
	TransactionID uint64 `json:"transactionId"`
	Kind          Kind   `json:"kind"`
}

// Job is an entity. Token changes on every (re)schedule so a worker holding an older copy can tell it has been
// superseded.
type Job struct {
	ID uint64 `json:"id"`
	Key
	FireAt    time.Time `json:"fireAt"`
	Payload   []byte    `json:"payload,omitempty"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	Token     string    `json:"token"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// HandlerFunc executes a fired job. It must tolerate running more than once for the same job.
type HandlerFunc func(ctx context.Context, job Job) error

type Store interface {
	// UpsertJob inserts the job or replaces the one stored under the same key.
	UpsertJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, key Key) (Job, error)
	GetPendingJobs(ctx context.Context) ([]Job, error)
	// UpdateJob saves status, attempts, fire time and last error. It returns core.ErrNotFound when the stored
	// job no longer carries job.Token.
	UpdateJob(ctx context.Context, job Job) error
	// CancelJobs marks the pending jobs of a transaction cancelled, all kinds when none are given.
	CancelJobs(ctx context.Context, transactionID uint64, kinds []Kind, updated time.Time) (int64, error)
}
