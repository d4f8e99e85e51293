package rental

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/rs/zerolog/log"
)

func rollback(ctx context.Context, tx core.Transaction, err error) {
	if tx == nil {
		return
	}
	e := tx.Rollback(ctx)
	if e != nil {
		log.Warn().Err(err).AnErr("rollbackErr", e).Msg("failed to rollback")
	}
}

// inTransaction runs fn inside a repository transaction, committing when fn succeeds and rolling back otherwise.
func inTransaction(ctx context.Context, repo Transactional, fn func(tx core.Transaction) error) (err error) {
	tx, err := repo.BeginTransaction(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to begin transaction")
	}

	defer func() {
		if err != nil {
			rollback(ctx, tx, err)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.WithMessage(err, "failed to commit transaction")
	}
	return nil
}

type Transactional interface {
	BeginTransaction(ctx context.Context) (core.Transaction, error)
}

type Repository interface {
	UnitRepository
	TransactionRepository
}

type UnitRepository interface {
	Transactional
	GetUnit(ctx context.Context, ID uint64, options ...core.QueryOptions) (MotorUnit, error)
	GetUnits(ctx context.Context, unitOptions UnitListOptions, limit, offset int, options ...core.QueryOptions) ([]MotorUnit, error)

	SaveMotorType(ctx context.Context, motorType *MotorType, options ...core.UpdateOptions) error
	SaveUnit(ctx context.Context, unit *MotorUnit, options ...core.UpdateOptions) error
	UpdateUnitStatus(ctx context.Context, ID uint64, status UnitStatus, updated time.Time, options ...core.UpdateOptions) error
}

type TransactionRepository interface {
	Transactional
	GetTransaction(ctx context.Context, ID uint64, options ...core.QueryOptions) (Transaction, error)
	GetTransactions(ctx context.Context, listOptions ListOptions, limit, offset int, options ...core.QueryOptions) ([]Transaction, error)
	GetLatestCompletedTransaction(ctx context.Context, unitID uint64, options ...core.QueryOptions) (Transaction, error)

	SaveTransaction(ctx context.Context, t *Transaction, options ...core.UpdateOptions) error
	UpdateTransaction(ctx context.Context, t Transaction, options ...core.UpdateOptions) error
	DeleteTransaction(ctx context.Context, ID uint64, options ...core.UpdateOptions) error
}

// Scheduler is the part of schedule.Scheduler the rental service drives.
type Scheduler interface {
	ScheduleAt(ctx context.Context, key schedule.Key, fireAt time.Time, payload []byte) (schedule.Job, error)
	Cancel(ctx context.Context, transactionID uint64, kinds ...schedule.Kind) error
}

// Notifier delivers a rendered message to a phone number in E.164 form.
type Notifier interface {
	Send(ctx context.Context, phone, text string) error
}

type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event TransactionEvent) error
}
