package rental

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/rs/zerolog/log"
)

// overdueRecheck is how long after the scheduled end an early overdue check looks again.
const overdueRecheck = time.Second

type JobRegistry interface {
	OnFire(kind schedule.Kind, h schedule.HandlerFunc)
}

// RegisterJobHandlers binds every job kind the service schedules to its handler.
func (s *service) RegisterJobHandlers(r JobRegistry) {
	r.OnFire(schedule.KindReminder, s.HandleReminder)
	r.OnFire(schedule.KindOverdueCheck, s.HandleOverdueCheck)
	r.OnFire(schedule.KindOverdueNotice, s.HandleOverdueNotice)
	r.OnFire(schedule.KindOverdueAdmin, s.HandleOverdueAdminNotice)
	r.OnFire(schedule.KindCompletionNotice, s.HandleCompletionNotice)
	r.OnFire(schedule.KindRentalStart, s.HandleRentalStart)
}

// HandleOverdueCheck flips a transaction that is still ACTIVE after its scheduled end to OVERDUE together with
// its unit. Anything else, including a transaction completed in the meantime, leaves state untouched, so the
// job is safe to run any number of times.
func (s *service) HandleOverdueCheck(ctx context.Context, job schedule.Job) error {
	const funcName = "HandleOverdueCheck"

	now := s.clock.Now()
	var t Transaction
	var unit MotorUnit
	flipped, early := false, false

	err := inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		var err error
		t, err = s.repo.GetTransaction(ctx, job.TransactionID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil
			}
			return errors.WithMessagef(err, "failed to get transaction %d", job.TransactionID)
		}

		if t.Status != Active {
			log.Debug().
				Str("func", funcName).
				Uint64("id", t.ID).
				Str("status", string(t.Status)).
				Msg("transaction no longer active, nothing to do")
			return nil
		}
		if !now.After(t.End) {
			early = true
			return nil
		}

		if err = s.machine.Transition(ctx, &t, Overdue, now, tx); err != nil {
			return err
		}
		unit, err = s.repo.GetUnit(ctx, t.UnitID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to lock unit %d", t.UnitID)
		}
		if err = s.machine.MarkUnitOverdue(ctx, &unit, now, tx); err != nil {
			return err
		}
		flipped = true
		return nil
	})
	if err != nil {
		return err
	}

	if early {
		s.scheduleJob(ctx, t.ID, schedule.KindOverdueCheck, t.End.Add(overdueRecheck))
		return nil
	}
	if !flipped {
		return nil
	}

	log.Info().
		Str("func", funcName).
		Uint64("id", t.ID).
		Uint64("unitId", unit.ID).
		Msg("transaction is overdue")

	s.scheduleJob(ctx, t.ID, schedule.KindOverdueNotice, now)
	if s.cfg.AdminPhone != "" {
		s.scheduleJob(ctx, t.ID, schedule.KindOverdueAdmin, now)
	}
	s.publish(ctx, EventOverdue, t, unit.Status)
	return nil
}

// HandleOverdueNotice tells the renter about an overdue rental. The admin is told by a job of its own so a
// failed admin delivery never repeats the renter's message. Once the rental is completed nobody is told anything.
func (s *service) HandleOverdueNotice(ctx context.Context, job schedule.Job) error {
	t, unit, ok, err := s.loadForNotice(ctx, job, Overdue)
	if !ok || err != nil {
		return err
	}

	if err = s.notifier.Send(ctx, t.RenterPhone, overdueRenterMessage(t, unit, s.cfg.PenaltyPerHour, s.cfg.Location)); err != nil {
		return errors.WithMessagef(err, "failed to notify renter of overdue transaction %d", t.ID)
	}
	return nil
}

func (s *service) HandleOverdueAdminNotice(ctx context.Context, job schedule.Job) error {
	if s.cfg.AdminPhone == "" {
		return nil
	}
	t, unit, ok, err := s.loadForNotice(ctx, job, Overdue)
	if !ok || err != nil {
		return err
	}

	if err = s.notifier.Send(ctx, s.cfg.AdminPhone, overdueAdminMessage(t, unit, s.cfg.Location)); err != nil {
		return errors.WithMessagef(err, "failed to notify admin of overdue transaction %d", t.ID)
	}
	return nil
}

func (s *service) HandleReminder(ctx context.Context, job schedule.Job) error {
	t, unit, ok, err := s.loadForNotice(ctx, job, Active)
	if !ok || err != nil {
		return err
	}

	if err = s.notifier.Send(ctx, t.RenterPhone, reminderMessage(t, unit, s.cfg.Location)); err != nil {
		return errors.WithMessagef(err, "failed to send reminder for transaction %d", t.ID)
	}
	return nil
}

func (s *service) HandleCompletionNotice(ctx context.Context, job schedule.Job) error {
	t, unit, ok, err := s.loadForNotice(ctx, job, Completed)
	if !ok || err != nil {
		return err
	}

	if err = s.notifier.Send(ctx, t.RenterPhone, completionMessage(t, unit, s.cfg.Location)); err != nil {
		return errors.WithMessagef(err, "failed to send completion notice for transaction %d", t.ID)
	}
	return nil
}

// HandleRentalStart hands a reserved unit over to its renter once the booking's start arrives.
func (s *service) HandleRentalStart(ctx context.Context, job schedule.Job) error {
	now := s.clock.Now()

	return inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		t, err := s.repo.GetTransaction(ctx, job.TransactionID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil
			}
			return errors.WithMessagef(err, "failed to get transaction %d", job.TransactionID)
		}
		if t.Status != Active {
			return nil
		}

		unit, err := s.repo.GetUnit(ctx, t.UnitID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to lock unit %d", t.UnitID)
		}
		return s.machine.SettleUnit(ctx, &unit, now, tx)
	})
}

// loadForNotice reads the transaction a notice job refers to and reports whether it is still in the status the
// notice was meant for.
func (s *service) loadForNotice(ctx context.Context, job schedule.Job, want Status) (Transaction, MotorUnit, bool, error) {
	t, err := s.repo.GetTransaction(ctx, job.TransactionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return t, MotorUnit{}, false, nil
		}
		return t, MotorUnit{}, false, errors.WithMessagef(err, "failed to get transaction %d", job.TransactionID)
	}

	if t.Status != want {
		log.Debug().
			Str("func", "loadForNotice").
			Uint64("id", t.ID).
			Str("kind", string(job.Kind)).
			Str("status", string(t.Status)).
			Msg("skipping notice")
		return t, MotorUnit{}, false, nil
	}

	unit, err := s.repo.GetUnit(ctx, t.UnitID)
	if err != nil {
		return t, unit, false, errors.WithMessagef(err, "failed to get unit %d", t.UnitID)
	}
	return t, unit, true, nil
}
