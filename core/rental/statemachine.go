package rental

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/rs/zerolog/log"
)

var validTransitions = map[Status][]Status{
	Active:  {Overdue, Completed},
	Overdue: {Completed},
}

// CanTransition reports whether a transaction may move from one status to another. Nothing ever moves back to
// ACTIVE and COMPLETED is terminal.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine is the only writer of transaction and unit status. Every method expects to run inside the
// repository transaction tx that already holds the row locks of the records it touches.
type StateMachine struct {
	repo Repository
	loc  *time.Location
}

func NewStateMachine(repo Repository, loc *time.Location) *StateMachine {
	if loc == nil {
		loc = time.UTC
	}
	return &StateMachine{repo: repo, loc: loc}
}

func (m *StateMachine) Transition(ctx context.Context, t *Transaction, to Status, now time.Time, tx core.Transaction) error {
	if !CanTransition(t.Status, to) {
		if t.Status == Completed {
			return errors.Wrapf(ErrAlreadyCompleted, "transaction %d", t.ID)
		}
		return errors.Wrapf(ErrIllegalTransition, "transaction %d %s -> %s", t.ID, t.Status, to)
	}

	log.Debug().
		Str("func", "Transition").
		Uint64("id", t.ID).
		Str("from", string(t.Status)).
		Str("to", string(to)).
		Msg("transitioning transaction")

	t.Status = to
	t.Updated = now
	if to == Completed {
		completedAt := now
		t.CompletedAt = &completedAt
	}

	if err := m.repo.UpdateTransaction(ctx, *t, core.UpdateOptions{Tx: tx}); err != nil {
		return errors.WithMessagef(err, "failed to save transaction %d", t.ID)
	}
	return nil
}

// SettleUnit recomputes unit status from the open bookings that still reference it: AVAILABLE when none remain,
// OVERDUE when any of them is overdue, RENTED when any has started and RESERVED otherwise. A unit in maintenance
// is left alone.
func (m *StateMachine) SettleUnit(ctx context.Context, unit *MotorUnit, now time.Time, tx core.Transaction) error {
	if unit.Status == UnitMaintenance {
		return nil
	}

	open, err := m.repo.GetTransactions(ctx, ListOptions{UnitID: unit.ID, Statuses: openStatuses}, 0, 0, core.QueryOptions{Tx: tx})
	if err != nil {
		return errors.WithMessagef(err, "failed to get open transactions for unit %d", unit.ID)
	}

	return m.setUnitStatus(ctx, unit, m.derive(open, now), now, tx)
}

// MarkUnitOverdue flips a unit whose renter has not returned it.
func (m *StateMachine) MarkUnitOverdue(ctx context.Context, unit *MotorUnit, now time.Time, tx core.Transaction) error {
	return m.setUnitStatus(ctx, unit, UnitOverdue, now, tx)
}

// ApplyCatalogStatus lets the catalog take a unit in or out of maintenance. The request is only honoured while
// the unit has no open booking; otherwise the booking derived status stands.
func (m *StateMachine) ApplyCatalogStatus(ctx context.Context, unit *MotorUnit, requested UnitStatus, now time.Time, tx core.Transaction) error {
	open, err := m.repo.GetTransactions(ctx, ListOptions{UnitID: unit.ID, Statuses: openStatuses}, 0, 0, core.QueryOptions{Tx: tx})
	if err != nil {
		return errors.WithMessagef(err, "failed to get open transactions for unit %d", unit.ID)
	}

	if len(open) > 0 {
		if requested == UnitMaintenance {
			log.Warn().
				Uint64("unitId", unit.ID).
				Int("openBookings", len(open)).
				Msg("ignoring maintenance request for a booked unit")
		}
		return m.setUnitStatus(ctx, unit, m.derive(open, now), now, tx)
	}

	if requested != UnitMaintenance {
		requested = UnitAvailable
	}
	return m.setUnitStatus(ctx, unit, requested, now, tx)
}

func (m *StateMachine) derive(open []Transaction, now time.Time) UnitStatus {
	if len(open) == 0 {
		return UnitAvailable
	}
	status := UnitReserved
	for _, t := range open {
		if t.Status == Overdue {
			return UnitOverdue
		}
		if m.Started(t.Start, now) {
			status = UnitRented
		}
	}
	return status
}

// Started reports whether a booking starting at start counts as running on now's calendar day.
func (m *StateMachine) Started(start, now time.Time) bool {
	s := start.In(m.loc)
	n := now.In(m.loc)
	sd := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, m.loc)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, m.loc)
	return !sd.After(nd)
}

func (m *StateMachine) setUnitStatus(ctx context.Context, unit *MotorUnit, status UnitStatus, now time.Time, tx core.Transaction) error {
	if unit.Status == status {
		return nil
	}

	log.Debug().
		Str("func", "setUnitStatus").
		Uint64("unitId", unit.ID).
		Str("from", string(unit.Status)).
		Str("to", string(status)).
		Msg("updating unit status")

	if err := m.repo.UpdateUnitStatus(ctx, unit.ID, status, now, core.UpdateOptions{Tx: tx}); err != nil {
		return errors.WithMessagef(err, "failed to update status of unit %d", unit.ID)
	}
	unit.Status = status
	unit.Updated = now
	return nil
}
