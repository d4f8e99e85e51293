package rental

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/rs/zerolog/log"
)

const (
	dateLayout = "2006-01-02"
	// Longest range the catalog grid will render.
	maxCatalogDays = 366
)

var openStatuses = []Status{Active, Overdue}

// AvailabilityChecker decides whether a unit can take a booking. Overlap with an open booking and the
// post-return cool-down are separate gates so callers can tell "still booked" from "just returned".
type AvailabilityChecker struct {
	repo     Repository
	loc      *time.Location
	cooldown time.Duration
}

func NewAvailabilityChecker(repo Repository, loc *time.Location, cooldown time.Duration) *AvailabilityChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityChecker{repo: repo, loc: loc, cooldown: cooldown}
}

// IsAvailable returns nil when unitID can be booked for [start, end]. The booking identified by
// excludeTransactionID, if any, is ignored so an update does not conflict with itself. Callers that go on to
// write must hold the unit's row lock in the transaction passed through options.
func (a *AvailabilityChecker) IsAvailable(ctx context.Context, unitID uint64, start, end time.Time, excludeTransactionID uint64, options ...core.QueryOptions) error {
	const funcName = "IsAvailable"

	if !start.Before(end) {
		return &InvalidRangeError{Start: start, End: end}
	}

	unit, err := a.repo.GetUnit(ctx, unitID, options...)
	if err != nil {
		return errors.WithMessagef(err, "failed to get unit %d", unitID)
	}
	if unit.Status == UnitMaintenance {
		return errors.Wrapf(ErrUnitUnavailable, "unit %d is in maintenance", unitID)
	}

	open, err := a.repo.GetTransactions(ctx, ListOptions{UnitID: unitID, Statuses: openStatuses}, 0, 0, options...)
	if err != nil {
		return errors.WithMessagef(err, "failed to get open transactions for unit %d", unitID)
	}

	for _, t := range open {
		if t.ID == excludeTransactionID {
			continue
		}
		if overlaps(start, end, t.Start, t.End) {
			log.Debug().
				Str("func", funcName).
				Uint64("unitId", unitID).
				Uint64("conflictingId", t.ID).
				Msg("requested window overlaps an open booking")
			return &ConflictError{TransactionID: t.ID, Start: t.Start, End: t.End}
		}
	}

	last, err := a.repo.GetLatestCompletedTransaction(ctx, unitID, options...)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return errors.WithMessagef(err, "failed to get last completed transaction for unit %d", unitID)
	}
	if last.CompletedAt == nil || last.ID == excludeTransactionID {
		return nil
	}

	availableAt := last.CompletedAt.Add(a.cooldown)
	if start.Before(availableAt) {
		return &RecentlyReturnedError{AvailableAt: availableAt}
	}

	return nil
}

// overlaps treats both windows as closed intervals, so bookings that merely touch still conflict.
func overlaps(start, end, existingStart, existingEnd time.Time) bool {
	within := func(t time.Time) bool {
		return !t.Before(existingStart) && !t.After(existingEnd)
	}
	return within(start) || within(end) || (!existingStart.Before(start) && !existingEnd.After(end))
}

// CheckRangeForCatalog renders a per unit, per day availability grid for [startDate, endDate]. A day is
// unavailable when any open booking's day span covers it or the unit is in maintenance. typeID zero means every
// type. The view is read only and takes no locks.
func (a *AvailabilityChecker) CheckRangeForCatalog(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]UnitAvailability, error) {
	first := a.date(startDate)
	last := a.date(endDate)
	if last.Before(first) {
		return nil, &InvalidRangeError{Start: startDate, End: endDate}
	}
	days := 0
	for d := first; !d.After(last) && days <= maxCatalogDays; d = d.AddDate(0, 0, 1) {
		days++
	}
	if days > maxCatalogDays {
		return nil, errors.Wrapf(ErrInvalidRequest, "range exceeds %d days", maxCatalogDays)
	}

	units, err := a.repo.GetUnits(ctx, UnitListOptions{TypeID: typeID}, 0, 0)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get units")
	}

	rangeEnd := last.AddDate(0, 0, 1)
	bookings, err := a.repo.GetTransactions(ctx, ListOptions{Statuses: openStatuses, From: &first, To: &rangeEnd}, 0, 0)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get bookings in range")
	}

	byUnit := make(map[uint64][]Transaction)
	for _, t := range bookings {
		byUnit[t.UnitID] = append(byUnit[t.UnitID], t)
	}

	grid := make([]UnitAvailability, 0, len(units))
	for _, u := range units {
		ua := UnitAvailability{Unit: u, Days: make([]DayAvailability, 0, days)}
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			available := u.Status != UnitMaintenance
			for _, t := range byUnit[u.ID] {
				if !d.Before(a.day(t.Start)) && !d.After(a.lastDay(t.End)) {
					available = false
					break
				}
			}
			ua.Days = append(ua.Days, DayAvailability{Date: d.Format(dateLayout), Available: available})
		}
		grid = append(grid, ua)
	}

	return grid, nil
}

// day truncates t to midnight of its calendar day in the checker's location.
func (a *AvailabilityChecker) day(t time.Time) time.Time {
	t = t.In(a.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.loc)
}

// lastDay is the last calendar day a booking ending at end occupies. A booking ending exactly at midnight does
// not touch the day that midnight starts.
func (a *AvailabilityChecker) lastDay(end time.Time) time.Time {
	return a.day(end.Add(-time.Nanosecond))
}

// date reads the calendar day of a date-only value without shifting it into the checker's location.
func (a *AvailabilityChecker) date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.loc)
}
