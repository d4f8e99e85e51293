package rental

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRange      = errors.New("rental: start must be before end")
	ErrInvalidTime       = errors.New("rental: invalid time of day")
	ErrInvalidPhone      = errors.New("rental: invalid phone number")
	ErrInvalidRequest    = errors.New("rental: invalid request")
	ErrConflict          = errors.New("rental: unit is already booked for the requested window")
	ErrRecentlyReturned  = errors.New("rental: unit was returned too recently")
	ErrUnitUnavailable   = errors.New("rental: unit is not available for rent")
	ErrAlreadyCompleted  = errors.New("rental: transaction already completed")
	ErrNotDeletable      = errors.New("rental: only active transactions can be deleted")
	ErrIllegalTransition = errors.New("rental: illegal status transition")
)

type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s: start=%s end=%s", ErrInvalidRange, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *InvalidRangeError) Unwrap() error {
	return ErrInvalidRange
}

// ConflictError names the booking that already holds the unit.
type ConflictError struct {
	TransactionID uint64
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: transaction %d holds %s - %s", ErrConflict, e.TransactionID,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

type RecentlyReturnedError struct {
	AvailableAt time.Time
}

func (e *RecentlyReturnedError) Error() string {
	return fmt.Sprintf("%s: available at %s", ErrRecentlyReturned, e.AvailableAt.Format(time.RFC3339))
}

func (e *RecentlyReturnedError) Unwrap() error {
	return ErrRecentlyReturned
}

// IsClientError reports whether err was caused by the caller's input or by the
// current state of the booking rather than by infrastructure.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidRange, ErrInvalidTime, ErrInvalidPhone, ErrInvalidRequest, ErrConflict,
		ErrRecentlyReturned, ErrUnitUnavailable, ErrAlreadyCompleted, ErrNotDeletable, ErrIllegalTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
