// Package rental holds the motorcycle rental lifecycle: whether a unit can be booked for a window, what the
// booking costs, how late returns are penalised and which status a transaction and its unit are in at any time.
package rental

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type UnitStatus string

const (
	UnitAvailable   UnitStatus = "AVAILABLE"
	UnitRented      UnitStatus = "RENTED"
	UnitReserved    UnitStatus = "RESERVED"
	UnitOverdue     UnitStatus = "OVERDUE"
	UnitMaintenance UnitStatus = "MAINTENANCE"
)

func ParseUnitStatus(v string) (UnitStatus, error) {
	switch UnitStatus(v) {
	case UnitAvailable, UnitRented, UnitReserved, UnitOverdue, UnitMaintenance:
		return UnitStatus(v), nil
	default:
		return "", errors.Errorf("invalid unit status %q", v)
	}
}

type Status string

const (
	Active    Status = "ACTIVE"
	Overdue   Status = "OVERDUE"
	Completed Status = "COMPLETED"
)

func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case Active, Overdue, Completed:
		return Status(v), nil
	default:
		return "", errors.Errorf("invalid transaction status %q", v)
	}
}

// Open reports whether the transaction still holds its unit.
func (s Status) Open() bool {
	return s == Active || s == Overdue
}

// MotorType is a value object. The catalog entry a unit is an instance of.
type MotorType struct {
	ID    uint64 `json:"id"`
	Merk  string `json:"merk"`
	Model string `json:"model"`
	CC    int    `json:"cc"`
}

// MotorUnit is an entity. One physical motorcycle identified by its plate number.
type MotorUnit struct {
	ID          uint64          `json:"id"`
	Type        MotorType       `json:"type"`
	PlateNumber string          `json:"plateNumber"`
	DailyRate   decimal.Decimal `json:"dailyRate"`
	Status      UnitStatus      `json:"status"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

// Transaction is an entity. One rental of one unit for one window. Start and End are the absolute instants
// obtained by combining the booked dates with StartTime and EndTime.
type Transaction struct {
	ID            uint64          `json:"id"`
	RenterName    string          `json:"renterName"`
	RenterPhone   string          `json:"renterPhone"`
	UnitID        uint64          `json:"unitId"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	StartTime     string          `json:"startTime"`
	EndTime       string          `json:"endTime"`
	Status        Status          `json:"status"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Denda         decimal.Decimal `json:"denda"`
	Helmets       int             `json:"helmets"`
	Raincoats     int             `json:"raincoats"`
	PriceOverride bool            `json:"priceOverride"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Created       time.Time       `json:"created"`
	Updated       time.Time       `json:"updated"`
}

type CreateRequest struct {
	RenterName  string    `json:"renterName"`
	RenterPhone string    `json:"renterPhone"`
	UnitID      uint64    `json:"unitId"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Helmets     int       `json:"helmets"`
	Raincoats   int       `json:"raincoats"`
}

// UpdateRequest carries only the fields the caller wants changed. A non-nil TotalPrice is an admin override and
// skips recomputation.
type UpdateRequest struct {
	RenterName  *string          `json:"renterName,omitempty"`
	RenterPhone *string          `json:"renterPhone,omitempty"`
	UnitID      *uint64          `json:"unitId,omitempty"`
	StartDate   *time.Time       `json:"startDate,omitempty"`
	EndDate     *time.Time       `json:"endDate,omitempty"`
	StartTime   *string          `json:"startTime,omitempty"`
	EndTime     *string          `json:"endTime,omitempty"`
	Helmets     *int             `json:"helmets,omitempty"`
	Raincoats   *int             `json:"raincoats,omitempty"`
	TotalPrice  *decimal.Decimal `json:"totalPrice,omitempty"`
}

type PriceRequest struct {
	UnitID    uint64    `json:"unitId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
}

type AvailabilityRequest struct {
	PriceRequest
	ExcludeTransactionID uint64 `json:"excludeTransactionId,omitempty"`
}

// PriceQuote is the breakdown of a computed rental price.
type PriceQuote struct {
	Hours      int64           `json:"hours"`
	Days       int64           `json:"days"`
	ExtraHours int64           `json:"extraHours"`
	DailyRate  decimal.Decimal `json:"dailyRate"`
	Total      decimal.Decimal `json:"total"`
}

type ListOptions struct {
	Statuses []Status
	UnitID   uint64
	// From and To select transactions whose window touches [From, To].
	From *time.Time
	To   *time.Time
}

type UnitListOptions struct {
	TypeID uint64
	Status UnitStatus
}

type DayAvailability struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

type UnitAvailability struct {
	Unit MotorUnit         `json:"unit"`
	Days []DayAvailability `json:"days"`
}

type EventType string

const (
	EventCreated         EventType = "TRANSACTION_CREATED"
	EventUpdated         EventType = "TRANSACTION_UPDATED"
	EventCompleted       EventType = "TRANSACTION_COMPLETED"
	EventOverdue         EventType = "TRANSACTION_OVERDUE"
	EventDeleted         EventType = "TRANSACTION_DELETED"
	EventPenaltyAssessed EventType = "PENALTY_ASSESSED"
)

// TransactionEvent is published whenever a transaction changes state.
type TransactionEvent struct {
	Type        EventType   `json:"type"`
	Transaction Transaction `json:"transaction"`
	UnitStatus  UnitStatus  `json:"unitStatus,omitempty"`
	Occurred    time.Time   `json:"occurred"`
}

type SubscriptionID string
