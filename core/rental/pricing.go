package rental

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	hoursPerDay = 24
	// Extra hours beyond this many are billed as one more full day.
	graceHours = 6
)

// PricingEngine turns a rental window into a price and a late return into a denda. It is stateless apart from
// the location used to interpret dates and the per hour penalty rate.
type PricingEngine struct {
	loc            *time.Location
	penaltyPerHour decimal.Decimal
}

func NewPricingEngine(loc *time.Location, penaltyPerHour decimal.Decimal) *PricingEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &PricingEngine{loc: loc, penaltyPerHour: penaltyPerHour}
}

func (p *PricingEngine) Location() *time.Location {
	return p.loc
}

// Instant combines the calendar day of date with an "HH:MM" time of day in the engine's location.
func (p *PricingEngine) Instant(date time.Time, hhmm string) (time.Time, error) {
	tod, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidTime, "%q", hhmm)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), 0, 0, p.loc), nil
}

func (p *PricingEngine) ComputePrice(startDate, endDate time.Time, startTime, endTime string, dailyRate decimal.Decimal) (PriceQuote, error) {
	start, err := p.Instant(startDate, startTime)
	if err != nil {
		return PriceQuote{}, err
	}
	end, err := p.Instant(endDate, endTime)
	if err != nil {
		return PriceQuote{}, err
	}
	return p.Quote(start, end, dailyRate), nil
}

// Quote prices the window [start, end]. Windows shorter than an hour, including empty and inverted ones, are
// billed as one hour.
func (p *PricingEngine) Quote(start, end time.Time, dailyRate decimal.Decimal) PriceQuote {
	hours := ceilHours(end.Sub(start))
	if hours < 1 {
		hours = 1
	}

	days := hours / hoursPerDay
	extra := hours % hoursPerDay
	if extra > graceHours {
		days++
		extra = 0
	}
	if days == 0 {
		days = 1
	}

	return PriceQuote{
		Hours:      hours,
		Days:       days,
		ExtraHours: extra,
		DailyRate:  dailyRate,
		Total:      dailyRate.Mul(decimal.NewFromInt(days)),
	}
}

// LateHours is the number of started hours between the scheduled end and now.
func LateHours(t Transaction, now time.Time) int64 {
	h := ceilHours(now.Sub(t.End))
	if h < 0 {
		return 0
	}
	return h
}

func (p *PricingEngine) ComputeLateFee(t Transaction, now time.Time) decimal.Decimal {
	return p.penaltyPerHour.Mul(decimal.NewFromInt(LateHours(t, now)))
}

func ceilHours(d time.Duration) int64 {
	h := int64(d / time.Hour)
	if d%time.Hour > 0 {
		h++
	}
	return h
}
