package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for booking dates on the wire.
const DateLayout = "2006-01-02"

func parseDate(field, v string) (time.Time, error) {
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, errors.Errorf("%s must be a date formatted as %s", field, DateLayout)
	}
	return d, nil
}

type TransactionResponse struct {
	rental.Transaction
}

func NewTransactionResponse(t rental.Transaction) *TransactionResponse {
	return &TransactionResponse{Transaction: t}
}

func (tr *TransactionResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

func NewTransactionListResponse(list []rental.Transaction) []render.Renderer {
	resp := make([]render.Renderer, 0, len(list))
	for _, t := range list {
		resp = append(resp, NewTransactionResponse(t))
	}
	return resp
}

type CreateTransactionRequest struct {
	RenterName  string `json:"renterName"`
	RenterPhone string `json:"renterPhone"`
	UnitID      uint64 `json:"unitId"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Helmets     int    `json:"helmets"`
	Raincoats   int    `json:"raincoats"`

	req rental.CreateRequest
}

func (c *CreateTransactionRequest) Bind(_ *http.Request) error {
	if strings.TrimSpace(c.RenterName) == "" || c.RenterPhone == "" || c.UnitID == 0 ||
		c.StartDate == "" || c.EndDate == "" || c.StartTime == "" || c.EndTime == "" {
		return errors.New("missing required field(s)")
	}
	if c.Helmets < 0 || c.Raincoats < 0 {
		return errors.New("helmets and raincoats cannot be negative")
	}

	start, err := parseDate("startDate", c.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("endDate", c.EndDate)
	if err != nil {
		return err
	}

	c.req = rental.CreateRequest{
		RenterName:  strings.TrimSpace(c.RenterName),
		RenterPhone: c.RenterPhone,
		UnitID:      c.UnitID,
		StartDate:   start,
		EndDate:     end,
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		Helmets:     c.Helmets,
		Raincoats:   c.Raincoats,
	}
	return nil
}

func (c *CreateTransactionRequest) Request() rental.CreateRequest {
	return c.req
}

// UpdateTransactionRequest is a partial update. A totalPrice overrides the computed price.
type UpdateTransactionRequest struct {
	RenterName  *string          `json:"renterName,omitempty"`
	RenterPhone *string          `json:"renterPhone,omitempty"`
	UnitID      *uint64          `json:"unitId,omitempty"`
	StartDate   *string          `json:"startDate,omitempty"`
	EndDate     *string          `json:"endDate,omitempty"`
	StartTime   *string          `json:"startTime,omitempty"`
	EndTime     *string          `json:"endTime,omitempty"`
	Helmets     *int             `json:"helmets,omitempty"`
	Raincoats   *int             `json:"raincoats,omitempty"`
	TotalPrice  *decimal.Decimal `json:"totalPrice,omitempty"`

	req rental.UpdateRequest
}

func (u *UpdateTransactionRequest) Bind(_ *http.Request) error {
	if u.RenterName != nil && strings.TrimSpace(*u.RenterName) == "" {
		return errors.New("renterName cannot be blank")
	}
	if u.UnitID != nil && *u.UnitID == 0 {
		return errors.New("unitId cannot be zero")
	}
	if (u.Helmets != nil && *u.Helmets < 0) || (u.Raincoats != nil && *u.Raincoats < 0) {
		return errors.New("helmets and raincoats cannot be negative")
	}
	if u.TotalPrice != nil && u.TotalPrice.IsNegative() {
		return errors.New("totalPrice cannot be negative")
	}

	u.req = rental.UpdateRequest{
		RenterName:  u.RenterName,
		RenterPhone: u.RenterPhone,
		UnitID:      u.UnitID,
		StartTime:   u.StartTime,
		EndTime:     u.EndTime,
		Helmets:     u.Helmets,
		Raincoats:   u.Raincoats,
		TotalPrice:  u.TotalPrice,
	}
	if u.StartDate != nil {
		d, err := parseDate("startDate", *u.StartDate)
		if err != nil {
			return err
		}
		u.req.StartDate = &d
	}
	if u.EndDate != nil {
		d, err := parseDate("endDate", *u.EndDate)
		if err != nil {
			return err
		}
		u.req.EndDate = &d
	}
	return nil
}

func (u *UpdateTransactionRequest) Request() rental.UpdateRequest {
	return u.req
}

type PriceRequest struct {
	UnitID    uint64 `json:"unitId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	req rental.PriceRequest
}

func (p *PriceRequest) Bind(_ *http.Request) error {
	if p.UnitID == 0 || p.StartDate == "" || p.EndDate == "" || p.StartTime == "" || p.EndTime == "" {
		return errors.New("missing required field(s)")
	}
	start, err := parseDate("startDate", p.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("endDate", p.EndDate)
	if err != nil {
		return err
	}
	p.req = rental.PriceRequest{
		UnitID:    p.UnitID,
		StartDate: start,
		EndDate:   end,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	}
	return nil
}

func (p *PriceRequest) Request() rental.PriceRequest {
	return p.req
}

type AvailabilityRequest struct {
	PriceRequest
	ExcludeTransactionID uint64 `json:"excludeTransactionId,omitempty"`
}

func (a *AvailabilityRequest) Request() rental.AvailabilityRequest {
	return rental.AvailabilityRequest{PriceRequest: a.PriceRequest.Request(), ExcludeTransactionID: a.ExcludeTransactionID}
}

type PriceResponse struct {
	rental.PriceQuote
}

func (p *PriceResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

// AvailabilityResponse says whether the window is free and, when it is not, what holds the unit.
type AvailabilityResponse struct {
	Available   bool              `json:"available"`
	Reason      string            `json:"reason,omitempty"`
	Conflict    *ConflictResponse `json:"conflict,omitempty"`
	AvailableAt *time.Time        `json:"availableAt,omitempty"`
}

func NewUnavailableResponse(err error) *AvailabilityResponse {
	c := ErrConflict(err)
	return &AvailabilityResponse{Reason: err.Error(), Conflict: c.Conflict, AvailableAt: c.AvailableAt}
}

func (a *AvailabilityResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}
