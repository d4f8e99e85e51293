package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
)

type UnitResponse struct {
	rental.MotorUnit
}

func (u *UnitResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

func NewUnitListResponse(units []rental.MotorUnit) []render.Renderer {
	list := make([]render.Renderer, 0, len(units))
	for _, u := range units {
		list = append(list, &UnitResponse{MotorUnit: u})
	}
	return list
}

type UnitAvailabilityResponse struct {
	rental.UnitAvailability
}

func (u *UnitAvailabilityResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

func NewUnitAvailabilityListResponse(grid []rental.UnitAvailability) []render.Renderer {
	list := make([]render.Renderer, 0, len(grid))
	for _, g := range grid {
		list = append(list, &UnitAvailabilityResponse{UnitAvailability: g})
	}
	return list
}

type SaveUnitRequest struct {
	rental.MotorUnit
}

func (s *SaveUnitRequest) Bind(_ *http.Request) error {
	s.PlateNumber = strings.TrimSpace(s.PlateNumber)
	if s.PlateNumber == "" {
		return errors.New("plateNumber is required")
	}
	if !s.DailyRate.IsPositive() {
		return errors.New("dailyRate must be greater than zero")
	}
	if s.Status != "" {
		if _, err := rental.ParseUnitStatus(string(s.Status)); err != nil {
			return err
		}
	}
	return nil
}
