package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
)

type UnitApi struct {
	service RentalService
	auth    func(http.Handler) http.Handler
}

func NewUnitApi(service RentalService, auth func(http.Handler) http.Handler) *UnitApi {
	return &UnitApi{service: service, auth: auth}
}

func (a *UnitApi) ConfigureRouter(r chi.Router) {
	r.With(Paginate).Get("/", a.List)
	r.With(a.auth, AdminOnly).Put("/", a.Save)
	r.Get("/availability", a.Availability)
	r.With(IDCtx(CtxKeyUnit)).Get("/{ID}", a.Get)
}

func (a *UnitApi) List(w http.ResponseWriter, r *http.Request) {
	limit := r.Context().Value(CtxKeyLimit).(int)
	offset := r.Context().Value(CtxKeyOffset).(int)

	options := rental.UnitListOptions{}
	q := r.URL.Query()
	if v := q.Get("typeId"); v != "" {
		ID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			Render(w, r, ErrInvalidRequest(errors.New("typeId must be a positive integer")))
			return
		}
		options.TypeID = ID
	}
	if v := q.Get("status"); v != "" {
		status, err := rental.ParseUnitStatus(strings.ToUpper(v))
		if err != nil {
			Render(w, r, ErrInvalidRequest(err))
			return
		}
		options.Status = status
	}

	units, err := a.service.ListUnits(r.Context(), options, limit, offset)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	RenderList(w, r, NewUnitListResponse(units))
}

func (a *UnitApi) Get(w http.ResponseWriter, r *http.Request) {
	ID := r.Context().Value(CtxKeyUnit).(uint64)

	u, err := a.service.GetUnit(r.Context(), ID)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	Render(w, r, &UnitResponse{MotorUnit: u})
}

func (a *UnitApi) Save(w http.ResponseWriter, r *http.Request) {
	data := &SaveUnitRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	u, err := a.service.SaveUnit(r.Context(), data.MotorUnit)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	Render(w, r, &UnitResponse{MotorUnit: u})
}

// Availability renders the day by day catalog grid for start..end, both inclusive.
func (a *UnitApi) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseDate("start", q.Get("start"))
	if err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}
	end, err := parseDate("end", q.Get("end"))
	if err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	var typeID uint64
	if v := q.Get("typeId"); v != "" {
		typeID, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			Render(w, r, ErrInvalidRequest(errors.New("typeId must be a positive integer")))
			return
		}
	}

	grid, err := a.service.CatalogAvailability(r.Context(), start, end, typeID)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	RenderList(w, r, NewUnitAvailabilityListResponse(grid))
}
