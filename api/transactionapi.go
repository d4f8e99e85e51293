package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/rs/zerolog/log"
)

type RentalService interface {
	Create(ctx context.Context, req rental.CreateRequest) (rental.Transaction, error)
	Get(ctx context.Context, ID uint64) (rental.Transaction, error)
	List(ctx context.Context, options rental.ListOptions, limit, offset int) ([]rental.Transaction, error)
	Update(ctx context.Context, ID uint64, req rental.UpdateRequest) (rental.Transaction, error)
	Complete(ctx context.Context, ID uint64) (rental.Transaction, error)
	Delete(ctx context.Context, ID uint64) error

	CalculatePrice(ctx context.Context, req rental.PriceRequest) (rental.PriceQuote, error)
	CheckAvailability(ctx context.Context, req rental.AvailabilityRequest) error
	CatalogAvailability(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]rental.UnitAvailability, error)

	GetUnit(ctx context.Context, ID uint64) (rental.MotorUnit, error)
	ListUnits(ctx context.Context, options rental.UnitListOptions, limit, offset int) ([]rental.MotorUnit, error)
	SaveUnit(ctx context.Context, unit rental.MotorUnit) (rental.MotorUnit, error)

	Subscribe(ch chan<- rental.TransactionEvent) rental.SubscriptionID
	Unsubscribe(id rental.SubscriptionID)
}

type TransactionApi struct {
	service RentalService
	auth    func(http.Handler) http.Handler
}

// NewTransactionApi builds the transaction routes. auth guards every route that changes a booking.
func NewTransactionApi(service RentalService, auth func(http.Handler) http.Handler) *TransactionApi {
	return &TransactionApi{service: service, auth: auth}
}

func (a *TransactionApi) ConfigureRouter(r chi.Router) {
	r.HandleFunc("/subscribe", a.Subscribe)
	r.Post("/price", a.CalculatePrice)
	r.Post("/availability", a.CheckAvailability)

	r.With(Paginate).Get("/", a.List)
	r.With(a.auth, AdminOnly).Put("/", a.Create)

	r.Route("/{ID}", func(r chi.Router) {
		r.Use(IDCtx(CtxKeyTransaction))
		r.Get("/", a.Get)
		r.With(a.auth, AdminOnly).Patch("/", a.Update)
		r.With(a.auth, AdminOnly).Delete("/", a.Delete)
		r.With(a.auth, AdminOnly).Post("/complete", a.Complete)
	})
}

// IDCtx parses the numeric {ID} path parameter into the request context under key.
func IDCtx(key CtxKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ID, err := strconv.ParseUint(chi.URLParam(r, "ID"), 10, 64)
			if err != nil || ID == 0 {
				Render(w, r, ErrInvalidRequest(errors.New("id must be a positive integer")))
				return
			}
			ctx := context.WithValue(r.Context(), key, ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subscribe streams every transaction event to the client over a websocket until either side goes away.
//
// Events only cover the instance the client is connected to; other instances publish theirs on the
// transaction exchange.
func (a *TransactionApi) Subscribe(w http.ResponseWriter, r *http.Request) {
	log.Info().Msg("client requesting subscription")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Err(err).Msg("failed to establish transaction subscription connection")
		return
	}

	ch := make(chan rental.TransactionEvent, 16)
	id := a.service.Subscribe(ch)

	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				log.Debug().Err(err).Interface("clientId", id).Msg("client went away")
				a.service.Unsubscribe(id)
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		defer a.service.Unsubscribe(id)

		for ev := range ch {
			body, err := json.Marshal(ev)
			if err != nil {
				log.Err(err).Interface("clientId", id).Msg("failed to marshal transaction event")
				continue
			}

			log.Debug().Interface("clientId", id).Str("type", string(ev.Type)).Msg("sending transaction event to client")
			err = wsutil.WriteServerText(conn, body)
			if err != nil {
				log.Err(err).Interface("clientId", id).Msg("failed to write server message, disconnecting client")
				return
			}
		}
	}()
}

func (a *TransactionApi) List(w http.ResponseWriter, r *http.Request) {
	limit := r.Context().Value(CtxKeyLimit).(int)
	offset := r.Context().Value(CtxKeyOffset).(int)

	options, err := listOptions(r)
	if err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	list, err := a.service.List(r.Context(), options, limit, offset)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	RenderList(w, r, NewTransactionListResponse(list))
}

func listOptions(r *http.Request) (rental.ListOptions, error) {
	q := r.URL.Query()
	options := rental.ListOptions{}

	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status, err := rental.ParseStatus(strings.ToUpper(strings.TrimSpace(s)))
			if err != nil {
				return options, err
			}
			options.Statuses = append(options.Statuses, status)
		}
	}
	if v := q.Get("unitId"); v != "" {
		ID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return options, errors.New("unitId must be a positive integer")
		}
		options.UnitID = ID
	}
	if v := q.Get("from"); v != "" {
		from, err := parseInstant("from", v)
		if err != nil {
			return options, err
		}
		options.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := parseInstant("to", v)
		if err != nil {
			return options, err
		}
		options.To = &to
	}
	return options, nil
}

// parseInstant accepts an RFC 3339 timestamp or a bare date, read as midnight UTC.
func parseInstant(field, v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return parseDate(field, v)
}

func (a *TransactionApi) Create(w http.ResponseWriter, r *http.Request) {
	data := &CreateTransactionRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	t, err := a.service.Create(r.Context(), data.Request())
	if err != nil {
		RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	Render(w, r, NewTransactionResponse(t))
}

func (a *TransactionApi) Get(w http.ResponseWriter, r *http.Request) {
	ID := r.Context().Value(CtxKeyTransaction).(uint64)

	t, err := a.service.Get(r.Context(), ID)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	Render(w, r, NewTransactionResponse(t))
}

func (a *TransactionApi) Update(w http.ResponseWriter, r *http.Request) {
	ID := r.Context().Value(CtxKeyTransaction).(uint64)

	data := &UpdateTransactionRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	t, err := a.service.Update(r.Context(), ID, data.Request())
	if err != nil {
		RenderError(w, r, err)
		return
	}

	Render(w, r, NewTransactionResponse(t))
}

func (a *TransactionApi) Complete(w http.ResponseWriter, r *http.Request) {
	ID := r.Context().Value(CtxKeyTransaction).(uint64)

	t, err := a.service.Complete(r.Context(), ID)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	Render(w, r, NewTransactionResponse(t))
}

func (a *TransactionApi) Delete(w http.ResponseWriter, r *http.Request) {
	ID := r.Context().Value(CtxKeyTransaction).(uint64)

	if err := a.service.Delete(r.Context(), ID); err != nil {
		RenderError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *TransactionApi) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	data := &PriceRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	quote, err := a.service.CalculatePrice(r.Context(), data.Request())
	if err != nil {
		RenderError(w, r, err)
		return
	}

	Render(w, r, &PriceResponse{PriceQuote: quote})
}

func (a *TransactionApi) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	data := &AvailabilityRequest{}
	if err := render.Bind(r, data); err != nil {
		Render(w, r, ErrInvalidRequest(err))
		return
	}

	err := a.service.CheckAvailability(r.Context(), data.Request())
	switch {
	case err == nil:
		Render(w, r, &AvailabilityResponse{Available: true})
	case errors.Is(err, rental.ErrConflict), errors.Is(err, rental.ErrRecentlyReturned),
		errors.Is(err, rental.ErrUnitUnavailable):
		Render(w, r, NewUnavailableResponse(err))
	default:
		RenderError(w, r, err)
	}
}
