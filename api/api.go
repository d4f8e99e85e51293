package api

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reysilvaa/rosantibike-motorent/config"
	"github.com/reysilvaa/rosantibike-motorent/core/user"
	"github.com/rs/zerolog/log"
)

const (
	ApiPath         = "/api/v1"
	TransactionPath = "/transaction"
	UnitPath        = "/unit"
	UserPath        = "/user"
)

type CtxKey string

const (
	CtxKeyLimit       CtxKey = "limit"
	CtxKeyOffset      CtxKey = "offset"
	CtxKeyUser        CtxKey = "user"
	CtxKeyTransaction CtxKey = "transaction"
	CtxKeyUnit        CtxKey = "unit"
)

func ConfigureRouter(cfg *config.Config, rentalSvc RentalService, userService user.Service) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*.rosantibike.com", "http://*.rosantibike.com", "http://localhost*", "https://localhost*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(Logging)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("UP"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/env", NewEnvApi(cfg).ConfigureRouter)

	auth := Authenticate(userService)
	r.Route(ApiPath, func(r chi.Router) {
		r.Route(TransactionPath, NewTransactionApi(rentalSvc, auth).ConfigureRouter)
		r.Route(UnitPath, NewUnitApi(rentalSvc, auth).ConfigureRouter)
		r.With(auth).Route(UserPath, NewUserApi(userService).ConfigureRouter)
	})

	return r
}

func Render(w http.ResponseWriter, r *http.Request, rnd render.Renderer) {
	if err := render.Render(w, r, rnd); err != nil {
		log.Warn().Err(err).Msg("failed to render")
	}
}

func RenderList(w http.ResponseWriter, r *http.Request, l []render.Renderer) {
	if err := render.RenderList(w, r, l); err != nil {
		log.Warn().Err(err).Msg("failed to render")
	}
}
