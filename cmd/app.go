package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/api"
	"github.com/reysilvaa/rosantibike-motorent/config"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/reysilvaa/rosantibike-motorent/core/user"
	"github.com/reysilvaa/rosantibike-motorent/db"
	"github.com/reysilvaa/rosantibike-motorent/db/jobrepo"
	"github.com/reysilvaa/rosantibike-motorent/db/memrepo"
	"github.com/reysilvaa/rosantibike-motorent/db/rentalrepo"
	"github.com/reysilvaa/rosantibike-motorent/db/usrrepo"
	"github.com/reysilvaa/rosantibike-motorent/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sksmith/bunnyq"
)

type rentalService interface {
	api.RentalService
	RegisterJobHandlers(r rental.JobRegistry)
}

// application holds everything main wires together so tests can run the same wiring in memory.
type application struct {
	cfg       *config.Config
	router    chi.Router
	rental    rentalService
	users     user.Service
	scheduler *schedule.Scheduler
	units     *queue.UnitQueue
	pool      *pgxpool.Pool
}

type repositories struct {
	rental rental.Repository
	jobs   schedule.Store
	users  user.Repository
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{cfg: cfg}

	repos, err := app.configRepositories(ctx)
	if err != nil {
		return nil, err
	}

	var bq *bunnyq.BunnyQ
	if !cfg.RabbitMQ.Mock {
		log.Info().Msg("connecting to rabbitmq...")
		bq = rabbit(cfg)
		app.units = queue.NewUnitQueue(bq, cfg.RabbitMQ.Unit.Queue, cfg.RabbitMQ.Unit.Dlt.Exchange)
	}
	publisher, notifier := configQueues(bq, cfg)

	clock := core.SystemClock{}

	log.Info().Msg("creating scheduler...")
	app.scheduler = schedule.New(repos.jobs, clock, schedule.Config{
		Workers:        cfg.Scheduler.Workers,
		MaxRetries:     cfg.Scheduler.MaxRetries,
		BaseBackoff:    cfg.Scheduler.BaseBackoff,
		HandlerTimeout: cfg.Scheduler.NotifierTimeout,
		QueueSize:      cfg.Scheduler.QueueSize,
	})

	rentalCfg, err := configRental(cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("creating rental service...")
	svc := rental.NewService(repos.rental, app.scheduler, notifier, publisher, clock, rentalCfg)
	svc.RegisterJobHandlers(app.scheduler)
	app.rental = svc

	log.Info().Msg("creating user service...")
	app.users = user.NewService(repos.users)

	log.Info().Msg("configuring router...")
	app.router = api.ConfigureRouter(cfg, app.rental, app.users)

	return app, nil
}

func (a *application) configRepositories(ctx context.Context) (repositories, error) {
	if a.cfg.Db.InMemory {
		log.Warn().Msg("using the in memory store, nothing will survive a restart")
		return repositories{
			rental: memrepo.NewRentalRepo(),
			jobs:   memrepo.NewJobStore(),
			users:  memrepo.NewUserRepo(),
		}, nil
	}

	pool, err := db.ConnectDb(ctx, a.cfg)
	if err != nil {
		return repositories{}, errors.WithMessage(err, "failed to connect to the database")
	}
	a.pool = pool

	return repositories{
		rental: rentalrepo.NewPostgresRepo(pool),
		jobs:   jobrepo.NewPostgresRepo(pool),
		users:  usrrepo.NewPostgresRepo(pool),
	}, nil
}

func configQueues(bq *bunnyq.BunnyQ, cfg *config.Config) (rental.EventPublisher, rental.Notifier) {
	if bq == nil {
		log.Info().Msg("creating mock queues...")
		return queue.NewMockEventPublisher(), queue.LogNotifier{}
	}
	return queue.NewTransactionQueue(bq, cfg.RabbitMQ.Transaction.Exchange),
		queue.NewNotificationQueue(bq, cfg.RabbitMQ.Notification.Exchange)
}

func configRental(cfg *config.Config) (rental.Config, error) {
	rc := rental.Config{
		Location:       loadLocation(cfg.Rental.Timezone),
		PenaltyPerHour: decimal.NewFromInt(cfg.Rental.PenaltyPerHour),
		Cooldown:       cfg.Rental.Cooldown,
		ReminderLead:   cfg.Rental.ReminderLead,
	}
	if cfg.Rental.AdminPhone != "" {
		phone, err := rental.NormalizePhone(cfg.Rental.AdminPhone)
		if err != nil {
			return rental.Config{}, errors.WithMessagef(err, "rental.adminPhone %q", cfg.Rental.AdminPhone)
		}
		rc.AdminPhone = phone
	}
	return rc, nil
}

// loadLocation falls back to a fixed UTC+7 zone on hosts without tzdata.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("timezone", name).Msg("unable to load timezone, using UTC+7")
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

func (a *application) start(ctx context.Context) error {
	log.Info().Msg("starting scheduler...")
	if err := a.scheduler.Start(ctx); err != nil {
		return errors.WithMessage(err, "failed to start scheduler")
	}

	if a.cfg.Admin.Password != "" {
		if err := a.users.EnsureAdmin(ctx, a.cfg.Admin.Username, a.cfg.Admin.Password); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("no admin password configured, mutating routes only accept existing users")
	}

	if a.units != nil {
		log.Info().Msg("consuming units...")
		go a.units.ConsumeUnits(ctx, a.rental)
	}
	return nil
}

func (a *application) close() {
	a.scheduler.Stop()
	if a.pool != nil {
		a.pool.Close()
	}
}

func rabbit(cfg *config.Config) *bunnyq.BunnyQ {
	osChannel := make(chan os.Signal, 1)
	signal.Notify(osChannel, syscall.SIGTERM)

	return bunnyq.New(context.Background(),
		bunnyq.Address{
			User: cfg.RabbitMQ.User,
			Pass: cfg.RabbitMQ.Pass,
			Host: cfg.RabbitMQ.Host,
			Port: cfg.RabbitMQ.Port,
		},
		osChannel,
		bunnyq.LogHandler(logger{}),
	)
}

type logger struct {
}

func (l logger) Log(_ context.Context, level bunnyq.LogLevel, msg string, data map[string]interface{}) {
	var evt *zerolog.Event
	switch level {
	case bunnyq.LogLevelTrace:
		evt = log.Trace()
	case bunnyq.LogLevelDebug:
		evt = log.Debug()
	case bunnyq.LogLevelInfo:
		evt = log.Info()
	case bunnyq.LogLevelWarn:
		evt = log.Warn()
	case bunnyq.LogLevelError:
		evt = log.Error()
	default:
		evt = log.Info()
	}

	for k, v := range data {
		evt.Interface(k, v)
	}

	evt.Msg(msg)
}
