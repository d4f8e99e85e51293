package rental

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Config struct {
	Location       *time.Location
	PenaltyPerHour decimal.Decimal
	Cooldown       time.Duration
	ReminderLead   time.Duration
	AdminPhone     string
}

func DefaultConfig() Config {
	return Config{
		Location:       time.FixedZone("WIB", 7*60*60),
		PenaltyPerHour: decimal.NewFromInt(10000),
		Cooldown:       time.Hour,
		ReminderLead:   3 * time.Hour,
	}
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Transaction, error)
	Get(ctx context.Context, ID uint64) (Transaction, error)
	List(ctx context.Context, options ListOptions, limit, offset int) ([]Transaction, error)
	Update(ctx context.Context, ID uint64, req UpdateRequest) (Transaction, error)
	Complete(ctx context.Context, ID uint64) (Transaction, error)
	Delete(ctx context.Context, ID uint64) error

	CalculatePrice(ctx context.Context, req PriceRequest) (PriceQuote, error)
	CheckAvailability(ctx context.Context, req AvailabilityRequest) error
	CatalogAvailability(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]UnitAvailability, error)

	GetUnit(ctx context.Context, ID uint64) (MotorUnit, error)
	ListUnits(ctx context.Context, options UnitListOptions, limit, offset int) ([]MotorUnit, error)
	SaveUnit(ctx context.Context, unit MotorUnit) (MotorUnit, error)

	Subscribe(ch chan<- TransactionEvent) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

type service struct {
	repo         Repository
	scheduler    Scheduler
	notifier     Notifier
	publisher    EventPublisher
	clock        core.Clock
	cfg          Config
	pricing      *PricingEngine
	availability *AvailabilityChecker
	machine      *StateMachine

	subsMu sync.RWMutex
	subs   map[SubscriptionID]chan<- TransactionEvent
}

func NewService(repo Repository, scheduler Scheduler, notifier Notifier, publisher EventPublisher, clock core.Clock, cfg Config) *service {
	if cfg.Location == nil {
		cfg.Location = DefaultConfig().Location
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &service{
		repo:         repo,
		scheduler:    scheduler,
		notifier:     notifier,
		publisher:    publisher,
		clock:        clock,
		cfg:          cfg,
		pricing:      NewPricingEngine(cfg.Location, cfg.PenaltyPerHour),
		availability: NewAvailabilityChecker(repo, cfg.Location, cfg.Cooldown),
		machine:      NewStateMachine(repo, cfg.Location),
		subs:         make(map[SubscriptionID]chan<- TransactionEvent),
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (Transaction, error) {
	const funcName = "Create"

	log.Info().
		Str("func", funcName).
		Uint64("unitId", req.UnitID).
		Str("renter", req.RenterName).
		Msg("creating transaction")

	if strings.TrimSpace(req.RenterName) == "" {
		return Transaction{}, errors.Wrap(ErrInvalidRequest, "renter name is required")
	}
	if req.Helmets < 0 || req.Raincoats < 0 {
		return Transaction{}, errors.Wrap(ErrInvalidRequest, "accessory counts cannot be negative")
	}
	phone, err := NormalizePhone(req.RenterPhone)
	if err != nil {
		return Transaction{}, err
	}
	start, end, err := s.window(req.StartDate, req.StartTime, req.EndDate, req.EndTime)
	if err != nil {
		return Transaction{}, err
	}

	now := s.clock.Now()
	var t Transaction
	var unit MotorUnit

	err = inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		var err error
		unit, err = s.repo.GetUnit(ctx, req.UnitID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to lock unit %d", req.UnitID)
		}

		if err = s.availability.IsAvailable(ctx, unit.ID, start, end, 0, core.QueryOptions{Tx: tx}); err != nil {
			return err
		}

		quote := s.pricing.Quote(start, end, unit.DailyRate)
		t = Transaction{
			RenterName:  strings.TrimSpace(req.RenterName),
			RenterPhone: phone,
			UnitID:      unit.ID,
			Start:       start,
			End:         end,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Status:      Active,
			TotalPrice:  quote.Total,
			Denda:       decimal.Zero,
			Helmets:     req.Helmets,
			Raincoats:   req.Raincoats,
			Created:     now,
			Updated:     now,
		}
		if err = s.repo.SaveTransaction(ctx, &t, core.UpdateOptions{Tx: tx}); err != nil {
			return errors.WithMessage(err, "failed to save transaction")
		}

		return s.machine.SettleUnit(ctx, &unit, now, tx)
	})
	if err != nil {
		return Transaction{}, err
	}

	log.Info().
		Str("func", funcName).
		Uint64("id", t.ID).
		Str("unitStatus", string(unit.Status)).
		Str("total", t.TotalPrice.String()).
		Msg("transaction created")

	s.scheduleWindow(ctx, t, now)
	s.publish(ctx, EventCreated, t, unit.Status)

	return t, nil
}

func (s *service) Get(ctx context.Context, ID uint64) (Transaction, error) {
	const funcName = "Get"

	log.Debug().
		Str("func", funcName).
		Uint64("id", ID).
		Msg("getting transaction")

	t, err := s.repo.GetTransaction(ctx, ID)
	if err != nil {
		return t, errors.WithStack(err)
	}
	return t, nil
}

func (s *service) List(ctx context.Context, options ListOptions, limit, offset int) ([]Transaction, error) {
	const funcName = "List"

	log.Debug().
		Str("func", funcName).
		Uint64("unitId", options.UnitID).
		Int("limit", limit).
		Int("offset", offset).
		Msg("listing transactions")

	list, err := s.repo.GetTransactions(ctx, options, limit, offset)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return list, nil
}

func (s *service) Update(ctx context.Context, ID uint64, req UpdateRequest) (Transaction, error) {
	const funcName = "Update"

	log.Info().
		Str("func", funcName).
		Uint64("id", ID).
		Msg("updating transaction")

	now := s.clock.Now()
	var t Transaction
	var unitStatus UnitStatus
	var windowChanged bool

	err := inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		cur, err := s.repo.GetTransaction(ctx, ID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to get transaction %d", ID)
		}
		if !cur.Status.Open() {
			return errors.Wrapf(ErrAlreadyCompleted, "transaction %d", ID)
		}

		if t, err = s.applyUpdate(cur, req); err != nil {
			return err
		}

		windowChanged = !t.Start.Equal(cur.Start) || !t.End.Equal(cur.End)
		unitChanged := t.UnitID != cur.UnitID

		if req.TotalPrice != nil {
			t.TotalPrice = *req.TotalPrice
			t.PriceOverride = true
		}

		if !windowChanged && !unitChanged {
			t.Updated = now
			if err = s.repo.UpdateTransaction(ctx, t, core.UpdateOptions{Tx: tx}); err != nil {
				return errors.WithMessagef(err, "failed to save transaction %d", ID)
			}
			unit, err := s.repo.GetUnit(ctx, t.UnitID, core.QueryOptions{Tx: tx})
			if err != nil {
				return errors.WithMessagef(err, "failed to get unit %d", t.UnitID)
			}
			unitStatus = unit.Status
			return nil
		}

		if !t.Start.Before(t.End) {
			return &InvalidRangeError{Start: t.Start, End: t.End}
		}

		units, err := s.lockUnits(ctx, tx, cur.UnitID, t.UnitID)
		if err != nil {
			return err
		}

		if err = s.availability.IsAvailable(ctx, t.UnitID, t.Start, t.End, t.ID, core.QueryOptions{Tx: tx}); err != nil {
			return err
		}

		if req.TotalPrice == nil {
			t.TotalPrice = s.pricing.Quote(t.Start, t.End, units[t.UnitID].DailyRate).Total
			t.PriceOverride = false
		}

		t.Updated = now
		if err = s.repo.UpdateTransaction(ctx, t, core.UpdateOptions{Tx: tx}); err != nil {
			return errors.WithMessagef(err, "failed to save transaction %d", ID)
		}

		for _, id := range sortedIDs(units) {
			if err = s.machine.SettleUnit(ctx, units[id], now, tx); err != nil {
				return err
			}
		}
		unitStatus = units[t.UnitID].Status
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	if windowChanged {
		s.cancelJobs(ctx, t.ID, schedule.KindReminder, schedule.KindOverdueCheck, schedule.KindRentalStart)
		s.scheduleWindow(ctx, t, now)
	}
	s.publish(ctx, EventUpdated, t, unitStatus)

	return t, nil
}

// applyUpdate returns cur with the requested field changes applied and validated. Status is never touched here.
func (s *service) applyUpdate(cur Transaction, req UpdateRequest) (Transaction, error) {
	t := cur

	if req.RenterName != nil {
		if strings.TrimSpace(*req.RenterName) == "" {
			return t, errors.Wrap(ErrInvalidRequest, "renter name is required")
		}
		t.RenterName = strings.TrimSpace(*req.RenterName)
	}
	if req.RenterPhone != nil {
		phone, err := NormalizePhone(*req.RenterPhone)
		if err != nil {
			return t, err
		}
		t.RenterPhone = phone
	}
	if req.Helmets != nil {
		if *req.Helmets < 0 {
			return t, errors.Wrap(ErrInvalidRequest, "accessory counts cannot be negative")
		}
		t.Helmets = *req.Helmets
	}
	if req.Raincoats != nil {
		if *req.Raincoats < 0 {
			return t, errors.Wrap(ErrInvalidRequest, "accessory counts cannot be negative")
		}
		t.Raincoats = *req.Raincoats
	}
	if req.UnitID != nil {
		t.UnitID = *req.UnitID
	}
	if req.TotalPrice != nil && req.TotalPrice.IsNegative() {
		return t, errors.Wrap(ErrInvalidRequest, "total price cannot be negative")
	}

	var err error
	if req.StartDate != nil || req.StartTime != nil {
		date := cur.Start.In(s.cfg.Location)
		if req.StartDate != nil {
			date = *req.StartDate
		}
		if req.StartTime != nil {
			t.StartTime = *req.StartTime
		}
		if t.Start, err = s.pricing.Instant(date, t.StartTime); err != nil {
			return t, err
		}
	}
	if req.EndDate != nil || req.EndTime != nil {
		date := cur.End.In(s.cfg.Location)
		if req.EndDate != nil {
			date = *req.EndDate
		}
		if req.EndTime != nil {
			t.EndTime = *req.EndTime
		}
		if t.End, err = s.pricing.Instant(date, t.EndTime); err != nil {
			return t, err
		}
	}

	return t, nil
}

// lockUnits takes the row locks of the given units in ascending id order.
func (s *service) lockUnits(ctx context.Context, tx core.Transaction, ids ...uint64) (map[uint64]*MotorUnit, error) {
	units := make(map[uint64]*MotorUnit, len(ids))
	for _, id := range ids {
		units[id] = nil
	}
	for _, id := range sortedIDs(units) {
		unit, err := s.repo.GetUnit(ctx, id, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to lock unit %d", id)
		}
		units[id] = &unit
	}
	return units, nil
}

func sortedIDs(units map[uint64]*MotorUnit) []uint64 {
	ids := make([]uint64, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *service) Complete(ctx context.Context, ID uint64) (Transaction, error) {
	const funcName = "Complete"

	log.Info().
		Str("func", funcName).
		Uint64("id", ID).
		Msg("completing transaction")

	now := s.clock.Now()
	var t Transaction
	var unit MotorUnit

	err := inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		var err error
		t, err = s.repo.GetTransaction(ctx, ID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to get transaction %d", ID)
		}
		if !t.Status.Open() {
			return errors.Wrapf(ErrAlreadyCompleted, "transaction %d", ID)
		}

		t.Denda = s.pricing.ComputeLateFee(t, now)
		if err = s.machine.Transition(ctx, &t, Completed, now, tx); err != nil {
			return err
		}

		unit, err = s.repo.GetUnit(ctx, t.UnitID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to lock unit %d", t.UnitID)
		}
		return s.machine.SettleUnit(ctx, &unit, now, tx)
	})
	if err != nil {
		return Transaction{}, err
	}

	log.Info().
		Str("func", funcName).
		Uint64("id", t.ID).
		Str("denda", t.Denda.String()).
		Str("unitStatus", string(unit.Status)).
		Msg("transaction completed")

	s.cancelJobs(ctx, t.ID, schedule.KindReminder, schedule.KindOverdueCheck, schedule.KindRentalStart)
	s.scheduleJob(ctx, t.ID, schedule.KindCompletionNotice, now)
	s.publish(ctx, EventCompleted, t, unit.Status)
	if t.Denda.IsPositive() {
		s.publish(ctx, EventPenaltyAssessed, t, unit.Status)
	}

	return t, nil
}

func (s *service) Delete(ctx context.Context, ID uint64) error {
	const funcName = "Delete"

	log.Info().
		Str("func", funcName).
		Uint64("id", ID).
		Msg("deleting transaction")

	now := s.clock.Now()
	var t Transaction
	var unit MotorUnit

	err := inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		var err error
		t, err = s.repo.GetTransaction(ctx, ID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to get transaction %d", ID)
		}
		if t.Status != Active {
			return errors.Wrapf(ErrNotDeletable, "transaction %d is %s", ID, t.Status)
		}

		unit, err = s.repo.GetUnit(ctx, t.UnitID, core.QueryOptions{Tx: tx, ForUpdate: true})
		if err != nil {
			return errors.WithMessagef(err, "failed to lock unit %d", t.UnitID)
		}
		if err = s.repo.DeleteTransaction(ctx, ID, core.UpdateOptions{Tx: tx}); err != nil {
			return errors.WithMessagef(err, "failed to delete transaction %d", ID)
		}
		return s.machine.SettleUnit(ctx, &unit, now, tx)
	})
	if err != nil {
		return err
	}

	s.cancelJobs(ctx, ID)
	s.publish(ctx, EventDeleted, t, unit.Status)
	return nil
}

func (s *service) CalculatePrice(ctx context.Context, req PriceRequest) (PriceQuote, error) {
	const funcName = "CalculatePrice"

	log.Debug().
		Str("func", funcName).
		Uint64("unitId", req.UnitID).
		Msg("calculating price")

	if _, _, err := s.window(req.StartDate, req.StartTime, req.EndDate, req.EndTime); err != nil {
		return PriceQuote{}, err
	}

	unit, err := s.repo.GetUnit(ctx, req.UnitID)
	if err != nil {
		return PriceQuote{}, errors.WithMessagef(err, "failed to get unit %d", req.UnitID)
	}

	return s.pricing.ComputePrice(req.StartDate, req.EndDate, req.StartTime, req.EndTime, unit.DailyRate)
}

func (s *service) CheckAvailability(ctx context.Context, req AvailabilityRequest) error {
	start, end, err := s.window(req.StartDate, req.StartTime, req.EndDate, req.EndTime)
	if err != nil {
		return err
	}
	return s.availability.IsAvailable(ctx, req.UnitID, start, end, req.ExcludeTransactionID)
}

func (s *service) CatalogAvailability(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]UnitAvailability, error) {
	return s.availability.CheckRangeForCatalog(ctx, startDate, endDate, typeID)
}

func (s *service) GetUnit(ctx context.Context, ID uint64) (MotorUnit, error) {
	unit, err := s.repo.GetUnit(ctx, ID)
	if err != nil {
		return unit, errors.WithStack(err)
	}
	return unit, nil
}

func (s *service) ListUnits(ctx context.Context, options UnitListOptions, limit, offset int) ([]MotorUnit, error) {
	units, err := s.repo.GetUnits(ctx, options, limit, offset)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return units, nil
}

// SaveUnit upserts a unit coming from the catalog. The catalog may take a unit in or out of maintenance but
// never overrides a status derived from open bookings.
func (s *service) SaveUnit(ctx context.Context, unit MotorUnit) (MotorUnit, error) {
	const funcName = "SaveUnit"

	log.Info().
		Str("func", funcName).
		Uint64("id", unit.ID).
		Str("plate", unit.PlateNumber).
		Msg("saving unit")

	if strings.TrimSpace(unit.PlateNumber) == "" {
		return MotorUnit{}, errors.Wrap(ErrInvalidRequest, "plate number is required")
	}
	if !unit.DailyRate.IsPositive() {
		return MotorUnit{}, errors.Wrap(ErrInvalidRequest, "daily rate must be positive")
	}

	requested := unit.Status
	now := s.clock.Now()

	err := inTransaction(ctx, s.repo, func(tx core.Transaction) error {
		if unit.Type.ID != 0 || unit.Type.Merk != "" {
			if err := s.repo.SaveMotorType(ctx, &unit.Type, core.UpdateOptions{Tx: tx}); err != nil {
				return errors.WithMessage(err, "failed to save motor type")
			}
		}

		unit.Status = UnitAvailable
		unit.Created = now
		if unit.ID != 0 {
			existing, err := s.repo.GetUnit(ctx, unit.ID, core.QueryOptions{Tx: tx, ForUpdate: true})
			switch {
			case err == nil:
				unit.Status = existing.Status
				unit.Created = existing.Created
			case !errors.Is(err, core.ErrNotFound):
				return errors.WithMessagef(err, "failed to lock unit %d", unit.ID)
			}
		}
		unit.Updated = now

		if err := s.repo.SaveUnit(ctx, &unit, core.UpdateOptions{Tx: tx}); err != nil {
			return errors.WithMessagef(err, "failed to save unit %s", unit.PlateNumber)
		}
		return s.machine.ApplyCatalogStatus(ctx, &unit, requested, now, tx)
	})
	if err != nil {
		return MotorUnit{}, err
	}
	return unit, nil
}

func (s *service) Subscribe(ch chan<- TransactionEvent) SubscriptionID {
	id := SubscriptionID(uuid.NewString())
	s.subsMu.Lock()
	s.subs[id] = ch
	s.subsMu.Unlock()
	log.Debug().Interface("clientId", id).Msg("subscribing to transaction events")
	return id
}

func (s *service) Unsubscribe(id SubscriptionID) {
	log.Debug().Interface("clientId", id).Msg("unsubscribing from transaction events")
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

// window builds the absolute start and end of a booking and enforces start < end.
func (s *service) window(startDate time.Time, startTime string, endDate time.Time, endTime string) (time.Time, time.Time, error) {
	start, err := s.pricing.Instant(startDate, startTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := s.pricing.Instant(endDate, endTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, &InvalidRangeError{Start: start, End: end}
	}
	return start, end, nil
}

// scheduleWindow arms the jobs that follow a booking's window: a reminder ahead of the end, the overdue check
// at the end, and the hand-over when the rental starts later than now.
func (s *service) scheduleWindow(ctx context.Context, t Transaction, now time.Time) {
	if remindAt := t.End.Add(-s.cfg.ReminderLead); remindAt.After(now) {
		s.scheduleJob(ctx, t.ID, schedule.KindReminder, remindAt)
	}
	s.scheduleJob(ctx, t.ID, schedule.KindOverdueCheck, t.End)
	if t.Start.After(now) {
		s.scheduleJob(ctx, t.ID, schedule.KindRentalStart, t.Start)
	}
}

// scheduleJob never fails the caller: the state change it follows is already committed.
func (s *service) scheduleJob(ctx context.Context, transactionID uint64, kind schedule.Kind, at time.Time) {
	key := schedule.Key{TransactionID: transactionID, Kind: kind}
	if _, err := s.scheduler.ScheduleAt(ctx, key, at, nil); err != nil {
		log.Error().Err(err).
			Uint64("transactionId", transactionID).
			Str("kind", string(kind)).
			Time("fireAt", at).
			Msg("failed to schedule job")
	}
}

func (s *service) cancelJobs(ctx context.Context, transactionID uint64, kinds ...schedule.Kind) {
	if err := s.scheduler.Cancel(ctx, transactionID, kinds...); err != nil {
		log.Warn().Err(err).Uint64("transactionId", transactionID).Msg("failed to cancel jobs")
	}
}

func (s *service) publish(ctx context.Context, typ EventType, t Transaction, unitStatus UnitStatus) {
	evt := TransactionEvent{Type: typ, Transaction: t, UnitStatus: unitStatus, Occurred: s.clock.Now()}

	if err := s.publisher.PublishTransactionEvent(ctx, evt); err != nil {
		log.Error().Err(err).
			Uint64("id", t.ID).
			Str("type", string(typ)).
			Msg("failed to publish transaction event")
	}
	s.notifySubscribers(evt)
}

func (s *service) notifySubscribers(evt TransactionEvent) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for id, ch := range s.subs {
		select {
		case ch <- evt:
			log.Debug().Interface("clientId", id).Str("type", string(evt.Type)).Msg("notified subscriber of transaction event")
		default:
			log.Warn().Interface("clientId", id).Str("type", string(evt.Type)).Msg("subscriber is not keeping up, dropping event")
		}
	}
}
