package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/rs/zerolog/log"
)

type armed struct {
	timer *time.Timer
	token string
}

type Config struct {
	Workers int
	// MaxRetries is how many times a failing job is retried after its first attempt.
	MaxRetries     int
	BaseBackoff    time.Duration
	HandlerTimeout time.Duration
	QueueSize      int
}

func DefaultConfig() Config {
	return Config{
		Workers:        4,
		MaxRetries:     5,
		BaseBackoff:    30 * time.Second,
		HandlerTimeout: 15 * time.Second,
		QueueSize:      256,
	}
}

// Scheduler arms one in-process timer per pending job and hands fired jobs to a pool of workers. The store is
// the source of truth: a worker reloads the job before running it and drops it when it was cancelled, already
// ran, or was rescheduled under a new token in the meantime.
type Scheduler struct {
	store Store
	clock core.Clock
	cfg   Config

	mu       sync.Mutex
	handlers map[Kind]HandlerFunc
	timers   map[Key]armed
	inflight map[Key]string
	running  bool

	queue  chan Job
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store Store, clock core.Clock, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if clock == nil {
		clock = core.SystemClock{}
	}

	return &Scheduler{
		store:    store,
		clock:    clock,
		cfg:      cfg,
		handlers: make(map[Kind]HandlerFunc),
		timers:   make(map[Key]armed),
		inflight: make(map[Key]string),
	}
}

// OnFire binds the handler for a kind. Each kind has exactly one handler.
func (s *Scheduler) OnFire(kind Kind, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[kind]; ok {
		panic(fmt.Sprintf("schedule: handler for %s already registered", kind))
	}
	s.handlers[kind] = h
}

// ScheduleAt stores a pending job for key that fires at fireAt, replacing any job already stored under the key.
func (s *Scheduler) ScheduleAt(ctx context.Context, key Key, fireAt time.Time, payload []byte) (Job, error) {
	const funcName = "ScheduleAt"

	now := s.clock.Now()
	job := Job{
		Key:     key,
		FireAt:  fireAt,
		Payload: payload,
		Status:  Pending,
		Token:   uuid.NewString(),
		Created: now,
		Updated: now,
	}

	if err := s.store.UpsertJob(ctx, &job); err != nil {
		return Job{}, errors.WithMessagef(err, "failed to store %s job for transaction %d", key.Kind, key.TransactionID)
	}
	jobsScheduled.WithLabelValues(string(key.Kind)).Inc()

	log.Debug().
		Str("func", funcName).
		Uint64("transactionId", key.TransactionID).
		Str("kind", string(key.Kind)).
		Time("fireAt", fireAt).
		Msg("job scheduled")

	s.arm(job)
	return job, nil
}

// Cancel marks the pending jobs of a transaction cancelled and disarms their timers.
func (s *Scheduler) Cancel(ctx context.Context, transactionID uint64, kinds ...Kind) error {
	n, err := s.store.CancelJobs(ctx, transactionID, kinds, s.clock.Now())
	if err != nil {
		return errors.WithMessagef(err, "failed to cancel jobs for transaction %d", transactionID)
	}

	s.mu.Lock()
	for key, a := range s.timers {
		if key.TransactionID != transactionID || !matchesKind(key.Kind, kinds) {
			continue
		}
		a.timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	log.Debug().Uint64("transactionId", transactionID).Int64("cancelled", n).Msg("jobs cancelled")
	return nil
}

func matchesKind(kind Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Start re-arms every pending job found in the store and starts the workers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("schedule: scheduler already started")
	}
	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.queue = make(chan Job, s.cfg.QueueSize)
	s.stop = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.work(wctx)
	}

	pending, err := s.store.GetPendingJobs(ctx)
	if err != nil {
		s.Stop()
		return errors.WithMessage(err, "failed to load pending jobs")
	}
	for _, job := range pending {
		s.arm(job)
	}

	log.Info().Int("workers", s.cfg.Workers).Int("pending", len(pending)).Msg("scheduler started")
	return nil
}

// Stop disarms all timers and waits for running handlers to return. Pending jobs stay in the store.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for key, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, key)
	}
	close(s.stop)
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) arm(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if s.inflight[job.Key] == job.Token {
		return
	}
	if a, ok := s.timers[job.Key]; ok {
		a.timer.Stop()
	}

	delay := job.FireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timers[job.Key] = armed{timer: time.AfterFunc(delay, func() { s.fire(job) }), token: job.Token}
}

func (s *Scheduler) fire(job Job) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if a, ok := s.timers[job.Key]; ok && a.token == job.Token {
		delete(s.timers, job.Key)
	}
	s.inflight[job.Key] = job.Token
	queue, stop := s.queue, s.stop
	s.mu.Unlock()

	select {
	case queue <- job:
	case <-stop:
	}
}

func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.queue:
			retry, again := s.execute(ctx, job)
			s.mu.Lock()
			if s.inflight[job.Key] == job.Token {
				delete(s.inflight, job.Key)
			}
			s.mu.Unlock()
			if again {
				s.arm(retry)
			}
		case <-s.stop:
			return
		}
	}
}

// execute runs one fired job and returns the job to re-arm when it has to be retried.
func (s *Scheduler) execute(ctx context.Context, fired Job) (Job, bool) {
	const funcName = "execute"

	job, err := s.store.GetJob(ctx, fired.Key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Job{}, false
		}
		// Reload failures count against the same retry budget. The job stays PENDING in the store and is
		// picked up again by the next Start.
		fired.Attempts++
		if fired.Attempts > s.cfg.MaxRetries {
			jobsFailed.WithLabelValues(string(fired.Kind)).Inc()
			log.Error().Err(err).
				Str("func", funcName).
				Uint64("transactionId", fired.TransactionID).
				Str("kind", string(fired.Kind)).
				Int("attempts", fired.Attempts).
				Msg("failed to reload job, giving up until restart")
			return Job{}, false
		}
		log.Error().Err(err).
			Str("func", funcName).
			Uint64("transactionId", fired.TransactionID).
			Str("kind", string(fired.Kind)).
			Int("attempts", fired.Attempts).
			Msg("failed to reload job, retrying later")
		fired.FireAt = s.clock.Now().Add(s.Backoff(fired.Attempts))
		return fired, true
	}

	if job.Token != fired.Token || job.Status != Pending {
		log.Debug().
			Str("func", funcName).
			Uint64("transactionId", job.TransactionID).
			Str("kind", string(job.Kind)).
			Str("status", string(job.Status)).
			Msg("dropping stale job")
		return Job{}, false
	}

	s.mu.Lock()
	h, ok := s.handlers[job.Kind]
	s.mu.Unlock()

	jobsFired.WithLabelValues(string(job.Kind)).Inc()

	if !ok {
		err = errors.Errorf("no handler registered for %s", job.Kind)
		job.Attempts = s.cfg.MaxRetries
	} else {
		err = s.run(ctx, h, job)
	}

	job.Attempts++
	job.Updated = s.clock.Now()

	if err == nil {
		job.Status = Done
		job.LastError = ""
		s.save(ctx, job)
		jobsSucceeded.WithLabelValues(string(job.Kind)).Inc()
		return Job{}, false
	}

	job.LastError = err.Error()
	if job.Attempts <= s.cfg.MaxRetries {
		job.FireAt = job.Updated.Add(s.Backoff(job.Attempts))
		if !s.save(ctx, job) {
			return Job{}, false
		}
		jobsRetried.WithLabelValues(string(job.Kind)).Inc()
		log.Warn().Err(err).
			Str("func", funcName).
			Uint64("transactionId", job.TransactionID).
			Str("kind", string(job.Kind)).
			Int("attempts", job.Attempts).
			Time("retryAt", job.FireAt).
			Msg("job failed, retrying")
		return job, true
	}

	job.Status = Failed
	s.save(ctx, job)
	jobsFailed.WithLabelValues(string(job.Kind)).Inc()
	log.Error().Err(err).
		Str("func", funcName).
		Uint64("transactionId", job.TransactionID).
		Str("kind", string(job.Kind)).
		Int("attempts", job.Attempts).
		Msg("job failed permanently")
	return Job{}, false
}

func (s *Scheduler) run(ctx context.Context, h HandlerFunc, job Job) (err error) {
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panicked: %v", r)
		}
	}()

	return h(hctx, job)
}

// save persists the outcome of an attempt and reports whether the job was still current.
func (s *Scheduler) save(ctx context.Context, job Job) bool {
	err := s.store.UpdateJob(ctx, job)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrNotFound) {
		log.Debug().Uint64("transactionId", job.TransactionID).Str("kind", string(job.Kind)).Msg("job was rescheduled while running")
		return false
	}
	log.Error().Err(err).Uint64("transactionId", job.TransactionID).Str("kind", string(job.Kind)).Msg("failed to save job outcome")
	return false
}

// Backoff is the delay before retry number attempt: BaseBackoff doubled for every earlier failure.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
