package schedule_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/reysilvaa/rosantibike-motorent/db/memrepo"
	"github.com/reysilvaa/rosantibike-motorent/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	test.ConfigureLogging()
	os.Exit(m.Run())
}

func testConfig() schedule.Config {
	return schedule.Config{
		Workers:        2,
		MaxRetries:     2,
		BaseBackoff:    10 * time.Millisecond,
		HandlerTimeout: 200 * time.Millisecond,
		QueueSize:      16,
	}
}

func startScheduler(t *testing.T, store schedule.Store, cfg schedule.Config, handlers map[schedule.Kind]schedule.HandlerFunc) *schedule.Scheduler {
	t.Helper()
	s := schedule.New(store, core.SystemClock{}, cfg)
	for kind, h := range handlers {
		s.OnFire(kind, h)
	}
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func waitForStatus(t *testing.T, store schedule.Store, key schedule.Key, want schedule.Status) schedule.Job {
	t.Helper()
	var job schedule.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = store.GetJob(context.Background(), key)
		return err == nil && job.Status == want
	}, waitFor, tick)
	return job
}

func TestScheduleAtFires(t *testing.T) {
	store := memrepo.NewJobStore()
	var calls int32
	s := startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindReminder: func(ctx context.Context, job schedule.Job) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	key := schedule.Key{TransactionID: 1, Kind: schedule.KindReminder}
	job, err := s.ScheduleAt(context.Background(), key, time.Now().Add(20*time.Millisecond), []byte(`{"note":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, schedule.Pending, job.Status)
	assert.NotEmpty(t, job.Token)

	done := waitForStatus(t, store, key, schedule.Done)
	assert.Equal(t, 1, done.Attempts)
	assert.Empty(t, done.LastError)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRescheduleReplacesPendingJob(t *testing.T) {
	store := memrepo.NewJobStore()
	fired := make(chan time.Time, 4)
	s := startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindOverdueCheck: func(ctx context.Context, job schedule.Job) error {
			fired <- job.FireAt
			return nil
		},
	})

	key := schedule.Key{TransactionID: 7, Kind: schedule.KindOverdueCheck}
	first, err := s.ScheduleAt(context.Background(), key, time.Now().Add(40*time.Millisecond), nil)
	require.NoError(t, err)
	secondAt := time.Now().Add(80 * time.Millisecond)
	second, err := s.ScheduleAt(context.Background(), key, secondAt, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.Token, second.Token)

	select {
	case at := <-fired:
		assert.True(t, at.Equal(secondAt), "fired the replaced job")
	case <-time.After(waitFor):
		t.Fatal("job never fired")
	}

	select {
	case <-fired:
		t.Fatal("job fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetryThenSucceed(t *testing.T) {
	store := memrepo.NewJobStore()
	var calls int32
	s := startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindReminder: func(ctx context.Context, job schedule.Job) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("gateway timeout")
			}
			return nil
		},
	})

	key := schedule.Key{TransactionID: 2, Kind: schedule.KindReminder}
	_, err := s.ScheduleAt(context.Background(), key, time.Now(), nil)
	require.NoError(t, err)

	done := waitForStatus(t, store, key, schedule.Done)
	assert.Equal(t, 3, done.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetriesExhausted(t *testing.T) {
	store := memrepo.NewJobStore()
	var calls int32
	s := startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindOverdueNotice: func(ctx context.Context, job schedule.Job) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("gateway down")
		},
	})

	key := schedule.Key{TransactionID: 3, Kind: schedule.KindOverdueNotice}
	_, err := s.ScheduleAt(context.Background(), key, time.Now(), nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, key, schedule.Failed)
	assert.Equal(t, 3, failed.Attempts)
	assert.Contains(t, failed.LastError, "gateway down")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

type unreachableStore struct {
	*memrepo.JobStore
	reloads int32
}

func (s *unreachableStore) GetJob(_ context.Context, _ schedule.Key) (schedule.Job, error) {
	atomic.AddInt32(&s.reloads, 1)
	return schedule.Job{}, errors.New("connection refused")
}

func TestReloadFailuresAreBounded(t *testing.T) {
	store := &unreachableStore{JobStore: memrepo.NewJobStore()}
	var calls int32
	s := startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindReminder: func(ctx context.Context, job schedule.Job) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	key := schedule.Key{TransactionID: 10, Kind: schedule.KindReminder}
	_, err := s.ScheduleAt(context.Background(), key, time.Now(), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&store.reloads) == 3 }, waitFor, tick)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&store.reloads))
	assert.Zero(t, atomic.LoadInt32(&calls))

	pending, err := store.GetPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPanickingHandlerIsAFailure(t *testing.T) {
	store := memrepo.NewJobStore()
	cfg := testConfig()
	cfg.MaxRetries = 0
	s := startScheduler(t, store, cfg, map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindReminder: func(ctx context.Context, job schedule.Job) error {
			panic("boom")
		},
	})

	key := schedule.Key{TransactionID: 4, Kind: schedule.KindReminder}
	_, err := s.ScheduleAt(context.Background(), key, time.Now(), nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, key, schedule.Failed)
	assert.Contains(t, failed.LastError, "boom")
}

func TestHandlerTimeout(t *testing.T) {
	store := memrepo.NewJobStore()
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.HandlerTimeout = 20 * time.Millisecond
	s := startScheduler(t, store, cfg, map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindCompletionNotice: func(ctx context.Context, job schedule.Job) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	key := schedule.Key{TransactionID: 5, Kind: schedule.KindCompletionNotice}
	_, err := s.ScheduleAt(context.Background(), key, time.Now(), nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, key, schedule.Failed)
	assert.Contains(t, failed.LastError, context.DeadlineExceeded.Error())
}

func TestCancel(t *testing.T) {
	store := memrepo.NewJobStore()
	var calls int32
	h := func(ctx context.Context, job schedule.Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	s := startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindReminder:     h,
		schedule.KindOverdueCheck: h,
	})

	at := time.Now().Add(50 * time.Millisecond)
	reminder := schedule.Key{TransactionID: 6, Kind: schedule.KindReminder}
	check := schedule.Key{TransactionID: 6, Kind: schedule.KindOverdueCheck}
	_, err := s.ScheduleAt(context.Background(), reminder, at, nil)
	require.NoError(t, err)
	_, err = s.ScheduleAt(context.Background(), check, at, nil)
	require.NoError(t, err)

	require.NoError(t, s.Cancel(context.Background(), 6, schedule.KindReminder))

	waitForStatus(t, store, check, schedule.Done)
	cancelled, err := store.GetJob(context.Background(), reminder)
	require.NoError(t, err)
	assert.Equal(t, schedule.Cancelled, cancelled.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStartRecoversPendingJobs(t *testing.T) {
	store := memrepo.NewJobStore()
	key := schedule.Key{TransactionID: 8, Kind: schedule.KindOverdueCheck}
	require.NoError(t, store.UpsertJob(context.Background(), &schedule.Job{
		Key:    key,
		FireAt: time.Now().Add(-time.Hour),
		Status: schedule.Pending,
		Token:  "left-over-from-last-run",
	}))

	var calls int32
	startScheduler(t, store, testConfig(), map[schedule.Kind]schedule.HandlerFunc{
		schedule.KindOverdueCheck: func(ctx context.Context, job schedule.Job) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	waitForStatus(t, store, key, schedule.Done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMissingHandlerFailsJob(t *testing.T) {
	store := memrepo.NewJobStore()
	s := startScheduler(t, store, testConfig(), nil)

	key := schedule.Key{TransactionID: 9, Kind: schedule.KindRentalStart}
	_, err := s.ScheduleAt(context.Background(), key, time.Now(), nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, key, schedule.Failed)
	assert.Contains(t, failed.LastError, "no handler")
}

func TestOnFireTwicePanics(t *testing.T) {
	s := schedule.New(memrepo.NewJobStore(), nil, testConfig())
	h := func(ctx context.Context, job schedule.Job) error { return nil }

	s.OnFire(schedule.KindReminder, h)
	assert.Panics(t, func() { s.OnFire(schedule.KindReminder, h) })
}

func TestBackoff(t *testing.T) {
	s := schedule.New(memrepo.NewJobStore(), nil, schedule.Config{BaseBackoff: time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 5, want: 16 * time.Second},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, s.Backoff(test.attempt), "attempt %d", test.attempt)
	}
}

func TestParseKind(t *testing.T) {
	k, err := schedule.ParseKind("OVERDUE_CHECK")
	require.NoError(t, err)
	assert.Equal(t, schedule.KindOverdueCheck, k)

	k, err = schedule.ParseKind("OVERDUE_ADMIN_NOTICE")
	require.NoError(t, err)
	assert.Equal(t, schedule.KindOverdueAdmin, k)

	_, err = schedule.ParseKind("overdue")
	assert.Error(t, err)
}
