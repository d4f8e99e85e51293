package rental_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/core/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverdueCheck(t *testing.T) {
	f := newFixture(t)

	tx, err := f.book(f.unit.ID, date(2024, 6, 1), "08:00", date(2024, 6, 2), "08:00")
	require.NoError(t, err)
	f.scheduler.Reset()
	f.publisher.Reset()

	t.Run("firing early reschedules", func(t *testing.T) {
		f.clock.Set(tx.End.Add(-time.Minute))
		require.NoError(t, f.svc.HandleOverdueCheck(context.Background(), job(tx.ID, schedule.KindOverdueCheck)))

		assert.Equal(t, rental.Active, f.transaction(t, tx.ID).Status)
		at := f.scheduler.Scheduled()[schedule.Key{TransactionID: tx.ID, Kind: schedule.KindOverdueCheck}]
		assert.True(t, at.After(tx.End))
		f.scheduler.Reset()
	})

	t.Run("firing twice flips once", func(t *testing.T) {
		f.clock.Set(tx.End.Add(time.Hour))
		for i := 0; i < 2; i++ {
			require.NoError(t, f.svc.HandleOverdueCheck(context.Background(), job(tx.ID, schedule.KindOverdueCheck)))
		}

		assert.Equal(t, rental.Overdue, f.transaction(t, tx.ID).Status)
		assert.Equal(t, rental.UnitOverdue, f.unitStatus(t, f.unit.ID))
		f.scheduler.VerifyCount("ScheduleAt", 2, t)
		assert.Contains(t, f.scheduler.Scheduled(), schedule.Key{TransactionID: tx.ID, Kind: schedule.KindOverdueNotice})
		assert.Contains(t, f.scheduler.Scheduled(), schedule.Key{TransactionID: tx.ID, Kind: schedule.KindOverdueAdmin})
		assert.Equal(t, []rental.EventType{rental.EventOverdue}, f.publisher.Events())
	})

	t.Run("renter and admin are told by separate jobs", func(t *testing.T) {
		require.NoError(t, f.svc.HandleOverdueNotice(context.Background(), job(tx.ID, schedule.KindOverdueNotice)))
		assert.Equal(t, []string{"+6281234567890"}, f.notifier.Sent())

		renterMsg := f.notifier.GetCall("Send")[0][2].(string)
		assert.True(t, strings.Contains(renterMsg, "Rp 10.000"), renterMsg)
		assert.True(t, strings.Contains(renterMsg, "N 1001 AA"), renterMsg)

		require.NoError(t, f.svc.HandleOverdueAdminNotice(context.Background(), job(tx.ID, schedule.KindOverdueAdmin)))
		assert.Equal(t, []string{"+6281234567890", adminPhone}, f.notifier.Sent())
	})

	t.Run("retrying a failed admin notice does not repeat the renter's", func(t *testing.T) {
		f.notifier.Reset()
		send := f.notifier.SendFunc
		defer func() { f.notifier.SendFunc = send }()
		f.notifier.SendFunc = func(ctx context.Context, phone, text string) error {
			if phone == adminPhone {
				return errors.New("gateway timeout")
			}
			return nil
		}

		require.NoError(t, f.svc.HandleOverdueNotice(context.Background(), job(tx.ID, schedule.KindOverdueNotice)))
		for i := 0; i < 3; i++ {
			assert.Error(t, f.svc.HandleOverdueAdminNotice(context.Background(), job(tx.ID, schedule.KindOverdueAdmin)))
		}
		assert.Equal(t, []string{"+6281234567890", adminPhone, adminPhone, adminPhone}, f.notifier.Sent())
	})

	t.Run("completed rental is left alone", func(t *testing.T) {
		_, err := f.svc.Complete(context.Background(), tx.ID)
		require.NoError(t, err)
		f.notifier.Reset()
		f.scheduler.Reset()
		f.publisher.Reset()

		require.NoError(t, f.svc.HandleOverdueCheck(context.Background(), job(tx.ID, schedule.KindOverdueCheck)))
		require.NoError(t, f.svc.HandleOverdueNotice(context.Background(), job(tx.ID, schedule.KindOverdueNotice)))
		require.NoError(t, f.svc.HandleOverdueAdminNotice(context.Background(), job(tx.ID, schedule.KindOverdueAdmin)))

		assert.Equal(t, rental.Completed, f.transaction(t, tx.ID).Status)
		assert.Equal(t, rental.UnitAvailable, f.unitStatus(t, f.unit.ID))
		f.notifier.VerifyCount("Send", 0, t)
		f.scheduler.VerifyCount("ScheduleAt", 0, t)
		assert.Empty(t, f.publisher.Events())
	})
}

func TestOverdueCheckAfterManualCompletion(t *testing.T) {
	f := newFixture(t)

	tx, err := f.book(f.unit.ID, date(2024, 6, 1), "08:00", date(2024, 6, 2), "08:00")
	require.NoError(t, err)

	f.clock.Set(tx.End.Add(-10 * time.Minute))
	done, err := f.svc.Complete(context.Background(), tx.ID)
	require.NoError(t, err)
	f.scheduler.Reset()
	f.publisher.Reset()

	f.clock.Set(tx.End.Add(time.Minute))
	require.NoError(t, f.svc.HandleOverdueCheck(context.Background(), job(tx.ID, schedule.KindOverdueCheck)))

	after := f.transaction(t, tx.ID)
	assert.Equal(t, rental.Completed, after.Status)
	assert.Equal(t, done.Updated, after.Updated)
	f.notifier.VerifyCount("Send", 0, t)
	f.scheduler.VerifyCount("ScheduleAt", 0, t)
	assert.Empty(t, f.publisher.Events())
}

func TestOverdueCheckForDeletedTransaction(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.HandleOverdueCheck(context.Background(), job(42, schedule.KindOverdueCheck)))
	assert.NoError(t, f.svc.HandleReminder(context.Background(), job(42, schedule.KindReminder)))
}

func TestReminder(t *testing.T) {
	f := newFixture(t)

	tx, err := f.book(f.unit.ID, date(2024, 6, 1), "08:00", date(2024, 6, 2), "08:00")
	require.NoError(t, err)

	f.clock.Set(tx.End.Add(-3 * time.Hour))
	require.NoError(t, f.svc.HandleReminder(context.Background(), job(tx.ID, schedule.KindReminder)))
	require.Equal(t, []string{"+6281234567890"}, f.notifier.Sent())
	msg := f.notifier.GetCall("Send")[0][2].(string)
	assert.True(t, strings.Contains(msg, "02-06-2024 08:00"), msg)
}

func TestNotifierFailureIsReturnedForRetry(t *testing.T) {
	f := newFixture(t)
	f.notifier.SendFunc = func(ctx context.Context, phone, text string) error {
		return errors.New("gateway timeout")
	}

	tx, err := f.book(f.unit.ID, date(2024, 6, 1), "08:00", date(2024, 6, 2), "08:00")
	require.NoError(t, err)

	assert.Error(t, f.svc.HandleReminder(context.Background(), job(tx.ID, schedule.KindReminder)))
}

func TestRentalStart(t *testing.T) {
	f := newFixture(t)

	tx, err := f.book(f.unit.ID, date(2024, 6, 8), "08:00", date(2024, 6, 9), "08:00")
	require.NoError(t, err)
	require.Equal(t, rental.UnitReserved, f.unitStatus(t, f.unit.ID))

	f.clock.Set(tx.Start)
	require.NoError(t, f.svc.HandleRentalStart(context.Background(), job(tx.ID, schedule.KindRentalStart)))
	assert.Equal(t, rental.UnitRented, f.unitStatus(t, f.unit.ID))

	require.NoError(t, f.svc.HandleRentalStart(context.Background(), job(tx.ID, schedule.KindRentalStart)))
	assert.Equal(t, rental.UnitRented, f.unitStatus(t, f.unit.ID))
}

func TestRegisterJobHandlers(t *testing.T) {
	f := newFixture(t)
	s := schedule.New(nil, f.clock, schedule.DefaultConfig())

	f.svc.RegisterJobHandlers(s)

	assert.Panics(t, func() {
		s.OnFire(schedule.KindReminder, func(ctx context.Context, job schedule.Job) error { return nil })
	})
}
