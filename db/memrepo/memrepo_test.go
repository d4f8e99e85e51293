package memrepo_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/db/memrepo"
	"github.com/reysilvaa/rosantibike-motorent/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	test.ConfigureLogging()
	os.Exit(m.Run())
}

func newTransaction() rental.Transaction {
	start := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	return rental.Transaction{
		RenterName:  "Budi",
		RenterPhone: "+6281234567890",
		UnitID:      1,
		Start:       start,
		End:         start.Add(24 * time.Hour),
		Status:      rental.Active,
	}
}

func TestUncommittedWritesAreInvisible(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewRentalRepo()

	tx, err := repo.BeginTransaction(ctx)
	require.NoError(t, err)

	booking := newTransaction()
	require.NoError(t, repo.SaveTransaction(ctx, &booking, core.UpdateOptions{Tx: tx}))

	_, err = repo.GetTransaction(ctx, booking.ID, core.QueryOptions{Tx: tx})
	assert.NoError(t, err, "a transaction sees its own writes")

	_, err = repo.GetTransaction(ctx, booking.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	open, err := repo.GetTransactions(ctx, rental.ListOptions{UnitID: 1}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, open)

	require.NoError(t, tx.Rollback(ctx))

	_, err = repo.GetTransaction(ctx, booking.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCommittedWritesAreVisible(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewRentalRepo()

	unit := rental.MotorUnit{PlateNumber: "N 1001 AA", Status: rental.UnitAvailable}
	require.NoError(t, repo.SaveUnit(ctx, &unit))

	tx, err := repo.BeginTransaction(ctx)
	require.NoError(t, err)
	booking := newTransaction()
	booking.UnitID = unit.ID
	require.NoError(t, repo.SaveTransaction(ctx, &booking, core.UpdateOptions{Tx: tx}))
	require.NoError(t, repo.UpdateUnitStatus(ctx, unit.ID, rental.UnitRented, time.Now(), core.UpdateOptions{Tx: tx}))

	got, err := repo.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.UnitAvailable, got.Status)

	require.NoError(t, tx.Commit(ctx))

	got, err = repo.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.UnitRented, got.Status)
	saved, err := repo.GetTransaction(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budi", saved.RenterName)
}

func TestWriteOutsideTransactionWaitsForRunningOne(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewRentalRepo()

	tx, err := repo.BeginTransaction(ctx)
	require.NoError(t, err)

	saved := make(chan uint64)
	go func() {
		unit := rental.MotorUnit{PlateNumber: "N 2002 BB"}
		if err := repo.SaveUnit(ctx, &unit); err != nil {
			t.Error(err)
		}
		saved <- unit.ID
	}()

	select {
	case <-saved:
		t.Fatal("write went through while a transaction was running")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Rollback(ctx))

	var id uint64
	select {
	case id = <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("write never went through")
	}

	unit, err := repo.GetUnit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "N 2002 BB", unit.PlateNumber)
}
