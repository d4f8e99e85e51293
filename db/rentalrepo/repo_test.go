package rentalrepo_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/db"
	"github.com/reysilvaa/rosantibike-motorent/db/rentalrepo"
	"github.com/reysilvaa/rosantibike-motorent/test"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	test.ConfigureLogging()
	os.Exit(m.Run())
}

func lastSQL(t *testing.T, c *db.MockConn, funcName string) string {
	t.Helper()
	calls := c.GetCall(funcName)
	require.NotEmpty(t, calls)
	return calls[len(calls)-1][1].(string)
}

func TestGetUnit(t *testing.T) {
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		row       db.MockRow
		options   []core.QueryOptions
		wantErr   error
		wantLock  bool
		wantPlate string
	}{
		{
			name: "found",
			row: db.MockRow{Values: []interface{}{
				uint64(3), "N 1001 AA", decimal.NewFromInt(75000), "AVAILABLE", created, created,
				uint64(1), "Honda", "Vario", 125,
			}},
			wantPlate: "N 1001 AA",
		},
		{
			name:    "not found",
			row:     db.MockRow{Err: pgx.ErrNoRows},
			wantErr: core.ErrNotFound,
		},
		{
			name: "locked",
			row: db.MockRow{Values: []interface{}{
				uint64(3), "N 1001 AA", decimal.NewFromInt(75000), "RENTED", created, created,
			}},
			options:   []core.QueryOptions{{ForUpdate: true}},
			wantLock:  true,
			wantPlate: "N 1001 AA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := db.NewMockConn()
			conn.QueryRowFunc = func(ctx context.Context, sql string, args ...interface{}) pgx.Row { return tt.row }
			repo := rentalrepo.NewPostgresRepo(&conn)

			u, err := repo.GetUnit(context.Background(), 3, tt.options...)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlate, u.PlateNumber)
			assert.True(t, u.DailyRate.Equal(decimal.NewFromInt(75000)))

			sql := lastSQL(t, &conn, "QueryRow")
			assert.Contains(t, sql, "LEFT JOIN motor_types")
			assert.Equal(t, tt.wantLock, strings.Contains(sql, "FOR UPDATE OF u"))
		})
	}
}

func TestQueriesRunInTheGivenTransaction(t *testing.T) {
	conn := db.NewMockConn()
	tx := db.NewMockTransaction()
	tx.ExecFunc = func(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
		return pgconn.CommandTag("UPDATE 1"), nil
	}
	repo := rentalrepo.NewPostgresRepo(&conn)

	err := repo.UpdateUnitStatus(context.Background(), 1, rental.UnitRented, time.Now(), core.UpdateOptions{Tx: tx})
	require.NoError(t, err)

	tx.VerifyCount("Exec", 1, t)
	conn.VerifyCount("Exec", 0, t)
}

func TestUpdatesReportMissingRows(t *testing.T) {
	conn := db.NewMockConn()
	conn.ExecFunc = func(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	repo := rentalrepo.NewPostgresRepo(&conn)
	ctx := context.Background()

	err := repo.UpdateUnitStatus(ctx, 9, rental.UnitAvailable, time.Now())
	assert.True(t, errors.Is(err, core.ErrNotFound))

	err = repo.UpdateTransaction(ctx, rental.Transaction{ID: 9, Status: rental.Active})
	assert.True(t, errors.Is(err, core.ErrNotFound))

	err = repo.DeleteTransaction(ctx, 9)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSaveMotorTypeIsCached(t *testing.T) {
	conn := db.NewMockConn()
	conn.QueryRowFunc = func(ctx context.Context, sql string, args ...interface{}) pgx.Row {
		return db.MockRow{Values: []interface{}{uint64(7)}}
	}
	repo := rentalrepo.NewPostgresRepo(&conn)
	ctx := context.Background()

	first := rental.MotorType{Merk: "Honda", Model: "Beat", CC: 110}
	require.NoError(t, repo.SaveMotorType(ctx, &first))
	second := rental.MotorType{Merk: "Honda", Model: "Beat", CC: 110}
	require.NoError(t, repo.SaveMotorType(ctx, &second))

	assert.Equal(t, uint64(7), first.ID)
	assert.Equal(t, uint64(7), second.ID)
	conn.VerifyCount("QueryRow", 1, t)
}

func TestSaveUnitWithIDSyncsSequence(t *testing.T) {
	conn := db.NewMockConn()
	repo := rentalrepo.NewPostgresRepo(&conn)

	unit := rental.MotorUnit{ID: 42, PlateNumber: "N 4242 ZZ", DailyRate: decimal.NewFromInt(90000), Status: rental.UnitAvailable}
	require.NoError(t, repo.SaveUnit(context.Background(), &unit))

	calls := conn.GetCall("Exec")
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0][1].(string), "ON CONFLICT (id)")
	assert.Contains(t, calls[1][1].(string), "setval")
}

func TestSaveTransaction(t *testing.T) {
	conn := db.NewMockConn()
	conn.QueryRowFunc = func(ctx context.Context, sql string, args ...interface{}) pgx.Row {
		return db.MockRow{Values: []interface{}{uint64(11)}}
	}
	repo := rentalrepo.NewPostgresRepo(&conn)

	start := time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC)
	tr := rental.Transaction{
		RenterName: "Budi", RenterPhone: "+6281234567890", UnitID: 1,
		Start: start, End: start.Add(24 * time.Hour), StartTime: "08:00", EndTime: "08:00",
		Status: rental.Active, TotalPrice: decimal.NewFromInt(75000),
	}
	require.NoError(t, repo.SaveTransaction(context.Background(), &tr))

	assert.Equal(t, uint64(11), tr.ID)
	sql := lastSQL(t, &conn, "QueryRow")
	assert.Contains(t, sql, "INSERT INTO rental_transactions")
	assert.Contains(t, sql, "RETURNING id")
}

func TestGetTransactionsFilters(t *testing.T) {
	conn := db.NewMockConn()
	conn.QueryFunc = func(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
		return nil, errors.New("stop")
	}
	repo := rentalrepo.NewPostgresRepo(&conn)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	_, err := repo.GetTransactions(context.Background(), rental.ListOptions{
		UnitID:   3,
		Statuses: []rental.Status{rental.Active, rental.Overdue},
		From:     &from,
		To:       &to,
	}, 10, 20)
	require.Error(t, err)

	calls := conn.GetCall("Query")
	require.Len(t, calls, 1)
	sql := calls[0][1].(string)
	for _, want := range []string{"unit_id = $", "status IN ($", "end_at >= $", "start_at <= $", "LIMIT 10", "OFFSET 20", "ORDER BY start_at, id"} {
		assert.Contains(t, sql, want)
	}
}
