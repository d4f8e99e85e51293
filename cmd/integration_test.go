package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/reysilvaa/rosantibike-motorent/api"
	"github.com/reysilvaa/rosantibike-motorent/config"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/test"
	"github.com/reysilvaa/rosantibike-motorent/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	test.ConfigureLogging()
	os.Exit(m.Run())
}

func startApplication(t *testing.T) (*httptest.Server, *application) {
	cfg := config.LoadDefaults()
	cfg.Db.InMemory = true
	cfg.RabbitMQ.Mock = true
	cfg.Admin.Password = testutil.Admin.Password

	ctx, cancel := context.WithCancel(context.Background())

	app, err := newApplication(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.start(ctx))

	srv := httptest.NewServer(app.router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		app.close()
	})
	return srv, app
}

func TestRentalLifecycle(t *testing.T) {
	srv, app := startApplication(t)
	base := srv.URL + api.ApiPath + api.TransactionPath

	unit, err := app.rental.SaveUnit(context.Background(), rental.MotorUnit{
		Type:        rental.MotorType{Merk: "Honda", Model: "Vario", CC: 125},
		PlateNumber: "N 1234 AB",
		DailyRate:   decimal.NewFromInt(50000),
		Status:      rental.UnitAvailable,
	})
	require.NoError(t, err)

	start := time.Now().AddDate(0, 0, 30)
	request := api.CreateTransactionRequest{
		RenterName:  "Budi",
		RenterPhone: "081234567890",
		UnitID:      unit.ID,
		StartDate:   start.Format(api.DateLayout),
		EndDate:     start.AddDate(0, 0, 1).Format(api.DateLayout),
		StartTime:   "08:00",
		EndTime:     "08:00",
		Helmets:     1,
	}

	res := testutil.Put(base, request, t)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "creating without credentials")
	res.Body.Close()

	res = testutil.Put(base, request, t, testutil.Admin)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	created := rental.Transaction{}
	testutil.Unmarshal(res, &created, t)
	assert.Equal(t, "+6281234567890", created.RenterPhone)
	assert.True(t, created.TotalPrice.Equal(decimal.NewFromInt(50000)), "total %s", created.TotalPrice)

	res = testutil.Put(base, request, t, testutil.Admin)
	assert.Equal(t, http.StatusConflict, res.StatusCode, "double booking the same window")
	conflict := api.ErrResponse{}
	testutil.Unmarshal(res, &conflict, t)
	if assert.NotNil(t, conflict.Conflict) {
		assert.Equal(t, created.ID, conflict.Conflict.TransactionID)
	}

	price := api.PriceRequest{
		UnitID:    unit.ID,
		StartDate: request.StartDate,
		EndDate:   request.EndDate,
		StartTime: request.StartTime,
		EndTime:   request.EndTime,
	}
	res = testutil.Post(base+"/price", price, t)
	require.Equal(t, http.StatusOK, res.StatusCode)
	quote := rental.PriceQuote{}
	testutil.Unmarshal(res, &quote, t)
	assert.Equal(t, int64(1), quote.Days)
	assert.Equal(t, int64(24), quote.Hours)

	id := strconv.FormatUint(created.ID, 10)
	res = testutil.Post(base+"/"+id+"/complete", nil, t, testutil.Admin)
	require.Equal(t, http.StatusOK, res.StatusCode)
	completed := rental.Transaction{}
	testutil.Unmarshal(res, &completed, t)
	assert.Equal(t, rental.Completed, completed.Status)
	assert.True(t, completed.Denda.IsZero())

	res = testutil.Post(base+"/"+id+"/complete", nil, t, testutil.Admin)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, "completing twice")
	res.Body.Close()

	res = testutil.Get(base+"?status=completed", t)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := []rental.Transaction{}
	testutil.Unmarshal(res, &list, t)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestHealth(t *testing.T) {
	srv, _ := startApplication(t)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
