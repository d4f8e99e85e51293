package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/gobwas/ws"
	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/api"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*3600)

func setupTransactionTestServer() (*httptest.Server, *rental.MockService) {
	svc := rental.NewMockService()
	r := chi.NewRouter()
	api.NewTransactionApi(&svc, adminAuth()).ConfigureRouter(r)
	return httptest.NewServer(r), &svc
}

func validCreateRequest() api.CreateTransactionRequest {
	return api.CreateTransactionRequest{
		RenterName:  "Budi",
		RenterPhone: "081234567890",
		UnitID:      1,
		StartDate:   "2024-06-02",
		EndDate:     "2024-06-03",
		StartTime:   "08:00",
		EndTime:     "08:00",
		Helmets:     2,
	}
}

func testTransaction(ID uint64) rental.Transaction {
	start := time.Date(2024, 6, 2, 8, 0, 0, 0, wib)
	return rental.Transaction{
		ID:          ID,
		RenterName:  "Budi",
		RenterPhone: "+6281234567890",
		UnitID:      1,
		Start:       start,
		End:         start.Add(24 * time.Hour),
		StartTime:   "08:00",
		EndTime:     "08:00",
		Status:      rental.Active,
		TotalPrice:  decimal.NewFromInt(75000),
		Denda:       decimal.Zero,
		Helmets:     2,
	}
}

func TestTransactionList(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	tests := []struct {
		name  string
		query string

		serviceErr error

		wantLimit      int
		wantOffset     int
		wantOptions    rental.ListOptions
		wantCalls      int
		wantStatusCode int
	}{
		{
			name:           "defaults",
			wantLimit:      api.DefaultPageLimit,
			wantCalls:      1,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "paged and filtered",
			query:          "?limit=5&offset=7&status=active,overdue&unitId=3",
			wantLimit:      5,
			wantOffset:     7,
			wantOptions:    rental.ListOptions{UnitID: 3, Statuses: []rental.Status{rental.Active, rental.Overdue}},
			wantCalls:      1,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "bad status",
			query:          "?status=lost",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "bad date",
			query:          "?from=yesterday",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "service failure",
			serviceErr:     errors.New("connection refused"),
			wantLimit:      api.DefaultPageLimit,
			wantCalls:      1,
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			calls := 0
			var gotOptions rental.ListOptions
			gotLimit, gotOffset := -1, -1
			svc.ListFunc = func(ctx context.Context, options rental.ListOptions, limit, offset int) ([]rental.Transaction, error) {
				calls++
				gotOptions, gotLimit, gotOffset = options, limit, offset
				return []rental.Transaction{testTransaction(1), testTransaction(2)}, test.serviceErr
			}

			res := testutil.Get(ts.URL+test.query, t)
			require.Equal(t, test.wantStatusCode, res.StatusCode)
			require.Equal(t, test.wantCalls, calls)
			if test.wantStatusCode != http.StatusOK {
				return
			}

			assert.Equal(t, test.wantLimit, gotLimit)
			assert.Equal(t, test.wantOffset, gotOffset)
			assert.Equal(t, test.wantOptions, gotOptions)

			var got []rental.Transaction
			testutil.Unmarshal(res, &got, t)
			assert.Len(t, got, 2)
		})
	}
}

func TestTransactionListDateFilters(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	var got rental.ListOptions
	svc.ListFunc = func(ctx context.Context, options rental.ListOptions, limit, offset int) ([]rental.Transaction, error) {
		got = options
		return nil, nil
	}

	res := testutil.Get(ts.URL+"?from=2024-06-01&to=2024-06-03T10:00:00%2B07:00", t)
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
	assert.True(t, got.From.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, got.To.Equal(time.Date(2024, 6, 3, 10, 0, 0, 0, wib)))
}

func TestTransactionCreate(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	held := testTransaction(4)
	availableAt := time.Date(2024, 6, 2, 11, 0, 0, 0, wib)

	tests := []struct {
		name       string
		request    interface{}
		serviceErr error

		wantStatusCode  int
		wantStatusText  string
		wantConflict    uint64
		wantAvailableAt bool
	}{
		{
			name:           "created",
			request:        validCreateRequest(),
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "missing renter",
			request: func() api.CreateTransactionRequest {
				r := validCreateRequest()
				r.RenterName = " "
				return r
			}(),
			wantStatusCode: http.StatusBadRequest,
			wantStatusText: "Invalid request.",
		},
		{
			name: "bad date",
			request: func() api.CreateTransactionRequest {
				r := validCreateRequest()
				r.EndDate = "03/06/2024"
				return r
			}(),
			wantStatusCode: http.StatusBadRequest,
			wantStatusText: "Invalid request.",
		},
		{
			name:           "invalid range",
			request:        validCreateRequest(),
			serviceErr:     &rental.InvalidRangeError{Start: held.End, End: held.Start},
			wantStatusCode: http.StatusBadRequest,
			wantStatusText: "Invalid request.",
		},
		{
			name:           "invalid phone",
			request:        validCreateRequest(),
			serviceErr:     errors.Wrap(rental.ErrInvalidPhone, "12"),
			wantStatusCode: http.StatusBadRequest,
			wantStatusText: "Invalid request.",
		},
		{
			name:           "conflict",
			request:        validCreateRequest(),
			serviceErr:     errors.WithStack(&rental.ConflictError{TransactionID: held.ID, Start: held.Start, End: held.End}),
			wantStatusCode: http.StatusConflict,
			wantConflict:   held.ID,
		},
		{
			name:            "recently returned",
			request:         validCreateRequest(),
			serviceErr:      &rental.RecentlyReturnedError{AvailableAt: availableAt},
			wantStatusCode:  http.StatusConflict,
			wantAvailableAt: true,
		},
		{
			name:           "unit in maintenance",
			request:        validCreateRequest(),
			serviceErr:     errors.WithStack(rental.ErrUnitUnavailable),
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name:           "unknown unit",
			request:        validCreateRequest(),
			serviceErr:     errors.WithStack(core.ErrNotFound),
			wantStatusCode: http.StatusNotFound,
			wantStatusText: api.ErrNotFound.StatusText,
		},
		{
			name:           "unexpected error",
			request:        validCreateRequest(),
			serviceErr:     errors.New("connection refused"),
			wantStatusCode: http.StatusInternalServerError,
			wantStatusText: api.ErrInternalServer.StatusText,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got rental.CreateRequest
			svc.CreateFunc = func(ctx context.Context, req rental.CreateRequest) (rental.Transaction, error) {
				got = req
				if test.serviceErr != nil {
					return rental.Transaction{}, test.serviceErr
				}
				return testTransaction(9), nil
			}

			res := testutil.Put(ts.URL, test.request, t, testutil.Admin)
			require.Equal(t, test.wantStatusCode, res.StatusCode)

			if test.wantStatusCode == http.StatusCreated {
				tr := rental.Transaction{}
				testutil.Unmarshal(res, &tr, t)
				assert.Equal(t, uint64(9), tr.ID)
				assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), got.StartDate)
				assert.Equal(t, "08:00", got.StartTime)
				assert.Equal(t, 2, got.Helmets)
				return
			}

			errResp := &api.ErrResponse{}
			testutil.Unmarshal(res, errResp, t)
			if test.wantStatusText != "" {
				assert.Equal(t, test.wantStatusText, errResp.StatusText)
			}
			if test.wantConflict != 0 {
				require.NotNil(t, errResp.Conflict)
				assert.Equal(t, test.wantConflict, errResp.Conflict.TransactionID)
				assert.True(t, errResp.Conflict.Start.Equal(held.Start))
			}
			if test.wantAvailableAt {
				require.NotNil(t, errResp.AvailableAt)
				assert.True(t, errResp.AvailableAt.Equal(availableAt))
			}
		})
	}
}

func TestTransactionGet(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	tests := []struct {
		name       string
		path       string
		serviceErr error

		wantStatusCode int
	}{
		{name: "found", path: "/3", wantStatusCode: http.StatusOK},
		{name: "not found", path: "/3", serviceErr: errors.WithStack(core.ErrNotFound), wantStatusCode: http.StatusNotFound},
		{name: "bad id", path: "/abc", wantStatusCode: http.StatusBadRequest},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			svc.GetFunc = func(ctx context.Context, ID uint64) (rental.Transaction, error) {
				return testTransaction(ID), test.serviceErr
			}

			res := testutil.Get(ts.URL+test.path, t)
			require.Equal(t, test.wantStatusCode, res.StatusCode)
			if test.wantStatusCode == http.StatusOK {
				tr := rental.Transaction{}
				testutil.Unmarshal(res, &tr, t)
				assert.Equal(t, uint64(3), tr.ID)
			}
		})
	}
}

func TestTransactionUpdate(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	price := decimal.NewFromInt(50000)
	endDate := "2024-06-04"

	tests := []struct {
		name       string
		request    interface{}
		serviceErr error

		wantStatusCode int
	}{
		{
			name:           "override price and extend",
			request:        api.UpdateTransactionRequest{TotalPrice: &price, EndDate: &endDate},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "already completed",
			request:        api.UpdateTransactionRequest{TotalPrice: &price},
			serviceErr:     errors.WithStack(rental.ErrAlreadyCompleted),
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name:           "negative price",
			request:        map[string]interface{}{"totalPrice": "-1"},
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got rental.UpdateRequest
			svc.UpdateFunc = func(ctx context.Context, ID uint64, req rental.UpdateRequest) (rental.Transaction, error) {
				got = req
				return testTransaction(ID), test.serviceErr
			}

			res := testutil.Patch(ts.URL+"/5", test.request, t, testutil.Admin)
			require.Equal(t, test.wantStatusCode, res.StatusCode)

			if test.wantStatusCode == http.StatusOK {
				require.NotNil(t, got.TotalPrice)
				assert.True(t, got.TotalPrice.Equal(price))
				require.NotNil(t, got.EndDate)
				assert.Equal(t, 4, got.EndDate.Day())
				assert.Nil(t, got.StartDate)
			}
		})
	}
}

func TestTransactionCompleteAndDelete(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	svc.CompleteFunc = func(ctx context.Context, ID uint64) (rental.Transaction, error) {
		tr := testTransaction(ID)
		tr.Status = rental.Completed
		tr.Denda = decimal.NewFromInt(30000)
		return tr, nil
	}
	res := testutil.Post(ts.URL+"/5/complete", nil, t, testutil.Admin)
	require.Equal(t, http.StatusOK, res.StatusCode)
	tr := rental.Transaction{}
	testutil.Unmarshal(res, &tr, t)
	assert.Equal(t, rental.Completed, tr.Status)
	assert.True(t, tr.Denda.Equal(decimal.NewFromInt(30000)))

	deleted := uint64(0)
	svc.DeleteFunc = func(ctx context.Context, ID uint64) error {
		deleted = ID
		return nil
	}
	res = testutil.Delete(ts.URL+"/5", t, testutil.Admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, uint64(5), deleted)

	svc.DeleteFunc = func(ctx context.Context, ID uint64) error {
		return errors.WithStack(rental.ErrNotDeletable)
	}
	res = testutil.Delete(ts.URL+"/5", t, testutil.Admin)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestTransactionCalculatePrice(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	svc.CalculatePriceFunc = func(ctx context.Context, req rental.PriceRequest) (rental.PriceQuote, error) {
		if req.StartTime == "25:00" {
			return rental.PriceQuote{}, errors.WithStack(rental.ErrInvalidTime)
		}
		return rental.PriceQuote{Hours: 30, Days: 1, ExtraHours: 6, DailyRate: decimal.NewFromInt(75000), Total: decimal.NewFromInt(75000)}, nil
	}

	req := api.PriceRequest{UnitID: 1, StartDate: "2024-06-02", EndDate: "2024-06-03", StartTime: "08:00", EndTime: "14:00"}
	res := testutil.Post(ts.URL+"/price", req, t)
	require.Equal(t, http.StatusOK, res.StatusCode)
	quote := rental.PriceQuote{}
	testutil.Unmarshal(res, &quote, t)
	assert.Equal(t, int64(30), quote.Hours)
	assert.True(t, quote.Total.Equal(decimal.NewFromInt(75000)))

	req.StartTime = "25:00"
	res = testutil.Post(ts.URL+"/price", req, t)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestTransactionCheckAvailability(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	held := testTransaction(4)

	tests := []struct {
		name       string
		serviceErr error

		wantStatusCode int
		wantAvailable  bool
		wantConflict   bool
	}{
		{name: "free", wantStatusCode: http.StatusOK, wantAvailable: true},
		{
			name:           "booked",
			serviceErr:     &rental.ConflictError{TransactionID: held.ID, Start: held.Start, End: held.End},
			wantStatusCode: http.StatusOK,
			wantConflict:   true,
		},
		{
			name:           "unexpected error",
			serviceErr:     errors.New("connection refused"),
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got rental.AvailabilityRequest
			svc.CheckAvailabilityFunc = func(ctx context.Context, req rental.AvailabilityRequest) error {
				got = req
				return test.serviceErr
			}

			req := api.AvailabilityRequest{
				PriceRequest:         api.PriceRequest{UnitID: 1, StartDate: "2024-06-02", EndDate: "2024-06-03", StartTime: "08:00", EndTime: "08:00"},
				ExcludeTransactionID: 7,
			}
			res := testutil.Post(ts.URL+"/availability", req, t)
			require.Equal(t, test.wantStatusCode, res.StatusCode)
			assert.Equal(t, uint64(7), got.ExcludeTransactionID)

			if test.wantStatusCode != http.StatusOK {
				return
			}
			resp := api.AvailabilityResponse{}
			testutil.Unmarshal(res, &resp, t)
			assert.Equal(t, test.wantAvailable, resp.Available)
			assert.Equal(t, test.wantConflict, resp.Conflict != nil)
		})
	}
}

func TestTransactionSubscribe(t *testing.T) {
	ts, svc := setupTransactionTestServer()
	defer ts.Close()

	events := []rental.TransactionEvent{
		{Type: rental.EventCreated, Transaction: testTransaction(1), UnitStatus: rental.UnitRented},
		{Type: rental.EventCompleted, Transaction: testTransaction(1), UnitStatus: rental.UnitAvailable},
		{Type: rental.EventPenaltyAssessed, Transaction: testTransaction(1)},
	}

	unsubscribed := make(chan rental.SubscriptionID, 2)
	svc.SubscribeFunc = func(ch chan<- rental.TransactionEvent) rental.SubscriptionID {
		go func() {
			for _, ev := range events {
				ch <- ev
			}
			close(ch)
		}()
		return "subid1"
	}
	svc.UnsubscribeFunc = func(id rental.SubscriptionID) {
		unsubscribed <- id
	}

	url := strings.Replace(ts.URL, "http", "ws", 1) + "/subscribe"
	conn, br, _, err := ws.DefaultDialer.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()
	if br != nil {
		defer ws.PutReader(br)
	}
	rw := testutil.WsConn(conn, br)

	for i, want := range events {
		got := rental.TransactionEvent{}
		testutil.ReadWs(rw, &got, t)
		assert.Equal(t, want.Type, got.Type, fmt.Sprintf("event %d", i))
	}

	select {
	case id := <-unsubscribed:
		assert.Equal(t, rental.SubscriptionID("subid1"), id)
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe never called")
	}
}
