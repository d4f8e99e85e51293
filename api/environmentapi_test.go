package api_test

import (
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/reysilvaa/rosantibike-motorent/api"
	"github.com/reysilvaa/rosantibike-motorent/config"
	"github.com/reysilvaa/rosantibike-motorent/testutil"
)

func TestGetEnvironment(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Db.Pass = "supersecret"
	cfg.Admin.Password = "changeme"
	envApi := api.NewEnvApi(cfg)
	r := chi.NewRouter()
	envApi.ConfigureRouter(r)

	ts := httptest.NewServer(r)
	defer ts.Close()

	res := testutil.Get(ts.URL+"/", t)

	got := &config.Config{}
	testutil.Unmarshal(res, got, t)

	if got.AppName != cfg.AppName {
		t.Errorf("unexpected app name got=[%v] want=[%v]", got.AppName, cfg.AppName)
	}
	if got.Db.Pass != "******" || got.Admin.Password != "******" || got.RabbitMQ.Pass != "******" {
		t.Errorf("sensitive values were not scrubbed got=%+v", got)
	}
	if got.Rental.PenaltyPerHour != cfg.Rental.PenaltyPerHour {
		t.Errorf("unexpected penalty got=%d want=%d", got.Rental.PenaltyPerHour, cfg.Rental.PenaltyPerHour)
	}
	if cfg.Db.Pass != "supersecret" {
		t.Errorf("scrubbing changed the running configuration")
	}
}
