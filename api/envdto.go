package api

import (
	"net/http"

	"github.com/reysilvaa/rosantibike-motorent/config"
)

type EnvResponse struct {
	config.Config
}

// NewEnvResponse copies c so scrubbing never touches the running configuration.
func NewEnvResponse(c config.Config) *EnvResponse {
	resp := &EnvResponse{Config: c}
	return resp
}

func (er *EnvResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	Scrub(er)
	return nil
}
