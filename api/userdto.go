package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/reysilvaa/rosantibike-motorent/core/user"
)

type CreateUserRequestDto struct {
	*user.CreateUserRequest
	Password string `json:"password,omitempty"`
}

func (p *CreateUserRequestDto) Bind(_ *http.Request) error {
	if p.CreateUserRequest == nil || p.Username == "" || p.Password == "" {
		return errors.New("missing required field(s)")
	}

	p.CreateUserRequest.PlainTextPassword = p.Password

	return nil
}

// UserResponse never carries the password hash.
type UserResponse struct {
	Username string    `json:"username"`
	IsAdmin  bool      `json:"isAdmin"`
	Created  time.Time `json:"created"`
}

func (u *UserResponse) Render(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}
