package user

import (
	"context"

	"github.com/reysilvaa/rosantibike-motorent/test"
)

type MockUserService struct {
	CreateFunc      func(ctx context.Context, user CreateUserRequest) (User, error)
	GetFunc         func(ctx context.Context, username string) (User, error)
	DeleteFunc      func(ctx context.Context, username string) error
	LoginFunc       func(ctx context.Context, username, password string) (User, error)
	EnsureAdminFunc func(ctx context.Context, username, password string) error
	*test.CallWatcher
}

func NewMockUserService() MockUserService {
	return MockUserService{
		CreateFunc:      func(ctx context.Context, user CreateUserRequest) (User, error) { return User{}, nil },
		GetFunc:         func(ctx context.Context, username string) (User, error) { return User{}, nil },
		DeleteFunc:      func(ctx context.Context, username string) error { return nil },
		LoginFunc:       func(ctx context.Context, username, password string) (User, error) { return User{}, nil },
		EnsureAdminFunc: func(ctx context.Context, username, password string) error { return nil },
		CallWatcher:     test.NewCallWatcher(),
	}
}

func (u *MockUserService) Create(ctx context.Context, user CreateUserRequest) (User, error) {
	u.AddCall(ctx, user)
	return u.CreateFunc(ctx, user)
}

func (u *MockUserService) Get(ctx context.Context, username string) (User, error) {
	u.AddCall(ctx, username)
	return u.GetFunc(ctx, username)
}

func (u *MockUserService) Delete(ctx context.Context, username string) error {
	u.AddCall(ctx, username)
	return u.DeleteFunc(ctx, username)
}

func (u *MockUserService) Login(ctx context.Context, username, password string) (User, error) {
	u.AddCall(ctx, username)
	return u.LoginFunc(ctx, username, password)
}

func (u *MockUserService) EnsureAdmin(ctx context.Context, username, password string) error {
	u.AddCall(ctx, username)
	return u.EnsureAdminFunc(ctx, username, password)
}
