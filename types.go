package authsession

import (
	"context"

	"github.com/MrEthical07/authsession/client"
	"github.com/MrEthical07/authsession/session"
)

type (
	// Record is the user profile plus bearer credential returned by the API.
	Record = session.Record
	// User is the profile carried inside a Record.
	User = session.User
	// LoginRequest carries login credentials.
	LoginRequest = client.LoginRequest
	// RegisterRequest is a partial profile for account creation.
	RegisterRequest = client.RegisterRequest
	// APIError is a non-2xx answer from the auth API.
	APIError = client.APIError
)

// API is the remote authentication service. *client.Client implements it.
type API interface {
	Register(ctx context.Context, req RegisterRequest) (*Record, error)
	Login(ctx context.Context, req LoginRequest) (*Record, error)
}

// Navigator moves the host application to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }
