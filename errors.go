package authsession

import (
	"errors"

	"github.com/MrEthical07/authsession/client"
	"github.com/MrEthical07/authsession/session"
)

var (
	// ErrManagerNotReady is returned by methods called on a nil or unbuilt Manager.
	ErrManagerNotReady = errors.New("session manager not ready")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrLoginSuperseded is returned when a login response arrives after a later
	// session-changing operation started, and the response was discarded.
	ErrLoginSuperseded = errors.New("login superseded by a later session change")
	// ErrAPIUnavailable wraps transport failures talking to the auth API.
	ErrAPIUnavailable = client.ErrUnavailable
	// ErrStoreUnavailable wraps credential store backend failures.
	ErrStoreUnavailable = session.ErrBackendUnavailable
)
