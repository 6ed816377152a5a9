package authsession

import (
	"context"

	"github.com/MrEthical07/authsession/subject"
)

// State is the session state published to observers. The zero value means no session.
type State struct {
	Active bool
	Record *Record
	// Version is the manager epoch at publish time. It increases with every
	// session-changing operation.
	Version uint64
}

// User returns a copy of the active user's profile.
func (s State) User() (*User, bool) {
	if !s.Active || s.Record == nil {
		return nil, false
	}
	u := s.Record.User
	return &u, true
}

// SessionSubject is the observable holding the current State. Only the Manager that
// owns it publishes; everyone else reads or subscribes.
type SessionSubject struct {
	inner *subject.Subject[State]
}

// NewSessionSubject returns a subject initialized to "no session". Pass it to
// [Builder.WithSubject] to share it with components built before the manager.
func NewSessionSubject() *SessionSubject {
	return &SessionSubject{inner: subject.New(State{})}
}

func (s *SessionSubject) set(st State) {
	s.inner.Set(st)
}

// Current returns the latest published state.
func (s *SessionSubject) Current() State {
	return s.inner.Current()
}

// LoggedIn reports whether a session is active.
func (s *SessionSubject) LoggedIn() bool {
	return s.inner.Current().Active
}

// User returns the active user's profile.
func (s *SessionSubject) User() (*User, bool) {
	return s.inner.Current().User()
}

// Subscribe calls fn with the current state and then with every published state, in
// publish order. fn runs on the publishing goroutine and must not call Manager methods
// that change the session.
func (s *SessionSubject) Subscribe(fn func(State)) (cancel func()) {
	return s.inner.Subscribe(fn)
}

// SubscribeLoggedIn is Subscribe projected to the login flag. Every publish is
// delivered, including repeats of the same flag.
func (s *SessionSubject) SubscribeLoggedIn(fn func(bool)) (cancel func()) {
	return s.inner.Subscribe(func(st State) { fn(st.Active) })
}

// SubscribeUser is Subscribe projected to the user profile; fn receives nil when no
// session is active.
func (s *SessionSubject) SubscribeUser(fn func(*User)) (cancel func()) {
	return s.inner.Subscribe(func(st State) {
		u, _ := st.User()
		fn(u)
	})
}

// Watch streams states on a channel until ctx is done.
func (s *SessionSubject) Watch(ctx context.Context) <-chan State {
	return s.inner.Watch(ctx)
}
