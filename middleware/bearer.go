package middleware

import "net/http"

// TokenSource yields the bearer credential of the active session.
// *authsession.Manager satisfies it.
type TokenSource interface {
	AccessToken() (string, bool)
}

type bearerTransport struct {
	src  TokenSource
	base http.RoundTripper
}

// Bearer returns a RoundTripper that adds "Authorization: Bearer <token>" while src
// reports an active session. Requests are sent unchanged when there is none. A nil
// base uses http.DefaultTransport.
func Bearer(src TokenSource, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{src: src, base: base}
}

func (t *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.src == nil || r.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(r)
	}
	token, ok := t.src.AccessToken()
	if !ok || token == "" {
		return t.base.RoundTrip(r)
	}

	// RoundTrippers must not modify the caller's request.
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", bearerPrefix+token)
	return t.base.RoundTrip(r2)
}
