package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Inspector extracts expiration data from bearer tokens.
//
// Inspector instances are immutable after construction and safe for concurrent use.
type Inspector struct {
	parser      *jwt.Parser
	now         func() time.Time
	earlyExpiry time.Duration
}

// InspectorOption configures an Inspector.
type InspectorOption func(*Inspector)

// WithClock sets the time source used by IsExpired and TimeLeft.
func WithClock(now func() time.Time) InspectorOption {
	return func(i *Inspector) {
		if now != nil {
			i.now = now
		}
	}
}

// WithEarlyExpiry treats tokens as expired d before their exp claim.
func WithEarlyExpiry(d time.Duration) InspectorOption {
	return func(i *Inspector) {
		if d > 0 {
			i.earlyExpiry = d
		}
	}
}

// NewInspector returns an Inspector using the wall clock by default.
func NewInspector(opts ...InspectorOption) *Inspector {
	i := &Inspector{
		parser: jwt.NewParser(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ExpirationOf returns the token's exp claim. ok is false when the token cannot be
// decoded or carries no numeric exp.
func (i *Inspector) ExpirationOf(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Deadline is the instant after which the client must consider the token expired:
// its exp claim minus the configured early-expiry margin.
func (i *Inspector) Deadline(token string) (time.Time, bool) {
	exp, ok := i.ExpirationOf(token)
	if !ok {
		return time.Time{}, false
	}
	return exp.Add(-i.earlyExpiry), true
}

// IsExpired reports whether now is at or past the token's deadline. Tokens that cannot
// be decoded count as expired.
func (i *Inspector) IsExpired(token string) bool {
	deadline, ok := i.Deadline(token)
	if !ok {
		return true
	}
	return !i.now().Before(deadline)
}

// TimeLeft returns the time remaining until the token's deadline, which is negative
// once it has passed. ok is false when the token has no usable exp.
func (i *Inspector) TimeLeft(token string) (time.Duration, bool) {
	deadline, ok := i.Deadline(token)
	if !ok {
		return 0, false
	}
	return deadline.Sub(i.now()), true
}

// Subject returns the sub claim when present.
func (i *Inspector) Subject(token string) (string, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
