package jwt

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm a Signer uses.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// SignerConfig configures a Signer.
type SignerConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	Issuer        string
	Audience      string
	KeyID         string
	Now           func() time.Time
}

// Signer issues access tokens shaped like the ones the remote API hands out.
type Signer struct {
	config SignerConfig
	method jwt.SigningMethod
	key    interface{}
}

// AccessClaims are the claims carried by issued tokens.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, errors.New("signing key required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	s := &Signer{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		s.method = jwt.SigningMethodHS256
		s.key = cfg.PrivateKey
	case MethodEd25519:
		key, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		s.method = jwt.SigningMethodEdDSA
		s.key = key
	default:
		return nil, errors.New("unsupported signing method")
	}
	return s, nil
}

// Issue signs a token for subject valid for the configured TTL.
func (s *Signer) Issue(subject, email string) (string, time.Time, error) {
	exp := s.config.Now().Add(s.config.TTL)
	token, err := s.IssueUntil(subject, email, exp)
	return token, exp, err
}

// IssueUntil signs a token for subject that expires at exp.
func (s *Signer) IssueUntil(subject, email string, exp time.Time) (string, error) {
	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(s.config.Now()),
			Issuer:    s.config.Issuer,
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(s.method, claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}
	return token.SignedString(s.key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

// ErrInvalidToken is returned by Verify for any token it does not accept.
var ErrInvalidToken = errors.New("invalid token")

// Verify checks the signature, algorithm, expiry and issuer of a token this Signer
// issued and returns its claims.
func (s *Signer) Verify(tokenStr string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.config.Now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.config.Audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, s.verifyKey, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Signer) verifyKey(*jwt.Token) (interface{}, error) {
	if edKey, ok := s.key.(ed25519.PrivateKey); ok {
		return edKey.Public(), nil
	}
	return s.key, nil
}
