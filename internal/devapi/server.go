// Package devapi is a local stand-in for the remote authentication API. It keeps users
// in memory and answers the register and login endpoints with the same record shape
// and error bodies the manager's client expects, so the CLI can be exercised without a
// real backend.
package devapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrEthical07/authsession/client"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/middleware"
)

const (
	minPasswordLength = 4
	maxBodyBytes      = 64 << 10
)

// Error bodies, returned as JSON strings with status 400.
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgInvalidEmail        = "Email format is invalid"
	MsgPasswordTooShort    = "Password is too short"
	MsgEmailExists         = "Email already exists"
	MsgUserNotFound        = "Cannot find user"
	MsgIncorrectPassword   = "Incorrect password"
)

// Config configures a Server.
type Config struct {
	// SigningKey is the HS256 secret for issued tokens. Required.
	SigningKey []byte
	// TokenTTL is the lifetime of issued tokens. Defaults to one hour.
	TokenTTL time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

type account struct {
	id           int64
	email        string
	passwordHash string
	profile      map[string]json.RawMessage
}

// Server holds registered accounts and signs access tokens.
type Server struct {
	signer *jwt.Signer
	hasher *hasher
	logger *slog.Logger

	mu       sync.RWMutex
	accounts map[string]*account
	nextID   int64
}

// New validates cfg and returns a Server with no accounts.
func New(cfg Config) (*Server, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("devapi: signing key required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	signer, err := jwt.NewSigner(jwt.SignerConfig{
		TTL:           cfg.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.SigningKey,
		Issuer:        "authsession-devapi",
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		signer:   signer,
		hasher:   newHasher(),
		logger:   logger.With("component", "devapi"),
		accounts: make(map[string]*account),
	}, nil
}

// Router returns the API routes. /signup and /signin are aliases of /register and
// /login. /me requires a bearer token issued by this server.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/register", s.Register)
	r.Post("/signup", s.Register)
	r.Post("/login", s.Login)
	r.Post("/signin", s.Login)
	r.With(middleware.Guard(s.signer)).Get("/me", s.Me)
	return r
}

// Accounts returns the number of registered accounts.
func (s *Server) Accounts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Register creates an account from the request body and answers 201 with a session
// record. Fields other than the password are kept as the user's profile.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	body, email, password, ok := readCredentials(w, r)
	if !ok {
		return
	}
	if !validEmail(email) {
		writeError(w, http.StatusBadRequest, MsgInvalidEmail)
		return
	}
	if len(password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, MsgPasswordTooShort)
		return
	}

	hash, err := s.hasher.hash(password)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	delete(body, "password")
	delete(body, "id")
	key := strings.ToLower(email)

	s.mu.Lock()
	if _, exists := s.accounts[key]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, MsgEmailExists)
		return
	}
	s.nextID++
	acct := &account{id: s.nextID, email: email, passwordHash: hash, profile: body}
	s.accounts[key] = acct
	s.mu.Unlock()

	s.logger.InfoContext(r.Context(), "account registered",
		"user", acct.id, "request_id", w.Header().Get(client.RequestIDHeader))
	s.respondWithSession(w, r, http.StatusCreated, acct)
}

// Login checks the credentials and answers 200 with a fresh session record.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	_, email, password, ok := readCredentials(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	acct := s.accounts[strings.ToLower(email)]
	s.mu.RUnlock()
	if acct == nil {
		writeError(w, http.StatusBadRequest, MsgUserNotFound)
		return
	}

	match, err := s.hasher.verify(password, acct.passwordHash)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "verify password", "user", acct.id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !match {
		s.logger.InfoContext(r.Context(), "login rejected", "user", acct.id,
			"request_id", w.Header().Get(client.RequestIDHeader))
		writeError(w, http.StatusBadRequest, MsgIncorrectPassword)
		return
	}

	s.logger.InfoContext(r.Context(), "login accepted", "user", acct.id,
		"request_id", w.Header().Get(client.RequestIDHeader))
	s.respondWithSession(w, r, http.StatusOK, acct)
}

// Me answers with the profile of the token's owner.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.mu.RLock()
	acct := s.accounts[strings.ToLower(claims.Email)]
	s.mu.RUnlock()
	if acct == nil || strconv.FormatInt(acct.id, 10) != claims.Subject {
		writeError(w, http.StatusNotFound, MsgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profile(acct))
}

func (s *Server) respondWithSession(w http.ResponseWriter, r *http.Request, status int, acct *account) {
	id := strconv.FormatInt(acct.id, 10)
	token, _, err := s.signer.Issue(id, acct.email)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "sign token", "user", acct.id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, status, map[string]any{
		"accessToken": token,
		"user":        profile(acct),
	})
}

func profile(acct *account) map[string]json.RawMessage {
	user := make(map[string]json.RawMessage, len(acct.profile)+2)
	for k, v := range acct.profile {
		user[k] = v
	}
	user["id"] = json.RawMessage(strconv.FormatInt(acct.id, 10))
	user["email"], _ = json.Marshal(acct.email)
	return user
}

// readCredentials decodes the JSON object body and extracts email and password. It
// writes the error response itself and reports false on failure.
func readCredentials(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, string, string, bool) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body == nil {
		writeError(w, http.StatusBadRequest, MsgCredentialsRequired)
		return nil, "", "", false
	}

	var email, password string
	_ = json.Unmarshal(body["email"], &email)
	_ = json.Unmarshal(body["password"], &password)
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, MsgCredentialsRequired)
		return nil, "", "", false
	}
	return body, email, password, true
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// requestID echoes the caller's X-Request-ID or assigns one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(client.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(client.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with a bare JSON string body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, msg)
}
