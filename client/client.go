// Package client talks to the remote authentication API: the register and login
// endpoints that hand out session records.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authsession/session"
	"github.com/google/uuid"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "authsession"
	maxErrorBody     = 4 << 10
	maxRecordBody    = 1 << 20

	// RequestIDHeader carries a per-request correlation ID.
	RequestIDHeader = "X-Request-ID"
)

// ErrUnavailable wraps transport-level failures: the API could not be reached or the
// request was cancelled.
var ErrUnavailable = errors.New("auth api unavailable")

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is a partial user profile sent to the registration endpoint.
type RegisterRequest struct {
	Email     string                     `json:"email,omitempty"`
	Password  string                     `json:"password,omitempty"`
	FirstName string                     `json:"firstName,omitempty"`
	LastName  string                     `json:"lastName,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges Extra with the named fields; named fields win.
func (r RegisterRequest) MarshalJSON() ([]byte, error) {
	type plain RegisterRequest
	base, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return base, err
	}
	fields := make(map[string]json.RawMessage, len(r.Extra)+4)
	for k, v := range r.Extra {
		fields[k] = v
	}
	var named map[string]json.RawMessage
	if err := json.Unmarshal(base, &named); err != nil {
		return nil, err
	}
	for k, v := range named {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: api returned %d: %s", e.Op, e.StatusCode, msg)
}

// Config configures a Client.
type Config struct {
	RegisterURL string
	LoginURL    string
	Timeout     time.Duration
	UserAgent   string
	HTTPClient  *http.Client
}

// Client performs register and login calls. It holds no session state.
type Client struct {
	http        *http.Client
	registerURL string
	loginURL    string
	userAgent   string
	requestID   func() string
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	for name, raw := range map[string]string{"register": cfg.RegisterURL, "login": cfg.LoginURL} {
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("invalid %s url: %w", name, err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		http:        httpClient,
		registerURL: cfg.RegisterURL,
		loginURL:    cfg.LoginURL,
		userAgent:   userAgent,
		requestID:   func() string { return uuid.NewString() },
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("host required")
	}
	return nil
}

// Register creates an account. The returned record is the server's response; it does
// not log anyone in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*session.Record, error) {
	return c.post(ctx, "register", c.registerURL, req)
}

// Login exchanges credentials for a session record.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*session.Record, error) {
	return c.post(ctx, "login", c.loginURL, req)
}

func (c *Client) post(ctx context.Context, op, target string, body any) (*session.Record, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := c.requestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
			RequestID:  requestID,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBody))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read response: %w", op, ErrUnavailable, err)
	}
	rec, err := session.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return rec, nil
}

// errorMessage extracts a human readable message from an error body. It understands a
// bare JSON string and objects with a message or error field.
func errorMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return string(raw)
}
