package authsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/scheduler"
	"github.com/MrEthical07/authsession/session"
)

// Manager owns the client session: it is the only writer of its SessionSubject and
// credential store, and the only user of its auto-logout scheduler.
//
// The manager has two states, logged out (initial) and logged in. Login and Restore
// move it to logged in; Logout and the auto-logout timer move it back.
type Manager struct {
	config    Config
	api       API
	store     session.Store
	subject   *SessionSubject
	clock     scheduler.Clock
	scheduler *scheduler.Scheduler
	inspector *jwt.Inspector
	navigator Navigator
	logger    *slog.Logger
	audit     *audit.Dispatcher
	metrics   *Metrics

	mu    sync.Mutex
	epoch uint64
}

// Register forwards req to the registration endpoint and returns the server's answer.
// Registration does not log the user in; local session state is left untouched.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*Record, error) {
	if m == nil || m.api == nil {
		return nil, ErrManagerNotReady
	}

	rec, err := m.api.Register(ctx, req)
	if err != nil {
		m.metricInc(MetricRegisterFailure)
		m.emitAudit(ctx, AuditRegisterFailure, &Record{User: User{Email: req.Email}}, 0, err)
		m.logger.WarnContext(ctx, "register failed", "op", "register", "err", err)
		return nil, err
	}

	m.metricInc(MetricRegisterSuccess)
	m.emitAudit(ctx, AuditRegisterSuccess, rec, 0, nil)
	m.logger.InfoContext(ctx, "account registered", "op", "register", "user", rec.User.ID)
	return rec, nil
}

// Login exchanges credentials for a session. On success the record is published,
// persisted and auto-logout is armed at the token's expiration. On failure the session
// state is unchanged and the API error is returned.
//
// If a Logout or another Login starts while this call waits on the API, the response
// is stale: it is discarded with ErrLoginSuperseded when DiscardStaleLogins is set.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*Record, error) {
	if m == nil || m.api == nil {
		return nil, ErrManagerNotReady
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	started := m.clock.Now()
	rec, err := m.api.Login(ctx, req)
	m.metrics.Observe(MetricLoginLatency, m.clock.Now().Sub(started))
	if err != nil {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, AuditLoginFailure, &Record{User: User{Email: req.Email}}, epoch, err)
		m.logger.WarnContext(ctx, "login failed", "op", "login", "err", err)
		return nil, err
	}

	m.mu.Lock()
	if m.epoch != epoch {
		if m.config.Session.DiscardStaleLogins {
			current := m.epoch
			m.mu.Unlock()
			m.metricInc(MetricLoginSuperseded)
			m.emitAudit(ctx, AuditLoginSuperseded, rec, epoch, ErrLoginSuperseded)
			m.logger.InfoContext(ctx, "discarding stale login response",
				"op", "login", "user", rec.User.ID, "epoch", epoch, "current_epoch", current)
			return nil, ErrLoginSuperseded
		}
		m.logger.WarnContext(ctx, "applying login response that arrived after a later session change",
			"op", "login", "user", rec.User.ID, "epoch", epoch, "current_epoch", m.epoch)
		m.epoch++
		epoch = m.epoch
	}
	m.activateLocked(ctx, rec, epoch, true, true)
	m.mu.Unlock()

	m.metricInc(MetricLoginSuccess)
	m.emitAudit(ctx, AuditLoginSuccess, rec, epoch, nil)
	m.logger.InfoContext(ctx, "logged in", "op", "login", "user", rec.User.ID)
	return rec, nil
}

// Logout ends the session: it publishes "no session", disarms auto-logout, clears the
// store and navigates to the login view. Logging out while logged out republishes
// "no session" and navigates again. A store failure is returned, but the in-process
// state is logged out regardless.
func (m *Manager) Logout(ctx context.Context) error {
	if m == nil || m.subject == nil {
		return ErrManagerNotReady
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	prev, err := m.deactivateLocked(ctx)
	m.mu.Unlock()

	m.metricInc(MetricLogout)
	m.emitAudit(ctx, AuditLogout, prev.Record, epoch, err)
	if prev.Active {
		m.logger.InfoContext(ctx, "logged out", "op", "logout", "user", prev.Record.User.ID)
	}
	m.navigateToLogin()
	return err
}

// Restore re-establishes a persisted session and reports whether one was restored. It
// is meant to run once at startup. A missing record leaves everything untouched; an
// expired or undecodable one is cleared and the published state is left as is. Store
// failures are logged and treated as no session.
//
// An active session always wins over an expired stored record: the store is left
// holding the active record and nothing is published.
func (m *Manager) Restore(ctx context.Context) bool {
	if m == nil || m.store == nil {
		return false
	}

	m.mu.Lock()
	rec, ok, err := m.store.Load(ctx)
	if err != nil {
		m.mu.Unlock()
		m.metricInc(MetricStoreFailure)
		m.logger.WarnContext(ctx, "session store unavailable during restore", "op", "restore", "err", err)
		return false
	}
	if !ok {
		m.mu.Unlock()
		m.metricInc(MetricRestoreEmpty)
		m.logger.DebugContext(ctx, "no persisted session", "op", "restore")
		return false
	}

	if m.inspector.IsExpired(rec.AccessToken) {
		if cur := m.subject.Current(); cur.Active && cur.Record != nil {
			m.keepActiveLocked(ctx, cur.Record, rec)
			m.mu.Unlock()
			return false
		}
		clearErr := m.store.Clear(ctx)
		epoch := m.epoch
		m.mu.Unlock()
		if clearErr != nil {
			m.metricInc(MetricStoreFailure)
			m.logger.WarnContext(ctx, "failed to clear expired session", "op", "restore", "err", clearErr)
		}
		m.metricInc(MetricRestoreExpired)
		m.emitAudit(ctx, AuditRestoreExpired, rec, epoch, nil)
		m.logger.InfoContext(ctx, "persisted session expired", "op", "restore", "user", rec.User.ID)
		return false
	}

	m.epoch++
	epoch := m.epoch
	m.activateLocked(ctx, rec, epoch, false, m.config.Session.RearmOnRestore)
	m.mu.Unlock()

	m.metricInc(MetricRestoreSuccess)
	m.emitAudit(ctx, AuditRestoreSuccess, rec, epoch, nil)
	m.logger.InfoContext(ctx, "session restored", "op", "restore", "user", rec.User.ID)
	return true
}

// keepActiveLocked makes the store agree with the active session when Restore finds a
// stored record it would otherwise discard.
func (m *Manager) keepActiveLocked(ctx context.Context, active, stored *Record) {
	if stored.AccessToken == active.AccessToken {
		m.logger.DebugContext(ctx, "stored session is the active one; keeping it", "op", "restore", "user", active.User.ID)
		return
	}
	if err := m.store.Save(context.WithoutCancel(ctx), active); err != nil {
		m.metricInc(MetricStoreFailure)
		m.logger.ErrorContext(ctx, "failed to persist active session", "op", "restore", "user", active.User.ID, "err", err)
		return
	}
	m.logger.InfoContext(ctx, "replaced expired stored session with the active one", "op", "restore", "user", active.User.ID)
}

// activateLocked publishes rec, optionally persists it, and arms or disarms
// auto-logout.
func (m *Manager) activateLocked(ctx context.Context, rec *Record, epoch uint64, persist, arm bool) {
	m.subject.set(State{Active: true, Record: rec, Version: epoch})

	if persist {
		// The session is already published; the store must follow even if the
		// caller's context ends now.
		if err := m.store.Save(context.WithoutCancel(ctx), rec); err != nil {
			m.metricInc(MetricStoreFailure)
			m.logger.ErrorContext(ctx, "failed to persist session", "user", rec.User.ID, "err", err)
		}
	}

	if !arm {
		m.scheduler.Disarm()
		return
	}
	m.armLocked(ctx, rec, epoch)
}

func (m *Manager) armLocked(ctx context.Context, rec *Record, epoch uint64) {
	deadline, ok := m.inspector.Deadline(rec.AccessToken)
	if !ok {
		m.scheduler.Disarm()
		m.metricInc(MetricAutoLogoutUnarmed)
		m.logger.WarnContext(ctx, "access token has no usable expiration; auto-logout not armed", "user", rec.User.ID)
		return
	}
	m.scheduler.Arm(deadline, func() { m.expire(epoch) })
	m.metricInc(MetricAutoLogoutArmed)
	m.logger.DebugContext(ctx, "auto-logout armed", "user", rec.User.ID, "expires_at", deadline)
}

// deactivateLocked publishes "no session", disarms the timer and clears the store.
// It returns the state that was current before.
func (m *Manager) deactivateLocked(ctx context.Context) (State, error) {
	prev := m.subject.Current()
	m.subject.set(State{Version: m.epoch})
	m.scheduler.Disarm()

	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.metricInc(MetricStoreFailure)
		m.logger.ErrorContext(ctx, "failed to clear session store", "err", err)
		return prev, fmt.Errorf("clear session store: %w", err)
	}
	return prev, nil
}

// expire is the auto-logout callback for the session activated at epoch.
func (m *Manager) expire(epoch uint64) {
	ctx := context.Background()

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++
	next := m.epoch
	prev, err := m.deactivateLocked(ctx)
	m.mu.Unlock()

	m.metricInc(MetricAutoLogout)
	m.emitAudit(ctx, AuditAutoLogout, prev.Record, next, err)
	m.logger.InfoContext(ctx, "session expired; logged out", "op", "auto_logout", "user", userID(prev))
	m.navigateToLogin()
}

func (m *Manager) navigateToLogin() {
	if m.navigator != nil {
		m.navigator.Navigate(m.config.Routes.LoginPath)
	}
}

func userID(st State) string {
	if st.Record == nil {
		return ""
	}
	return st.Record.User.ID
}

// State returns the current session state.
func (m *Manager) State() State {
	if m == nil || m.subject == nil {
		return State{}
	}
	return m.subject.Current()
}

// LoggedIn reports whether a session is active.
func (m *Manager) LoggedIn() bool {
	return m.State().Active
}

// User returns the active user's profile.
func (m *Manager) User() (*User, bool) {
	return m.State().User()
}

// AccessToken returns the active bearer credential.
func (m *Manager) AccessToken() (string, bool) {
	st := m.State()
	if !st.Active || st.Record == nil {
		return "", false
	}
	return st.Record.AccessToken, true
}

// ExpiresAt returns the instant the active session will be ended automatically.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	if m == nil || m.scheduler == nil {
		return time.Time{}, false
	}
	return m.scheduler.Deadline()
}

// Subject exposes the observable session state.
func (m *Manager) Subject() *SessionSubject {
	if m == nil {
		return nil
	}
	return m.subject
}

// Config returns a copy of the manager configuration.
func (m *Manager) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

// Close stops the auto-logout timer and flushes pending audit events. The session
// itself, in memory and in the store, is left as is.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	if m.scheduler != nil {
		m.scheduler.Disarm()
	}
	if m.audit != nil {
		m.audit.Close()
	}
}

// IsAPIError reports whether err carries a non-2xx API answer and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
