package authsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsession/client"
	"github.com/MrEthical07/authsession/internal/clocktest"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
)

var testStart = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu         sync.Mutex
	login      func(ctx context.Context, req LoginRequest) (*Record, error)
	register   func(ctx context.Context, req RegisterRequest) (*Record, error)
	loginCalls int
}

func (f *fakeAPI) Login(ctx context.Context, req LoginRequest) (*Record, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.login
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeAPI) Register(ctx context.Context, req RegisterRequest) (*Record, error) {
	return f.register(ctx, req)
}

type countingStore struct {
	session.Store
	mu     sync.Mutex
	saves  int
	clears int
}

func (s *countingStore) Save(ctx context.Context, r *Record) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, r)
}

func (s *countingStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
	return s.Store.Clear(ctx)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves + s.clears
}

type failingStore struct{}

func (failingStore) Save(context.Context, *Record) error { return session.ErrBackendUnavailable }
func (failingStore) Load(context.Context) (*Record, bool, error) {
	return nil, false, session.ErrBackendUnavailable
}
func (failingStore) Clear(context.Context) error { return session.ErrBackendUnavailable }

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.paths)
}

type harness struct {
	manager   *Manager
	clock     *clocktest.Clock
	api       *fakeAPI
	store     *countingStore
	navigator *recordingNavigator
	signer    *jwt.Signer

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, mutate func(*Config), seed session.Store) *harness {
	t.Helper()

	clock := clocktest.New(testStart)
	signer, err := jwt.NewSigner(jwt.SignerConfig{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("test-signing-key-test-signing-key"),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if seed == nil {
		seed = session.NewMemoryStore()
	}

	h := &harness{
		clock:     clock,
		api:       &fakeAPI{},
		store:     &countingStore{Store: seed},
		navigator: &recordingNavigator{},
		signer:    signer,
	}

	cfg := DefaultConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := New().
		WithConfig(cfg).
		WithAPI(h.api).
		WithStore(h.store).
		WithClock(clock).
		WithNavigator(h.navigator).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(m.Close)
	h.manager = m

	cancel := m.Subject().Subscribe(func(st State) {
		h.mu.Lock()
		h.states = append(h.states, st)
		h.mu.Unlock()
	})
	t.Cleanup(cancel)
	return h
}

func (h *harness) record(t *testing.T, ttl time.Duration) *Record {
	t.Helper()
	token, err := h.signer.IssueUntil("u-1", "ada@example.com", h.clock.Now().Add(ttl))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &Record{
		User:        User{ID: "u-1", Email: "ada@example.com", FirstName: "Ada"},
		AccessToken: token,
	}
}

func (h *harness) respondWith(rec *Record) {
	h.api.mu.Lock()
	h.api.login = func(context.Context, LoginRequest) (*Record, error) { return rec, nil }
	h.api.mu.Unlock()
}

func (h *harness) emitted() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func countInactive(states []State) int {
	n := 0
	for _, st := range states {
		if !st.Active {
			n++
		}
	}
	return n
}

var creds = LoginRequest{Email: "ada@example.com", Password: "correct horse"}

func TestLoginPublishesPersistsAndArms(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.record(t, time.Hour)
	h.respondWith(rec)

	got, err := h.manager.Login(context.Background(), creds)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got != rec {
		t.Fatalf("expected the API record to be returned")
	}

	states := h.emitted()
	if len(states) != 2 || states[0].Active || !states[1].Active {
		t.Fatalf("expected initial no-session then exactly one active state, got %+v", states)
	}
	if states[1].Record != rec {
		t.Fatalf("active state must carry the returned record")
	}

	stored, ok, err := h.store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected stored record, ok=%v err=%v", ok, err)
	}
	if stored.AccessToken != rec.AccessToken || stored.User.Email != rec.User.Email {
		t.Fatalf("store holds a different record: %+v", stored)
	}

	if !h.manager.LoggedIn() {
		t.Fatalf("expected logged in")
	}
	if u, ok := h.manager.User(); !ok || u.FirstName != "Ada" {
		t.Fatalf("unexpected user %+v", u)
	}
	if tok, ok := h.manager.AccessToken(); !ok || tok != rec.AccessToken {
		t.Fatalf("unexpected access token")
	}
	if exp, ok := h.manager.ExpiresAt(); !ok || !exp.Equal(testStart.Add(time.Hour)) {
		t.Fatalf("expected auto-logout at %v, got %v", testStart.Add(time.Hour), exp)
	}
	if h.navigator.count() != 0 {
		t.Fatalf("login must not navigate")
	}

	snap := h.manager.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricAutoLogoutArmed] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	var samples uint64
	for _, v := range snap.Histograms[MetricLoginLatency] {
		samples += v
	}
	if samples != 1 {
		t.Fatalf("expected one login latency sample, got %d", samples)
	}
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.api.login = func(context.Context, LoginRequest) (*Record, error) {
		return nil, &APIError{Op: "login", StatusCode: http.StatusBadRequest, Message: "Incorrect password"}
	}

	_, err := h.manager.Login(context.Background(), creds)
	apiErr, ok := IsAPIError(err)
	if !ok || apiErr.Message != "Incorrect password" {
		t.Fatalf("expected API error to propagate, got %v", err)
	}
	if h.manager.LoggedIn() {
		t.Fatalf("failed login must not log in")
	}
	if len(h.emitted()) != 1 {
		t.Fatalf("failed login must not publish, got %+v", h.emitted())
	}
	if h.store.writes() != 0 {
		t.Fatalf("failed login must not touch storage")
	}
	if h.manager.MetricsSnapshot().Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected login failure counter")
	}
}

func TestLoginForwardsEmptyCredentials(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.api.mu.Lock()
	h.api.login = func(context.Context, LoginRequest) (*Record, error) {
		return nil, &client.APIError{Op: "login", StatusCode: 400, Message: "Email and password are required"}
	}
	h.api.mu.Unlock()

	_, err := h.manager.Login(context.Background(), LoginRequest{})
	apiErr, ok := IsAPIError(err)
	if !ok || apiErr.Message != "Email and password are required" {
		t.Fatalf("expected the API's answer, got %v", err)
	}
	if h.api.loginCalls != 1 {
		t.Fatalf("expected the request to reach the API, got %d calls", h.api.loginCalls)
	}
	if h.manager.LoggedIn() || h.store.writes() != 0 {
		t.Fatalf("rejected login must leave state untouched")
	}
}

func TestLoginLatencyUsesManagerClock(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.record(t, time.Hour)
	h.api.mu.Lock()
	h.api.login = func(context.Context, LoginRequest) (*Record, error) {
		h.clock.Advance(300 * time.Millisecond)
		return rec, nil
	}
	h.api.mu.Unlock()

	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	buckets := h.manager.MetricsSnapshot().Histograms[MetricLoginLatency]
	if len(buckets) != 8 || buckets[3] != 1 {
		t.Fatalf("expected one observation in the 500ms bucket, got %v", buckets)
	}
}

func TestAutoLogoutFiresOnceAtExpiry(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.respondWith(h.record(t, 1000*time.Millisecond))

	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}

	h.clock.Advance(999 * time.Millisecond)
	if !h.manager.LoggedIn() {
		t.Fatalf("session ended early")
	}

	h.clock.Advance(time.Millisecond)
	h.clock.Advance(time.Hour)

	states := h.emitted()
	if got := countInactive(states[1:]); got != 1 {
		t.Fatalf("expected exactly one no-session emission after login, got %d (%+v)", got, states)
	}
	if states[len(states)-1].Active {
		t.Fatalf("expected final state to be logged out")
	}
	if _, ok, _ := h.store.Load(context.Background()); ok {
		t.Fatalf("auto-logout must clear storage")
	}
	if h.navigator.count() != 1 || h.navigator.paths[0] != "/auth/login" {
		t.Fatalf("expected one redirect to /auth/login, got %v", h.navigator.paths)
	}
	if h.manager.MetricsSnapshot().Counters[MetricAutoLogout] != 1 {
		t.Fatalf("expected auto logout counter")
	}
}

func TestRepeatedLoginArmsSingleTimer(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.respondWith(h.record(t, time.Second))
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("first login: %v", err)
	}
	h.respondWith(h.record(t, 2*time.Second))
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("second login: %v", err)
	}

	if h.clock.Pending() != 1 {
		t.Fatalf("expected exactly one pending auto-logout timer, got %d", h.clock.Pending())
	}

	h.clock.Advance(time.Second)
	if !h.manager.LoggedIn() {
		t.Fatalf("the first login's timer must not fire")
	}
	h.clock.Advance(time.Second)
	if h.manager.LoggedIn() {
		t.Fatalf("expected the second login's timer to end the session")
	}
	if got := countInactive(h.emitted()[1:]); got != 1 {
		t.Fatalf("expected one no-session emission, got %d", got)
	}
}

func TestLoginWithoutExpiryDoesNotArm(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.respondWith(&Record{User: User{ID: "u-1"}, AccessToken: "opaque-token"})

	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !h.manager.LoggedIn() {
		t.Fatalf("login must proceed without an exp claim")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("no timer may be armed without an expiration")
	}
	if _, ok := h.manager.ExpiresAt(); ok {
		t.Fatalf("expected no expiration")
	}
	if h.manager.MetricsSnapshot().Counters[MetricAutoLogoutUnarmed] != 1 {
		t.Fatalf("expected unarmed counter")
	}
}

func TestLogoutAlwaysPublishesNoSession(t *testing.T) {
	h := newHarness(t, nil, nil)

	if err := h.manager.Logout(context.Background()); err != nil {
		t.Fatalf("logout while logged out: %v", err)
	}
	states := h.emitted()
	if len(states) != 2 || states[1].Active {
		t.Fatalf("expected a no-session emission, got %+v", states)
	}
	if h.navigator.count() != 1 {
		t.Fatalf("expected redirect even when already logged out")
	}

	h.respondWith(h.record(t, time.Hour))
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := h.manager.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	states = h.emitted()
	if last := states[len(states)-1]; last.Active || last.Record != nil {
		t.Fatalf("expected no session, got %+v", last)
	}
	if _, ok, _ := h.store.Load(context.Background()); ok {
		t.Fatalf("logout must clear storage")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("logout must disarm auto-logout")
	}
	if h.navigator.paths[len(h.navigator.paths)-1] != "/auth/login" {
		t.Fatalf("unexpected redirect %v", h.navigator.paths)
	}
}

func TestLogoutReportsStoreFailure(t *testing.T) {
	h := newHarness(t, nil, failingStore{})
	err := h.manager.Logout(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if h.manager.LoggedIn() {
		t.Fatalf("state must be logged out regardless")
	}
}

func TestLoginSucceedsWhenPersistFails(t *testing.T) {
	h := newHarness(t, nil, failingStore{})
	h.respondWith(h.record(t, time.Hour))

	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !h.manager.LoggedIn() {
		t.Fatalf("expected logged in")
	}
	if h.manager.MetricsSnapshot().Counters[MetricStoreFailure] != 1 {
		t.Fatalf("expected store failure counter")
	}
}

func TestRestoreWithoutStoredKey(t *testing.T) {
	h := newHarness(t, nil, nil)

	if h.manager.Restore(context.Background()) {
		t.Fatalf("nothing to restore")
	}
	if len(h.emitted()) != 1 || h.manager.LoggedIn() {
		t.Fatalf("expected the initial no-session state only, got %+v", h.emitted())
	}
	if h.store.writes() != 0 {
		t.Fatalf("restore without a stored key must not write storage")
	}
}

func TestRestoreDiscardsExpiredOrMalformed(t *testing.T) {
	expiredToken := func(h *harness) string {
		tok, err := h.signer.IssueUntil("u-1", "", testStart.Add(-time.Minute))
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return tok
	}
	nowToken := func(h *harness) string {
		tok, err := h.signer.IssueUntil("u-1", "", testStart)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return tok
	}

	cases := map[string]func(h *harness) session.Store{
		"expired": func(h *harness) session.Store {
			s := session.NewMemoryStore()
			_ = s.Save(context.Background(), &Record{AccessToken: expiredToken(h)})
			return s
		},
		"expiring now": func(h *harness) session.Store {
			s := session.NewMemoryStore()
			_ = s.Save(context.Background(), &Record{AccessToken: nowToken(h)})
			return s
		},
		"garbage token": func(*harness) session.Store {
			s := session.NewMemoryStore()
			_ = s.Save(context.Background(), &Record{AccessToken: "garbage"})
			return s
		},
		"malformed blob": func(*harness) session.Store {
			return session.NewMemoryStoreFromBytes([]byte(`{"user":`))
		},
	}

	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			probe := newHarness(t, nil, nil)
			store := seed(probe)
			h := newHarness(t, nil, store)

			if h.manager.Restore(context.Background()) {
				t.Fatalf("expected nothing restored")
			}
			if h.manager.LoggedIn() || len(h.emitted()) != 1 {
				t.Fatalf("expected to remain logged out, got %+v", h.emitted())
			}
			if _, ok, _ := store.Load(context.Background()); ok {
				t.Fatalf("expected storage to be cleared")
			}
		})
	}
}

func TestRestoreValidSessionRearms(t *testing.T) {
	seed := session.NewMemoryStore()
	h := newHarness(t, nil, seed)
	rec := h.record(t, 30*time.Second)
	if err := seed.Save(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if !h.manager.Restore(context.Background()) {
		t.Fatalf("expected session to be restored")
	}
	u, ok := h.manager.User()
	if !ok || u.Email != "ada@example.com" || u.FirstName != "Ada" {
		t.Fatalf("expected stored profile, got %+v", u)
	}
	if h.store.saves != 0 {
		t.Fatalf("restore must not rewrite the record")
	}

	h.clock.Advance(30 * time.Second)
	if h.manager.LoggedIn() {
		t.Fatalf("restored session should auto-expire")
	}
	if _, ok, _ := seed.Load(context.Background()); ok {
		t.Fatalf("auto-logout must clear storage")
	}
}

func TestRestoreWithoutRearm(t *testing.T) {
	seed := session.NewMemoryStore()
	h := newHarness(t, func(c *Config) { c.Session.RearmOnRestore = false }, seed)
	if err := seed.Save(context.Background(), h.record(t, 30*time.Second)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if !h.manager.Restore(context.Background()) {
		t.Fatalf("expected session to be restored")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("no timer expected when re-arming is disabled")
	}
	h.clock.Advance(time.Hour)
	if !h.manager.LoggedIn() {
		t.Fatalf("session should stay until the next restore")
	}

	if h.manager.Restore(context.Background()) {
		t.Fatalf("a later restore must notice the expired token")
	}
}

func TestRestoreStoreFailureIsNoSession(t *testing.T) {
	h := newHarness(t, nil, failingStore{})
	if h.manager.Restore(context.Background()) {
		t.Fatalf("expected no session")
	}
	if h.manager.MetricsSnapshot().Counters[MetricStoreFailure] != 1 {
		t.Fatalf("expected store failure counter")
	}
}

func TestRestoreKeepsTimerOfActiveSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.respondWith(h.record(t, time.Second))
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := h.store.Store.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}

	h.manager.Restore(context.Background())
	h.clock.Advance(time.Second)
	if h.manager.LoggedIn() {
		t.Fatalf("a no-op restore must not cancel the pending auto-logout")
	}
}

// A token without exp is accepted at login but counts as expired on restore. The
// active session must survive and the store must keep agreeing with it.
func TestRestoreOverActiveSessionWithoutExpiry(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.respondWith(&Record{User: User{ID: "u-1", Email: "ada@example.com"}, AccessToken: "opaque-token"})
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	before := len(h.emitted())

	if h.manager.Restore(context.Background()) {
		t.Fatalf("nothing new to restore")
	}
	if !h.manager.LoggedIn() || len(h.emitted()) != before {
		t.Fatalf("restore must not change the active session")
	}
	stored, ok, err := h.store.Load(context.Background())
	if err != nil || !ok || stored.AccessToken != "opaque-token" {
		t.Fatalf("store and subject disagree: stored=%+v ok=%v err=%v", stored, ok, err)
	}
}

func TestRestoreReplacesExpiredStoredRecordWithActiveOne(t *testing.T) {
	h := newHarness(t, nil, nil)
	active := h.record(t, time.Hour)
	h.respondWith(active)
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	stale := h.record(t, -time.Minute)
	if err := h.store.Store.Save(context.Background(), stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if h.manager.Restore(context.Background()) {
		t.Fatalf("an expired record must not be restored")
	}
	if token, _ := h.manager.AccessToken(); token != active.AccessToken {
		t.Fatalf("active session replaced")
	}
	stored, ok, err := h.store.Load(context.Background())
	if err != nil || !ok || stored.AccessToken != active.AccessToken {
		t.Fatalf("expected the store to hold the active record, got %+v ok=%v err=%v", stored, ok, err)
	}
	h.clock.Advance(time.Hour)
	if h.manager.LoggedIn() {
		t.Fatalf("auto-logout of the active session must stay armed")
	}
}

// blockingLogin makes the fake API wait until released, signalling entry.
func (h *harness) blockingLogin(rec *Record) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	h.api.mu.Lock()
	h.api.login = func(context.Context, LoginRequest) (*Record, error) {
		close(entered)
		<-release
		return rec, nil
	}
	h.api.mu.Unlock()
	return entered, release
}

func TestLoginResponseAfterLogoutIsDiscarded(t *testing.T) {
	h := newHarness(t, nil, nil)
	entered, release := h.blockingLogin(h.record(t, time.Hour))

	errc := make(chan error, 1)
	go func() {
		_, err := h.manager.Login(context.Background(), creds)
		errc <- err
	}()
	<-entered

	if err := h.manager.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrLoginSuperseded) {
		t.Fatalf("expected ErrLoginSuperseded, got %v", err)
	}
	if h.manager.LoggedIn() {
		t.Fatalf("stale login must not resurrect the session")
	}
	if _, ok, _ := h.store.Load(context.Background()); ok {
		t.Fatalf("stale login must not persist")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("stale login must not arm a timer")
	}
	if h.manager.MetricsSnapshot().Counters[MetricLoginSuperseded] != 1 {
		t.Fatalf("expected superseded counter")
	}
}

func TestLoginResponseAfterLogoutAppliedWhenAllowed(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.DiscardStaleLogins = false }, nil)
	entered, release := h.blockingLogin(h.record(t, time.Hour))

	errc := make(chan error, 1)
	go func() {
		_, err := h.manager.Login(context.Background(), creds)
		errc <- err
	}()
	<-entered
	_ = h.manager.Logout(context.Background())
	close(release)

	if err := <-errc; err != nil {
		t.Fatalf("login: %v", err)
	}
	if !h.manager.LoggedIn() {
		t.Fatalf("expected the late response to be applied")
	}

	h.clock.Advance(time.Hour)
	if h.manager.LoggedIn() {
		t.Fatalf("the resurrected session must still auto-expire")
	}
}

func TestRegisterDoesNotChangeState(t *testing.T) {
	h := newHarness(t, nil, nil)
	created := h.record(t, time.Hour)
	var got RegisterRequest
	h.api.register = func(_ context.Context, req RegisterRequest) (*Record, error) {
		got = req
		return created, nil
	}

	rec, err := h.manager.Register(context.Background(), RegisterRequest{Email: "ada@example.com", Password: "pw", FirstName: "Ada"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec != created || got.FirstName != "Ada" {
		t.Fatalf("unexpected register round trip")
	}
	if h.manager.LoggedIn() || len(h.emitted()) != 1 || h.store.writes() != 0 {
		t.Fatalf("register must not touch session state")
	}

	h.api.register = func(context.Context, RegisterRequest) (*Record, error) {
		return nil, &APIError{Op: "register", StatusCode: http.StatusBadRequest, Message: "Email already exists"}
	}
	if _, err := h.manager.Register(context.Background(), RegisterRequest{Email: "ada@example.com"}); err == nil {
		t.Fatalf("expected register failure")
	}
	if h.manager.MetricsSnapshot().Counters[MetricRegisterFailure] != 1 {
		t.Fatalf("expected register failure counter")
	}
}

func TestDerivedViews(t *testing.T) {
	h := newHarness(t, nil, nil)
	var flags []bool
	var users []*User
	cancelFlag := h.manager.Subject().SubscribeLoggedIn(func(v bool) { flags = append(flags, v) })
	cancelUser := h.manager.Subject().SubscribeUser(func(u *User) { users = append(users, u) })
	defer cancelFlag()
	defer cancelUser()

	h.respondWith(h.record(t, time.Hour))
	if _, err := h.manager.Login(context.Background(), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = h.manager.Logout(context.Background())

	if len(flags) != 3 || flags[0] || !flags[1] || flags[2] {
		t.Fatalf("unexpected login flags %v", flags)
	}
	if len(users) != 3 || users[0] != nil || users[1] == nil || users[1].Email != "ada@example.com" || users[2] != nil {
		t.Fatalf("unexpected users %v", users)
	}
	if h.manager.Subject().LoggedIn() != h.manager.LoggedIn() {
		t.Fatalf("subject and manager disagree")
	}
}

func TestStateVersionsIncrease(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.respondWith(h.record(t, time.Hour))
	_, _ = h.manager.Login(context.Background(), creds)
	_ = h.manager.Logout(context.Background())
	_, _ = h.manager.Login(context.Background(), creds)

	states := h.emitted()
	for i := 1; i < len(states); i++ {
		if states[i].Version <= states[i-1].Version {
			t.Fatalf("versions must increase: %+v", states)
		}
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	sink := NewChannelSink(16)
	clock := clocktest.New(testStart)
	signer, _ := jwt.NewSigner(jwt.SignerConfig{TTL: time.Minute, SigningMethod: jwt.MethodHS256, PrivateKey: []byte("k"), Now: clock.Now})
	token, _, _ := signer.Issue("u-9", "")
	api := &fakeAPI{login: func(context.Context, LoginRequest) (*Record, error) {
		return &Record{User: User{ID: "u-9"}, AccessToken: token}, nil
	}}

	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	m, err := New().WithConfig(cfg).WithAPI(api).WithClock(clock).WithAuditSink(sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, _ = m.Login(context.Background(), creds)
	clock.Advance(time.Minute)
	m.Close()

	var types []string
	for len(sink.Events()) > 0 {
		ev := <-sink.Events()
		types = append(types, ev.EventType)
		if ev.UserID != "u-9" {
			t.Fatalf("expected user on %s event, got %+v", ev.EventType, ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("expected timestamp on %s event", ev.EventType)
		}
		if ev.ExpiresAt == nil || !ev.ExpiresAt.Equal(testStart.Add(time.Minute)) {
			t.Fatalf("expected token expiry on %s event, got %v", ev.EventType, ev.ExpiresAt)
		}
	}
	if len(types) != 2 || types[0] != AuditLoginSuccess || types[1] != AuditAutoLogout {
		t.Fatalf("unexpected audit events %v", types)
	}
	if m.AuditDropped() != 0 {
		t.Fatalf("unexpected drops")
	}
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *Manager
	if _, err := m.Login(context.Background(), creds); !errors.Is(err, ErrManagerNotReady) {
		t.Fatalf("expected ErrManagerNotReady, got %v", err)
	}
	if _, err := m.Register(context.Background(), RegisterRequest{}); !errors.Is(err, ErrManagerNotReady) {
		t.Fatalf("expected ErrManagerNotReady, got %v", err)
	}
	if err := m.Logout(context.Background()); !errors.Is(err, ErrManagerNotReady) {
		t.Fatalf("expected ErrManagerNotReady, got %v", err)
	}
	if m.Restore(context.Background()) || m.LoggedIn() {
		t.Fatalf("nil manager must report logged out")
	}
	m.Close()
}
