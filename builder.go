package authsession

import (
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authsession/client"
	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/scheduler"
	"github.com/MrEthical07/authsession/session"
)

// Builder assembles a Manager. Every dependency has a default, so New().Build()
// yields a working manager that talks to the default API URLs and keeps the session
// in memory.
type Builder struct {
	config Config

	api        API
	httpClient *http.Client
	store      session.Store
	subject    *SessionSubject
	clock      scheduler.Clock
	navigator  Navigator
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAPI injects the remote API. Config.API is then ignored.
func (b *Builder) WithAPI(api API) *Builder {
	b.api = api
	return b
}

// WithHTTPClient sets the client used when the builder constructs the API transport.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithSubject(s *SessionSubject) *Builder {
	b.subject = s
	return b
}

func (b *Builder) WithClock(clock scheduler.Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns the Manager. It performs no I/O;
// call [Manager.Restore] once at startup to pick up a persisted session.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	api := b.api
	if api == nil {
		c, err := client.New(client.Config{
			RegisterURL: cfg.API.RegisterURL,
			LoginURL:    cfg.API.LoginURL,
			Timeout:     cfg.API.Timeout,
			UserAgent:   cfg.API.UserAgent,
			HTTPClient:  b.httpClient,
		})
		if err != nil {
			return nil, err
		}
		api = c
	}

	store := b.store
	if store == nil {
		store = session.NewMemoryStore()
	}
	subj := b.subject
	if subj == nil {
		subj = NewSessionSubject()
	}
	clock := b.clock
	if clock == nil {
		clock = scheduler.RealClock()
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	b.built = true

	return &Manager{
		config:    cfg,
		api:       api,
		store:     store,
		subject:   subj,
		clock:     clock,
		scheduler: scheduler.New(clock),
		inspector: jwt.NewInspector(
			jwt.WithClock(clock.Now),
			jwt.WithEarlyExpiry(cfg.Session.ExpiryLeeway),
		),
		navigator: b.navigator,
		logger:    logger.With("component", "authsession"),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        clock.Now,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}, nil
}
