package goAssist

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/MrEthical07/goAssist/auth"
	"github.com/MrEthical07/goAssist/gate"
	"github.com/MrEthical07/goAssist/gateway"
	"github.com/MrEthical07/goAssist/internal/logging"
	"github.com/MrEthical07/goAssist/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a [Client]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	backend    session.Backend
	httpClient *http.Client
	logger     *zap.Logger
	eventSink  EventSink
	now        func() time.Time

	built bool
}

// New returns a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the redis store backend. The caller
// keeps ownership of client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend supplies a credential store backend directly, overriding
// Store.Backend.
func (b *Builder) WithBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

// WithHTTPClient replaces the gateway HTTP client. Gateway.Timeout is ignored.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithLogger supplies the logger. Without one, Build creates a logger from
// Config.Logging.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithEventSink sets the receiver of session events. Events must also be
// enabled in Config.Events.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithClock overrides time.Now for expiry decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the gateway latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the components and restores the
// persisted session. The returned Client is never in the loading state.
func (b *Builder) Build() (*Client, error) {
	return b.BuildContext(context.Background())
}

// BuildContext is Build with a context for the initial restore.
func (b *Builder) BuildContext(ctx context.Context) (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		l, err := logging.New(logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}, os.Stderr)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		events:  newEventDispatcher(cfg.Events, b.eventSink),
		now:     now,
	}

	// -------- CREDENTIAL STORE --------
	backend, err := b.openBackend(ctx, cfg, c)
	if err != nil {
		c.events.Close()
		return nil, err
	}
	store := session.NewCredentialStore(
		backend,
		cfg.Session.KeyPrefix,
		session.WithStoreLogger(logger.Named("store")),
		session.WithStoreClock(now),
	)

	// -------- SESSION MANAGER --------
	c.session = session.NewManager(
		store,
		nil,
		session.Config{
			DiscardSupersededLogins: cfg.Session.DiscardSupersededLogins,
			AutoExpire:              cfg.Session.AutoExpire,
		},
		session.WithLogger(logger.Named("session")),
		session.WithClock(now),
	)

	// -------- GATEWAY --------
	gwOpts := []gateway.Option{
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithObserver(c.observeGateway),
	}
	if b.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(b.httpClient))
	}
	gw, err := gateway.New(gateway.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		Timeout:          cfg.Gateway.Timeout,
		UserAgent:        cfg.Gateway.UserAgent,
		MaxResponseBytes: cfg.Gateway.MaxResponseBytes,
	}, c.session, gwOpts...)
	if err != nil {
		_ = c.closeResources()
		return nil, err
	}
	c.gateway = gw
	c.session.SetAuthenticator(auth.New(gw))

	// -------- GATE --------
	c.gate = gate.New(c.session)
	c.unsubscribe = c.session.Subscribe(c.onSessionChange)

	c.session.Restore(ctx)

	b.built = true
	return c, nil
}

func (b *Builder) openBackend(ctx context.Context, cfg Config, c *Client) (session.Backend, error) {
	if b.backend != nil {
		return b.backend, nil
	}

	switch cfg.Store.Backend {
	case StoreRedis:
		client := b.redis
		if client == nil {
			owned := redis.NewClient(&redis.Options{
				Addr:     cfg.Store.RedisAddr,
				Password: cfg.Store.RedisPassword,
				DB:       cfg.Store.RedisDB,
			})
			c.closers = append(c.closers, owned.Close)
			client = owned
		}
		backend := session.NewRedisBackend(client)
		// an unreachable Redis degrades to an empty store; report it once
		if latency, err := backend.Ping(ctx); err != nil {
			c.logger.Warn("credential store: redis unreachable at startup", zap.Error(err))
		} else {
			c.logger.Debug("credential store: redis reachable", zap.Duration("latency", latency))
		}
		return backend, nil
	case StoreSQLite:
		backend, err := session.OpenSQLiteBackend(session.SQLiteConfig{
			Path:        cfg.Store.SQLitePath,
			BusyTimeout: cfg.Store.SQLiteBusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, backend.Close)
		return backend, nil
	default:
		return session.NewMemoryBackend(), nil
	}
}
