package credguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credguard/internal/dispatch"
	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/internal/notify"
	"github.com/MrEthical07/credguard/internal/stores"
	"github.com/MrEthical07/credguard/internal/sweep"
	"github.com/MrEthical07/credguard/jwt"
	"github.com/MrEthical07/credguard/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	mailer       Mailer
	auditSink    AuditSink
	logger       *zap.Logger
	clock        Clock
	throttle     Throttle
	hasher       PasswordHasher

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]; the caller must at least supply a Redis
// client, a user provider and an access signing key.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; validation happens in Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis accepts a single-node or sentinel (failover) client. Every store
// shares it. Cluster clients are refused by Build: the refresh scripts touch
// per-user keys derived inside Lua, which cluster slot routing rejects.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the host's user database adapter.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithMailer sets the outbound email transport. Without one, no email is sent.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// The sink only receives events when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the parent logger; components log through named children.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock sets the time source used for every record timestamp.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithThrottle replaces the Redis login throttle.
func (b *Builder) WithThrottle(t Throttle) *Builder {
	b.throttle = t
	return b
}

// WithPasswordHasher replaces the argon2id/bcrypt hasher. Calls still go
// through the bounded hashing pool.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the access-validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when the configuration is invalid or a required
// collaborator is missing. It starts the mail and audit workers and, when
// Config.Sweep.Enabled is set, the background sweeper.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if _, ok := b.redis.(*redis.ClusterClient); ok {
		return nil, errors.New("redis cluster clients are not supported")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	timeout := cfg.Redis.OperationTimeout

	engine := &Engine{
		config:  cloneConfig(cfg),
		clock:   clock,
		logger:  logger,
		users:   b.userProvider,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- HASHING --------
	var algo PasswordHasher = b.hasher
	if algo == nil {
		h, err := password.NewHasher(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		algo = h
	}
	engine.hasher = password.NewPool(algo, cfg.Password.Concurrency)

	dummy, err := algo.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	engine.dummyHash = dummy

	// -------- ACCESS TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Access.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Access.SigningMethod),
		PrivateKey:    []byte(cfg.Access.PrivateKey),
		PublicKey:     []byte(cfg.Access.PublicKey),
		KeyID:         cfg.Access.KeyID,
		Issuer:        cfg.Access.Issuer,
		Audience:      cfg.Access.Audience,
		Leeway:        cfg.Access.Leeway,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.access = jm

	// -------- REDIS STORES --------
	engine.refresh = stores.NewRefreshStore(b.redis, stores.RefreshConfig{
		KeyPrefix:        cfg.KeyPrefix,
		TTL:              cfg.Refresh.TTL,
		RetentionGrace:   cfg.Refresh.RetentionGrace,
		OperationTimeout: timeout,
	})
	engine.blacklist = stores.NewBlacklist(b.redis, stores.BlacklistConfig{
		KeyPrefix:        cfg.KeyPrefix,
		LocalFallback:    cfg.Blacklist.LocalFallback,
		LocalMaxEntries:  cfg.Blacklist.LocalMaxEntries,
		NegativeCacheTTL: cfg.Blacklist.NegativeCacheTTL,
		OperationTimeout: timeout,
	}, clock.Now, logger.Named("blacklist"))
	engine.resetTokens = stores.NewOneTimeStore(b.redis, stores.OneTimeConfig{
		KeyPrefix:        cfg.KeyPrefix,
		Kind:             "prt",
		TTL:              cfg.PasswordReset.TokenTTL,
		MaxPerWindow:     cfg.PasswordReset.MaxTokensPerHour,
		SweepGrace:       cfg.PasswordReset.SweepGrace,
		OperationTimeout: timeout,
	})
	engine.emailTokens = stores.NewOneTimeStore(b.redis, stores.OneTimeConfig{
		KeyPrefix:        cfg.KeyPrefix,
		Kind:             "ect",
		TTL:              cfg.EmailChange.TokenTTL,
		MaxPerWindow:     cfg.EmailChange.MaxTokensPerHour,
		SweepGrace:       cfg.EmailChange.SweepGrace,
		OperationTimeout: timeout,
	})
	engine.windows = limiters.NewWindows(b.redis, limiters.WindowConfig{
		KeyPrefix: cfg.KeyPrefix,
		Limits: map[limiters.Operation]int{
			limiters.OpPasswordReset: cfg.PasswordReset.RequestsPerHour,
			limiters.OpEmailChange:   cfg.EmailChange.RequestsPerHour,
			limiters.OpOutboundEmail: cfg.Mail.MaxPerHour,
		},
		OperationTimeout: timeout,
	})

	// -------- THROTTLE --------
	switch {
	case b.throttle != nil:
		engine.throttle = b.throttle
	case cfg.Throttle.Enabled:
		engine.throttle = limiters.NewThrottle(b.redis, limiters.ThrottleConfig{
			KeyPrefix:        cfg.KeyPrefix,
			MaxAttempts:      cfg.Throttle.MaxAttempts,
			Window:           cfg.Throttle.AttemptWindow,
			BaseLockout:      cfg.Throttle.BaseLockout,
			CapMultiplier:    cfg.Throttle.CapMultiplier,
			OperationTimeout: timeout,
		}, engine.onLockout, logger.Named("throttle"))
	default:
		engine.throttle = NoopThrottle{}
	}

	// -------- DISPATCHERS --------
	engine.notifier = notify.New(notify.Config{
		Dispatch: dispatch.Config{
			BufferSize: cfg.Mail.BufferSize,
			Workers:    cfg.Mail.Workers,
			DropIfFull: cfg.Mail.DropIfFull,
		},
		SendTimeout: cfg.Mail.SendTimeout,
		ProductName: cfg.Mail.ProductName,
		LinkBaseURL: cfg.Mail.LinkBaseURL,
	}, mailSender(b.mailer), engine.allowMail, engine.observeMail, logger.Named("mail"))

	if cfg.Audit.Enabled && b.auditSink != nil {
		sink := b.auditSink
		auditLogger := logger.Named("audit")
		engine.audit = dispatch.New(dispatch.Config{
			BufferSize: cfg.Audit.BufferSize,
			Workers:    cfg.Audit.Workers,
			DropIfFull: cfg.Audit.DropIfFull,
		}, func(ctx context.Context, ev AuditEvent) {
			sink.Emit(ctx, ev)
		}, func(err error) {
			auditLogger.Error("audit sink panic", zap.Error(err))
		})
	}

	// -------- SWEEPER --------
	engine.sweeper = sweep.New(sweep.Options{
		Interval: cfg.Sweep.Interval,
		Timeout:  cfg.Sweep.Timeout,
		Now:      clock.Now,
		Logger:   logger.Named("sweep"),
		OnPass:   engine.onSweepPass,
	}, engine.sweepTasks()...)
	if cfg.Sweep.Enabled {
		engine.sweeper.Start(context.Background())
	}

	b.built = true

	return engine, nil
}

// mailSender keeps a nil Mailer a nil notify.Sender so the notifier can
// skip composition entirely.
func mailSender(m Mailer) notify.Sender {
	if m == nil {
		return nil
	}
	return m
}
