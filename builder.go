package credauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/alebarre/credauth/credential"
	internalaudit "github.com/alebarre/credauth/internal/audit"
	"github.com/alebarre/credauth/internal/flows"
	"github.com/alebarre/credauth/internal/limiters"
	"github.com/alebarre/credauth/internal/stores"
	"github.com/alebarre/credauth/jwt"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/session"
	"github.com/alebarre/credauth/store/memory"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials credential.Store
	sessions    session.Store
	codes       otp.Store
	history     password.HistoryStore
	notifier    otp.Notifier

	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
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

// WithRedis enables the shared login throttle, the per-IP code request
// limit and, unless WithCodeStore is used, Redis-backed one-time codes.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the credential store. Required.
func (b *Builder) WithCredentialStore(s credential.Store) *Builder {
	b.credentials = s
	return b
}

// WithSessionStore sets the rotation token store. Defaults to memory.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessions = s
	return b
}

// WithCodeStore sets the one-time code store. Defaults to Redis when a client
// is set, memory otherwise.
func (b *Builder) WithCodeStore(s otp.Store) *Builder {
	b.codes = s
	return b
}

// WithHistoryStore sets the password history store. It must be the history
// the credential store writes to when it implements
// credential.PasswordReplacer; Build fails if such a store is given without
// one.
func (b *Builder) WithHistoryStore(s password.HistoryStore) *Builder {
	b.history = s
	return b
}

// WithNotifier sets the code delivery collaborator.
func (b *Builder) WithNotifier(n otp.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithMemoryStores wires every store from one in-memory set.
func (b *Builder) WithMemoryStores(s *memory.Stores) *Builder {
	b.credentials = s.Credentials
	b.sessions = s.Sessions
	b.codes = s.Codes
	b.history = s.History
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source of every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- STORES --------
	sessionStore := b.sessions
	if sessionStore == nil {
		sessionStore = memory.NewSessionStore()
	}
	codeStore := b.codes
	if codeStore == nil {
		if b.redis != nil {
			codeStore = stores.NewCodeStore(b.redis, cfg.Codes.RedisPrefix)
		} else {
			codeStore = memory.NewCodeStore()
		}
	}
	history := b.history
	if history == nil {
		if _, ok := b.credentials.(credential.PasswordReplacer); ok {
			return nil, errors.New("history store required: the credential store writes password history itself")
		}
		history = memory.NewHistoryStore()
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(cfg.Password.Argon2)
	if err != nil {
		return nil, err
	}
	policy, err := password.NewPolicy(cfg.Password.Rules, cfg.Password.HistorySize, history, hasher)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	signer, err := jwt.NewSigner(jwt.Config{
		Key:      cloneBytes(cfg.JWT.Secret),
		TTL:      cfg.JWT.TTL,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
		KeyID:    cfg.JWT.KeyID,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(sessionStore, cfg.Session.TTL, session.WithClock(now))
	if err != nil {
		return nil, err
	}

	// -------- CODES --------
	codes, err := otp.NewManager(cfg.Codes.otpConfig(), codeStore, b.credentials, b.notifier,
		otp.WithLogger(logger), otp.WithClock(now))
	if err != nil {
		return nil, err
	}

	// -------- THROTTLES --------
	var throttle limiters.LoginThrottle
	if b.redis != nil {
		throttle, err = limiters.NewRedisLoginThrottle(b.redis, cfg.Lockout.limiterConfig())
	} else {
		var mem *limiters.MemoryLoginThrottle
		mem, err = limiters.NewMemoryLoginThrottle(cfg.Lockout.limiterConfig())
		if mem != nil {
			mem.SetClock(now)
			throttle = mem
		}
	}
	if err != nil {
		return nil, err
	}
	requests := limiters.NewCodeRequestLimiter(b.redis, limiters.RequestConfig{
		MaxRequests: cfg.Requests.MaxRequests,
		Window:      cfg.Requests.Window,
	})

	replacer, _ := b.credentials.(credential.PasswordReplacer)

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		signer:      signer,
		sessions:    sessions,
		codes:       codes,
		hasher:      hasher,
		policy:      policy,
		throttle:    throttle,
		requests:    requests,
		validate:    validator.New(),
		logger:      logger,
		now:         now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	passwordDeps := flows.PasswordDeps{
		Credentials: b.credentials,
		Replacer:    replacer,
		Hasher:      hasher,
		Policy:      policy,
		Sessions:    sessions,
		Codes:       codes,
		Now:         now,
	}
	engine.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Throttle:           throttle,
			Credentials:        b.credentials,
			Hasher:             hasher,
			Signer:             signer,
			Sessions:           sessions,
			UpgradeHashOnLogin: cfg.Password.UpgradeOnLogin,
			Now:                now,
			Warn:               engine.warn,
		},
		Refresh: flows.RefreshDeps{
			Sessions:    sessions,
			Credentials: b.credentials,
			Signer:      signer,
			Warn:        engine.warn,
		},
		Logout:   flows.LogoutDeps{Sessions: sessions},
		Password: passwordDeps,
		Signup: flows.SignupDeps{
			Credentials: b.credentials,
			Hasher:      hasher,
			Policy:      policy,
			Codes:       codes,
			Now:         now,
		},
		Account: flows.AccountDeps{
			Credentials: b.credentials,
			Sessions:    sessions,
			Hasher:      hasher,
			Now:         now,
		},
	})

	b.built = true

	return engine, nil
}
