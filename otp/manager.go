package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/internal"
	"github.com/oklog/ulid/v2"
)

// PurposeConfig bounds the codes of one purpose. MaxAttempts 0 disables the
// attempt cap.
type PurposeConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// Config configures a Manager.
type Config struct {
	Signup         PurposeConfig
	Reset          PurposeConfig
	ResendCooldown time.Duration
}

// DefaultConfig returns 15 minute codes, five reset attempts and a 60 second
// resend cooldown.
func DefaultConfig() Config {
	return Config{
		Signup:         PurposeConfig{TTL: 15 * time.Minute},
		Reset:          PurposeConfig{TTL: 15 * time.Minute, MaxAttempts: 5},
		ResendCooldown: 60 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Signup.TTL <= 0 || c.Reset.TTL <= 0 {
		return errors.New("code ttl must be > 0")
	}
	if c.Signup.MaxAttempts < 0 || c.Reset.MaxAttempts < 0 {
		return errors.New("code max attempts must be >= 0")
	}
	if c.ResendCooldown < 0 {
		return errors.New("resend cooldown must be >= 0")
	}
	return nil
}

func (c Config) purpose(p Purpose) PurposeConfig {
	if p == PurposeReset {
		return c.Reset
	}
	return c.Signup
}

// Manager issues, resends and consumes one-time codes.
type Manager struct {
	config      Config
	store       Store
	credentials credential.Finder
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager. notifier may be nil, in which case codes are
// only persisted.
func NewManager(cfg Config, store Store, credentials credential.Finder, notifier Notifier, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("code store is nil")
	}
	if credentials == nil {
		return nil, errors.New("credential finder is nil")
	}
	m := &Manager{
		config:      cfg,
		store:       store,
		credentials: credentials,
		notifier:    notifier,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue creates a fresh code for (address, purpose), invalidating any unused
// predecessor, and hands it to the notifier. Delivery failures are logged only.
func (m *Manager) Issue(ctx context.Context, address string, purpose Purpose) (string, error) {
	if !purpose.Valid() {
		return "", ErrInvalidPurpose
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("empty address")
	}

	code, err := internal.NewCode(CodeDigits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	pc := m.config.purpose(purpose)
	now := m.now().UTC()
	sum := internal.HashCode(address, string(purpose), code)
	rec := &Record{
		ID:        ulid.Make().String(),
		Address:   address,
		Purpose:   purpose,
		CodeHash:  sum[:],
		CreatedAt: now,
		ExpiresAt: now.Add(pc.TTL),
	}
	if err := m.store.Replace(ctx, rec); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	if m.notifier != nil {
		if err := m.notifier.SendCode(ctx, address, purpose, code, pc.TTL); err != nil {
			m.logger.WarnContext(ctx, "code delivery failed",
				slog.String("purpose", string(purpose)),
				slog.String("code_id", rec.ID),
				slog.Any("error", err),
			)
		}
	}
	return code, nil
}

// Resend issues a new code unless the latest unused one is younger than the
// cooldown, in which case it returns a *CooldownError. The address must belong
// to a credential.
func (m *Manager) Resend(ctx context.Context, address string, purpose Purpose) (string, error) {
	if !purpose.Valid() {
		return "", ErrInvalidPurpose
	}
	address = strings.TrimSpace(address)
	if _, err := m.credentials.FindByHandle(ctx, address); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return "", ErrUnknownAddress
		}
		return "", fmt.Errorf("load credential: %w", err)
	}

	latest, err := m.store.Latest(ctx, address, purpose)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return "", fmt.Errorf("load code: %w", err)
	default:
		if age := m.now().Sub(latest.CreatedAt); age < m.config.ResendCooldown {
			return "", &CooldownError{Remaining: m.config.ResendCooldown - age}
		}
	}
	return m.Issue(ctx, address, purpose)
}

// Consume checks presented against the authoritative code for (address,
// purpose) and marks it used on success. It never touches the credential.
func (m *Manager) Consume(ctx context.Context, address string, purpose Purpose, presented string) error {
	return m.ConsumeIf(ctx, address, purpose, presented, nil)
}

// ConsumeIf is Consume with a gate: once presented matches, check runs while
// the record is still locked. A check error is returned as is and leaves the
// code unused with its attempt count unchanged. A nil check behaves like
// Consume.
func (m *Manager) ConsumeIf(ctx context.Context, address string, purpose Purpose, presented string, check func(context.Context) error) error {
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}
	address = strings.TrimSpace(address)
	pc := m.config.purpose(purpose)
	sum := internal.HashCode(address, string(purpose), presented)

	err := m.store.Update(ctx, address, purpose, func(rec *Record) error {
		if rec.Used {
			return ErrUsed
		}
		if rec.Expired(m.now()) {
			rec.Used = true
			return ErrExpired
		}
		if len(presented) != CodeDigits || subtle.ConstantTimeCompare(rec.CodeHash, sum[:]) != 1 {
			if pc.MaxAttempts == 0 {
				return ErrMismatch
			}
			rec.Attempts++
			if rec.Attempts >= pc.MaxAttempts {
				rec.Used = true
				return ErrAttemptsExceeded
			}
			return ErrMismatch
		}
		if check != nil {
			if err := check(ctx); err != nil {
				return err
			}
		}
		rec.Used = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotRequested
	}
	return err
}

// Purge deletes records that expired before cutoff.
func (m *Manager) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.store.DeleteExpired(ctx, cutoff)
}
