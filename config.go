package credauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/alebarre/credauth/internal/limiters"
	"github.com/alebarre/credauth/jwt"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/session"
)

// Config holds every engine setting. Build it with DefaultConfig and override
// fields; the engine copies it at Build time.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Codes    CodeConfig
	Password PasswordConfig
	Lockout  LockoutConfig
	Requests RequestLimitConfig
	Signup   SignupConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures session token signing (HS256).
type JWTConfig struct {
	// Secret is the raw signing key, at least 32 bytes. See jwt.DecodeKey.
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience string
	Leeway   time.Duration
	KeyID    string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures rotation tokens.
type SessionConfig struct {
	TTL time.Duration
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

// CodeConfig configures signup and reset codes. A zero MaxAttempts disables
// the attempt cap for that purpose.
type CodeConfig struct {
	SignupTTL         time.Duration
	SignupMaxAttempts int
	ResetTTL          time.Duration
	ResetMaxAttempts  int
	ResendCooldown    time.Duration
	// RedisPrefix namespaces code keys when codes are kept in Redis.
	RedisPrefix string
}

func (c CodeConfig) otpConfig() otp.Config {
	return otp.Config{
		Signup:         otp.PurposeConfig{TTL: c.SignupTTL, MaxAttempts: c.SignupMaxAttempts},
		Reset:          otp.PurposeConfig{TTL: c.ResetTTL, MaxAttempts: c.ResetMaxAttempts},
		ResendCooldown: c.ResendCooldown,
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures hashing and the password policy.
type PasswordConfig struct {
	Argon2      password.Config
	Rules       password.Rules
	HistorySize int
	// UpgradeOnLogin re-hashes legacy or weaker hashes after a successful login.
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures the per-principal login throttle.
type LockoutConfig struct {
	Threshold     int
	WarnThreshold int
	Cooldown      time.Duration
	FailureWindow time.Duration
}

func (c LockoutConfig) limiterConfig() limiters.LoginConfig {
	return limiters.LoginConfig{
		Threshold:     c.Threshold,
		WarnThreshold: c.WarnThreshold,
		Cooldown:      c.Cooldown,
		FailureWindow: c.FailureWindow,
	}
}

/*
====================================
CODE REQUEST LIMIT CONFIG
====================================
*/

// RequestLimitConfig bounds code-issuing requests per client IP. It needs
// Redis and the IP attached with WithClientIP. Zero MaxRequests disables it.
type RequestLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

/*
====================================
SIGNUP CONFIG
====================================
*/

// SignupConfig toggles self-registration.
type SignupConfig struct {
	Enabled bool
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: one hour session tokens,
// seven day rotation tokens, fifteen minute codes with a five attempt reset
// cap, and a lock after ten failures.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:    jwt.DefaultTTL,
			Leeway: 30 * time.Second,
		},
		Session: SessionConfig{
			TTL: session.DefaultTTL,
		},
		Codes: CodeConfig{
			SignupTTL:        15 * time.Minute,
			ResetTTL:         15 * time.Minute,
			ResetMaxAttempts: 5,
			ResendCooldown:   60 * time.Second,
			RedisPrefix:      "otp",
		},
		Password: PasswordConfig{
			Argon2:         password.DefaultConfig(),
			Rules:          password.DefaultRules(),
			HistorySize:    password.DefaultHistory,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Threshold:     10,
			WarnThreshold: 5,
			Cooldown:      60 * time.Second,
			FailureWindow: 15 * time.Minute,
		},
		Requests: RequestLimitConfig{
			MaxRequests: 20,
			Window:      time.Hour,
		},
		Signup: SignupConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < jwt.MinKeyBytes {
		return fmt.Errorf("jwt secret must be at least %d bytes", jwt.MinKeyBytes)
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt ttl must be > 0")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("jwt leeway must be >= 0")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be > 0")
	}
	if err := c.Codes.otpConfig().Validate(); err != nil {
		return err
	}
	if err := c.Password.Argon2.Validate(); err != nil {
		return err
	}
	if c.Password.Rules.MinLength < 0 {
		return errors.New("password min length must be >= 0")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("password history size must be >= 0")
	}
	if err := c.Lockout.limiterConfig().Validate(); err != nil {
		return err
	}
	if c.Requests.MaxRequests < 0 {
		return errors.New("code request limit must be >= 0")
	}
	if c.Requests.MaxRequests > 0 && c.Requests.Window <= 0 {
		return errors.New("code request window must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0")
	}
	return nil
}
