package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alebarre/credauth/internal/errutil"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base64 of a 32 byte key.
const testSecret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "config file")
	fs.String("log.level", "info", "log level")
	fs.Int("lockout.threshold", 10, "lockout threshold")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	l, err := Load(Options{})
	require.NoError(t, err)

	s := l.Settings
	assert.Equal(t, 15*time.Minute, s.Codes.ResetTTL)
	assert.Equal(t, 5, s.Codes.ResetMaxAttempts)
	assert.Equal(t, 10, s.Lockout.Threshold)
	assert.Equal(t, time.Minute, s.Lockout.Cooldown)
	assert.True(t, s.Password.RequireSpecial)
	assert.True(t, s.Signup.Enabled)
	assert.Equal(t, "json", s.Log.Format)
}

func TestLoadLayering(t *testing.T) {
	path := writeFile(t, "credauth.yaml", `
jwt:
  secret: `+testSecret+`
  issuer: file-issuer
codes:
  reset_ttl: 30m
lockout:
  threshold: 7
  cooldown: 2m
log:
  level: debug
database:
  url: postgres://app:hunter2@db:5432/auth
`)
	t.Setenv("CREDAUTH_CODES__RESET_TTL", "45m")
	t.Setenv("CREDAUTH_LOCKOUT__THRESHOLD", "5")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--lockout.threshold=3", "--config=" + path}))

	l, err := Load(Options{Path: path, Flags: fs})
	require.NoError(t, err)
	s := l.Settings

	assert.Equal(t, "file-issuer", s.JWT.Issuer)
	assert.Equal(t, 45*time.Minute, s.Codes.ResetTTL, "env beats file")
	assert.Equal(t, 3, s.Lockout.Threshold, "flag beats env")
	assert.Equal(t, 2*time.Minute, s.Lockout.Cooldown)
	assert.Equal(t, "debug", s.Log.Level, "unset flag keeps the file value")
	assert.Equal(t, "postgres://app:hunter2@db:5432/auth", s.Database.URL)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "CREDAUTH_JWT__ISSUER=dotenv-issuer\n")
	t.Cleanup(func() { _ = os.Unsetenv("CREDAUTH_JWT__ISSUER") })

	l, err := Load(Options{EnvFiles: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, "dotenv-issuer", l.Settings.JWT.Issuer)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(Options{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	errutil.AssertErrorCode(t, err, "CONFIG_FILE")

	_, err = Load(Options{EnvFiles: []string{filepath.Join(t.TempDir(), "missing.env")}})
	errutil.AssertErrorCode(t, err, "CONFIG_ENV_FILE")

	bad := writeFile(t, "bad.yaml", "lockout:\n  cooldown: soon\n")
	_, err = Load(Options{Path: bad})
	errutil.AssertErrorCode(t, err, "CONFIG_DECODE")
}

func TestEngineConfig(t *testing.T) {
	l, err := Load(Options{})
	require.NoError(t, err)

	_, err = l.Settings.EngineConfig()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	s := l.Settings
	s.JWT.Secret = testSecret
	s.Lockout.Threshold = 4
	cfg, err := s.EngineConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.JWT.Secret, 32)
	assert.Equal(t, 4, cfg.Lockout.Threshold)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.Equal(t, uint32(16), cfg.Password.Argon2.SaltLength)

	s.JWT.Secret = "c2hvcnQ="
	_, err = s.EngineConfig()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestLoadSkipsEmptyEnv(t *testing.T) {
	path := writeFile(t, "credauth.yaml", `
database:
  url: postgres://app:hunter2@db:5432/auth
`)
	t.Setenv("CREDAUTH_DATABASE__URL", "")
	t.Setenv("CREDAUTH_LOG__FORMAT", "")

	l, err := Load(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:hunter2@db:5432/auth", l.Settings.Database.URL)
	assert.Equal(t, "json", l.Settings.Log.Format)
}

func TestEngineConfigWarnThreshold(t *testing.T) {
	path := writeFile(t, "credauth.yaml", `
jwt:
  secret: `+testSecret+`
lockout:
  threshold: 3
`)
	l, err := Load(Options{Path: path})
	require.NoError(t, err)
	assert.Nil(t, l.Settings.Lockout.WarnThreshold)

	cfg, err := l.Settings.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, 1, cfg.Lockout.WarnThreshold)

	t.Setenv("CREDAUTH_LOCKOUT__WARN_THRESHOLD", "0")
	l, err = Load(Options{Path: path})
	require.NoError(t, err)
	cfg, err = l.Settings.EngineConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.Lockout.WarnThreshold, "an explicit value wins")

	t.Setenv("CREDAUTH_LOCKOUT__WARN_THRESHOLD", "3")
	l, err = Load(Options{Path: path})
	require.NoError(t, err)
	_, err = l.Settings.EngineConfig()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestRedacted(t *testing.T) {
	t.Setenv("CREDAUTH_JWT__SECRET", testSecret)
	t.Setenv("CREDAUTH_DATABASE__URL", "postgres://app:hunter2@db:5432/auth")

	l, err := Load(Options{})
	require.NoError(t, err)
	out, err := l.Redacted()
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, testSecret)
	assert.NotContains(t, text, "hunter2")
	assert.Contains(t, text, "postgres://app:[redacted]@db:5432/auth")
	assert.Contains(t, text, "reset_ttl: 15m0s")

	// The loaded settings keep the real values.
	assert.Equal(t, testSecret, l.Settings.JWT.Secret)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://u:[redacted]@h/db", redactURL("postgres://u:p@h/db"))
	assert.Equal(t, "postgres://u@h/db", redactURL("postgres://u@h/db"))
	assert.Equal(t, "not a url", redactURL("not a url"))
}
