package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebarre/credauth/internal/errutil"
)

// base64 of a 32 byte key.
const testSecret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks the variables the commands read so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CREDAUTH_DATABASE__URL",
		"CREDAUTH_JWT__SECRET",
		"CREDAUTH_REDIS__ADDR",
		"CREDAUTH_SEED__ADMIN_HANDLE",
		"CREDAUTH_SEED__ADMIN_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"migrate", "seed-admin", "purge", "unlock", "config"} {
		assert.Contains(t, out, sub, "help missing %q command", sub)
	}
	assert.Contains(t, out, "--env-file")
	assert.Contains(t, out, "--database.url")
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	_, err := execute(t, "--config=/etc/credauth.yaml", "--env-file", "a.env", "--env-file", "b.env", "--help")
	require.NoError(t, err)
	assert.Equal(t, "/etc/credauth.yaml", configFile)
	assert.Equal(t, []string{"a.env", "b.env"}, envFiles)
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestConfigCmd_PrintsRedactedSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("CREDAUTH_JWT__SECRET", testSecret)
	path := writeFile(t, "credauth.yaml", `
database:
  url: postgres://app:hunter2@db:5432/auth
lockout:
  threshold: 4
`)

	out, err := execute(t, "config", "--config", path, "--log.level", "debug")
	require.NoError(t, err)

	assert.Contains(t, out, "threshold: 4")
	assert.Contains(t, out, "level: debug")
	assert.Contains(t, out, "postgres://app:[redacted]@db:5432/auth")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, testSecret)
}

func TestConfigCmd_ReadsEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set.
	require.NoError(t, os.Unsetenv("CREDAUTH_REDIS__ADDR"))
	envFile := writeFile(t, "test.env", "CREDAUTH_REDIS__ADDR=cache:6379\n")
	t.Cleanup(func() { _ = os.Unsetenv("CREDAUTH_REDIS__ADDR") })

	out, err := execute(t, "config", "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "addr: cache:6379")
}

func TestConfigCmd_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "config", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_ENV_FILE")
}

func TestPurge_RequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "purge")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, err.Error(), "database.url")
}

func TestPurge_RequiresSigningKey(t *testing.T) {
	clearEnv(t)
	// The signing key is checked before any connection is attempted.
	_, err := execute(t, "purge", "--database.url", "postgres://app@127.0.0.1:1/auth")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestUnlock_RequiresRedis(t *testing.T) {
	clearEnv(t)
	t.Setenv("CREDAUTH_JWT__SECRET", testSecret)
	_, err := execute(t, "unlock", "ana@example.com", "--database.url", "postgres://app@127.0.0.1:1/auth")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestUnlock_RequiresHandle(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "unlock")
	require.Error(t, err)
}

func TestSeedAdmin_RequiresHandleAndPassword(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "seed-admin", "--handle", "root@example.com")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_INVALID")
}

func TestSeedAdmin_RejectsArguments(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "seed-admin", "extra")
	require.Error(t, err)
}
