package credauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/store/memory"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	goodPassword = "Correct-Horse-9"
	nextPassword = "Battery-Staple-7"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentCode struct {
	address string
	purpose otp.Purpose
	code    string
	ttl     time.Duration
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentCode
}

func (n *recordingNotifier) SendCode(_ context.Context, address string, purpose otp.Purpose, code string, ttl time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentCode{address: address, purpose: purpose, code: code, ttl: ttl})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last(t *testing.T, address string, purpose otp.Purpose) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].address == address && n.sent[i].purpose == purpose {
			return n.sent[i].code
		}
	}
	t.Fatalf("no %s code sent to %s", purpose, address)
	return ""
}

// fastArgon2 keeps tests quick; production uses password.DefaultConfig.
func fastArgon2() password.Config {
	return password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.Argon2 = fastArgon2()
	cfg.Lockout.Threshold = 3
	cfg.Lockout.WarnThreshold = 2
	return cfg
}

type testEnv struct {
	engine   *Engine
	stores   *memory.Stores
	clock    *testClock
	notifier *recordingNotifier
	hasher   *password.Hasher
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	env := &testEnv{
		stores:   memory.New(),
		clock:    newTestClock(),
		notifier: &recordingNotifier{},
	}
	engine, err := New().
		WithConfig(cfg).
		WithMemoryStores(env.stores).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine

	env.hasher = mustHasher(t)
	return env
}

func mustHasher(t testing.TB) *password.Hasher {
	t.Helper()
	hasher, err := password.NewHasher(fastArgon2())
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return hasher
}

func (env *testEnv) addCredential(t testing.TB, handle, pw string, enabled bool, roles ...credential.Role) *credential.Credential {
	t.Helper()
	hash, err := env.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(roles) == 0 {
		roles = []credential.Role{credential.RoleUser}
	}
	now := env.clock.Now()
	c := &credential.Credential{
		ID:           handle + "-id",
		Handle:       handle,
		PasswordHash: hash,
		DisplayName:  handle,
		Email:        handle,
		Roles:        roles,
		Enabled:      enabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := env.stores.Credentials.Create(context.Background(), c); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return c
}

func (env *testEnv) login(t testing.TB, handle, pw string) *AuthResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), handle, pw)
	if err != nil {
		t.Fatalf("login %s: %v", handle, err)
	}
	return res
}

func assertKind(t *testing.T, err error, kind Kind, sentinel error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected kind %v, got %v (%v)", kind, got, err)
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}
