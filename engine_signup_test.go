package credauth

import (
	"context"
	"testing"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/otp"
)

func registerRequest(email string) RegisterRequest {
	return RegisterRequest{
		Email:           email,
		DisplayName:     "Ana Lima",
		Phone:           "+5511999990000",
		Password:        goodPassword,
		ConfirmPassword: goodPassword,
	}
}

func TestRegisterVerifyLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cred, err := env.engine.Register(ctx, registerRequest(" Ana@Example.com"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if cred.Handle != "ana@example.com" || cred.Enabled {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if len(cred.Roles) != 1 || cred.Roles[0] != credential.RoleUser {
		t.Fatalf("unexpected roles %v", cred.Roles)
	}

	_, err = env.engine.Login(ctx, "ana@example.com", goodPassword)
	assertKind(t, err, KindInvalid, ErrAccountDisabled)

	code := env.notifier.last(t, "ana@example.com", otp.PurposeSignup)
	if err := env.engine.VerifySignup(ctx, "ana@example.com", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	env.login(t, "ana@example.com", goodPassword)

	err = env.engine.ResendSignupCode(ctx, "ana@example.com")
	assertKind(t, err, KindConflict, ErrAlreadyVerified)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Register(ctx, RegisterRequest{Email: "not-an-email", Password: goodPassword, ConfirmPassword: goodPassword})
	assertKind(t, err, KindInvalid, ErrRegistrationInvalid)
	got := Violations(err)
	want := map[string]bool{
		"email must be a valid e-mail address": false,
		"displayname is required":              false,
	}
	for _, v := range got {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for msg, seen := range want {
		if !seen {
			t.Fatalf("missing violation %q in %v", msg, got)
		}
	}

	req := registerRequest("ana@example.com")
	req.ConfirmPassword = "Something-Else-1"
	_, err = env.engine.Register(ctx, req)
	assertKind(t, err, KindInvalid, ErrRegistrationInvalid)
	if v := Violations(err); len(v) != 1 || v[0] != "passwords do not match" {
		t.Fatalf("unexpected violations %v", v)
	}

	req = registerRequest("ana@example.com")
	req.Phone = "12345"
	_, err = env.engine.Register(ctx, req)
	assertKind(t, err, KindInvalid, ErrRegistrationInvalid)

	if env.notifier.count() != 0 {
		t.Fatal("invalid registrations must not send codes")
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	req := registerRequest("ana@example.com")
	req.Password, req.ConfirmPassword = "password", "password"

	_, err := env.engine.Register(context.Background(), req)
	assertKind(t, err, KindPolicyViolation, ErrPasswordPolicy)
	if len(Violations(err)) == 0 {
		t.Fatal("expected rule violations")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.engine.Register(ctx, registerRequest("ana@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := env.engine.Register(ctx, registerRequest("ANA@example.com"))
	assertKind(t, err, KindConflict, ErrAccountExists)
}

func TestVerifySignupWrongCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.engine.Register(ctx, registerRequest("ana@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := env.notifier.last(t, "ana@example.com", otp.PurposeSignup)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	err := env.engine.VerifySignup(ctx, "ana@example.com", wrong)
	assertKind(t, err, KindInvalid, ErrCodeInvalid)

	// A signup code cannot reset a password.
	err = env.engine.ResetPassword(ctx, "ana@example.com", code, nextPassword)
	assertKind(t, err, KindInvalid, ErrCodeNotRequested)

	if err := env.engine.VerifySignup(ctx, "ana@example.com", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestResendSignupCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.engine.Register(ctx, registerRequest("ana@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := env.engine.ResendSignupCode(ctx, "ana@example.com")
	assertKind(t, err, KindRateLimited, ErrCodeCooldown)

	env.clock.Advance(env.engine.Config().Codes.ResendCooldown)
	if err := env.engine.ResendSignupCode(ctx, "ana@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if env.notifier.count() != 2 {
		t.Fatalf("expected 2 codes sent, got %d", env.notifier.count())
	}

	err = env.engine.ResendSignupCode(ctx, "ghost@example.com")
	assertKind(t, err, KindNotFound, ErrUnknownPrincipal)
}

func TestSignupDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Signup.Enabled = false })
	_, err := env.engine.Register(context.Background(), registerRequest("ana@example.com"))
	assertKind(t, err, KindInvalid, ErrSignupDisabled)
}
