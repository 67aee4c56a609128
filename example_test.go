package credauth_test

import (
	"context"
	"fmt"
	"time"

	"github.com/alebarre/credauth"
	"github.com/alebarre/credauth/notify"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/store/memory"
)

func exampleEngine(n otp.Notifier) *credauth.Engine {
	cfg := credauth.DefaultConfig()
	cfg.JWT.Secret = []byte("example-signing-key-0123456789abcdef")
	cfg.Password.Argon2 = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	engine, err := credauth.New().
		WithConfig(cfg).
		WithMemoryStores(memory.New()).
		WithNotifier(n).
		Build()
	if err != nil {
		panic(err)
	}
	return engine
}

// ExampleEngine_Login seeds an administrator and signs in.
func ExampleEngine_Login() {
	engine := exampleEngine(nil)
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.SeedAdmin(ctx, "Root@Example.com", "Correct-Horse-9"); err != nil {
		panic(err)
	}

	res, err := engine.Login(ctx, "root@example.com", "Correct-Horse-9")
	if err != nil {
		panic(err)
	}
	claims, err := engine.ValidateSessionToken(ctx, res.SessionToken)
	if err != nil {
		panic(err)
	}
	fmt.Println(claims.Subject, claims.RoleList())

	_, err = engine.Login(ctx, "root@example.com", "wrong")
	fmt.Println(credauth.KindOf(err), credauth.PublicMessage(err))
	// Output:
	// root@example.com [ROLE_ADMIN ROLE_USER]
	// invalid invalid credentials
}

// ExampleEngine_Register walks through self-registration.
func ExampleEngine_Register() {
	var code string
	engine := exampleEngine(notify.Func(func(_ context.Context, _ string, _ otp.Purpose, c string, _ time.Duration) error {
		code = c
		return nil
	}))
	defer engine.Close()
	ctx := context.Background()

	cred, err := engine.Register(ctx, credauth.RegisterRequest{
		Email:           "bea@example.com",
		DisplayName:     "Bea",
		Password:        "Battery-Staple-7",
		ConfirmPassword: "Battery-Staple-7",
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(cred.Handle, cred.Enabled)

	if err := engine.VerifySignup(ctx, "bea@example.com", code); err != nil {
		panic(err)
	}
	res, err := engine.Login(ctx, "bea@example.com", "Battery-Staple-7")
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Roles)
	// Output:
	// bea@example.com false
	// [ROLE_USER]
}

// ExampleViolations shows how password policy failures are reported.
func ExampleViolations() {
	engine := exampleEngine(nil)
	defer engine.Close()

	_, err := engine.Register(context.Background(), credauth.RegisterRequest{
		Email:           "cy@example.com",
		DisplayName:     "Cy",
		Password:        "password",
		ConfirmPassword: "password",
	})
	fmt.Println(credauth.KindOf(err))
	fmt.Println(len(credauth.Violations(err)) > 0)
	// Output:
	// policy_violation
	// true
}
