package flows

import (
	"context"
	"time"

	"github.com/alebarre/credauth/jwt"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/session"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Password PasswordDeps
	Signup   SignupDeps
	Account  AccountDeps
}

// TokenSigner mints session tokens.
type TokenSigner interface {
	Sign(handle string, roles []string) (token string, expiresIn int64, err error)
	Verify(token string) (*jwt.Claims, error)
}

// Sessions manages rotation tokens.
type Sessions interface {
	Issue(ctx context.Context, principal string) (*session.Issued, error)
	Rotate(ctx context.Context, raw string) (*session.Issued, error)
	ValidateOrFail(ctx context.Context, raw string) (*session.Token, error)
	Revoke(ctx context.Context, raw string) error
	RevokeAll(ctx context.Context, principal string) (int64, error)
}

// Codes manages one-time codes.
type Codes interface {
	Issue(ctx context.Context, address string, purpose otp.Purpose) (string, error)
	Resend(ctx context.Context, address string, purpose otp.Purpose) (string, error)
	Consume(ctx context.Context, address string, purpose otp.Purpose, presented string) error
	ConsumeIf(ctx context.Context, address string, purpose otp.Purpose, presented string, check func(context.Context) error) error
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	VerifyDummy(password string)
	NeedsUpgrade(encoded string) bool
}

// Policy validates candidate passwords.
type Policy interface {
	ValidateRules(raw string) []string
	ValidateHistory(ctx context.Context, principal, raw string) ([]string, error)
	Record(ctx context.Context, principal, previousHash string) error
	HistorySize() int
}

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}
