package flows

import (
	"context"

	"github.com/alebarre/credauth/credential"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.Credentials != nil && s.deps.Refresh.Sessions != nil
}

func (s Service) Login(ctx context.Context, handle, password string) LoginResult {
	return RunLogin(ctx, handle, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, raw string) RefreshResult {
	return RunRefresh(ctx, raw, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, raw string) error {
	return RunLogout(ctx, raw, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, principal string) (int64, error) {
	return RunLogoutAll(ctx, principal, s.deps.Logout)
}

func (s Service) ChangePassword(ctx context.Context, handle, current, next string) (PasswordResult, error) {
	return RunChangePassword(ctx, handle, current, next, s.deps.Password)
}

func (s Service) ForgotPassword(ctx context.Context, address string) (bool, error) {
	return RunForgotPassword(ctx, address, s.deps.Password)
}

func (s Service) ResetPassword(ctx context.Context, address, code, next string) (PasswordResult, error) {
	return RunResetPassword(ctx, address, code, next, s.deps.Password)
}

func (s Service) ResendResetCode(ctx context.Context, address string) error {
	return RunResendResetCode(ctx, address, s.deps.Password)
}

func (s Service) Register(ctx context.Context, req SignupRequest) (*credential.Credential, error) {
	return RunRegister(ctx, req, s.deps.Signup)
}

func (s Service) VerifySignup(ctx context.Context, address, code string) (*credential.Credential, error) {
	return RunVerifySignup(ctx, address, code, s.deps.Signup)
}

func (s Service) ResendSignupCode(ctx context.Context, address string) error {
	return RunResendSignupCode(ctx, address, s.deps.Signup)
}

func (s Service) UpdateRoles(ctx context.Context, handle string, roles []string) (*credential.Credential, error) {
	return RunUpdateRoles(ctx, handle, roles, s.deps.Account)
}

func (s Service) DeleteCredential(ctx context.Context, handle string) (int64, error) {
	return RunDeleteCredential(ctx, handle, s.deps.Account)
}

func (s Service) SetEnabled(ctx context.Context, handle string, enabled bool) (int64, error) {
	return RunSetEnabled(ctx, handle, enabled, s.deps.Account)
}

func (s Service) SeedAdmin(ctx context.Context, handle, password string) (bool, error) {
	return RunSeedAdmin(ctx, handle, password, s.deps.Account)
}
