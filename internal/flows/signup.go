package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/otp"
	"github.com/google/uuid"
)

// SignupDeps captures self-registration dependencies.
type SignupDeps struct {
	Credentials credential.Store
	Hasher      Hasher
	Policy      Policy
	Codes       Codes
	Now         func() time.Time
}

// SignupRequest is an already validated registration.
type SignupRequest struct {
	Handle      string
	Password    string
	DisplayName string
	Email       string
	Phone       string
}

// RunRegister creates a disabled ROLE_USER credential and issues its signup
// code. The credential is returned even when issuing the code fails, so the
// caller can direct the user to resend.
func RunRegister(ctx context.Context, req SignupRequest, deps SignupDeps) (*credential.Credential, error) {
	if err := policyError(deps.Policy.ValidateRules(req.Password)); err != nil {
		return nil, err
	}
	if _, err := deps.Credentials.FindByHandle(ctx, req.Handle); err == nil {
		return nil, credential.ErrExists
	} else if !errors.Is(err, credential.ErrNotFound) {
		return nil, err
	}

	hash, err := deps.Hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := nowOr(deps.Now)
	cred := &credential.Credential{
		ID:           uuid.NewString(),
		Handle:       req.Handle,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		Phone:        req.Phone,
		Roles:        []credential.Role{credential.RoleUser},
		Enabled:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := deps.Credentials.Create(ctx, cred); err != nil {
		return nil, err
	}
	if _, err := deps.Codes.Issue(ctx, cred.Handle, otp.PurposeSignup); err != nil {
		return cred, err
	}
	return cred, nil
}

// RunVerifySignup consumes the signup code and enables the credential.
func RunVerifySignup(ctx context.Context, address, code string, deps SignupDeps) (*credential.Credential, error) {
	if err := deps.Codes.Consume(ctx, address, otp.PurposeSignup, code); err != nil {
		return nil, err
	}
	cred, err := deps.Credentials.FindByHandle(ctx, address)
	if err != nil {
		return nil, err
	}
	if cred.Enabled {
		return cred, nil
	}
	now := nowOr(deps.Now)
	if _, err := deps.Credentials.SetEnabled(ctx, cred.Handle, true, now); err != nil {
		return nil, err
	}
	cred.Enabled = true
	cred.UpdatedAt = now
	return cred, nil
}

// RunResendSignupCode reissues the signup code of a not yet verified
// credential.
func RunResendSignupCode(ctx context.Context, address string, deps SignupDeps) error {
	cred, err := deps.Credentials.FindByHandle(ctx, address)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return otp.ErrUnknownAddress
		}
		return err
	}
	if cred.Enabled {
		return ErrAlreadyVerified
	}
	_, err = deps.Codes.Resend(ctx, address, otp.PurposeSignup)
	return err
}
