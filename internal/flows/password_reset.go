package flows

import (
	"context"
	"errors"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/otp"
)

// RunForgotPassword issues a reset code when address belongs to a credential.
// It reports whether a code was issued; an unknown address is not an error.
func RunForgotPassword(ctx context.Context, address string, deps PasswordDeps) (bool, error) {
	if _, err := deps.Credentials.FindByHandle(ctx, address); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := deps.Codes.Issue(ctx, address, otp.PurposeReset); err != nil {
		return false, err
	}
	return true, nil
}

// RunResetPassword checks the composition rules first and consults password
// history only after the code has matched, so history is never disclosed to a
// caller without a valid code. A policy failure leaves the code usable. On
// success every rotation token of the principal is revoked.
func RunResetPassword(ctx context.Context, address, code, next string, deps PasswordDeps) (PasswordResult, error) {
	if err := policyError(deps.Policy.ValidateRules(next)); err != nil {
		return PasswordResult{}, err
	}
	history := func(ctx context.Context) error {
		violations, err := deps.Policy.ValidateHistory(ctx, address, next)
		if err != nil {
			return err
		}
		return policyError(violations)
	}
	if err := deps.Codes.ConsumeIf(ctx, address, otp.PurposeReset, code, history); err != nil {
		return PasswordResult{}, err
	}
	cred, err := deps.Credentials.FindByHandle(ctx, address)
	if err != nil {
		return PasswordResult{}, err
	}
	if err := applyPassword(ctx, cred, next, deps); err != nil {
		return PasswordResult{}, err
	}
	n, err := deps.Sessions.RevokeAll(ctx, address)
	if err != nil {
		return PasswordResult{}, err
	}
	return PasswordResult{Revoked: n}, nil
}

// RunResendResetCode reissues a reset code subject to the resend cooldown.
func RunResendResetCode(ctx context.Context, address string, deps PasswordDeps) error {
	_, err := deps.Codes.Resend(ctx, address, otp.PurposeReset)
	return err
}
