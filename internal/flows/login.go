package flows

import (
	"context"
	"errors"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/internal/limiters"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLocked
	LoginFailureThrottle
	LoginFailureCredentials
	LoginFailureDisabled
	LoginFailureLookup
	LoginFailureIssue
)

// LoginResult carries either the issued tokens or failure metadata.
type LoginResult struct {
	Failure   LoginFailureKind
	Err       error
	Principal string
	// Throttle is the throttle state after the attempt was counted.
	Throttle limiters.LoginStatus
	Rehashed bool
	Tokens   Tokens
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Throttle           limiters.LoginThrottle
	Credentials        credential.Store
	Hasher             Hasher
	Signer             TokenSigner
	Sessions           Sessions
	UpgradeHashOnLogin bool
	Now                func() time.Time
	Warn               func(ctx context.Context, msg string, args ...any)
}

// RunLogin checks the throttle, verifies the password and issues a token pair.
// Unknown handles, wrong passwords and disabled accounts all count as failures.
func RunLogin(ctx context.Context, handle, password string, deps LoginDeps) LoginResult {
	res := LoginResult{Principal: handle}
	if handle == "" || password == "" {
		deps.Hasher.VerifyDummy(password)
		res.Failure, res.Err = LoginFailureCredentials, ErrInvalidCredentials
		return res
	}

	status, err := deps.Throttle.Check(ctx, handle)
	res.Throttle = status
	if err != nil {
		if errors.Is(err, limiters.ErrLocked) {
			res.Failure, res.Err = LoginFailureLocked, err
			return res
		}
		res.Failure, res.Err = LoginFailureThrottle, err
		return res
	}

	cred, err := deps.Credentials.FindByHandle(ctx, handle)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		deps.Hasher.VerifyDummy(password)
		return recordLoginFailure(ctx, res, LoginFailureCredentials, ErrInvalidCredentials, deps)
	case err != nil:
		res.Failure, res.Err = LoginFailureLookup, err
		return res
	}

	ok, err := deps.Hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		res.Failure, res.Err = LoginFailureLookup, err
		return res
	}
	if !ok {
		return recordLoginFailure(ctx, res, LoginFailureCredentials, ErrInvalidCredentials, deps)
	}
	if !cred.Enabled {
		return recordLoginFailure(ctx, res, LoginFailureDisabled, ErrDisabled, deps)
	}

	if err := deps.Throttle.Reset(ctx, handle); err != nil {
		warn(ctx, deps.Warn, "login throttle reset failed", "error", err)
	}
	res.Throttle = limiters.LoginStatus{}

	if deps.UpgradeHashOnLogin && deps.Hasher.NeedsUpgrade(cred.PasswordHash) {
		res.Rehashed = upgradeHash(ctx, cred, password, deps)
	}

	tokens, err := issueTokens(ctx, cred, deps.Signer, deps.Sessions)
	if err != nil {
		res.Failure, res.Err = LoginFailureIssue, err
		return res
	}
	res.Tokens = tokens
	return res
}

func recordLoginFailure(ctx context.Context, res LoginResult, kind LoginFailureKind, cause error, deps LoginDeps) LoginResult {
	status, err := deps.Throttle.RecordFailure(ctx, res.Principal)
	res.Throttle = status
	switch {
	case errors.Is(err, limiters.ErrLocked):
		res.Failure, res.Err = LoginFailureLocked, err
	case err != nil:
		warn(ctx, deps.Warn, "login throttle record failed", "error", err)
		res.Failure, res.Err = kind, cause
	default:
		res.Failure, res.Err = kind, cause
	}
	return res
}

func upgradeHash(ctx context.Context, cred *credential.Credential, password string, deps LoginDeps) bool {
	upgraded, err := deps.Hasher.Hash(password)
	if err != nil {
		warn(ctx, deps.Warn, "password rehash failed", "error", err)
		return false
	}
	swapped, err := deps.Credentials.SwapPasswordHash(ctx, cred.Handle, cred.PasswordHash, upgraded, nowOr(deps.Now))
	if err != nil {
		warn(ctx, deps.Warn, "persist rehashed password failed", "error", err)
		return false
	}
	if swapped {
		cred.PasswordHash = upgraded
	}
	return swapped
}

func warn(ctx context.Context, fn func(context.Context, string, ...any), msg string, args ...any) {
	if fn != nil {
		fn(ctx, msg, args...)
	}
}
