package flows

import (
	"context"
	"errors"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureInvalid covers unknown, revoked and expired tokens.
	RefreshFailureInvalid
	// RefreshFailureReuse is the loser of a concurrent rotation.
	RefreshFailureReuse
	RefreshFailurePrincipal
	RefreshFailureStore
	RefreshFailureSign
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	Principal string
	ParentID  string
	Tokens    Tokens
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Sessions    Sessions
	Credentials credential.Finder
	Signer      TokenSigner
	Warn        func(ctx context.Context, msg string, args ...any)
}

// RunRefresh validates the presented rotation token, rotates it and signs a
// new session token with the principal's current roles.
func RunRefresh(ctx context.Context, raw string, deps RefreshDeps) RefreshResult {
	current, err := deps.Sessions.ValidateOrFail(ctx, raw)
	if err != nil {
		return RefreshResult{Failure: classifyRotationError(err), Err: err}
	}
	res := RefreshResult{Principal: current.Principal, ParentID: current.ID}

	next, err := deps.Sessions.Rotate(ctx, raw)
	if err != nil {
		res.Failure, res.Err = classifyRotationError(err), err
		return res
	}

	cred, err := deps.Credentials.FindByHandle(ctx, current.Principal)
	switch {
	case errors.Is(err, credential.ErrNotFound) || (err == nil && !cred.Enabled):
		if _, revokeErr := deps.Sessions.RevokeAll(ctx, current.Principal); revokeErr != nil {
			warn(ctx, deps.Warn, "revoke tokens of inactive principal failed", "error", revokeErr)
		}
		res.Failure, res.Err = RefreshFailurePrincipal, ErrPrincipalInactive
		return res
	case err != nil:
		_ = deps.Sessions.Revoke(ctx, next.Value)
		res.Failure, res.Err = RefreshFailureStore, err
		return res
	}

	tokens, err := signPair(cred, next, deps.Signer)
	if err != nil {
		_ = deps.Sessions.Revoke(ctx, next.Value)
		res.Failure, res.Err = RefreshFailureSign, err
		return res
	}
	res.Tokens = tokens
	return res
}

func classifyRotationError(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, session.ErrAlreadyRotated):
		return RefreshFailureReuse
	case errors.Is(err, session.ErrUnknown),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrExpired):
		return RefreshFailureInvalid
	default:
		return RefreshFailureStore
	}
}
