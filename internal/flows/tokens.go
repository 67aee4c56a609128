package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/session"
)

// Tokens is the pair handed to a client after login or refresh.
type Tokens struct {
	Principal         string
	Roles             []string
	SessionToken      string
	ExpiresIn         int64
	RotationToken     string
	RotationExpiresAt time.Time
}

func signPair(cred *credential.Credential, rotation *session.Issued, signer TokenSigner) (Tokens, error) {
	roles := cred.RoleLabels()
	token, expiresIn, err := signer.Sign(cred.Handle, roles)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign session token: %w", err)
	}
	return Tokens{
		Principal:         cred.Handle,
		Roles:             roles,
		SessionToken:      token,
		ExpiresIn:         expiresIn,
		RotationToken:     rotation.Value,
		RotationExpiresAt: rotation.Token.ExpiresAt,
	}, nil
}

func issueTokens(ctx context.Context, cred *credential.Credential, signer TokenSigner, sessions Sessions) (Tokens, error) {
	rotation, err := sessions.Issue(ctx, cred.Handle)
	if err != nil {
		return Tokens{}, err
	}
	tokens, err := signPair(cred, rotation, signer)
	if err != nil {
		_ = sessions.Revoke(ctx, rotation.Value)
		return Tokens{}, err
	}
	return tokens, nil
}
