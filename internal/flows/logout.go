package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Sessions Sessions
}

// RunLogout revokes the presented rotation token. Unknown and already revoked
// tokens are not an error.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) error {
	return deps.Sessions.Revoke(ctx, raw)
}

// RunLogoutAll revokes every live rotation token of principal.
func RunLogoutAll(ctx context.Context, principal string, deps LogoutDeps) (int64, error) {
	return deps.Sessions.RevokeAll(ctx, principal)
}
