// Package memory implements every credauth store in process memory for
// development, tests and single-instance deployments.
package memory

import (
	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/session"
)

// Ensure interfaces are met.
var (
	_ credential.Store            = (*CredentialStore)(nil)
	_ credential.PasswordReplacer = (*CredentialStore)(nil)
	_ session.Store               = (*SessionStore)(nil)
	_ otp.Store                   = (*CodeStore)(nil)
	_ password.HistoryStore       = (*HistoryStore)(nil)
)

// Stores bundles one of each store, with the credential store writing password
// history into History.
type Stores struct {
	Credentials *CredentialStore
	Sessions    *SessionStore
	Codes       *CodeStore
	History     *HistoryStore
}

// New returns an empty set of stores.
func New() *Stores {
	history := NewHistoryStore()
	return &Stores{
		Credentials: NewCredentialStore(history),
		Sessions:    NewSessionStore(),
		Codes:       NewCodeStore(),
		History:     history,
	}
}
