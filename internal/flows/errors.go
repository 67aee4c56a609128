package flows

import (
	"errors"
	"strings"

	"github.com/alebarre/credauth/credential"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDisabled           = errors.New("account disabled")
	ErrLastAdmin          = credential.ErrLastAdmin
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrNoRoles            = errors.New("at least one role is required")
	// ErrPrincipalInactive is returned by refresh when the principal was
	// deleted or disabled after the rotation token was issued.
	ErrPrincipalInactive = errors.New("principal no longer active")
)

// PolicyError carries every violated password rule.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "password policy violated: " + strings.Join(e.Violations, "; ")
}

func policyError(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &PolicyError{Violations: violations}
}
