package password

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Violation messages returned by Policy. They are safe to show end users.
const (
	MsgTooShort      = "password must be at least %d characters long"
	MsgNeedUpper     = "password must contain an upper-case letter"
	MsgNeedLower     = "password must contain a lower-case letter"
	MsgNeedDigit     = "password must contain a digit"
	MsgNeedSpecial   = "password must contain a special character"
	MsgTooCommon     = "password is too common"
	MsgRecentlyUsed  = "password was used recently; choose a different one"
	DefaultMinLength = 8
	DefaultHistory   = 5
)

var commonPasswords = map[string]struct{}{
	"123456":    {},
	"12345678":  {},
	"123456789": {},
	"12345":     {},
	"qwerty":    {},
	"111111":    {},
	"123123":    {},
	"000000":    {},
	"password":  {},
	"senha":     {},
	"admin":     {},
}

// Rules toggles the composition checks.
type Rules struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	RejectCommon   bool
}

// DefaultRules enables every check with an 8 character minimum.
func DefaultRules() Rules {
	return Rules{
		MinLength:      DefaultMinLength,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		RejectCommon:   true,
	}
}

// HistoryEntry is one superseded password hash.
type HistoryEntry struct {
	ID        string
	Principal string
	Hash      string
	CreatedAt time.Time
}

// HistoryStore persists password history.
type HistoryStore interface {
	// Recent returns at most n entries for principal, newest first.
	Recent(ctx context.Context, principal string, n int) ([]HistoryEntry, error)
	Append(ctx context.Context, entry HistoryEntry) error
	// Prune deletes all but the newest keep entries for principal.
	Prune(ctx context.Context, principal string, keep int) (int64, error)
}

// Policy validates candidate passwords and maintains reuse history.
type Policy struct {
	rules       Rules
	historySize int
	history     HistoryStore
	hasher      *Hasher
	now         func() time.Time
}

// NewPolicy builds a Policy. history may be nil only when historySize is 0.
func NewPolicy(rules Rules, historySize int, history HistoryStore, hasher *Hasher) (*Policy, error) {
	if rules.MinLength < 0 {
		return nil, errors.New("password min length must be >= 0")
	}
	if historySize < 0 {
		return nil, errors.New("password history size must be >= 0")
	}
	if historySize > 0 && (history == nil || hasher == nil) {
		return nil, errors.New("password history requires a history store and hasher")
	}
	return &Policy{
		rules:       rules,
		historySize: historySize,
		history:     history,
		hasher:      hasher,
		now:         time.Now,
	}, nil
}

// HistorySize returns the number of superseded hashes retained per principal.
func (p *Policy) HistorySize() int {
	return p.historySize
}

// ValidateRules returns every violated composition rule, in a stable order.
// An empty result means raw is acceptable.
func (p *Policy) ValidateRules(raw string) []string {
	var (
		violations                               []string
		hasUpper, hasLower, hasDigit, hasSpecial bool
	)
	for _, r := range raw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSpecial = true
		}
	}

	if p.rules.MinLength > 0 && utf8.RuneCountInString(raw) < p.rules.MinLength {
		violations = append(violations, fmt.Sprintf(MsgTooShort, p.rules.MinLength))
	}
	if p.rules.RequireUpper && !hasUpper {
		violations = append(violations, MsgNeedUpper)
	}
	if p.rules.RequireLower && !hasLower {
		violations = append(violations, MsgNeedLower)
	}
	if p.rules.RequireDigit && !hasDigit {
		violations = append(violations, MsgNeedDigit)
	}
	if p.rules.RequireSpecial && !hasSpecial {
		violations = append(violations, MsgNeedSpecial)
	}
	if p.rules.RejectCommon {
		if _, common := commonPasswords[strings.ToLower(raw)]; common {
			violations = append(violations, MsgTooCommon)
		}
	}
	return violations
}

// ValidateHistory compares raw with the principal's recent hashes and returns
// a single reuse violation on the first match.
func (p *Policy) ValidateHistory(ctx context.Context, principal, raw string) ([]string, error) {
	if p.historySize == 0 || principal == "" {
		return nil, nil
	}
	entries, err := p.history.Recent(ctx, principal, p.historySize)
	if err != nil {
		return nil, fmt.Errorf("load password history: %w", err)
	}
	for _, entry := range entries {
		ok, err := p.hasher.Verify(raw, entry.Hash)
		if err != nil {
			// An unreadable entry cannot match; keep checking the rest.
			continue
		}
		if ok {
			return []string{MsgRecentlyUsed}, nil
		}
	}
	return nil, nil
}

// Validate runs ValidateRules and then ValidateHistory. History is checked
// only when the rules pass.
func (p *Policy) Validate(ctx context.Context, principal, raw string) ([]string, error) {
	if violations := p.ValidateRules(raw); len(violations) > 0 {
		return violations, nil
	}
	return p.ValidateHistory(ctx, principal, raw)
}

// Record appends previousHash, the hash being replaced, to the principal's
// history and prunes it to the configured size. Call it before overwriting
// the credential hash.
func (p *Policy) Record(ctx context.Context, principal, previousHash string) error {
	if p.historySize == 0 || previousHash == "" {
		return nil
	}
	entry := HistoryEntry{
		ID:        ulid.Make().String(),
		Principal: principal,
		Hash:      previousHash,
		CreatedAt: p.now().UTC(),
	}
	if err := p.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("append password history: %w", err)
	}
	if _, err := p.history.Prune(ctx, principal, p.historySize); err != nil {
		return fmt.Errorf("prune password history: %w", err)
	}
	return nil
}
