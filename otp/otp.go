package otp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CodeDigits is the length of every issued code.
const CodeDigits = 6

// Purpose tags what a code authorizes.
type Purpose string

const (
	PurposeSignup Purpose = "signup"
	PurposeReset  Purpose = "reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeSignup || p == PurposeReset
}

var (
	ErrNotRequested     = errors.New("no code requested")
	ErrUsed             = errors.New("code already used")
	ErrExpired          = errors.New("code expired")
	ErrMismatch         = errors.New("code mismatch")
	ErrAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCooldown         = errors.New("code resend cooldown active")
	// ErrNotFound is returned by stores when no unused record exists.
	ErrNotFound = errors.New("code record not found")
	// ErrUnknownAddress is returned by Resend when no credential owns the address.
	ErrUnknownAddress = errors.New("no credential for address")
	ErrInvalidPurpose = errors.New("invalid code purpose")
)

// CooldownError carries the time left before another code may be sent.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrCooldown.Error(), e.Remaining)
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

// Record is the persisted form of one issued code.
type Record struct {
	ID       string
	Address  string
	Purpose  Purpose
	CodeHash []byte
	// Attempts counts failed guesses; only capped purposes increment it.
	Attempts  int
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether r is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists code records.
type Store interface {
	// Replace marks every unused record for (rec.Address, rec.Purpose) used and
	// inserts rec, as one atomic step.
	Replace(ctx context.Context, rec *Record) error
	// Latest returns the newest unused record, or ErrNotFound.
	Latest(ctx context.Context, address string, purpose Purpose) (*Record, error)
	// Update locks the newest unused record, passes it to fn and persists its
	// Used and Attempts fields whether or not fn returns an error. fn's error
	// is returned unchanged. ErrNotFound when there is no unused record.
	Update(ctx context.Context, address string, purpose Purpose, fn func(*Record) error) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Notifier delivers a code to its address. Delivery is best effort.
type Notifier interface {
	SendCode(ctx context.Context, address string, purpose Purpose, code string, ttl time.Duration) error
}
