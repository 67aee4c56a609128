// Package stores provides Redis-backed stores for short-lived credauth
// records.
//
// # Design
//
// CodeStore keeps one versioned, binary-encoded record per (address,
// purpose) with a TTL slightly past the code's own expiry. Update runs the
// caller's check inside a WATCH/MULTI optimistic transaction and retries on
// contention, so the attempt counter is read, incremented and written as one
// step even when guesses arrive concurrently.
//
// # What this package must NOT do
//
//   - Generate codes or compare them; that belongs to package otp.
//   - Log or store plaintext codes.
package stores
