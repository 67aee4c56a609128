// Package otp issues and consumes short-lived numeric codes used to verify a
// contact address at signup and to authorize a password reset.
//
// A code is stored only as a digest bound to its address and purpose. At most
// one unused code per (address, purpose) is authoritative: issuing a new one
// marks the previous one used. Consumption runs under the store's per-record
// lock, so two concurrent guesses against the same code are charged as two
// attempts and at most one of them can succeed.
package otp
