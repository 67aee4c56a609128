// Package session manages long-lived opaque rotation tokens.
//
// A rotation token is 512 random bits, base64url encoded without padding. Only
// its SHA-256 digest is persisted; the raw value is returned to the caller once,
// at issue time. Every successful [Manager.Rotate] revokes the presented token
// and issues its descendant in one atomic [Store.Rotate] call, so a chain never
// has two live members.
//
// Stores must serialize rotation per token. The loser of a concurrent rotation
// observes [ErrAlreadyRotated].
package session
