// Package password hashes credentials and enforces the password policy.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification also accepts bcrypt hashes ($2a$, $2b$, $2y$) written by older
// deployments. [Hasher.NeedsUpgrade] reports true for those and for argon2id
// hashes produced with weaker parameters, so callers can re-hash after a
// successful login.
//
// # Policy
//
// [Policy] validates composition rules and the per-principal reuse history.
// History entries hold superseded hashes only; the current hash is never
// recorded.
//
// This package never logs plaintext passwords.
package password
