// Package password implements credential hashing and the password policy
// engine for goIAM.
//
// Hashing is argon2id with PHC string encoding. An optional server-side
// pepper is mixed in as a deterministic HMAC-SHA256 pre-hash before the
// salted argon2 step: repeated calls on the same password produce the same
// pre-hash, but the per-hash random salt keeps stored hashes non-comparable
// by string equality. Reuse checks therefore must go through Verify, never
// through hash comparison.
//
// The policy engine runs every enabled complexity check and reports all
// violations together so callers can surface the complete list at once.
//
// # What this package must NOT do
//
//   - Perform I/O (history rows are fetched by the engine).
//   - Log or otherwise retain plaintext passwords.
package password
