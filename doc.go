// Package goIAM provides the authentication and group-consistency core of an
// RBAC administration backend: multi-kind JWT issuance and validation backed
// by a Redis whitelist/blacklist, persistent account lockout, password policy
// with reuse-history enforcement, and cycle-checked role/permission group
// hierarchies.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goIAM is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (Principal, LoginResult, AuditEvent, MetricsSnapshot). Domain
// mechanics live in subpackages: jwt (claim construction and verification),
// token (Redis whitelist/blacklist), password (argon2id hashing and policy),
// hierarchy (group trees). Persistence is consumed only through the
// [CredentialStore] and [hierarchy.GroupStore] interfaces supplied at build
// time; storage/postgres ships the SQL implementation.
//
// # What this package must NOT do
//
//   - Read ambient or global configuration; Config is validated once at
//     Build and components receive their slice of it by value.
//   - Resolve collaborators at request time; all wiring is constructor
//     injection through the Builder.
//   - Reveal whether an account exists through login error kinds, messages,
//     or timing.
//   - Hold an in-process lock across a store round-trip.
package goIAM
