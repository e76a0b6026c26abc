// Package jwt implements the signed-token layer of goIAM: issuing and
// verifying JWTs of four distinct kinds (access, refresh, reset,
// verification), each signed with its own HS256 secret so a token minted
// for one purpose can never be replayed as another.
//
// # Architecture boundaries
//
// This package is pure claim construction and verification. It performs no
// I/O: whitelist bookkeeping and blacklist checks live in the token store
// and are orchestrated by the engine.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goIAM or any of its stateful subpackages.
//   - Accept a token whose "type" claim disagrees with the expected kind.
package jwt
