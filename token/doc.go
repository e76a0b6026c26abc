// Package token implements the Redis-backed token store: the per-user,
// per-kind whitelist of outstanding token IDs and the self-expiring
// blacklist of revoked IDs.
//
// # Key layout
//
//	{prefix}:wl:{kind}:{userID}  sorted set, member = jti, score = expiry (unix seconds)
//	{prefix}:bl:{jti}            string "1" with TTL = remaining token lifetime
//
// Whitelist entries expire with their token: the set is pruned by score on
// every read and the key TTL tracks the latest expiry, so abandoned sets
// disappear on their own. Blacklist entries expire exactly when the token
// they revoke would have, keeping the blacklist bounded.
//
// Operations on different users or kinds touch disjoint keys and never
// contend. The only multi-key operation, InvalidateAll, runs as a single
// Lua script so enumeration, blacklisting, and clearing are atomic.
package token
