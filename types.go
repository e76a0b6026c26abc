package goIAM

import (
	"context"
	"time"

	"github.com/MrEthical07/goIAM/hierarchy"
	"github.com/MrEthical07/goIAM/jwt"
)

// TokenKind identifies the purpose of a token. See [jwt.Kind].
type TokenKind = jwt.Kind

// Token kinds re-exported for callers that only import goIAM.
const (
	// TokenAccess is an exported constant or variable used by the identity engine.
	TokenAccess = jwt.KindAccess
	// TokenRefresh is an exported constant or variable used by the identity engine.
	TokenRefresh = jwt.KindRefresh
	// TokenReset is an exported constant or variable used by the identity engine.
	TokenReset = jwt.KindReset
	// TokenVerification is an exported constant or variable used by the identity engine.
	TokenVerification = jwt.KindVerification
)

// GroupKind distinguishes role groups from permission groups. See
// [hierarchy.Kind].
type GroupKind = hierarchy.Kind

const (
	// RoleGroups is an exported constant or variable used by the identity engine.
	RoleGroups = hierarchy.KindRole
	// PermissionGroups is an exported constant or variable used by the identity engine.
	PermissionGroups = hierarchy.KindPermission
)

// Group is one node of a group tree. See [hierarchy.Group].
type Group = hierarchy.Group

// Principal is the account record consumed by the engine. Lockout fields are
// mutated only through [CredentialStore] lockout operations; is_locked set
// implies LockedUntil is set.
type Principal struct {
	ID              string
	Email           string
	PasswordHash    string
	FailedAttempts  int
	IsLocked        bool
	LockedUntil     *time.Time
	PasswordVersion int
	Verified        bool
	IsActive        bool
}

// PasswordHistoryEntry is one retired password hash. Entries are append-only
// and consulted newest-first within the configured window.
type PasswordHistoryEntry struct {
	PrincipalID  string
	PasswordHash string
	CreatedAt    time.Time
}

// LockoutState is the outcome of one atomic failed-attempt record.
type LockoutState struct {
	FailedAttempts int
	Locked         bool
	// JustLocked is true for exactly the call whose increment crossed the
	// threshold, no matter how many failures race.
	JustLocked  bool
	LockedUntil *time.Time
}

// CredentialStore is the narrow persistence interface the engine drives for
// principals, lockout state, and password history. Implementations must make
// RecordFailedAttempt and ClearExpiredLock atomic with respect to concurrent
// calls for the same principal (a single guarded statement, or a transaction
// with row locking), and must return [ErrPrincipalNotFound] for unknown ids.
//
// Each method states exactly what it fetches or mutates; none loads
// relations implicitly.
type CredentialStore interface {
	// FindPrincipalByEmail fetches the principal row only.
	FindPrincipalByEmail(ctx context.Context, email string) (Principal, error)
	// FindPrincipalByID fetches the principal row only.
	FindPrincipalByID(ctx context.Context, id string) (Principal, error)
	// RecordFailedAttempt atomically increments failed_attempts and, when
	// the new count reaches threshold, transitions to Locked with
	// locked_until = now + lockFor in the same unit.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (LockoutState, error)
	// ClearExpiredLock clears lock state and resets the counter only if the
	// row is locked with locked_until in the past. Reports whether it
	// cleared anything.
	ClearExpiredLock(ctx context.Context, id string) (bool, error)
	// ResetLockout unconditionally clears the counter and lock fields.
	ResetLockout(ctx context.Context, id string) error
	// SetVerified marks the account's email as verified.
	SetVerified(ctx context.Context, id string) error
	// UpdatePassword writes the new hash, appends the old hash to history,
	// bumps password_version, and resets lockout fields in one transaction.
	// History beyond keepHistory entries may be pruned.
	UpdatePassword(ctx context.Context, id, oldHash, newHash string, keepHistory int) error
	// PasswordHistory fetches up to limit entries, newest first.
	PasswordHistory(ctx context.Context, id string, limit int) ([]PasswordHistoryEntry, error)
}
