package goIAM

import (
	"errors"

	"github.com/MrEthical07/goIAM/hierarchy"
	"github.com/MrEthical07/goIAM/jwt"
)

var (
	// ErrEngineNotReady is an exported constant or variable used by the identity engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials is the uniform failure for unknown email, wrong
	// password, and every other outcome that must not reveal whether an
	// account exists.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrAccountLocked is an exported constant or variable used by the identity engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified is an exported constant or variable used by the identity engine.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrInactiveAccount is an exported constant or variable used by the identity engine.
	ErrInactiveAccount = errors.New("account inactive")
	// ErrPasswordPolicy wraps the list of violated complexity checks.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReused is an exported constant or variable used by the identity engine.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrPrincipalNotFound is returned by CredentialStore implementations.
	// Login folds it into ErrInvalidCredentials; administrative surfaces may
	// propagate it verbatim.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrServiceUnavailable marks infrastructure failures (store
	// unreachable). Security decisions fail closed on it.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTokenBlacklisted is returned for a token revoked before its expiry.
	ErrTokenBlacklisted = errors.New("token revoked")
	// ErrRefreshReuse is returned to the losers of a refresh rotation race:
	// the same refresh token was presented concurrently and another call
	// already consumed it.
	ErrRefreshReuse = errors.New("refresh token already used")
)

// Token-validation error kinds, shared with the jwt subpackage so errors.Is
// matches across both.
var (
	// ErrTokenMalformed is an exported constant or variable used by the identity engine.
	ErrTokenMalformed = jwt.ErrMalformed
	// ErrTokenExpired is an exported constant or variable used by the identity engine.
	ErrTokenExpired = jwt.ErrExpired
	// ErrTokenNotYetValid is an exported constant or variable used by the identity engine.
	ErrTokenNotYetValid = jwt.ErrNotYetValid
	// ErrTokenWrongType is an exported constant or variable used by the identity engine.
	ErrTokenWrongType = jwt.ErrWrongType
	// ErrTokenMissingClaims is an exported constant or variable used by the identity engine.
	ErrTokenMissingClaims = jwt.ErrMissingClaims
)

// Group-hierarchy error kinds, shared with the hierarchy subpackage. These
// carry no account-enumeration risk and are always surfaced verbatim.
var (
	// ErrGroupNotFound is an exported constant or variable used by the identity engine.
	ErrGroupNotFound = hierarchy.ErrGroupNotFound
	// ErrCyclicGroupAssignment is an exported constant or variable used by the identity engine.
	ErrCyclicGroupAssignment = hierarchy.ErrCyclicAssignment
	// ErrGroupHasDependents is an exported constant or variable used by the identity engine.
	ErrGroupHasDependents = hierarchy.ErrGroupHasDependents
)
