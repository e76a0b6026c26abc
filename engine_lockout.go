package goIAM

import (
	"context"
	"fmt"
	"time"
)

// Lockout policy: a two-state machine (Active, Locked) persisted on the
// principal row. Transitions are single atomic store calls so concurrent
// failed logins for the same account never under-count and never lock twice.

// evaluateLock applies the lazy unlock rule to a freshly fetched principal.
// If the lock has expired the store clears it and the in-memory copy is
// reset so the caller proceeds as from Active; if the lock is still live a
// fully formed ErrAccountLocked is returned.
func (e *Engine) evaluateLock(ctx context.Context, p *Principal) error {
	if !p.IsLocked {
		return nil
	}

	// Invariant: is_locked implies locked_until. A row violating it can
	// only come from outside writers; fail closed and flag it.
	if p.LockedUntil == nil {
		e.warnf("principal %s locked without locked_until", p.ID)
		return ErrAccountLocked
	}

	if remaining := time.Until(*p.LockedUntil); remaining > 0 {
		return fmt.Errorf("%w: try again in %s", ErrAccountLocked, remaining.Round(time.Second))
	}

	cleared, err := e.credentials.ClearExpiredLock(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if cleared {
		e.metricInc(MetricLockoutCleared)
		e.emitAudit(ctx, AuditAccountUnlocked, p.ID, true, nil, map[string]string{"reason": "expired"})
	}
	// A concurrent attempt may have cleared it first; either way the
	// account is Active now.
	p.IsLocked = false
	p.LockedUntil = nil
	p.FailedAttempts = 0
	return nil
}

// recordFailure runs the Active→Locked transition for one failed
// authentication and emits the lockout audit/metric exactly once, on the
// call whose increment crossed the threshold.
func (e *Engine) recordFailure(ctx context.Context, principalID string) (LockoutState, error) {
	state, err := e.credentials.RecordFailedAttempt(ctx, principalID, e.config.Lockout.MaxAttempts, e.config.Lockout.Duration)
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if state.JustLocked {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, AuditAccountLocked, principalID, true, nil, map[string]string{
			"failed_attempts": fmt.Sprintf("%d", state.FailedAttempts),
		})
	}
	return state, nil
}

// UnlockAccount clears lockout state ahead of expiry. Administrative
// surface; it does not verify anything about the caller.
func (e *Engine) UnlockAccount(ctx context.Context, principalID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.credentials.ResetLockout(ctx, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	e.metricInc(MetricLockoutCleared)
	e.emitAudit(ctx, AuditAccountUnlocked, principalID, true, nil, map[string]string{"reason": "manual"})
	return nil
}
