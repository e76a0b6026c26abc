package goIAM

import (
	"context"
	"errors"
	"fmt"
)

// LoginResult is returned by a successful [Engine.Login] or [Engine.Refresh].
type LoginResult struct {
	PrincipalID  string
	AccessToken  string
	RefreshToken string
}

// Login describes the login operation and its observable behavior.
//
// Login authenticates an email/password pair and, on success, issues an
// access/refresh token pair. Failure kinds: [ErrInvalidCredentials] (unknown
// email and wrong password are indistinguishable by kind, message, and
// latency), [ErrAccountLocked], [ErrEmailNotVerified], [ErrInactiveAccount],
// [ErrServiceUnavailable].
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	principal, err := e.credentials.FindPrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			// Burn a verification so this path costs the same as a wrong
			// password against a real account.
			_, _ = e.hasher.Verify(pass, e.decoyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditLoginFailure, "", false, ErrInvalidCredentials, map[string]string{"reason": "unknown_email"})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if err := e.evaluateLock(ctx, &principal); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditLoginFailure, principal.ID, false, err, map[string]string{"reason": "locked"})
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(pass, principal.PasswordHash)
	if err != nil {
		// A stored hash that cannot be parsed is corruption, not a wrong
		// password; fail closed without touching the counter.
		e.warnf("principal %s has unverifiable password hash: %v", principal.ID, err)
		return nil, fmt.Errorf("%w: stored credential unverifiable", ErrServiceUnavailable)
	}
	if !ok {
		state, ferr := e.recordFailure(ctx, principal.ID)
		if ferr != nil {
			return nil, ferr
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, principal.ID, false, ErrInvalidCredentials, map[string]string{
			"reason":             "wrong_password",
			"attempts_remaining": fmt.Sprintf("%d", max(0, e.config.Lockout.MaxAttempts-state.FailedAttempts)),
		})
		return nil, ErrInvalidCredentials
	}

	// Post-credential gates fail closed and leave lockout state untouched:
	// the password was right, but the account is not usable yet.
	if !principal.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, principal.ID, false, ErrEmailNotVerified, nil)
		return nil, ErrEmailNotVerified
	}
	if !principal.IsActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, principal.ID, false, ErrInactiveAccount, nil)
		return nil, ErrInactiveAccount
	}

	// Reset unconditionally: the fetched snapshot may be stale, a failure
	// racing in after the fetch would otherwise leave its count behind.
	if err := e.credentials.ResetLockout(ctx, principal.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	access, err := e.issueToken(ctx, principal.ID, TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := e.issueToken(ctx, principal.ID, TokenRefresh)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, principal.ID, true, nil, nil)

	return &LoginResult{
		PrincipalID:  principal.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
