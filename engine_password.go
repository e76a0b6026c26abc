package goIAM

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChangePassword replaces a principal's password after verifying the current
// one. The new password must satisfy the complexity policy and must not
// match the current password or any hash inside the history window. On
// success the old hash joins the history, password_version advances, lockout
// state resets, and every outstanding access/refresh token is revoked.
func (e *Engine) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	principal, err := e.credentials.FindPrincipalByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	ok, err := e.hasher.Verify(currentPassword, principal.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: stored credential unverifiable", ErrServiceUnavailable)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := e.writeNewPassword(ctx, &principal, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, AuditPasswordChanged, principal.ID, true, nil, nil)
	return e.LogoutEverywhere(ctx, principal.ID)
}

// BeginPasswordReset mints a reset token for the account behind email. The
// caller delivers it out of band and must not reveal to the requester
// whether the account exists.
func (e *Engine) BeginPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	principal, err := e.credentials.FindPrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return e.issueToken(ctx, principal.ID, TokenReset)
}

// CompletePasswordReset validates a reset token and installs the new
// password under the same policy, history, and side-effect rules as
// ChangePassword. The reset token is revoked so it is single-use.
func (e *Engine) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.ValidateToken(ctx, resetToken, TokenReset)
	if err != nil {
		return err
	}
	principal, err := e.credentials.FindPrincipalByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if err := e.writeNewPassword(ctx, &principal, newPassword); err != nil {
		return err
	}
	if err := e.InvalidateToken(ctx, resetToken); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, AuditPasswordReset, principal.ID, true, nil, nil)
	return e.LogoutEverywhere(ctx, principal.ID)
}

// writeNewPassword runs the policy and reuse checks, hashes, and persists.
// Change and reset share it.
func (e *Engine) writeNewPassword(ctx context.Context, principal *Principal, newPassword string) error {
	if violations := e.policy.Validate(newPassword); len(violations) > 0 {
		e.metricInc(MetricPasswordRejected)
		messages := make([]string, len(violations))
		for i, v := range violations {
			messages[i] = v.Message
		}
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(messages, "; "))
	}

	reused, err := e.isPasswordInHistory(ctx, principal, newPassword)
	if err != nil {
		return err
	}
	if reused {
		e.metricInc(MetricPasswordRejected)
		return ErrPasswordReused
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.credentials.UpdatePassword(ctx, principal.ID, principal.PasswordHash, newHash, e.config.Password.HistorySize); err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return nil
}

// isPasswordInHistory verifies the candidate against the current hash and
// each entry in the history window. Stored hashes carry their own random
// salts, so this must be a verify loop; comparing freshly computed hashes
// for string equality can never match and silently disables the check.
func (e *Engine) isPasswordInHistory(ctx context.Context, principal *Principal, candidate string) (bool, error) {
	match, err := e.hasher.Verify(candidate, principal.PasswordHash)
	if err == nil && match {
		return true, nil
	}

	if e.config.Password.HistorySize <= 0 {
		return false, nil
	}
	entries, err := e.credentials.PasswordHistory(ctx, principal.ID, e.config.Password.HistorySize)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	for _, entry := range entries {
		match, err := e.hasher.Verify(candidate, entry.PasswordHash)
		if err != nil {
			// Skip unreadable legacy entries rather than blocking the
			// change; they cannot match the candidate anyway.
			e.warnf("unreadable history entry for principal %s: %v", principal.ID, err)
			continue
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
