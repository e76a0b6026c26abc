package goIAM

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIAM/jwt"
)

// TokenClaims is the validated claim set returned by [Engine.ValidateToken].
type TokenClaims = jwt.Claims

// issueToken mints a token of the given kind and records it in the
// whitelist. One store write per issue.
func (e *Engine) issueToken(ctx context.Context, principalID string, kind TokenKind) (string, error) {
	signed, claims, err := e.jwtManager.Issue(kind, principalID, e.config.Tokens.TTL(kind))
	if err != nil {
		return "", err
	}
	if err := e.tokens.Add(ctx, string(kind), principalID, claims.ID, claims.ExpiresAt.Time); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	e.metricInc(MetricTokenIssued)
	return signed, nil
}

// ValidateToken verifies a token of the expected kind: signature, issuer,
// audience, exp/nbf with leeway, required claims, type equality, then the
// blacklist. The first violated check determines the error; a store failure
// during the blacklist check fails closed with [ErrServiceUnavailable].
func (e *Engine) ValidateToken(ctx context.Context, tokenStr string, kind TokenKind) (*TokenClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr, kind)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, err
	}

	revoked, err := e.tokens.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenBlacklisted
	}
	return claims, nil
}

// InvalidateToken revokes a single token: its jti goes on the blacklist for
// the remaining lifetime plus the clock-skew grace, and the whitelist entry
// is dropped.
// The signature is deliberately not verified on this path: blacklisting an
// unverifiable token is harmless and keeps revocation working across kind
// secret rotation.
func (e *Engine) InvalidateToken(ctx context.Context, tokenStr string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ExtractUnverified(tokenStr)
	if err != nil {
		return err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := e.tokens.Blacklist(ctx, claims.ID, remaining); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if claims.Subject != "" && claims.Type != "" {
		if err := e.tokens.Remove(ctx, claims.Type, claims.Subject, claims.ID); err != nil {
			// The blacklist already wins; a stale whitelist entry expires
			// on its own.
			e.warnf("whitelist cleanup for jti %s failed: %v", claims.ID, err)
		}
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, AuditTokenRevoked, claims.Subject, true, nil, map[string]string{"kind": claims.Type})
	return nil
}

// InvalidateAllTokens revokes every outstanding token of one kind for a
// principal, atomically. Returns the number of tokens revoked.
func (e *Engine) InvalidateAllTokens(ctx context.Context, principalID string, kind TokenKind) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.tokens.InvalidateAll(ctx, string(kind), principalID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if revoked > 0 {
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, AuditTokenRevoked, principalID, true, nil, map[string]string{
			"kind":  string(kind),
			"count": fmt.Sprintf("%d", revoked),
		})
	}
	return revoked, nil
}

// Refresh rotates a refresh token: the presented token is validated, revoked,
// and replaced together with a fresh access token. The principal must still
// be verified, active, and unlocked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.ValidateToken(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	principal, err := e.credentials.FindPrincipalByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if err := e.evaluateLock(ctx, &principal); err != nil {
		return nil, err
	}
	if !principal.Verified {
		return nil, ErrEmailNotVerified
	}
	if !principal.IsActive {
		return nil, ErrInactiveAccount
	}

	// Rotation: the used token dies before its replacements are minted, so
	// a replayed token fails even if the mint below errors out. The claim
	// is a single atomic blacklist write; of N concurrent presentations of
	// the same token exactly one proceeds, the rest fail as reuse.
	won, err := e.tokens.Claim(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if !won {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, AuditLoginFailure, claims.Subject, false, ErrRefreshReuse, map[string]string{"reason": "refresh_reuse"})
		return nil, ErrRefreshReuse
	}
	if err := e.tokens.Remove(ctx, claims.Type, claims.Subject, claims.ID); err != nil {
		// The blacklist already wins; a stale whitelist entry expires on
		// its own.
		e.warnf("whitelist cleanup for jti %s failed: %v", claims.ID, err)
	}
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, AuditTokenRevoked, claims.Subject, true, nil, map[string]string{"kind": claims.Type})

	access, err := e.issueToken(ctx, principal.ID, TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := e.issueToken(ctx, principal.ID, TokenRefresh)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		PrincipalID:  principal.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Logout revokes one session's token pair. Tokens that cannot even be
// decoded are ignored: the session they belonged to is gone either way.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	for _, tokenStr := range []string{accessToken, refreshToken} {
		if tokenStr == "" {
			continue
		}
		if err := e.InvalidateToken(ctx, tokenStr); err != nil && errors.Is(err, ErrServiceUnavailable) {
			return err
		}
	}
	return nil
}

// LogoutEverywhere revokes all outstanding access and refresh tokens for a
// principal.
func (e *Engine) LogoutEverywhere(ctx context.Context, principalID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	for _, kind := range []TokenKind{TokenAccess, TokenRefresh} {
		if _, err := e.InvalidateAllTokens(ctx, principalID, kind); err != nil {
			return err
		}
	}
	return nil
}

// BeginEmailVerification mints a verification token for the principal. The
// caller delivers it (email delivery is outside this engine).
func (e *Engine) BeginEmailVerification(ctx context.Context, principalID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	if _, err := e.credentials.FindPrincipalByID(ctx, principalID); err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return e.issueToken(ctx, principalID, TokenVerification)
}

// ConfirmEmailVerification validates a verification token, marks the account
// verified, and revokes the token so it is single-use.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, verificationToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.ValidateToken(ctx, verificationToken, TokenVerification)
	if err != nil {
		return err
	}
	if err := e.credentials.SetVerified(ctx, claims.Subject); err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if err := e.InvalidateToken(ctx, verificationToken); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEmailVerified, claims.Subject, true, nil, nil)
	return nil
}
