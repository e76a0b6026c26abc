package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind identifies the purpose a token was minted for. Every issued token
// carries its kind in the "type" claim and is signed with the kind's secret.
type Kind string

const (
	// KindAccess is a short-lived API credential.
	KindAccess Kind = "access"
	// KindRefresh exchanges for a new access/refresh pair.
	KindRefresh Kind = "refresh"
	// KindReset authorizes a password reset.
	KindReset Kind = "reset"
	// KindVerification confirms ownership of an email address.
	KindVerification Kind = "verification"
)

// Kinds lists every supported token kind in a stable order.
var Kinds = []Kind{KindAccess, KindRefresh, KindReset, KindVerification}

var (
	// ErrMalformed covers tokens that fail structural or signature checks,
	// including issuer/audience mismatches.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when exp is in the past beyond leeway.
	ErrExpired = errors.New("token expired")
	// ErrNotYetValid is returned when nbf or iat is in the future beyond leeway.
	ErrNotYetValid = errors.New("token not yet valid")
	// ErrWrongType is returned when the "type" claim disagrees with the expected kind.
	ErrWrongType = errors.New("wrong token type")
	// ErrMissingClaims is returned when a required claim is absent.
	ErrMissingClaims = errors.New("token missing required claims")
	// ErrUnsupportedKind is returned for kinds outside the four supported ones.
	ErrUnsupportedKind = errors.New("unsupported token kind")
)

const maxLeeway = 5 * time.Minute

// Config defines a public type used by goIAM token verification.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secrets  map[Kind][]byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Manager issues and verifies tokens of the four kinds. It is stateless and
// safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the claim set carried by every goIAM token: the registered set
// plus the kind discriminator.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and returns a ready Manager.
//
// All four kind secrets must be present, non-empty, and pairwise distinct;
// issuer and audience must be set. Leeway defaults to 2 minutes.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 2 * time.Minute
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	for _, kind := range Kinds {
		if len(cfg.Secrets[kind]) < 32 {
			return nil, fmt.Errorf("secret for %q must be at least 32 bytes", kind)
		}
	}
	for i, a := range Kinds {
		for _, b := range Kinds[i+1:] {
			sa, sb := cfg.Secrets[a], cfg.Secrets[b]
			if len(sa) == len(sb) && subtle.ConstantTimeCompare(sa, sb) == 1 {
				return nil, fmt.Errorf("secrets for %q and %q must differ", a, b)
			}
		}
	}
	return &Manager{config: cfg}, nil
}

// Issue builds, signs, and returns a token of the given kind for subject.
// The returned Claims carry the generated jti and expiry so callers can
// record the token in the whitelist.
func (m *Manager) Issue(kind Kind, subject string, ttl time.Duration) (string, *Claims, error) {
	if !supportedKind(kind) {
		return "", nil, ErrUnsupportedKind
	}
	if subject == "" {
		return "", nil, errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", nil, errors.New("ttl must be positive")
	}

	now := time.Now()
	claims := &Claims{
		Type: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secrets[kind])
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies a token against the expected kind's secret and returns its
// claims. Checks are ordered: signature and structure, expiry, not-before,
// issuer/audience, required-claim presence, then type equality. The first
// violated check determines the returned error.
func (m *Manager) Parse(tokenStr string, expected Kind) (*Claims, error) {
	if !supportedKind(expected) {
		return nil, ErrUnsupportedKind
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secrets[expected], nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	if claims.Type != string(expected) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongType, claims.Type, expected)
	}
	return claims, nil
}

// ExtractUnverified decodes claims without verifying the signature. It exists
// for the revocation path only: blacklisting a token whose signature cannot
// be checked is harmless, and it lets clients revoke tokens after a kind
// secret has rotated. Never use the result to grant access.
func (m *Manager) ExtractUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: jti, exp", ErrMissingClaims)
	}
	return claims, nil
}

func supportedKind(kind Kind) bool {
	switch kind {
	case KindAccess, KindRefresh, KindReset, KindVerification:
		return true
	}
	return false
}

func requireClaims(claims *Claims) error {
	missing := make([]string, 0, 4)
	if claims.Subject == "" {
		missing = append(missing, "sub")
	}
	if claims.IssuedAt == nil {
		missing = append(missing, "iat")
	}
	if claims.NotBefore == nil {
		missing = append(missing, "nbf")
	}
	if claims.ExpiresAt == nil {
		missing = append(missing, "exp")
	}
	if claims.Issuer == "" {
		missing = append(missing, "iss")
	}
	if len(claims.Audience) == 0 {
		missing = append(missing, "aud")
	}
	if claims.ID == "" {
		missing = append(missing, "jti")
	}
	if claims.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingClaims, missing)
	}
	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrMissingClaims, err)
	default:
		// Malformed structure, bad signature, issuer or audience mismatch.
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
