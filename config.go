package goIAM

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIAM/jwt"
	"github.com/MrEthical07/goIAM/password"
)

// Config defines a public type used by goIAM APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise: the Builder validates a copy once and no component reads it afterwards except through its own constructor-injected slice.
type Config struct {
	Tokens   TokenConfig
	Lockout  LockoutConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by goIAM APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerificationTTL time.Duration
	// Secrets holds one distinct HS256 secret per token kind, at least
	// 32 bytes each.
	Secrets  map[TokenKind][]byte
	Issuer   string
	Audience string
	// Leeway is the clock-skew allowance applied to exp/nbf/iat checks.
	Leeway time.Duration
	// RedisPrefix namespaces all whitelist/blacklist keys.
	RedisPrefix string
}

// TTL returns the configured lifetime for a token kind.
func (c TokenConfig) TTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenAccess:
		return c.AccessTTL
	case TokenRefresh:
		return c.RefreshTTL
	case TokenReset:
		return c.ResetTTL
	case TokenVerification:
		return c.VerificationTTL
	default:
		return 0
	}
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by goIAM APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	// MaxAttempts is the failed-authentication count that triggers a lock.
	MaxAttempts int
	// Duration is how long a triggered lock lasts before lazy unlock.
	Duration time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by goIAM APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	// Argon2id work factors.
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// Pepper is the optional server-side secret mixed in before hashing.
	Pepper []byte

	// Complexity policy.
	MinLength        int
	MaxLength        int
	RequireUpper     bool
	RequireLower     bool
	RequireDigit     bool
	RequireSpecial   bool
	SpecialChars     string
	Denylist         []string
	MaxSequentialRun int
	MaxRepeatRun     int

	// HistorySize is the reuse window: how many retired hashes a new
	// password is verified against.
	HistorySize int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by goIAM APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull switches Emit from blocking (ctx-cancellable) to
	// drop-and-count when the buffer is full.
	DropIfFull bool
}

// MetricsConfig defines a public type used by goIAM APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a hardened preset with freshly generated random
// secrets for all four token kinds. Override the secrets with stable values
// before running more than one process.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			ResetTTL:        30 * time.Minute,
			VerificationTTL: 24 * time.Hour,
			Secrets: map[TokenKind][]byte{
				TokenAccess:       randomSecret(),
				TokenRefresh:      randomSecret(),
				TokenReset:        randomSecret(),
				TokenVerification: randomSecret(),
			},
			Issuer:      "goiam",
			Audience:    "goiam",
			Leeway:      2 * time.Minute,
			RedisPrefix: "goiam",
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    30 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             2,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MinLength:        12,
			MaxLength:        256,
			RequireUpper:     true,
			RequireLower:     true,
			RequireDigit:     true,
			RequireSpecial:   false,
			SpecialChars:     "!@#$%^&*()-_=+[]{};:,.<>?",
			MaxSequentialRun: 0,
			MaxRepeatRun:     0,
			HistorySize:      5,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func randomSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("goIAM: cannot read crypto/rand: %v", err))
	}
	return secret
}

func validateConfig(cfg Config) error {
	for _, kind := range jwt.Kinds {
		if cfg.Tokens.TTL(kind) <= 0 {
			return fmt.Errorf("ttl for %q tokens must be positive", kind)
		}
	}
	if cfg.Lockout.MaxAttempts <= 0 {
		return errors.New("lockout max attempts must be positive")
	}
	if cfg.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if cfg.Password.HistorySize < 0 {
		return errors.New("password history size must not be negative")
	}
	if cfg.Password.MinLength <= 0 {
		return errors.New("password min length must be positive")
	}
	if cfg.Password.MaxLength > 0 && cfg.Password.MaxLength < cfg.Password.MinLength {
		return errors.New("password max length must not be below min length")
	}
	// Token secrets, leeway, issuer, and audience are validated by
	// jwt.NewManager; argon2 factors by password.NewHasher.
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.Secrets = make(map[TokenKind][]byte, len(cfg.Tokens.Secrets))
	for kind, secret := range cfg.Tokens.Secrets {
		out.Tokens.Secrets[kind] = append([]byte(nil), secret...)
	}
	out.Password.Pepper = append([]byte(nil), cfg.Password.Pepper...)
	out.Password.Denylist = append([]string(nil), cfg.Password.Denylist...)
	return out
}

func (c Config) jwtConfig() jwt.Config {
	return jwt.Config{
		Secrets:  c.Tokens.Secrets,
		Issuer:   c.Tokens.Issuer,
		Audience: c.Tokens.Audience,
		Leeway:   c.Tokens.Leeway,
	}
}

func (c Config) hashConfig() password.HashConfig {
	return password.HashConfig{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		Pepper:      c.Password.Pepper,
	}
}

func (c Config) policyConfig() password.PolicyConfig {
	return password.PolicyConfig{
		MinLength:        c.Password.MinLength,
		MaxLength:        c.Password.MaxLength,
		RequireUpper:     c.Password.RequireUpper,
		RequireLower:     c.Password.RequireLower,
		RequireDigit:     c.Password.RequireDigit,
		RequireSpecial:   c.Password.RequireSpecial,
		SpecialChars:     c.Password.SpecialChars,
		Denylist:         c.Password.Denylist,
		MaxSequentialRun: c.Password.MaxSequentialRun,
		MaxRepeatRun:     c.Password.MaxRepeatRun,
	}
}
