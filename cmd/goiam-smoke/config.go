package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	goIAM "github.com/MrEthical07/goIAM"
)

// duration accepts "15m" style strings in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) std() time.Duration { return time.Duration(d) }

// fileConfig is the YAML shape of the smoke tool's config file. Every field
// is optional; zero values fall back to engine defaults.
type fileConfig struct {
	Tokens struct {
		Issuer          string   `yaml:"issuer"`
		Audience        string   `yaml:"audience"`
		AccessTTL       duration `yaml:"access_ttl"`
		RefreshTTL      duration `yaml:"refresh_ttl"`
		ResetTTL        duration `yaml:"reset_ttl"`
		VerificationTTL duration `yaml:"verification_ttl"`
		Leeway          duration `yaml:"leeway"`
		RedisPrefix     string   `yaml:"redis_prefix"`
		// Secrets override the generated per-kind secrets; each must be at
		// least 32 bytes.
		Secrets map[string]string `yaml:"secrets"`
	} `yaml:"tokens"`

	Lockout struct {
		MaxAttempts int      `yaml:"max_attempts"`
		Duration    duration `yaml:"duration"`
	} `yaml:"lockout"`

	Password struct {
		MinLength   int    `yaml:"min_length"`
		HistorySize *int   `yaml:"history_size"`
		Pepper      string `yaml:"pepper"`
	} `yaml:"password"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
}

// loadConfig reads the optional YAML file and folds it over DefaultConfig.
func loadConfig(path string) (goIAM.Config, fileConfig, error) {
	cfg := goIAM.DefaultConfig()
	var fc fileConfig

	if path == "" {
		return cfg, fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fc, fmt.Errorf("parse config: %w", err)
	}

	if fc.Tokens.Issuer != "" {
		cfg.Tokens.Issuer = fc.Tokens.Issuer
	}
	if fc.Tokens.Audience != "" {
		cfg.Tokens.Audience = fc.Tokens.Audience
	}
	if fc.Tokens.AccessTTL > 0 {
		cfg.Tokens.AccessTTL = fc.Tokens.AccessTTL.std()
	}
	if fc.Tokens.RefreshTTL > 0 {
		cfg.Tokens.RefreshTTL = fc.Tokens.RefreshTTL.std()
	}
	if fc.Tokens.ResetTTL > 0 {
		cfg.Tokens.ResetTTL = fc.Tokens.ResetTTL.std()
	}
	if fc.Tokens.VerificationTTL > 0 {
		cfg.Tokens.VerificationTTL = fc.Tokens.VerificationTTL.std()
	}
	if fc.Tokens.Leeway > 0 {
		cfg.Tokens.Leeway = fc.Tokens.Leeway.std()
	}
	if fc.Tokens.RedisPrefix != "" {
		cfg.Tokens.RedisPrefix = fc.Tokens.RedisPrefix
	}
	for kindName, secret := range fc.Tokens.Secrets {
		kind := goIAM.TokenKind(kindName)
		if _, ok := cfg.Tokens.Secrets[kind]; !ok {
			return cfg, fc, fmt.Errorf("unknown token kind %q in secrets", kindName)
		}
		cfg.Tokens.Secrets[kind] = []byte(secret)
	}

	if fc.Lockout.MaxAttempts > 0 {
		cfg.Lockout.MaxAttempts = fc.Lockout.MaxAttempts
	}
	if fc.Lockout.Duration > 0 {
		cfg.Lockout.Duration = fc.Lockout.Duration.std()
	}

	if fc.Password.MinLength > 0 {
		cfg.Password.MinLength = fc.Password.MinLength
	}
	if fc.Password.HistorySize != nil {
		cfg.Password.HistorySize = *fc.Password.HistorySize
	}
	if fc.Password.Pepper != "" {
		cfg.Password.Pepper = []byte(fc.Password.Pepper)
	}

	return cfg, fc, nil
}
