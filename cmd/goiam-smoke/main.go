// Command goiam-smoke runs the full engine surface against a live (or
// embedded) redis and an optional postgres, end to end: lockout, lazy
// unlock, token rotation, password history, and group-tree rules. It exits
// non-zero on the first behavior that deviates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/hierarchy"
	promexport "github.com/MrEthical07/goIAM/metrics/export/prometheus"
	"github.com/MrEthical07/goIAM/password"
	"github.com/MrEthical07/goIAM/storage/postgres"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config; optional")
		redisAddr   = flag.String("redis-addr", "", "redis address; overrides config, falls back to miniredis")
		pgDSN       = flag.String("pg-dsn", "", "postgres DSN; overrides config, falls back to in-memory stores")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve /metrics at this address after the run")
	)
	flag.Parse()

	if err := run(*configPath, *redisAddr, *pgDSN, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "smoke failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("smoke passed")
}

func run(configPath, redisAddr, pgDSN, metricsAddr string) error {
	cfg, fc, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Fast lockout so the scenario completes quickly.
	cfg.Lockout.MaxAttempts = 3

	if redisAddr == "" {
		redisAddr = fc.Redis.Addr
	}
	if pgDSN == "" {
		pgDSN = fc.Postgres.DSN
	}

	var client redis.UniversalClient
	if redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", redisAddr)
	} else {
		fmt.Printf("using redis at %s\n", redisAddr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	defer client.Close()

	ctx := context.Background()

	var (
		creds  goIAM.CredentialStore
		groups hierarchy.GroupStore
		seed   seeder
	)
	if pgDSN != "" {
		pg, err := postgres.Open(pgDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		creds, groups, seed = pg, pg, pgSeeder{pg}
		fmt.Println("using postgres stores")
	} else {
		mem := newMemStore()
		creds, groups, seed = mem, mem, memSeeder{mem}
		fmt.Println("using in-memory stores")
	}

	engine, err := goIAM.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(creds).
		WithGroupStore(groups).
		WithAuditSink(goIAM.NewJSONWriterSink(os.Stdout)).
		WithLogger(log.New(os.Stderr, "", log.LstdFlags)).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if err := seedFixtures(ctx, cfg, seed); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func(context.Context, *goIAM.Engine) error
	}{
		{"lockout", checkLockout},
		{"token rotation", checkTokenRotation},
		{"password history", checkPasswordHistory},
		{"group rules", checkGroupRules},
	}
	for _, step := range steps {
		fmt.Printf("checking %s...\n", step.name)
		if err := step.fn(ctx, engine); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	snap := engine.MetricsSnapshot()
	for id, name := range goIAM.MetricNames {
		fmt.Printf("%s %d\n", name, snap.Counters[id])
	}

	if metricsAddr != "" {
		fmt.Printf("serving /metrics on %s\n", metricsAddr)
		http.Handle("/metrics", promexport.Handler(engine))
		return http.ListenAndServe(metricsAddr, nil)
	}
	return nil
}

const (
	smokeEmail    = "smoke@example.com"
	smokePassword = "initial-smoke-pass-1"
)

type seeder interface {
	seedPrincipal(ctx context.Context, p goIAM.Principal) error
	seedGroup(ctx context.Context, kind hierarchy.Kind, id string, parentID *string) error
}

type memSeeder struct{ store *memStore }

func (s memSeeder) seedPrincipal(_ context.Context, p goIAM.Principal) error {
	s.store.addPrincipal(p)
	return nil
}

func (s memSeeder) seedGroup(_ context.Context, kind hierarchy.Kind, id string, parentID *string) error {
	s.store.addGroup(kind, id, parentID)
	return nil
}

type pgSeeder struct{ store *postgres.Store }

func (s pgSeeder) seedPrincipal(ctx context.Context, p goIAM.Principal) error {
	return s.store.CreatePrincipal(ctx, p)
}

func (s pgSeeder) seedGroup(ctx context.Context, kind hierarchy.Kind, id string, parentID *string) error {
	return s.store.CreateGroup(ctx, kind, hierarchy.Group{ID: id, Name: id, ParentID: parentID})
}

func seedFixtures(ctx context.Context, cfg goIAM.Config, seed seeder) error {
	hasher, err := password.NewHasher(password.HashConfig{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		Pepper:      cfg.Password.Pepper,
	})
	if err != nil {
		return fmt.Errorf("build hasher: %w", err)
	}
	hash, err := hasher.Hash(smokePassword)
	if err != nil {
		return fmt.Errorf("hash fixture password: %w", err)
	}

	if err := seed.seedPrincipal(ctx, goIAM.Principal{
		ID:           "smoke-user",
		Email:        smokeEmail,
		PasswordHash: hash,
		Verified:     true,
		IsActive:     true,
	}); err != nil {
		return fmt.Errorf("seed principal: %w", err)
	}

	root := "smoke-root"
	if err := seed.seedGroup(ctx, hierarchy.KindRole, "smoke-root", nil); err != nil {
		return fmt.Errorf("seed group: %w", err)
	}
	if err := seed.seedGroup(ctx, hierarchy.KindRole, "smoke-child", &root); err != nil {
		return fmt.Errorf("seed group: %w", err)
	}
	return nil
}

func checkLockout(ctx context.Context, engine *goIAM.Engine) error {
	for i := 0; i < 3; i++ {
		if _, err := engine.Login(ctx, smokeEmail, "definitely-wrong"); !errors.Is(err, goIAM.ErrInvalidCredentials) {
			return fmt.Errorf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if _, err := engine.Login(ctx, smokeEmail, smokePassword); !errors.Is(err, goIAM.ErrAccountLocked) {
		return fmt.Errorf("expected locked account, got %v", err)
	}
	if err := engine.UnlockAccount(ctx, "smoke-user"); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	if _, err := engine.Login(ctx, smokeEmail, smokePassword); err != nil {
		return fmt.Errorf("login after unlock: %w", err)
	}
	return nil
}

func checkTokenRotation(ctx context.Context, engine *goIAM.Engine) error {
	res, err := engine.Login(ctx, smokeEmail, smokePassword)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if _, err := engine.ValidateToken(ctx, res.AccessToken, goIAM.TokenAccess); err != nil {
		return fmt.Errorf("validate access: %w", err)
	}

	rotated, err := engine.Refresh(ctx, res.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if _, err := engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, goIAM.ErrTokenBlacklisted) {
		return fmt.Errorf("expected replay rejection, got %v", err)
	}

	if err := engine.Logout(ctx, rotated.AccessToken, rotated.RefreshToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if _, err := engine.ValidateToken(ctx, rotated.AccessToken, goIAM.TokenAccess); !errors.Is(err, goIAM.ErrTokenBlacklisted) {
		return fmt.Errorf("expected revoked access token, got %v", err)
	}
	return nil
}

func checkPasswordHistory(ctx context.Context, engine *goIAM.Engine) error {
	if err := engine.ChangePassword(ctx, "smoke-user", smokePassword, "second-smoke-pass-2"); err != nil {
		return fmt.Errorf("change: %w", err)
	}
	if err := engine.ChangePassword(ctx, "smoke-user", "second-smoke-pass-2", smokePassword); !errors.Is(err, goIAM.ErrPasswordReused) {
		return fmt.Errorf("expected reuse rejection, got %v", err)
	}
	if _, err := engine.Login(ctx, smokeEmail, "second-smoke-pass-2"); err != nil {
		return fmt.Errorf("login with new password: %w", err)
	}
	return nil
}

func checkGroupRules(ctx context.Context, engine *goIAM.Engine) error {
	child := "smoke-child"
	if err := engine.SetGroupParent(ctx, goIAM.RoleGroups, "smoke-root", &child); !errors.Is(err, goIAM.ErrCyclicGroupAssignment) {
		return fmt.Errorf("expected cycle rejection, got %v", err)
	}

	if err := engine.AddGroupMembers(ctx, goIAM.RoleGroups, "smoke-root", []string{"viewer"}); err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	if err := engine.AddGroupMembers(ctx, goIAM.RoleGroups, "smoke-child", []string{"editor"}); err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	members, err := engine.EffectiveGroupMembers(ctx, goIAM.RoleGroups, "smoke-root")
	if err != nil {
		return fmt.Errorf("effective members: %w", err)
	}
	if len(members) != 2 {
		return fmt.Errorf("expected 2 effective members, got %v", members)
	}
	return nil
}
