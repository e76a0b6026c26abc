package goIAM

import (
	"errors"
	"fmt"
	"log"

	"github.com/MrEthical07/goIAM/hierarchy"
	"github.com/MrEthical07/goIAM/jwt"
	"github.com/MrEthical07/goIAM/password"
	"github.com/MrEthical07/goIAM/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goIAM APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise. Build performs all validation and wiring; construction before Build is allocation-only.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials CredentialStore
	groupStore  hierarchy.GroupStore
	auditSink   AuditSink
	logger      *log.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig stores a deep copy so later mutation of the caller's struct cannot leak into the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore describes the withcredentialstore operation and its observable behavior.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithGroupStore describes the withgroupstore operation and its observable behavior.
func (b *Builder) WithGroupStore(store hierarchy.GroupStore) *Builder {
	b.groupStore = store
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the destination for non-request-path warnings. Nil keeps
// the engine silent.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires every component, and returns the
// ready Engine. A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if b.groupStore == nil {
		return nil, errors.New("group store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	jwtManager, err := jwt.NewManager(b.config.jwtConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid token config: %w", err)
	}
	hasher, err := password.NewHasher(b.config.hashConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid password config: %w", err)
	}

	// The decoy hash only has to cost as much as a real verification, so
	// any stable input works.
	decoyHash, err := hasher.Hash("goiam-decoy-credential-for-unknown-principals")
	if err != nil {
		return nil, fmt.Errorf("decoy hash: %w", err)
	}

	engine := &Engine{
		config:      b.config,
		credentials: b.credentials,
		groups:      hierarchy.NewResolver(b.groupStore),
		tokens:      token.NewStore(b.redis, b.config.Tokens.RedisPrefix, b.config.Tokens.Leeway),
		jwtManager:  jwtManager,
		hasher:      hasher,
		policy:      password.NewPolicy(b.config.policyConfig()),
		audit:       newAuditDispatcher(b.config.Audit, b.auditSink),
		logger:      b.logger,
		decoyHash:   decoyHash,
	}
	if b.config.Metrics.Enabled {
		engine.metrics = NewMetrics()
	}

	b.built = true
	return engine, nil
}
