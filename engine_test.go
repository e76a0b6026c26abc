package goIAM

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goIAM/hierarchy"
)

// testConfig returns a config tuned for test speed: cheap argon2 factors, a
// low lockout threshold, and fixed token secrets.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinLength = 8
	cfg.Password.RequireUpper = false
	cfg.Password.RequireLower = false
	cfg.Password.RequireDigit = false
	cfg.Lockout.MaxAttempts = 3
	cfg.Lockout.Duration = time.Hour
	cfg.Audit.Enabled = false
	return cfg
}

// memCredentialStore is an in-memory CredentialStore with the same atomicity
// contract the engine expects from a real database: lockout transitions run
// under one mutex hold.
type memCredentialStore struct {
	mu         sync.Mutex
	principals map[string]*Principal
	byEmail    map[string]string
	history    map[string][]PasswordHistoryEntry

	recordCalls int
	resetCalls  int
	updateCalls int
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{
		principals: make(map[string]*Principal),
		byEmail:    make(map[string]string),
		history:    make(map[string][]PasswordHistoryEntry),
	}
}

func (s *memCredentialStore) put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.principals[p.ID] = &cp
	s.byEmail[p.Email] = p.ID
}

func (s *memCredentialStore) get(t *testing.T, id string) Principal {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		t.Fatalf("principal %s not in store", id)
	}
	return *p
}

func (s *memCredentialStore) FindPrincipalByEmail(_ context.Context, email string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return *s.principals[id], nil
}

func (s *memCredentialStore) FindPrincipalByID(_ context.Context, id string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return *p, nil
}

func (s *memCredentialStore) RecordFailedAttempt(_ context.Context, id string, threshold int, lockFor time.Duration) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCalls++
	p, ok := s.principals[id]
	if !ok {
		return LockoutState{}, ErrPrincipalNotFound
	}
	p.FailedAttempts++
	state := LockoutState{FailedAttempts: p.FailedAttempts, Locked: p.IsLocked, LockedUntil: p.LockedUntil}
	if p.FailedAttempts >= threshold && !p.IsLocked {
		until := time.Now().Add(lockFor)
		p.IsLocked = true
		p.LockedUntil = &until
		state.Locked = true
		state.JustLocked = true
		state.LockedUntil = &until
	}
	return state, nil
}

func (s *memCredentialStore) ClearExpiredLock(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return false, ErrPrincipalNotFound
	}
	if !p.IsLocked || p.LockedUntil == nil || p.LockedUntil.After(time.Now()) {
		return false, nil
	}
	p.IsLocked = false
	p.LockedUntil = nil
	p.FailedAttempts = 0
	return true, nil
}

func (s *memCredentialStore) ResetLockout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	p, ok := s.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.IsLocked = false
	p.LockedUntil = nil
	p.FailedAttempts = 0
	return nil
}

func (s *memCredentialStore) SetVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Verified = true
	return nil
}

func (s *memCredentialStore) UpdatePassword(_ context.Context, id, oldHash, newHash string, keepHistory int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	p, ok := s.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	entries := append([]PasswordHistoryEntry{{
		PrincipalID:  id,
		PasswordHash: oldHash,
		CreatedAt:    time.Now(),
	}}, s.history[id]...)
	if keepHistory >= 0 && len(entries) > keepHistory {
		entries = entries[:keepHistory]
	}
	s.history[id] = entries
	p.PasswordHash = newHash
	p.PasswordVersion++
	p.FailedAttempts = 0
	p.IsLocked = false
	p.LockedUntil = nil
	return nil
}

func (s *memCredentialStore) PasswordHistory(_ context.Context, id string, limit int) ([]PasswordHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[id]; !ok {
		return nil, ErrPrincipalNotFound
	}
	entries := s.history[id]
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// memGroups is an in-memory hierarchy.GroupStore. SetParent re-walks the
// ancestor chain under the lock so concurrent reparenting cannot slip a
// cycle past the resolver's fail-fast check.
type memGroups struct {
	mu      sync.Mutex
	groups  map[hierarchy.Kind]map[string]*hierarchy.Group
	members map[hierarchy.Kind]map[string]map[string]struct{}
}

func newMemGroups() *memGroups {
	return &memGroups{
		groups:  make(map[hierarchy.Kind]map[string]*hierarchy.Group),
		members: make(map[hierarchy.Kind]map[string]map[string]struct{}),
	}
}

func (s *memGroups) add(kind hierarchy.Kind, id string, parentID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups[kind] == nil {
		s.groups[kind] = make(map[string]*hierarchy.Group)
	}
	s.groups[kind][id] = &hierarchy.Group{ID: id, Name: id, ParentID: parentID}
}

func (s *memGroups) GetGroup(_ context.Context, kind hierarchy.Kind, id string) (hierarchy.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[kind][id]
	if !ok {
		return hierarchy.Group{}, hierarchy.ErrGroupNotFound
	}
	return *g, nil
}

func (s *memGroups) Children(_ context.Context, kind hierarchy.Kind, id string) ([]hierarchy.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hierarchy.Group
	for _, g := range s.groups[kind] {
		if g.ParentID != nil && *g.ParentID == id {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memGroups) SetParent(_ context.Context, kind hierarchy.Kind, id string, parentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[kind][id]
	if !ok {
		return hierarchy.ErrGroupNotFound
	}
	if parentID != nil {
		cursor := *parentID
		for steps := 0; steps < 1000; steps++ {
			if cursor == id {
				return hierarchy.ErrCyclicAssignment
			}
			next, ok := s.groups[kind][cursor]
			if !ok {
				return hierarchy.ErrGroupNotFound
			}
			if next.ParentID == nil {
				break
			}
			cursor = *next.ParentID
		}
	}
	g.ParentID = parentID
	return nil
}

func (s *memGroups) DirectMembers(_ context.Context, kind hierarchy.Kind, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[kind][groupID]; !ok {
		return nil, hierarchy.ErrGroupNotFound
	}
	var out []string
	for m := range s.members[kind][groupID] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memGroups) AddMembers(_ context.Context, kind hierarchy.Kind, groupID string, memberIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[kind][groupID]; !ok {
		return hierarchy.ErrGroupNotFound
	}
	if s.members[kind] == nil {
		s.members[kind] = make(map[string]map[string]struct{})
	}
	if s.members[kind][groupID] == nil {
		s.members[kind][groupID] = make(map[string]struct{})
	}
	for _, m := range memberIDs {
		s.members[kind][groupID][m] = struct{}{}
	}
	return nil
}

func (s *memGroups) RemoveMembers(_ context.Context, kind hierarchy.Kind, groupID string, memberIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[kind][groupID]; !ok {
		return hierarchy.ErrGroupNotFound
	}
	for _, m := range memberIDs {
		delete(s.members[kind][groupID], m)
	}
	return nil
}

func (s *memGroups) DeleteGroups(_ context.Context, kind hierarchy.Kind, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		g, ok := s.groups[kind][id]
		if !ok {
			return hierarchy.ErrGroupNotFound
		}
		if len(s.members[kind][id]) > 0 {
			return hierarchy.ErrGroupHasDependents
		}
		for _, other := range s.groups[kind] {
			if other != g && other.ParentID != nil && *other.ParentID == id {
				return hierarchy.ErrGroupHasDependents
			}
		}
	}
	for _, id := range ids {
		delete(s.groups[kind], id)
		delete(s.members[kind], id)
	}
	return nil
}

// newTestEngine builds an engine on miniredis with in-memory stores. The
// returned cleanup closes both.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *memCredentialStore, *memGroups, func()) {
	t.Helper()
	return newTestEngineWithSink(t, cfg, nil)
}

func newTestEngineWithSink(t *testing.T, cfg Config, sink AuditSink) (*Engine, *memCredentialStore, *memGroups, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	creds := newMemCredentialStore()
	groups := newMemGroups()

	builder := New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(creds).
		WithGroupStore(groups)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return engine, creds, groups, func() {
		engine.Close()
		_ = client.Close()
	}
}

// seedPrincipal hashes the password with the engine's own hasher and stores
// a verified active principal.
func seedPrincipal(t *testing.T, engine *Engine, creds *memCredentialStore, id, email, pass string) {
	t.Helper()
	hash, err := engine.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("hash seed password: %v", err)
	}
	creds.put(Principal{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Verified:     true,
		IsActive:     true,
	})
}
