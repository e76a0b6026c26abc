package main

import (
	"context"
	"sort"
	"sync"
	"time"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/hierarchy"
)

// memStore backs the smoke run when no postgres DSN is given. Same contract
// as the real store, all state under one mutex.
type memStore struct {
	mu         sync.Mutex
	principals map[string]*goIAM.Principal
	byEmail    map[string]string
	history    map[string][]goIAM.PasswordHistoryEntry
	groups     map[hierarchy.Kind]map[string]*hierarchy.Group
	members    map[hierarchy.Kind]map[string]map[string]struct{}
}

var (
	_ goIAM.CredentialStore = (*memStore)(nil)
	_ hierarchy.GroupStore  = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		principals: make(map[string]*goIAM.Principal),
		byEmail:    make(map[string]string),
		history:    make(map[string][]goIAM.PasswordHistoryEntry),
		groups:     make(map[hierarchy.Kind]map[string]*hierarchy.Group),
		members:    make(map[hierarchy.Kind]map[string]map[string]struct{}),
	}
}

func (s *memStore) addPrincipal(p goIAM.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.principals[p.ID] = &cp
	s.byEmail[p.Email] = p.ID
}

func (s *memStore) addGroup(kind hierarchy.Kind, id string, parentID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups[kind] == nil {
		s.groups[kind] = make(map[string]*hierarchy.Group)
	}
	s.groups[kind][id] = &hierarchy.Group{ID: id, Name: id, ParentID: parentID}
}

func (s *memStore) FindPrincipalByEmail(_ context.Context, email string) (goIAM.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return goIAM.Principal{}, goIAM.ErrPrincipalNotFound
	}
	return *s.principals[id], nil
}

func (s *memStore) FindPrincipalByID(_ context.Context, id string) (goIAM.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return goIAM.Principal{}, goIAM.ErrPrincipalNotFound
	}
	return *p, nil
}

func (s *memStore) RecordFailedAttempt(_ context.Context, id string, threshold int, lockFor time.Duration) (goIAM.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return goIAM.LockoutState{}, goIAM.ErrPrincipalNotFound
	}
	p.FailedAttempts++
	state := goIAM.LockoutState{FailedAttempts: p.FailedAttempts, Locked: p.IsLocked, LockedUntil: p.LockedUntil}
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

func (s *memStore) ClearExpiredLock(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return false, goIAM.ErrPrincipalNotFound
	}
	if !p.IsLocked || p.LockedUntil == nil || p.LockedUntil.After(time.Now()) {
		return false, nil
	}
	p.IsLocked = false
	p.LockedUntil = nil
	p.FailedAttempts = 0
	return true, nil
}

func (s *memStore) ResetLockout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return goIAM.ErrPrincipalNotFound
	}
	p.IsLocked = false
	p.LockedUntil = nil
	p.FailedAttempts = 0
	return nil
}

func (s *memStore) SetVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return goIAM.ErrPrincipalNotFound
	}
	p.Verified = true
	return nil
}

func (s *memStore) UpdatePassword(_ context.Context, id, oldHash, newHash string, keepHistory int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return goIAM.ErrPrincipalNotFound
	}
	entries := append([]goIAM.PasswordHistoryEntry{{
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

func (s *memStore) PasswordHistory(_ context.Context, id string, limit int) ([]goIAM.PasswordHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[id]; !ok {
		return nil, goIAM.ErrPrincipalNotFound
	}
	entries := s.history[id]
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]goIAM.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *memStore) GetGroup(_ context.Context, kind hierarchy.Kind, id string) (hierarchy.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[kind][id]
	if !ok {
		return hierarchy.Group{}, hierarchy.ErrGroupNotFound
	}
	return *g, nil
}

func (s *memStore) Children(_ context.Context, kind hierarchy.Kind, id string) ([]hierarchy.Group, error) {
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

func (s *memStore) SetParent(_ context.Context, kind hierarchy.Kind, id string, parentID *string) error {
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

func (s *memStore) DirectMembers(_ context.Context, kind hierarchy.Kind, groupID string) ([]string, error) {
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

func (s *memStore) AddMembers(_ context.Context, kind hierarchy.Kind, groupID string, memberIDs []string) error {
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

func (s *memStore) RemoveMembers(_ context.Context, kind hierarchy.Kind, groupID string, memberIDs []string) error {
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

func (s *memStore) DeleteGroups(_ context.Context, kind hierarchy.Kind, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.groups[kind][id]; !ok {
			return hierarchy.ErrGroupNotFound
		}
		if len(s.members[kind][id]) > 0 {
			return hierarchy.ErrGroupHasDependents
		}
		for _, other := range s.groups[kind] {
			if other.ID != id && other.ParentID != nil && *other.ParentID == id {
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
