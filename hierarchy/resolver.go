package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Kind distinguishes the two group trees. Both share the same shape and
// rules; a group only ever references a parent of its own kind.
type Kind string

const (
	// KindRole groups bundle roles.
	KindRole Kind = "role"
	// KindPermission groups bundle permissions.
	KindPermission Kind = "permission"
)

var (
	// ErrGroupNotFound is returned when a referenced group does not exist.
	ErrGroupNotFound = errors.New("group not found")
	// ErrCyclicAssignment is returned when a reparenting would create a cycle.
	ErrCyclicAssignment = errors.New("cyclic group assignment")
	// ErrGroupHasDependents is returned when deletion targets still carry
	// member edges or child groups.
	ErrGroupHasDependents = errors.New("group has dependents")
)

// maxDepth bounds ancestor walks so a corrupted store (a pre-existing cycle
// written outside this resolver) cannot hang a request.
const maxDepth = 1000

// Group is one node of a group tree. ParentID is nil for roots.
type Group struct {
	ID       string
	Name     string
	ParentID *string
}

// GroupStore is the narrow persistence interface the resolver drives.
// Implementations must make SetParent's revalidation and write atomic with
// respect to concurrent SetParent calls, and DeleteGroups all-or-nothing.
type GroupStore interface {
	// GetGroup fetches a single group row, no relations.
	GetGroup(ctx context.Context, kind Kind, id string) (Group, error)
	// Children fetches the immediate children only.
	Children(ctx context.Context, kind Kind, id string) ([]Group, error)
	// SetParent re-checks acyclicity and writes the parent pointer in one
	// atomic unit. A nil parentID makes the group a root.
	SetParent(ctx context.Context, kind Kind, id string, parentID *string) error
	// DirectMembers fetches the member IDs mapped directly to the group.
	DirectMembers(ctx context.Context, kind Kind, groupID string) ([]string, error)
	// AddMembers inserts edges; existing edges are kept, not duplicated.
	AddMembers(ctx context.Context, kind Kind, groupID string, memberIDs []string) error
	// RemoveMembers deletes edges; absent edges are ignored.
	RemoveMembers(ctx context.Context, kind Kind, groupID string, memberIDs []string) error
	// DeleteGroups removes the groups or fails atomically with
	// ErrGroupHasDependents / ErrGroupNotFound.
	DeleteGroups(ctx context.Context, kind Kind, ids []string) error
}

// Resolver validates and executes group-tree mutations and resolves
// effective membership. Safe for concurrent use; all state lives in the
// store.
type Resolver struct {
	store GroupStore
}

// NewResolver wires a Resolver to its store.
func NewResolver(store GroupStore) *Resolver {
	return &Resolver{store: store}
}

// SetParent reparents a group after checking that the new parent's ancestor
// chain does not pass through the group itself. The store repeats the check
// inside its transaction; this walk exists to fail fast and to produce the
// error without taking write locks.
func (r *Resolver) SetParent(ctx context.Context, kind Kind, groupID string, newParentID *string) error {
	if _, err := r.store.GetGroup(ctx, kind, groupID); err != nil {
		return err
	}

	if newParentID != nil {
		if *newParentID == groupID {
			return fmt.Errorf("%w: group %s cannot be its own parent", ErrCyclicAssignment, groupID)
		}
		ancestor := *newParentID
		for depth := 0; ; depth++ {
			if depth >= maxDepth {
				return fmt.Errorf("ancestor chain of %s exceeds %d levels", *newParentID, maxDepth)
			}
			node, err := r.store.GetGroup(ctx, kind, ancestor)
			if err != nil {
				return err
			}
			if node.ID == groupID {
				return fmt.Errorf("%w: %s is an ancestor of %s", ErrCyclicAssignment, groupID, *newParentID)
			}
			if node.ParentID == nil {
				break
			}
			ancestor = *node.ParentID
		}
	}

	return r.store.SetParent(ctx, kind, groupID, newParentID)
}

// EffectiveMembers unions the members mapped directly to the group with the
// effective members of every descendant group. Each member counts once no
// matter how many paths reach it. The result is sorted for stable output.
func (r *Resolver) EffectiveMembers(ctx context.Context, kind Kind, groupID string) ([]string, error) {
	if _, err := r.store.GetGroup(ctx, kind, groupID); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	visited := make(map[string]struct{})
	if err := r.collect(ctx, kind, groupID, seen, visited, 0); err != nil {
		return nil, err
	}

	members := make([]string, 0, len(seen))
	for id := range seen {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

func (r *Resolver) collect(ctx context.Context, kind Kind, groupID string, seen, visited map[string]struct{}, depth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("group tree below %s exceeds %d levels", groupID, maxDepth)
	}
	if _, done := visited[groupID]; done {
		return nil
	}
	visited[groupID] = struct{}{}

	direct, err := r.store.DirectMembers(ctx, kind, groupID)
	if err != nil {
		return err
	}
	for _, id := range direct {
		seen[id] = struct{}{}
	}

	children, err := r.store.Children(ctx, kind, groupID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := r.collect(ctx, kind, child.ID, seen, visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// AddMembers maps members onto a group in one batch.
func (r *Resolver) AddMembers(ctx context.Context, kind Kind, groupID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	if _, err := r.store.GetGroup(ctx, kind, groupID); err != nil {
		return err
	}
	return r.store.AddMembers(ctx, kind, groupID, memberIDs)
}

// RemoveMembers unmaps members from a group. Removing an edge that does not
// exist is not an error.
func (r *Resolver) RemoveMembers(ctx context.Context, kind Kind, groupID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	if _, err := r.store.GetGroup(ctx, kind, groupID); err != nil {
		return err
	}
	return r.store.RemoveMembers(ctx, kind, groupID, memberIDs)
}

// BulkDelete removes the groups, rejecting the whole batch if any target
// still carries member edges or child groups. Detach first, then delete.
func (r *Resolver) BulkDelete(ctx context.Context, kind Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.store.DeleteGroups(ctx, kind, ids)
}
