// Package hierarchy maintains the role-group and permission-group trees:
// cycle-checked reparenting, recursive effective-membership resolution, and
// dependent-guarded deletion.
//
// Groups of each kind form a forest through their parent pointers. The
// resolver rejects any mutation that would introduce a cycle, but the check
// alone cannot exclude a race between two concurrent reparentings, so
// [GroupStore.SetParent] implementations must re-validate and write within
// one atomic unit (a transaction with row locks, or a mutex for in-memory
// stores).
//
// # What this package must NOT do
//
//   - Hold an in-process lock across a store call.
//   - Import goIAM (the engine imports this package, not the reverse).
package hierarchy
