package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/hierarchy"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindPrincipalByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	until := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "failed_attempts", "is_locked",
		"locked_until", "password_version", "verified", "is_active",
	}).AddRow("u1", "alice@example.com", "$argon2id$...", 2, true, until, 3, true, true)

	mock.ExpectQuery("SELECT (.+) FROM principals WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	p, err := store.FindPrincipalByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindPrincipalByEmail: %v", err)
	}
	if p.ID != "u1" || p.FailedAttempts != 2 || !p.IsLocked {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.LockedUntil == nil || !p.LockedUntil.Equal(until) {
		t.Fatalf("locked_until not carried over: %v", p.LockedUntil)
	}
	expectationsMet(t, mock)
}

func TestFindPrincipalByID_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM principals WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindPrincipalByID(context.Background(), "missing")
	if !errors.Is(err, goIAM.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRecordFailedAttempt_CrossesThreshold(t *testing.T) {
	store, mock := newMockStore(t)

	until := time.Now().Add(30 * time.Minute)
	mock.ExpectQuery("UPDATE principals SET").
		WithArgs("u1", 3, float64(1800)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "is_locked", "locked_until", "crossed"}).
			AddRow(3, true, until, true))

	state, err := store.RecordFailedAttempt(context.Background(), "u1", 3, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if !state.Locked || !state.JustLocked {
		t.Fatalf("expected locking transition, got %+v", state)
	}
	if state.FailedAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", state.FailedAttempts)
	}
	expectationsMet(t, mock)
}

func TestRecordFailedAttempt_BelowThreshold(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE principals SET").
		WithArgs("u1", 5, float64(1800)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "is_locked", "locked_until", "crossed"}).
			AddRow(1, false, nil, false))

	state, err := store.RecordFailedAttempt(context.Background(), "u1", 5, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if state.Locked || state.JustLocked || state.LockedUntil != nil {
		t.Fatalf("expected plain increment, got %+v", state)
	}
	expectationsMet(t, mock)
}

func TestRecordFailedAttempt_AlreadyLockedDoesNotRelock(t *testing.T) {
	store, mock := newMockStore(t)

	until := time.Now().Add(10 * time.Minute)
	// Counter already past the threshold: locked stays, crossed is false.
	mock.ExpectQuery("UPDATE principals SET").
		WithArgs("u1", 3, float64(1800)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "is_locked", "locked_until", "crossed"}).
			AddRow(4, true, until, false))

	state, err := store.RecordFailedAttempt(context.Background(), "u1", 3, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if !state.Locked || state.JustLocked {
		t.Fatalf("lock must fire once only, got %+v", state)
	}
	expectationsMet(t, mock)
}

func TestClearExpiredLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE principals SET").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cleared, err := store.ClearExpiredLock(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ClearExpiredLock: %v", err)
	}
	if !cleared {
		t.Fatal("expected cleared = true")
	}
	expectationsMet(t, mock)
}

func TestClearExpiredLock_StillLockedIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE principals SET").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	cleared, err := store.ClearExpiredLock(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ClearExpiredLock: %v", err)
	}
	if cleared {
		t.Fatal("guarded update must not report a clear")
	}
	expectationsMet(t, mock)
}

func TestClearExpiredLock_UnknownPrincipal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE principals SET").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ClearExpiredLock(context.Background(), "missing")
	if !errors.Is(err, goIAM.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestUpdatePassword_TransactionShape(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE principals SET").
		WithArgs("u1", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO password_history").
		WithArgs("u1", "old-hash").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM password_history").
		WithArgs("u1", 5).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.UpdatePassword(context.Background(), "u1", "old-hash", "new-hash", 5); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	expectationsMet(t, mock)
}

func TestUpdatePassword_UnknownPrincipalRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE principals SET").
		WithArgs("missing", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.UpdatePassword(context.Background(), "missing", "old-hash", "new-hash", 5)
	if !errors.Is(err, goIAM.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestPasswordHistory(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT principal_id, password_hash, created_at").
		WithArgs("u1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"principal_id", "password_hash", "created_at"}).
			AddRow("u1", "hash-b", now).
			AddRow("u1", "hash-a", now.Add(-time.Hour)))

	entries, err := store.PasswordHistory(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("PasswordHistory: %v", err)
	}
	if len(entries) != 2 || entries[0].PasswordHash != "hash-b" {
		t.Fatalf("unexpected history: %+v", entries)
	}
	expectationsMet(t, mock)
}

func TestSetParent_CycleDetectedInTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	parent := "grandchild"
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("role").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "root").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "grandchild").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("WITH RECURSIVE ancestors").
		WithArgs("role", "grandchild", "root").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.SetParent(context.Background(), hierarchy.KindRole, "root", &parent)
	if !errors.Is(err, hierarchy.ErrCyclicAssignment) {
		t.Fatalf("expected ErrCyclicAssignment, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestSetParent_WritesPointer(t *testing.T) {
	store, mock := newMockStore(t)

	parent := "staff"
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("role").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "admins").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("WITH RECURSIVE ancestors").
		WithArgs("role", "staff", "admins").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE groups SET parent_id").
		WithArgs("role", "admins", "staff").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.SetParent(context.Background(), hierarchy.KindRole, "admins", &parent); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	expectationsMet(t, mock)
}

func TestSetParent_ClearToRoot(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("role").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "admins").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("UPDATE groups SET parent_id").
		WithArgs("role", "admins", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.SetParent(context.Background(), hierarchy.KindRole, "admins", nil); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	expectationsMet(t, mock)
}

func TestSetParent_SelfParentRejectedBeforeChainWalk(t *testing.T) {
	store, mock := newMockStore(t)

	self := "admins"
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("role").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "admins").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	err := store.SetParent(context.Background(), hierarchy.KindRole, "admins", &self)
	if !errors.Is(err, hierarchy.ErrCyclicAssignment) {
		t.Fatalf("expected ErrCyclicAssignment, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeleteGroups_DependentAbortsWholeBatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM groups").
		WithArgs("role", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT").
		WithArgs("role", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"has_members", "has_children"}).AddRow(false, true))
	mock.ExpectRollback()

	err := store.DeleteGroups(context.Background(), hierarchy.KindRole, []string{"staff", "auditors"})
	if !errors.Is(err, hierarchy.ErrGroupHasDependents) {
		t.Fatalf("expected ErrGroupHasDependents, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeleteGroups_CleanBatchCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	for _, id := range []string{"a", "b"} {
		mock.ExpectQuery("SELECT 1 FROM groups").
			WithArgs("role", id).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectQuery("SELECT").
			WithArgs("role", id).
			WillReturnRows(sqlmock.NewRows([]string{"has_members", "has_children"}).AddRow(false, false))
	}
	for _, id := range []string{"a", "b"} {
		mock.ExpectExec("DELETE FROM groups").
			WithArgs("role", id).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := store.DeleteGroups(context.Background(), hierarchy.KindRole, []string{"a", "b"}); err != nil {
		t.Fatalf("DeleteGroups: %v", err)
	}
	expectationsMet(t, mock)
}

func TestAddMembers_InsertsEachEdge(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("role", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO group_members").
		WithArgs("role", "staff", "r1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO group_members").
		WithArgs("role", "staff", "r2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.AddMembers(context.Background(), hierarchy.KindRole, "staff", []string{"r1", "r2"}); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}
	expectationsMet(t, mock)
}

func TestDirectMembers_UnknownGroup(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("role", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.DirectMembers(context.Background(), hierarchy.KindRole, "missing")
	if !errors.Is(err, hierarchy.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}
