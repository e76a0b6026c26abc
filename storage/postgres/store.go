package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/hierarchy"
)

// Store holds the connection pool. One Store serves both the credential and
// the group interfaces; all methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

var (
	_ goIAM.CredentialStore = (*Store)(nil)
	_ hierarchy.GroupStore  = (*Store)(nil)
)

// Open dials PostgreSQL through the pgx driver and applies pool defaults
// suitable for an identity workload.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool. The caller keeps ownership of db.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema applies [Schema].
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

/*
====================================
CREDENTIAL STORE
====================================
*/

const principalColumns = `id, email, password_hash, failed_attempts, is_locked, locked_until, password_version, verified, is_active`

func scanPrincipal(row *sql.Row) (goIAM.Principal, error) {
	var p goIAM.Principal
	var lockedUntil sql.NullTime
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FailedAttempts, &p.IsLocked,
		&lockedUntil, &p.PasswordVersion, &p.Verified, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return goIAM.Principal{}, goIAM.ErrPrincipalNotFound
	}
	if err != nil {
		return goIAM.Principal{}, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		p.LockedUntil = &t
	}
	return p, nil
}

// FindPrincipalByEmail fetches the principal row only.
func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (goIAM.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	return scanPrincipal(row)
}

// FindPrincipalByID fetches the principal row only.
func (s *Store) FindPrincipalByID(ctx context.Context, id string) (goIAM.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// CreatePrincipal inserts a new account row.
func (s *Store) CreatePrincipal(ctx context.Context, p goIAM.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, email, password_hash, failed_attempts, is_locked, locked_until, password_version, verified, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Email, p.PasswordHash, p.FailedAttempts, p.IsLocked, p.LockedUntil,
		p.PasswordVersion, p.Verified, p.IsActive)
	return err
}

// RecordFailedAttempt runs the whole increment-and-maybe-lock transition in
// one UPDATE so concurrent failures serialize on the row lock. All SET
// expressions read the pre-update row, so the lock fires on exactly the
// statement whose increment reaches the threshold.
func (s *Store) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (goIAM.LockoutState, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE principals SET
			failed_attempts = failed_attempts + 1,
			is_locked       = is_locked OR failed_attempts + 1 >= $2,
			locked_until    = CASE WHEN NOT is_locked AND failed_attempts + 1 >= $2
			                       THEN now() + make_interval(secs => $3)
			                       ELSE locked_until END,
			updated_at      = now()
		WHERE id = $1
		RETURNING failed_attempts, is_locked, locked_until, failed_attempts = $2`,
		id, threshold, lockFor.Seconds())

	var state goIAM.LockoutState
	var lockedUntil sql.NullTime
	var crossed bool
	err := row.Scan(&state.FailedAttempts, &state.Locked, &lockedUntil, &crossed)
	if errors.Is(err, sql.ErrNoRows) {
		return goIAM.LockoutState{}, goIAM.ErrPrincipalNotFound
	}
	if err != nil {
		return goIAM.LockoutState{}, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		state.LockedUntil = &t
	}
	state.JustLocked = state.Locked && crossed
	return state, nil
}

// ClearExpiredLock resets lock state only when the lock has expired; the
// guard in the WHERE clause makes concurrent clears race-free.
func (s *Store) ClearExpiredLock(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE principals SET
			failed_attempts = 0,
			is_locked       = FALSE,
			locked_until    = NULL,
			updated_at      = now()
		WHERE id = $1 AND is_locked AND locked_until <= now()`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM principals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, goIAM.ErrPrincipalNotFound
	}
	return false, nil
}

// ResetLockout unconditionally clears the counter and lock fields.
func (s *Store) ResetLockout(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE principals SET
			failed_attempts = 0,
			is_locked       = FALSE,
			locked_until    = NULL,
			updated_at      = now()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetVerified marks the account's email as verified.
func (s *Store) SetVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET verified = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpdatePassword installs the new hash, retires the old one into history,
// bumps the version, and resets lockout state in one transaction. History
// beyond keepHistory entries is pruned.
func (s *Store) UpdatePassword(ctx context.Context, id, oldHash, newHash string, keepHistory int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE principals SET
			password_hash    = $2,
			password_version = password_version + 1,
			failed_attempts  = 0,
			is_locked        = FALSE,
			locked_until     = NULL,
			updated_at       = now()
		WHERE id = $1`, id, newHash)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO password_history (principal_id, password_hash)
		VALUES ($1, $2)`, id, oldHash); err != nil {
		return err
	}

	if keepHistory >= 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM password_history
			WHERE principal_id = $1 AND id NOT IN (
				SELECT id FROM password_history
				WHERE principal_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT $2
			)`, id, keepHistory); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PasswordHistory fetches up to limit retired hashes, newest first.
func (s *Store) PasswordHistory(ctx context.Context, id string, limit int) ([]goIAM.PasswordHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT principal_id, password_hash, created_at
		FROM password_history
		WHERE principal_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []goIAM.PasswordHistoryEntry
	for rows.Next() {
		var e goIAM.PasswordHistoryEntry
		if err := rows.Scan(&e.PrincipalID, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return goIAM.ErrPrincipalNotFound
	}
	return nil
}

/*
====================================
GROUP STORE
====================================
*/

// GetGroup fetches a single group row, no relations.
func (s *Store) GetGroup(ctx context.Context, kind hierarchy.Kind, id string) (hierarchy.Group, error) {
	var g hierarchy.Group
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, parent_id FROM groups WHERE kind = $1 AND id = $2`,
		string(kind), id).Scan(&g.ID, &g.Name, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return hierarchy.Group{}, hierarchy.ErrGroupNotFound
	}
	if err != nil {
		return hierarchy.Group{}, err
	}
	if parent.Valid {
		p := parent.String
		g.ParentID = &p
	}
	return g, nil
}

// CreateGroup inserts a new group row.
func (s *Store) CreateGroup(ctx context.Context, kind hierarchy.Kind, g hierarchy.Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (kind, id, name, parent_id) VALUES ($1, $2, $3, $4)`,
		string(kind), g.ID, g.Name, g.ParentID)
	return err
}

// Children fetches the immediate children only.
func (s *Store) Children(ctx context.Context, kind hierarchy.Kind, id string) ([]hierarchy.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, parent_id FROM groups WHERE kind = $1 AND parent_id = $2 ORDER BY id`,
		string(kind), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hierarchy.Group
	for rows.Next() {
		var g hierarchy.Group
		var parent sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &parent); err != nil {
			return nil, err
		}
		if parent.Valid {
			p := parent.String
			g.ParentID = &p
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetParent re-walks the new parent's ancestor chain inside the transaction
// and writes the pointer only if the chain never reaches the group itself.
// All reparents within one kind serialize on an advisory transaction lock:
// row locks on the two touched groups cannot cover the rest of the chain, so
// two concurrent reparents on disjoint row pairs could otherwise each pass
// the walk and jointly commit a cycle.
func (s *Store) SetParent(ctx context.Context, kind hierarchy.Kind, id string, parentID *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('goiam:groups:' || $1))`,
		string(kind)); err != nil {
		return err
	}

	if err := lockGroupRow(ctx, tx, kind, id); err != nil {
		return err
	}

	if parentID != nil {
		if *parentID == id {
			return hierarchy.ErrCyclicAssignment
		}
		if err := lockGroupRow(ctx, tx, kind, *parentID); err != nil {
			return err
		}

		// The depth bound is a backstop only: with the advisory lock held
		// the walk sees a forest, but it must still terminate if the data
		// was ever corrupted out of band.
		var cyclic bool
		err := tx.QueryRowContext(ctx, `
			WITH RECURSIVE ancestors AS (
				SELECT id, parent_id, 1 AS depth FROM groups WHERE kind = $1 AND id = $2
				UNION ALL
				SELECT g.id, g.parent_id, a.depth + 1
				FROM groups g
				JOIN ancestors a ON g.kind = $1 AND g.id = a.parent_id
				WHERE a.depth < 512
			)
			SELECT EXISTS (SELECT 1 FROM ancestors WHERE id = $3)`,
			string(kind), *parentID, id).Scan(&cyclic)
		if err != nil {
			return err
		}
		if cyclic {
			return hierarchy.ErrCyclicAssignment
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE groups SET parent_id = $3 WHERE kind = $1 AND id = $2`,
		string(kind), id, parentID); err != nil {
		return err
	}
	return tx.Commit()
}

func lockGroupRow(ctx context.Context, tx *sql.Tx, kind hierarchy.Kind, id string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM groups WHERE kind = $1 AND id = $2 FOR UPDATE`,
		string(kind), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return hierarchy.ErrGroupNotFound
	}
	return err
}

// DirectMembers fetches the member IDs mapped directly to the group.
func (s *Store) DirectMembers(ctx context.Context, kind hierarchy.Kind, groupID string) ([]string, error) {
	if err := s.requireGroup(ctx, kind, groupID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM group_members WHERE kind = $1 AND group_id = $2 ORDER BY member_id`,
		string(kind), groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMembers inserts edges; existing edges are kept, not duplicated.
func (s *Store) AddMembers(ctx context.Context, kind hierarchy.Kind, groupID string, memberIDs []string) error {
	if err := s.requireGroup(ctx, kind, groupID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_members (kind, group_id, member_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			string(kind), groupID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RemoveMembers deletes edges; absent edges are ignored.
func (s *Store) RemoveMembers(ctx context.Context, kind hierarchy.Kind, groupID string, memberIDs []string) error {
	if err := s.requireGroup(ctx, kind, groupID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE kind = $1 AND group_id = $2 AND member_id = $3`,
			string(kind), groupID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteGroups removes the batch or none of it: any target that is missing,
// still carries member edges, or still has child groups aborts the whole
// transaction.
func (s *Store) DeleteGroups(ctx context.Context, kind hierarchy.Kind, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if err := lockGroupRow(ctx, tx, kind, id); err != nil {
			return err
		}

		var hasMembers, hasChildren bool
		if err := tx.QueryRowContext(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM group_members WHERE kind = $1 AND group_id = $2),
				EXISTS (SELECT 1 FROM groups WHERE kind = $1 AND parent_id = $2)`,
			string(kind), id).Scan(&hasMembers, &hasChildren); err != nil {
			return err
		}
		if hasMembers || hasChildren {
			return fmt.Errorf("%w: %s", hierarchy.ErrGroupHasDependents, id)
		}
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM groups WHERE kind = $1 AND id = $2`,
			string(kind), id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) requireGroup(ctx context.Context, kind hierarchy.Kind, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE kind = $1 AND id = $2)`,
		string(kind), id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return hierarchy.ErrGroupNotFound
	}
	return nil
}
