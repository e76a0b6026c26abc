package postgres

// Schema is the DDL for every table this store touches. Apply it with any
// migration tool; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS principals (
    id               TEXT PRIMARY KEY,
    email            TEXT NOT NULL UNIQUE,
    password_hash    TEXT NOT NULL,
    failed_attempts  INTEGER NOT NULL DEFAULT 0,
    is_locked        BOOLEAN NOT NULL DEFAULT FALSE,
    locked_until     TIMESTAMPTZ,
    password_version INTEGER NOT NULL DEFAULT 1,
    verified         BOOLEAN NOT NULL DEFAULT FALSE,
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS password_history (
    id            BIGSERIAL PRIMARY KEY,
    principal_id  TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS password_history_principal_idx
    ON password_history (principal_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS groups (
    kind      TEXT NOT NULL,
    id        TEXT NOT NULL,
    name      TEXT NOT NULL,
    parent_id TEXT,
    PRIMARY KEY (kind, id),
    FOREIGN KEY (kind, parent_id) REFERENCES groups (kind, id)
);

CREATE INDEX IF NOT EXISTS groups_parent_idx ON groups (kind, parent_id);

CREATE TABLE IF NOT EXISTS group_members (
    kind      TEXT NOT NULL,
    group_id  TEXT NOT NULL,
    member_id TEXT NOT NULL,
    PRIMARY KEY (kind, group_id, member_id),
    FOREIGN KEY (kind, group_id) REFERENCES groups (kind, id) ON DELETE CASCADE
);
`
