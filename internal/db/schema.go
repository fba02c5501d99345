package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    display_name  TEXT NOT NULL,
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS equipment (
    id            TEXT PRIMARY KEY,
    serial_number TEXT NOT NULL DEFAULT '',
    name          TEXT NOT NULL,
    holder_id     TEXT REFERENCES users(id),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transfer_requests (
    id                   TEXT PRIMARY KEY,
    equipment_id         TEXT NOT NULL REFERENCES equipment(id),
    equipment_name       TEXT NOT NULL,
    from_user_id         TEXT NOT NULL REFERENCES users(id),
    from_user_name       TEXT NOT NULL,
    to_user_id           TEXT NOT NULL REFERENCES users(id),
    to_user_name         TEXT NOT NULL,
    reason               TEXT NOT NULL CHECK (reason <> ''),
    note                 TEXT,
    status               TEXT NOT NULL DEFAULT 'pending'
                         CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled', 'completed')),
    rejection_reason     TEXT,
    responded_by         TEXT,
    reminder_count       INTEGER NOT NULL DEFAULT 0,
    last_reminder_at     DATETIME,
    needs_reconciliation INTEGER NOT NULL DEFAULT 0,
    created_at           DATETIME NOT NULL,
    updated_at           DATETIME NOT NULL,
    responded_at         DATETIME,
    CHECK (from_user_id <> to_user_id)
);

-- At most one pending request per equipment item.
CREATE UNIQUE INDEX IF NOT EXISTS idx_transfer_requests_pending
    ON transfer_requests(equipment_id) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_transfer_requests_from
    ON transfer_requests(from_user_id, created_at);

CREATE INDEX IF NOT EXISTS idx_transfer_requests_to
    ON transfer_requests(to_user_id, created_at);

CREATE TABLE IF NOT EXISTS notifications (
    id                       TEXT PRIMARY KEY,
    user_id                  TEXT NOT NULL REFERENCES users(id),
    type                     TEXT NOT NULL,
    title                    TEXT NOT NULL,
    message                  TEXT NOT NULL,
    related_equipment_id     TEXT,
    related_equipment_doc_id TEXT,
    related_transfer_id      TEXT,
    equipment_name           TEXT,
    is_read                  INTEGER NOT NULL DEFAULT 0,
    created_at               DATETIME NOT NULL,
    read_at                  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created
    ON notifications(user_id, created_at);

CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(user_id, is_read) WHERE is_read = 0;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations are applied in order after schema creation. Each migration must
// be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: holder lookups for the equipment list.
	`CREATE INDEX IF NOT EXISTS idx_equipment_holder ON equipment(holder_id)`,
	// Migration 2: reconciliation sweep.
	`CREATE INDEX IF NOT EXISTS idx_transfer_requests_reconcile
	     ON transfer_requests(responded_at) WHERE needs_reconciliation = 1`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
