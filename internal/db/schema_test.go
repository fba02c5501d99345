package db

import (
	"testing"
	"time"
)

func TestEnsureSchemaIdempotent(t *testing.T) {
	database := NewTestDB(t)

	if err := EnsureSchema(database); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestPendingTransferUniquePerEquipment(t *testing.T) {
	database := NewTestDB(t)
	now := time.Now().UTC()

	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := database.Exec(query, args...); err != nil {
			t.Fatalf("exec %q: %v", query, err)
		}
	}

	mustExec(`INSERT INTO users (id, username, display_name, password_hash) VALUES ('a', 'a', 'A', 'x'), ('b', 'b', 'B', 'x')`)
	mustExec(`INSERT INTO equipment (id, name, holder_id) VALUES ('EQ-1', 'Radio', 'a')`)

	insert := `INSERT INTO transfer_requests
	    (id, equipment_id, equipment_name, from_user_id, from_user_name, to_user_id, to_user_name,
	     reason, status, created_at, updated_at)
	    VALUES (?, 'EQ-1', 'Radio', 'a', 'A', 'b', 'B', 'rotation', ?, ?, ?)`

	mustExec(insert, "t1", "pending", now, now)

	if _, err := database.Exec(insert, "t2", "pending", now, now); err == nil {
		t.Fatal("expected unique violation for second pending request")
	}

	// Terminal requests do not count against the pending limit.
	mustExec(insert, "t3", "cancelled", now, now)
	mustExec(insert, "t4", "completed", now, now)
}

func TestTransferToSelfRejectedBySchema(t *testing.T) {
	database := NewTestDB(t)
	now := time.Now().UTC()

	database.Exec(`INSERT INTO users (id, username, display_name, password_hash) VALUES ('a', 'a', 'A', 'x')`)
	database.Exec(`INSERT INTO equipment (id, name, holder_id) VALUES ('EQ-1', 'Radio', 'a')`)

	_, err := database.Exec(`INSERT INTO transfer_requests
	    (id, equipment_id, equipment_name, from_user_id, from_user_name, to_user_id, to_user_name,
	     reason, created_at, updated_at)
	    VALUES ('t1', 'EQ-1', 'Radio', 'a', 'A', 'a', 'A', 'rotation', ?, ?)`, now, now)
	if err == nil {
		t.Error("expected check constraint violation for transfer to self")
	}
}
