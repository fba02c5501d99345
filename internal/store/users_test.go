package store

import (
	"context"
	"testing"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "jnovak", "Janez Novak", "janez@example.com", "hash123", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected generated id")
	}
	if user.DisplayName != "Janez Novak" {
		t.Errorf("expected display name 'Janez Novak', got %q", user.DisplayName)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "jnovak" || got.Email != "janez@example.com" {
		t.Errorf("unexpected user %+v", got)
	}
}

func TestCreateUserDefaultsDisplayName(t *testing.T) {
	database := db.NewTestDB(t)

	user, err := CreateUser(context.Background(), database, "mkos", "", "", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.DisplayName != "mkos" {
		t.Errorf("expected display name to fall back to username, got %q", user.DisplayName)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "Alice", "", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("expected alice, got %+v", user)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestDeletedUsernameCanBeReused(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, _ := CreateUser(ctx, database, "alice", "Alice", "", "hash", model.RoleUser)
	if err := DeleteUser(ctx, database, first.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	second, err := CreateUser(ctx, database, "alice", "Alice Two", "", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser after delete: %v", err)
	}

	got, _ := GetUserByUsername(ctx, database, "alice")
	if got == nil || got.ID != second.ID {
		t.Errorf("expected active alice to be the new user, got %+v", got)
	}

	ids, _ := ListUserIDs(ctx, database)
	if len(ids) != 1 || ids[0] != second.ID {
		t.Errorf("expected only the active user id, got %v", ids)
	}
}

func TestUpdateUserRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "alice", "Alice", "", "hash", model.RoleUser)
	if err := UpdateUserRole(ctx, database, user.ID, model.RoleManager); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleManager {
		t.Errorf("expected manager, got %q", got.Role)
	}
}
