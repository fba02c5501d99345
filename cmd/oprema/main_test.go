package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erazemk/oprema/internal/store"
)

func TestLevelRouterSplitsOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(newLevelRouter(slog.LevelInfo, &stdout, &stderr))

	logger.Debug("hidden")
	logger.Info("hello")
	logger.Warn("careful")
	logger.With("component", "x").Error("broken")

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug record written below configured level")
	}
	if !strings.Contains(stdout.String(), "hello") || !strings.Contains(stdout.String(), "careful") {
		t.Errorf("expected info and warn on stdout, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "broken") {
		t.Error("error record written to stdout")
	}
	if !strings.Contains(stderr.String(), "broken") || !strings.Contains(stderr.String(), "component=x") {
		t.Errorf("expected error with attrs on stderr, got %q", stderr.String())
	}
}

func TestGeneratePassword(t *testing.T) {
	p, err := generatePassword(16)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 16 {
		t.Errorf("expected 16 characters, got %d", len(p))
	}
}

func TestInitDatabaseCreatesAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oprema.db")
	database, password, err := initDatabase(path, "root")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	if password == "" {
		t.Error("expected generated password")
	}
	u, err := store.GetUserByUsername(t.Context(), database, "root")
	if err != nil || u == nil {
		t.Fatalf("admin not created: %v", err)
	}
	if u.Role != "admin" {
		t.Errorf("expected admin role, got %q", u.Role)
	}
}
