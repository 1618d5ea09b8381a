package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"palaver/internal/directory"
	"palaver/internal/models"
	"palaver/internal/storage"
)

func newTestAdmin(t *testing.T) (*AdminHandler, *directory.Directory) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "admin_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := storage.NewBboltStorage(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dir := directory.New(ctx, store, identityHeader, time.Minute)
	return NewAdminHandler(dir), dir
}

func TestSyncUserHandler(t *testing.T) {
	h, dir := newTestAdmin(t)

	rec := doRequest(t, h.SyncUserHandler, http.MethodPost, "/admin/users", "",
		SyncUserRequest{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	p, err := dir.Lookup("alice")
	if err != nil {
		t.Fatalf("synced profile not found: %v", err)
	}
	if p.DisplayName != "Alice" || p.Email != "alice@example.com" {
		t.Errorf("unexpected profile: %+v", p)
	}

	// Upsert overwrites.
	rec = doRequest(t, h.SyncUserHandler, http.MethodPost, "/admin/users", "",
		SyncUserRequest{ID: "alice", DisplayName: "Alice B.", Email: "alice@example.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if p, _ := dir.Lookup("alice"); p.DisplayName != "Alice B." {
		t.Errorf("upsert did not overwrite: %+v", p)
	}

	t.Run("MissingID", func(t *testing.T) {
		rec := doRequest(t, h.SyncUserHandler, http.MethodPost, "/admin/users", "",
			map[string]any{"displayName": "X", "email": "x@example.com"}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("BadEmail", func(t *testing.T) {
		rec := doRequest(t, h.SyncUserHandler, http.MethodPost, "/admin/users", "",
			SyncUserRequest{ID: "bob", DisplayName: "Bob", Email: "not-an-email"}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestListUsersHandler(t *testing.T) {
	h, dir := newTestAdmin(t)
	if err := dir.Upsert(models.Profile{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, h.ListUsersHandler, http.MethodGet, "/admin/users", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	profiles := decodeBody[[]models.Profile](t, rec)
	if len(profiles) != 1 || profiles[0].Email != "alice@example.com" {
		t.Errorf("expected full profile with email, got %+v", profiles)
	}
}
