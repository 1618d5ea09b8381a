package hydrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"palaver/internal/directory"
	"palaver/internal/models"
	"palaver/internal/storage"
)

func newTestHydrator(t *testing.T) (*Hydrator, *storage.BboltStorage, *directory.Directory) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "hydrate_test")
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
	dir := directory.New(ctx, store, "X-User-ID", time.Minute)

	return New(store, dir), store, dir
}

func seedProfiles(t *testing.T, dir *directory.Directory, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := dir.Upsert(models.Profile{
			ID:          id,
			DisplayName: "User " + id,
			Email:       id + "@example.com",
			AvatarRef:   "avatars/" + id,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestHydrate(t *testing.T) {
	h, store, dir := newTestHydrator(t)
	seedProfiles(t, dir, "alice", "bob")

	conv, _, err := store.FindOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := store.AppendMessage("alice", conv.ID, "hi", models.MessageKindIndividual, "bob")
	if err != nil {
		t.Fatal(err)
	}

	out, err := h.Hydrate(conv.ID, "alice")
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if len(out.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(out.Members))
	}
	if out.Members[0].DisplayName != "User alice" {
		t.Errorf("unexpected member record: %+v", out.Members[0])
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}
	got := out.Messages[0]
	if got.ID != msg.ID || got.Sender.ID != "alice" {
		t.Errorf("unexpected hydrated message: %+v", got)
	}
	if got.Receiver == nil || got.Receiver.ID != "bob" {
		t.Errorf("expected resolved receiver, got %+v", got.Receiver)
	}
}

func TestHydrate_DropsSensitiveFields(t *testing.T) {
	h, store, dir := newTestHydrator(t)
	seedProfiles(t, dir, "alice", "bob")

	conv, _, err := store.FindOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	out, err := h.Hydrate(conv.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	// DisplayUser has no email field; make sure the avatar survives the
	// projection so the shape is the intended one.
	if out.Members[0].AvatarRef == "" {
		t.Errorf("avatar missing from display record: %+v", out.Members[0])
	}
}

func TestHydrate_Ordering(t *testing.T) {
	h, store, dir := newTestHydrator(t)
	seedProfiles(t, dir, "alice", "bob", "carol")

	conv, err := store.CreateGroup("Team", "alice", []string{"bob", "carol"})
	if err != nil {
		t.Fatal(err)
	}
	for _, body := range []string{"first", "second", "third"} {
		if _, err := store.AppendMessage("alice", conv.ID, body, models.MessageKindGroup, ""); err != nil {
			t.Fatal(err)
		}
	}

	out, err := h.Hydrate(conv.ID, "carol")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if out.Messages[i].Body != w {
			t.Errorf("message %d: expected %q, got %q", i, w, out.Messages[i].Body)
		}
	}
}

func TestHydrate_NotFound(t *testing.T) {
	h, _, _ := newTestHydrator(t)
	if _, err := h.Hydrate("nope", "alice"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHydrate_NonMember(t *testing.T) {
	h, store, dir := newTestHydrator(t)
	seedProfiles(t, dir, "alice", "bob", "mallory")

	conv, _, err := store.FindOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Hydrate(conv.ID, "mallory"); !errors.Is(err, models.ErrAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
}

func TestHydrate_UnresolvedUserIsFatal(t *testing.T) {
	h, store, dir := newTestHydrator(t)
	seedProfiles(t, dir, "alice") // bob deliberately missing

	conv, _, err := store.FindOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Hydrate(conv.ID, "alice"); !errors.Is(err, models.ErrDependency) {
		t.Errorf("expected dependency error for unresolved member, got %v", err)
	}
}
