package session

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

func TestMemoryStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	_, err := store.Load(context.Background(), contractx.PlatformWhatsApp, "user-1")
	if !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("Load() error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreSaveThenLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	sess := New("sé amable")
	sess.Append(contractx.UserTurn("hola"), contractx.ModelTurn("hola!"))
	if err := store.Save(ctx, contractx.PlatformWhatsApp, "user-1", sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, contractx.PlatformWhatsApp, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SystemInstruction != "sé amable" {
		t.Fatalf("instruction = %q, want %q", got.SystemInstruction, "sé amable")
	}
	if len(got.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(got.History))
	}

	// Mutating the loaded copy must not leak into the store.
	got.Append(contractx.UserTurn("extra"))
	again, err := store.Load(ctx, contractx.PlatformWhatsApp, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(again.History) != 2 {
		t.Fatalf("stored history grew to %d turns", len(again.History))
	}
}

func TestMemoryStoreSessionsAreIsolatedByPlatform(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	if err := store.Save(ctx, contractx.PlatformWhatsApp, "user-1", New("a")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, err := store.Load(ctx, contractx.PlatformMessenger, "user-1")
	if !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("cross-platform Load() error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	if err := store.Save(ctx, contractx.PlatformWhatsApp, "user-1", New("a")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	current = current.Add(30 * time.Minute)
	if _, err := store.Load(ctx, contractx.PlatformWhatsApp, "user-1"); err != nil {
		t.Fatalf("Load() before expiry error = %v", err)
	}

	current = current.Add(time.Hour)
	_, err := store.Load(ctx, contractx.PlatformWhatsApp, "user-1")
	if !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("Load() after expiry error = %v, want ErrSessionNotFound", err)
	}

	ids, err := store.List(ctx, contractx.PlatformWhatsApp)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("List() after expiry = %v, want empty", ids)
	}
}

func TestMemoryStoreSetInstructionPreservesHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	sess := New("old persona")
	sess.Append(contractx.UserTurn("hola"), contractx.ModelTurn("hola!"))
	if err := store.Save(ctx, contractx.PlatformMessenger, "user-9", sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.SetInstruction(ctx, contractx.PlatformMessenger, "user-9", "new persona"); err != nil {
		t.Fatalf("SetInstruction() error = %v", err)
	}

	got, err := store.Load(ctx, contractx.PlatformMessenger, "user-9")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SystemInstruction != "new persona" {
		t.Fatalf("instruction = %q, want %q", got.SystemInstruction, "new persona")
	}
	if len(got.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(got.History))
	}
}

func TestMemoryStoreSetInstructionCreatesSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	if err := store.SetInstruction(ctx, contractx.PlatformWhatsApp, "fresh", "persona"); err != nil {
		t.Fatalf("SetInstruction() error = %v", err)
	}

	got, err := store.Load(ctx, contractx.PlatformWhatsApp, "fresh")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SystemInstruction != "persona" {
		t.Fatalf("instruction = %q, want %q", got.SystemInstruction, "persona")
	}
	if len(got.History) != 0 {
		t.Fatalf("len(History) = %d, want 0", len(got.History))
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, contractx.PlatformWhatsApp, id, New("")); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}
	if err := store.Save(ctx, contractx.PlatformMessenger, "m", New("")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ids, err := store.List(ctx, contractx.PlatformWhatsApp)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("List() = %v, want [a b c]", ids)
	}

	if err := store.Delete(ctx, contractx.PlatformWhatsApp, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, err = store.Load(ctx, contractx.PlatformWhatsApp, "b")
	if !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("Load() after delete error = %v, want ErrSessionNotFound", err)
	}
}
