package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpilot-ai/flowpilot/session/session_models"
)

func turn(role, content string) session_models.Turn {
	return session_models.Turn{Role: role, Content: content, CreatedAt: time.Now()}
}

func TestAppendAndHistoryPreserveOrder(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, "s1", turn("user", "first"), turn("assistant", "second")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, "s1", turn("user", "third")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, err := store.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"first", "second", "third"} {
		if turns[i].Content != want {
			t.Fatalf("turn %d = %q, want %q", i, turns[i].Content, want)
		}
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	store := NewStore(0)
	if _, err := store.History(context.Background(), "missing"); !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Append(ctx, "s1", turn("user", "hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.History(ctx, "s1"); !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expired sessions must not be listed: %+v", summaries)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, "s1", turn("user", "hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.History(ctx, "s1"); !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
	if err := store.Delete(ctx, "s1"); !errors.Is(err, session_models.ErrNotFound) {
		t.Fatalf("double delete should report not found, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := NewStore(0)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.Append(ctx, "old", turn("user", "a"))
	now = now.Add(time.Minute)
	store.Append(ctx, "new", turn("user", "b"))

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ID != "new" || summaries[1].ID != "old" {
		t.Fatalf("unexpected order: %+v", summaries)
	}
}
