package storage

import (
	"context"
	"testing"
)

func TestInMemoryStoreAppendAndList(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	user := UserRecord("test-session", "Hello")
	if err := store.AppendMessage(ctx, &user); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if user.ID == "" {
		t.Error("expected AppendMessage to assign an ID")
	}

	reply := UserRecord("test-session", "Hello again")
	if err := store.AppendMessage(ctx, &reply); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	loaded, err := store.Messages(ctx, "test-session")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}
	if loaded[0].Content != "Hello" || loaded[1].Content != "Hello again" {
		t.Errorf("messages out of append order: %+v", loaded)
	}
}

func TestInMemoryStoreUnknownSession(t *testing.T) {
	store := NewInMemoryStore()

	loaded, err := store.Messages(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Errorf("expected empty slice, got %v", loaded)
	}
}

func TestInMemoryStoreCopies(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	msg := UserRecord("test-session", "original")
	if err := store.AppendMessage(ctx, &msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	loaded, _ := store.Messages(ctx, "test-session")
	loaded[0].Content = "mutated"

	again, _ := store.Messages(ctx, "test-session")
	if again[0].Content != "original" {
		t.Error("store aliased its internal slice with the caller")
	}
}

func TestInMemoryStoreDeleteSession(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	msg := UserRecord("test-session", "Test")
	if err := store.AppendMessage(ctx, &msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if err := store.DeleteSession(ctx, "test-session"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	exists, err := store.Exists(ctx, "test-session")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected session to not exist after deletion")
	}

	sessions, _ := store.ListSessions(ctx)
	if len(sessions) != 0 {
		t.Errorf("expected empty session list, got %v", sessions)
	}
}

func TestInMemoryStoreListSessionsRecency(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, session := range []string{"first", "second", "first"} {
		msg := UserRecord(session, "Test")
		if err := store.AppendMessage(ctx, &msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0] != "first" || sessions[1] != "second" {
		t.Errorf("sessions = %v, want most recently written first", sessions)
	}
}
