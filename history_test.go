package main

import (
	"context"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := OpenHistoryStore(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHistoryRecent(t *testing.T) {
	store := openTestHistory(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	entries := []HistoryEntry{
		{SessionID: "s1", VideoID: "a.mp4", StartedAt: base, Frames: 90, Watched: 3 * time.Second, Outcome: "end"},
		{SessionID: "s2", VideoID: "b.mp4", StartedAt: base.Add(time.Minute), Frames: 12, Watched: 400 * time.Millisecond, Outcome: "next"},
		{SessionID: "s3", VideoID: "c.mp4", StartedAt: base.Add(2 * time.Minute), Frames: 0, Outcome: "quit"},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("record %s: %v", e.SessionID, err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].SessionID != "s3" || recent[1].SessionID != "s2" {
		t.Errorf("order = %s, %s; want s3, s2", recent[0].SessionID, recent[1].SessionID)
	}

	got := recent[1]
	if got.VideoID != "b.mp4" || got.Frames != 12 || got.Outcome != "next" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Watched != 400*time.Millisecond {
		t.Errorf("watched = %v, want 400ms", got.Watched)
	}
	if !got.StartedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("started = %v, want %v", got.StartedAt, base.Add(time.Minute))
	}
}

func TestHistoryDuplicateSession(t *testing.T) {
	store := openTestHistory(t)
	ctx := context.Background()
	e := HistoryEntry{SessionID: "same", VideoID: "a.mp4", StartedAt: time.Now(), Outcome: "end"}

	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := store.Record(ctx, e); err == nil {
		t.Error("recording a session twice should fail")
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("got %d entries, want 1", len(recent))
	}
}

func TestHistoryCloseNil(t *testing.T) {
	var store *HistoryStore
	if err := store.Close(); err != nil {
		t.Errorf("closing a nil store: %v", err)
	}
}
