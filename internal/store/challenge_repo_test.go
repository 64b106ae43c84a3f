package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mineworks/scavengerd/internal/domain"
)

func TestChallengeLog_StartAndComplete(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	repo := &ChallengeRepo{}
	ctx := context.Background()

	ch := domain.Challenge{ID: "ch-1", Difficulty: "0000ffff"}
	if err := repo.MarkStarted(ctx, db, ch); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}

	entries, err := repo.List(ctx, db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].CompletedAt != 0 {
		t.Error("CompletedAt set before completion")
	}

	if err := repo.MarkCompleted(ctx, db, "ch-1", 7); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	entries, err = repo.List(ctx, db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries[0].CompletedAt == 0 {
		t.Error("CompletedAt not set after completion")
	}
	if entries[0].SolvedCount != 7 {
		t.Errorf("SolvedCount = %d, want 7", entries[0].SolvedCount)
	}
}

func TestChallengeLog_ReadoptIsNoOp(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	repo := &ChallengeRepo{}
	ctx := context.Background()

	ch := domain.Challenge{ID: "ch-1", Difficulty: "aa"}
	if err := repo.MarkStarted(ctx, db, ch); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	ch.Difficulty = "bb"
	if err := repo.MarkStarted(ctx, db, ch); err != nil {
		t.Fatalf("MarkStarted (repeat): %v", err)
	}

	entries, err := repo.List(ctx, db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].Difficulty != "aa" {
		t.Errorf("Difficulty = %q, want original aa", entries[0].Difficulty)
	}
}
