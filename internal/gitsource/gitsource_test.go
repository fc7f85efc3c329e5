package gitsource

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestSyncClonesThenPulls(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	upstream := t.TempDir()
	repo, err := git.PlainInit(upstream, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	commitFile(t, repo, upstream, "words.md", "W: eins\nT: one\n")

	local := filepath.Join(t.TempDir(), "checkout")
	if err := Sync(ctx, logger, upstream, local); err != nil {
		t.Fatalf("Sync (clone): %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "words.md")); err != nil {
		t.Fatalf("Expected words.md in checkout, but got %v", err)
	}

	// Nothing new upstream.
	if err := Sync(ctx, logger, upstream, local); err != nil {
		t.Fatalf("Sync (up to date): %v", err)
	}

	commitFile(t, repo, upstream, "more.md", "W: zwei\nT: two\n")
	if err := Sync(ctx, logger, upstream, local); err != nil {
		t.Fatalf("Sync (pull): %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "more.md")); err != nil {
		t.Errorf("Expected more.md after pull, but got %v", err)
	}
}

func TestSyncRejectsMissingRemote(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	local := filepath.Join(t.TempDir(), "checkout")
	if err := Sync(context.Background(), logger, filepath.Join(t.TempDir(), "nope"), local); err == nil {
		t.Error("Expected an error for a missing remote, but got nil")
	}
}
