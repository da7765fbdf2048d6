package sniffer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
}

func TestSnapshotReportsCleanRepo(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("git", "add", "a.txt")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v: %s", err, out)
	}
	commitCmd := exec.Command("git", "commit", "-m", "initial")
	commitCmd.Dir = dir
	commitCmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com", "GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	if out, err := commitCmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v: %s", err, out)
	}

	s := New(dir, filepath.Join(dir, "SCRATCHPAD.md"), 200*time.Millisecond)
	snap := s.Snapshot(context.Background())

	if snap.VCS == nil {
		t.Fatal("expected VCS status for a git working copy")
	}
	if snap.VCS.StagedCount != 0 || snap.VCS.ModifiedCount != 0 {
		t.Fatalf("expected clean tree, got staged=%d modified=%d", snap.VCS.StagedCount, snap.VCS.ModifiedCount)
	}
}

func TestSnapshotReportsStagedAndModified(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("tracked.txt", "v1\n")
	addCmd := exec.Command("git", "add", "tracked.txt")
	addCmd.Dir = dir
	if out, err := addCmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v: %s", err, out)
	}
	commitCmd := exec.Command("git", "commit", "-m", "initial")
	commitCmd.Dir = dir
	commitCmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com", "GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	if out, err := commitCmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v: %s", err, out)
	}

	write("tracked.txt", "v2\n")
	write("untracked_staged.txt", "new\n")
	addCmd2 := exec.Command("git", "add", "untracked_staged.txt")
	addCmd2.Dir = dir
	if out, err := addCmd2.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v: %s", err, out)
	}

	s := New(dir, filepath.Join(dir, "SCRATCHPAD.md"), 200*time.Millisecond)
	snap := s.Snapshot(context.Background())

	if snap.VCS == nil {
		t.Fatal("expected VCS status")
	}
	if snap.VCS.StagedCount != 1 {
		t.Fatalf("expected 1 staged file, got %d", snap.VCS.StagedCount)
	}
	if snap.VCS.ModifiedCount != 1 {
		t.Fatalf("expected 1 modified (unstaged) file, got %d", snap.VCS.ModifiedCount)
	}
	if len(snap.VCS.Preview) != 1 || snap.VCS.Preview[0] != "tracked.txt" {
		t.Fatalf("expected preview [tracked.txt], got %v", snap.VCS.Preview)
	}
}

func TestSnapshotNonRepoHasNilVCS(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "SCRATCHPAD.md"), 200*time.Millisecond)
	snap := s.Snapshot(context.Background())
	if snap.VCS != nil {
		t.Fatalf("expected nil VCS for non-repo dir, got %+v", snap.VCS)
	}
}

func TestSnapshotScratchpadLineCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SCRATCHPAD.md")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, path, 200*time.Millisecond)
	snap := s.Snapshot(context.Background())
	if snap.ScratchpadLines != 3 {
		t.Fatalf("expected 3 scratchpad lines, got %d", snap.ScratchpadLines)
	}
}

func TestSnapshotMissingScratchpadIsZero(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "MISSING.md"), 200*time.Millisecond)
	snap := s.Snapshot(context.Background())
	if snap.ScratchpadLines != 0 {
		t.Fatalf("expected 0 for missing scratchpad, got %d", snap.ScratchpadLines)
	}
}

func TestToPromptStringStable(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "MISSING.md"), 200*time.Millisecond)
	snap := s.Snapshot(context.Background())
	out := snap.ToPromptString()
	if out == "" {
		t.Fatal("expected non-empty prompt string")
	}
}
