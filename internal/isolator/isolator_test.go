package isolator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// fakeInterpreterScript writes a tiny shell script standing in for a
// subprocess interpreter honoring the (entry_path, command_name, json_args)
// command-line contract, then returns its path for use as iso.interpreter.
func fakeInterpreterScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-interpreter.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCapturesStdout(t *testing.T) {
	interp := fakeInterpreterScript(t, `echo "{\"entry_path\":\"$1\",\"command\":\"$2\",\"args\":$3}"`)
	iso := New(interp)

	skillDir := t.TempDir()
	res, err := iso.Run(context.Background(), skillDir, "", "entry.sh", "do_thing", []byte(`{"x":1}`), nil, time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	if !contains(res.Stdout, "do_thing") {
		t.Fatalf("expected stdout to contain command name, got %q", res.Stdout)
	}
}

func TestRunNonZeroExitIsSubprocessFailure(t *testing.T) {
	interp := fakeInterpreterScript(t, `echo "boom" 1>&2; exit 7`)
	iso := New(interp)

	_, err := iso.Run(context.Background(), t.TempDir(), "", "entry.sh", "cmd", []byte(`{}`), nil, time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	kerr, ok := kernelerr.As(err)
	if !ok {
		t.Fatalf("expected *kernelerr.Error, got %T", err)
	}
	if kerr.Kind != kernelerr.SubprocessFailure {
		t.Fatalf("expected SubprocessFailure, got %v", kerr.Kind)
	}
	if kerr.Stderr == "" {
		t.Fatal("expected stderr captured on Error.Stderr")
	}
}

func TestRunTimeoutKillsChild(t *testing.T) {
	interp := fakeInterpreterScript(t, `sleep 5`)
	iso := New(interp)

	start := time.Now()
	_, err := iso.Run(context.Background(), t.TempDir(), "", "entry.sh", "cmd", []byte(`{}`), nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	kerr, ok := kernelerr.As(err)
	if !ok || kerr.Kind != kernelerr.Timeout {
		t.Fatalf("expected Timeout kind, got %v", err)
	}
	if elapsed > killGrace+2*time.Second {
		t.Fatalf("expected prompt kill, took %v", elapsed)
	}
}

func TestEnsureEnvMaterializesOnce(t *testing.T) {
	skillDir := t.TempDir()
	bootstrap := filepath.Join(skillDir, "bootstrap.sh")
	if err := os.WriteFile(bootstrap, []byte("#!/bin/sh\ntouch \"$1/marker\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	envDir := t.TempDir()
	interp := fakeInterpreterScript(t, `echo ok`)
	iso := New(interp)

	if err := iso.ensureEnv(context.Background(), skillDir, envDir); err != nil {
		t.Fatalf("ensureEnv: %v", err)
	}
	if _, err := os.Stat(filepath.Join(envDir, "marker")); err != nil {
		t.Fatalf("expected bootstrap to have run, marker missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(envDir, ".materialized")); err != nil {
		t.Fatalf("expected .materialized sentinel: %v", err)
	}

	// Second call is a no-op: marker should not be recreated after removal.
	os.Remove(filepath.Join(envDir, "marker"))
	if err := iso.ensureEnv(context.Background(), skillDir, envDir); err != nil {
		t.Fatalf("second ensureEnv: %v", err)
	}
	if _, err := os.Stat(filepath.Join(envDir, "marker")); err == nil {
		t.Fatal("expected bootstrap not to re-run once materialized")
	}
}

func TestEnsureEnvNoBootstrapIsNoop(t *testing.T) {
	skillDir := t.TempDir()
	envDir := t.TempDir()
	iso := New("irrelevant")

	if err := iso.ensureEnv(context.Background(), skillDir, envDir); err != nil {
		t.Fatalf("ensureEnv: %v", err)
	}
}

func TestValidateBootstrapScriptRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.sh")
	if err := os.WriteFile(path, []byte("if [ 1 = 1 ]\nthen\necho missing fi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateBootstrapScript(path); err == nil {
		t.Fatal("expected parse error for malformed script")
	}
}

func TestValidateBootstrapScriptAcceptsWellFormed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateBootstrapScript(path); err != nil {
		t.Fatalf("expected well-formed script to validate, got %v", err)
	}
}

func TestAcquireLockExcludesSecondCaller(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "init.lock")

	release, err := acquireLock(lockPath)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := acquireLock(lockPath)
		if err == nil {
			r2()
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquireLock should not have succeeded while first holds the lock")
	case <-time.After(150 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquireLock should succeed after release")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
