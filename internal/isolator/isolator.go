// Package isolator is the Subprocess Isolator: it runs a skill command in a
// fresh child process when the skill declares a conflicting or heavy
// dependency graph, rather than in the kernel's own process.
package isolator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/syntax"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// killGrace is how long a child tree gets to exit after SIGTERM before the
// Isolator escalates to SIGKILL.
const killGrace = 3 * time.Second

// EnvAllowlist is the set of environment variable names propagated from the
// kernel's own environment into every child process. Nothing else crosses
// the boundary — a skill gets additional variables only via the extraEnv
// parameter to Run, which it must declare itself.
var EnvAllowlist = []string{"PATH", "HOME", "LANG", "TERM", "TMPDIR"}

// Result is the outcome of one subprocess invocation.
type Result struct {
	Stdout   string
	ExitCode int
}

// Isolator spawns interpreter subprocesses for isolated-mode skills.
type Isolator struct {
	interpreter string // e.g. "python3", "node" — the subprocess interpreter contract entry point
	initMu      sync.Mutex
	initDone    map[string]bool // envDir -> initialized, in-process fast path around the lock file
}

// New creates an Isolator that spawns interpreter for each isolated command.
func New(interpreter string) *Isolator {
	return &Isolator{
		interpreter: interpreter,
		initDone:    make(map[string]bool),
	}
}

// Run executes commandName with jsonArgs against the skill rooted at
// skillDir, via the interpreter's (entry_point_path, command_name,
// json_args) command-line contract, materializing envDir first if needed.
// extraEnv are additional KEY=VALUE pairs the skill has declared beyond
// the base allow-list.
func (iso *Isolator) Run(ctx context.Context, skillDir, envDir, entryPath, commandName string, jsonArgs []byte, extraEnv []string, timeout time.Duration) (Result, error) {
	if envDir != "" {
		if err := iso.ensureEnv(ctx, skillDir, envDir); err != nil {
			return Result{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// With no declared interpreter, entryPath is itself the executable and
	// receives (command_name, json_args) directly, per the subprocess
	// contract. A declared interpreter (e.g. "python3") runs entryPath as
	// its first argument instead.
	var cmd *exec.Cmd
	if iso.interpreter == "" {
		cmd = exec.CommandContext(ctx, entryPath, commandName, string(jsonArgs))
	} else {
		cmd = exec.CommandContext(ctx, iso.interpreter, entryPath, commandName, string(jsonArgs))
	}
	cmd.Dir = skillDir
	cmd.Env = buildEnv(extraEnv)
	// New process group so SIGTERM/SIGKILL reach the whole child tree, not
	// just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Start()
	if err != nil {
		return Result{}, kernelerr.Wrap(kernelerr.SubprocessFailure, err, "spawn %s for %s.%s", iso.interpreter, skillDir, commandName)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return iso.finish(ctx, err, stdout.String(), stderr.String())
	case <-ctx.Done():
		killGroup(cmd, killGrace)
		<-done
		return Result{}, kernelerr.Wrap(kernelerr.Timeout, ctx.Err(), "%s.%s timed out", skillDir, commandName)
	}
}

func (iso *Isolator) finish(ctx context.Context, waitErr error, stdout, stderr string) (Result, error) {
	if waitErr == nil {
		return Result{Stdout: stdout, ExitCode: 0}, nil
	}
	if ctx.Err() != nil {
		return Result{}, &kernelerr.Error{Kind: kernelerr.Timeout, Message: "subprocess timed out", Err: ctx.Err()}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Result{}, &kernelerr.Error{
			Kind:    kernelerr.SubprocessFailure,
			Message: fmt.Sprintf("exit code %d", exitErr.ExitCode()),
			Stderr:  stderr,
			Err:     waitErr,
		}
	}
	return Result{}, kernelerr.Wrap(kernelerr.SubprocessFailure, waitErr, "run subprocess")
}

// killGroup sends SIGTERM to the child's process group, then escalates to
// SIGKILL if the tree hasn't exited within grace.
func killGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func buildEnv(extra []string) []string {
	env := make([]string, 0, len(EnvAllowlist)+len(extra))
	for _, name := range EnvAllowlist {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	env = append(env, extra...)
	return env
}

// ensureEnv performs a one-shot materialization of envDir if it doesn't
// exist yet, gated by a lock file so concurrent callers don't race to
// install the skill's declared dependency set twice.
func (iso *Isolator) ensureEnv(ctx context.Context, skillDir, envDir string) error {
	iso.initMu.Lock()
	if iso.initDone[envDir] {
		iso.initMu.Unlock()
		return nil
	}
	iso.initMu.Unlock()

	if _, err := os.Stat(filepath.Join(envDir, ".materialized")); err == nil {
		iso.markDone(envDir)
		return nil
	}

	lockPath := envDir + ".lock"
	release, err := acquireLock(lockPath)
	if err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "acquire env init lock for %q", envDir)
	}
	defer release()

	// Re-check under the lock: another process may have finished init while
	// we were waiting.
	if _, err := os.Stat(filepath.Join(envDir, ".materialized")); err == nil {
		iso.markDone(envDir)
		return nil
	}

	bootstrap := filepath.Join(skillDir, "bootstrap.sh")
	if _, err := os.Stat(bootstrap); err != nil {
		iso.markDone(envDir) // no bootstrap declared, nothing to materialize
		return nil
	}
	if err := ValidateBootstrapScript(bootstrap); err != nil {
		return kernelerr.Wrap(kernelerr.LoadFailed, err, "validate bootstrap script for %q", skillDir)
	}

	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "create env dir %q", envDir)
	}

	cmd := exec.CommandContext(ctx, "sh", bootstrap, envDir)
	cmd.Dir = skillDir
	cmd.Env = buildEnv(nil)
	if out, err := cmd.CombinedOutput(); err != nil {
		return kernelerr.Wrap(kernelerr.LoadFailed, fmt.Errorf("%s: %s", err, out), "materialize env for %q", skillDir)
	}

	if err := os.WriteFile(filepath.Join(envDir, ".materialized"), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "mark env materialized for %q", envDir)
	}
	iso.markDone(envDir)
	slog.Info("isolator: materialized environment", "skill_dir", skillDir, "env_dir", envDir)
	return nil
}

func (iso *Isolator) markDone(envDir string) {
	iso.initMu.Lock()
	iso.initDone[envDir] = true
	iso.initMu.Unlock()
}

// ValidateBootstrapScript statically parses a skill's bootstrap script
// before it is ever executed, rejecting anything that doesn't parse as
// well-formed POSIX shell. It catches truncated or malformed scripts before
// they run under the lock that gates one-shot environment init.
func ValidateBootstrapScript(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	parser := syntax.NewParser()
	_, err = parser.Parse(bytes.NewReader(data), path)
	if err != nil {
		return fmt.Errorf("bootstrap script %q: %w", path, err)
	}
	return nil
}
