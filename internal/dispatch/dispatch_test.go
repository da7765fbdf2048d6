package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/isolator"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
	"github.com/corvid-labs/skillkernel/internal/manifest"
)

type fakeRegistry struct {
	skills map[string]*manifest.Skill
}

func (f *fakeRegistry) Get(name string) (*manifest.Skill, bool) {
	s, ok := f.skills[name]
	return s, ok
}

func newFeedbackStore(t *testing.T) *feedback.Store {
	t.Helper()
	s, err := feedback.Open(filepath.Join(t.TempDir(), "feedback.json"), feedback.DefaultDecayRate, feedback.DefaultFloor)
	if err != nil {
		t.Fatalf("feedback.Open: %v", err)
	}
	return s
}

func TestExecuteDirectSuccess(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"git": {Name: "git", Commands: []manifest.Command{{Name: "status", Entry: "status"}}, ExecutionMode: manifest.ModeDirect},
	}}
	feed := newFeedbackStore(t)
	d := New(reg, nil, feed, nil)
	d.RegisterHandler("git", "status", func(ctx context.Context, args map[string]any) (any, error) {
		return "clean", nil
	})

	res := d.Execute(context.Background(), "git", "status", nil, time.Second, "show status")
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Payload != "clean" {
		t.Fatalf("expected payload clean, got %v", res.Payload)
	}

	d.Drain(time.Second)
	if got := feed.BoostAll("show status")["git"]; got != 0.1 {
		t.Fatalf("expected feedback recorded as success, got %v", got)
	}
}

func TestExecuteDirectHandlerError(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"git": {Name: "git", Commands: []manifest.Command{{Name: "status", Entry: "status"}}, ExecutionMode: manifest.ModeDirect},
	}}
	feed := newFeedbackStore(t)
	d := New(reg, nil, feed, nil)
	d.RegisterHandler("git", "status", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	res := d.Execute(context.Background(), "git", "status", nil, time.Second, "show status")
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Kind != kernelerr.Runtime {
		t.Fatalf("expected Runtime kind, got %v", res.Kind)
	}

	d.Drain(time.Second)
	if got := feed.BoostAll("show status")["git"]; got != -0.1 {
		t.Fatalf("expected feedback recorded as failure, got %v", got)
	}
}

func TestExecuteUnknownSkillIsNotFound(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{}}
	d := New(reg, nil, nil, nil)

	res := d.Execute(context.Background(), "ghost", "run", nil, time.Second, "")
	if res.Kind != kernelerr.NotFound {
		t.Fatalf("expected NotFound, got %v", res.Kind)
	}
}

func TestExecuteUnknownCommandIsNotFound(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"git": {Name: "git", Commands: []manifest.Command{{Name: "status", Entry: "status"}}},
	}}
	d := New(reg, nil, nil, nil)

	res := d.Execute(context.Background(), "git", "bogus", nil, time.Second, "")
	if res.Kind != kernelerr.NotFound {
		t.Fatalf("expected NotFound, got %v", res.Kind)
	}
}

func TestExecuteMissingRequiredArgIsInvalidArgs(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"git": {Name: "git", Commands: []manifest.Command{{
			Name:       "commit",
			Entry:      "commit",
			Parameters: []manifest.ParamSpec{{Name: "message", Required: true}},
		}}},
	}}
	d := New(reg, nil, nil, nil)
	d.RegisterHandler("git", "commit", func(ctx context.Context, args map[string]any) (any, error) { return "ok", nil })

	res := d.Execute(context.Background(), "git", "commit", map[string]any{}, time.Second, "")
	if res.Kind != kernelerr.InvalidArgs {
		t.Fatalf("expected InvalidArgs, got %v", res.Kind)
	}
}

func TestExecuteDirectTimeout(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"slow": {Name: "slow", Commands: []manifest.Command{{Name: "go", Entry: "go"}}},
	}}
	d := New(reg, nil, nil, nil)
	d.RegisterHandler("slow", "go", func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case <-time.After(time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	res := d.Execute(context.Background(), "slow", "go", nil, 50*time.Millisecond, "")
	if res.Kind != kernelerr.Timeout {
		t.Fatalf("expected Timeout, got %v", res)
	}
}

func TestExecuteSubprocessMode(t *testing.T) {
	dir := t.TempDir()
	interp := filepath.Join(dir, "fake-interp.sh")
	if err := os.WriteFile(interp, []byte("#!/bin/sh\necho done\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"crawl4ai": {
			Name:          "crawl4ai",
			Dir:           dir,
			ExecutionMode: manifest.ModeSubprocess,
			Commands:      []manifest.Command{{Name: "crawl", Entry: "entry.py"}},
		},
	}}
	iso := isolator.New(interp)
	d := New(reg, iso, nil, nil)

	res := d.Execute(context.Background(), "crawl4ai", "crawl", nil, time.Second, "")
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
}

func TestExecuteSubprocessNoIsolatorConfigured(t *testing.T) {
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{
		"crawl4ai": {Name: "crawl4ai", ExecutionMode: manifest.ModeSubprocess, Commands: []manifest.Command{{Name: "crawl", Entry: "entry.py"}}},
	}}
	d := New(reg, nil, nil, nil)

	res := d.Execute(context.Background(), "crawl4ai", "crawl", nil, time.Second, "")
	if res.OK {
		t.Fatal("expected failure with no isolator configured")
	}
	if res.Kind != kernelerr.Runtime {
		t.Fatalf("expected Runtime, got %v", res.Kind)
	}
}
