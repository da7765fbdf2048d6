package agentloop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/inference"
	"github.com/corvid-labs/skillkernel/internal/manifest"
)

type fakeRegistry struct {
	skills map[string]*manifest.Skill
}

func (f *fakeRegistry) Get(name string) (*manifest.Skill, bool) {
	s, ok := f.skills[name]
	return s, ok
}

func (f *fakeRegistry) All() []*manifest.Skill {
	out := make([]*manifest.Skill, 0, len(f.skills))
	for _, s := range f.skills {
		out = append(out, s)
	}
	return out
}

// scriptedChatModel returns one reply per call, in order, so a test can
// script a tool-call step followed by a terminal step.
type scriptedChatModel struct {
	replies []*schema.Message
	calls   int
}

func (s *scriptedChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	reply := s.replies[s.calls]
	if s.calls < len(s.replies)-1 {
		s.calls++
	}
	return reply, nil
}

func (s *scriptedChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (s *scriptedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return s, nil
}

var _ model.ToolCallingChatModel = (*scriptedChatModel)(nil)

func gitSkill() *manifest.Skill {
	return &manifest.Skill{
		Name:          "git",
		ExecutionMode: manifest.ModeDirect,
		Commands:      []manifest.Command{{Name: "status", Entry: "status"}},
	}
}

func newTestLoop(t *testing.T, chat model.ToolCallingChatModel, reviewer Reviewer, reviewOn bool) (*Loop, *feedback.Store) {
	t.Helper()
	reg := &fakeRegistry{skills: map[string]*manifest.Skill{"git": gitSkill()}}

	feed, err := feedback.Open(filepath.Join(t.TempDir(), "feedback.json"), feedback.DefaultDecayRate, feedback.DefaultFloor)
	if err != nil {
		t.Fatalf("feedback.Open: %v", err)
	}

	d := dispatch.New(reg, nil, feed, nil)
	d.RegisterHandler("git", "status", func(ctx context.Context, args map[string]any) (any, error) {
		return "clean", nil
	})

	bridge := inference.New(chat, nil)
	loop := New(context.Background(), reg, nil, nil, bridge, d, feed, reviewer, nil, Config{StepBudget: 3, StepTimeout: time.Second, Reviewer: reviewOn})
	return loop, feed
}

func TestRunTerminatesOnFirstNonToolReply(t *testing.T) {
	chat := &scriptedChatModel{replies: []*schema.Message{
		{Role: schema.Assistant, Content: "all good, nothing to do"},
	}}
	loop, _ := newTestLoop(t, chat, nil, false)

	res, err := loop.Run(context.Background(), "check status", "git", "check repo status")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || res.Reason != StopTerminal {
		t.Fatalf("expected terminal success, got %+v", res)
	}
	if res.Steps != 1 {
		t.Fatalf("expected 1 step, got %d", res.Steps)
	}
}

func TestRunDispatchesToolCallThenTerminates(t *testing.T) {
	chat := &scriptedChatModel{replies: []*schema.Message{
		{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{
				{ID: "call-1", Function: schema.FunctionCall{Name: "git.status", Arguments: "{}"}},
			},
		},
		{Role: schema.Assistant, Content: "the tree is clean"},
	}}
	loop, _ := newTestLoop(t, chat, nil, false)

	res, err := loop.Run(context.Background(), "check status", "git", "check repo status")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || res.Artifact != "the tree is clean" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Steps != 2 {
		t.Fatalf("expected 2 steps, got %d", res.Steps)
	}
}

func TestRunExhaustsStepBudget(t *testing.T) {
	call := schema.ToolCall{ID: "call-1", Function: schema.FunctionCall{Name: "git.status", Arguments: "{}"}}
	reply := &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{call}}
	chat := &scriptedChatModel{replies: []*schema.Message{reply}}

	l, _ := newTestLoop(t, chat, nil, false)
	res, err := l.Run(context.Background(), "check status", "git", "check repo status")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success || res.Reason != StopStepBudget {
		t.Fatalf("expected step_budget exhaustion, got %+v", res)
	}
	if res.Steps != l.stepBudget {
		t.Fatalf("expected to run the full budget, got %d steps", res.Steps)
	}
}

type approvingReviewer struct{}

func (approvingReviewer) Review(ctx context.Context, query, artifact string) (bool, error) {
	return true, nil
}

func TestRunRecordsFeedbackOnReviewerApproval(t *testing.T) {
	chat := &scriptedChatModel{replies: []*schema.Message{
		{Role: schema.Assistant, Content: "done"},
	}}
	loop, feed := newTestLoop(t, chat, approvingReviewer{}, true)

	res, err := loop.Run(context.Background(), "check status", "git", "check repo status")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != StopReviewed {
		t.Fatalf("expected reviewed, got %+v", res)
	}
	loop.Drain(time.Second)

	if got := feed.BoostAll("check status")["git"]; got != 0.1 {
		t.Fatalf("expected reviewer approval to record feedback, got %v", got)
	}
}
