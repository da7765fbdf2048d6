// Package agentloop is the Agent Loop: a bounded ReAct state machine that
// turns a Router's task brief into a finished artifact by alternating
// Observe (environment snapshot), Orient (dynamic system prompt), and Act
// (one Inference.complete call, optionally dispatching the tool it asked
// for) until the model produces a terminal response or the step budget is
// exhausted.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"

	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/inference"
	"github.com/corvid-labs/skillkernel/internal/knowledge"
	"github.com/corvid-labs/skillkernel/internal/manifest"
	"github.com/corvid-labs/skillkernel/internal/sniffer"
)

// webSearchToolName is the fixed "skill.command" id the loop offers for its
// one built-in tool, intercepted in act before falling through to Dispatch
// (no skill named "web" is ever loaded from a manifest).
const webSearchToolName = "web.search"

// DefaultStepBudget bounds the number of Observe/Orient/Act cycles.
const DefaultStepBudget = 5

// DefaultStepTimeout bounds each individual step.
const DefaultStepTimeout = 30 * time.Second

const lessonDomain = "harvested_insight"

// StopReason explains why Run returned.
type StopReason string

const (
	StopTerminal    StopReason = "terminal"     // the model produced a final answer
	StopStepBudget  StopReason = "step_budget"  // the loop exhausted its step budget, or a completion call failed (Run also returns the error)
	StopReviewed    StopReason = "reviewed"     // terminal, and the reviewer approved
	StopReviewedNo  StopReason = "review_failed"
)

// Reviewer is the optional post-loop collaborator: given the loop's final
// artifact, it decides whether the work is acceptable.
type Reviewer interface {
	Review(ctx context.Context, query, artifact string) (approved bool, err error)
}

// SkillLookup resolves a loaded skill by name; satisfied by *registry.Registry.
type SkillLookup interface {
	Get(name string) (*manifest.Skill, bool)
	All() []*manifest.Skill
}

// Result is what Run returns: success/failure, the reason, and the final
// text artifact (empty on step-budget exhaustion).
type Result struct {
	Success  bool
	Reason   StopReason
	Artifact string
	Steps    int
}

// Step describes one completed Observe/Orient/Act cycle. Run neither
// returns nor publishes Step values: progress is reported through
// AgentStepPayload events on the bus and the step count in Result.
type Step struct {
	Snapshot sniffer.Snapshot
	ToolName string // empty when the step's response was terminal
	ToolArgs string
	ToolOK   bool
}

// Config bundles the loop's tunables, mirroring config.AgentConfig.
type Config struct {
	Persona     string
	StepBudget  int
	StepTimeout time.Duration
	Reviewer    bool
}

// Loop runs one bounded ReAct cycle per call; it holds no state between
// calls beyond its collaborators.
type Loop struct {
	persona     string
	stepBudget  int
	stepTimeout time.Duration

	registry SkillLookup
	know     *knowledge.Store
	snf      *sniffer.Sniffer
	bridge   *inference.Bridge
	disp     *dispatch.Dispatch
	feed     *feedback.Store
	reviewer Reviewer
	bus      *events.Bus

	webSearch tool.InvokableTool // built-in "web.search", nil if it failed to initialize

	inflight sync.WaitGroup
}

// New builds a Loop. know, snf, reviewer, and bus may be nil; reviewer is
// only consulted when cfg.Reviewer is true. ctx bounds only the one-time
// construction of the built-in web search tool, not any later Run call.
func New(ctx context.Context, registry SkillLookup, know *knowledge.Store, snf *sniffer.Sniffer, bridge *inference.Bridge, disp *dispatch.Dispatch, feed *feedback.Store, reviewer Reviewer, bus *events.Bus, cfg Config) *Loop {
	budget := cfg.StepBudget
	if budget <= 0 {
		budget = DefaultStepBudget
	}
	timeout := cfg.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	l := &Loop{
		persona: cfg.Persona, stepBudget: budget, stepTimeout: timeout,
		registry: registry, know: know, snf: snf, bridge: bridge, disp: disp, feed: feed, bus: bus,
	}
	if cfg.Reviewer {
		l.reviewer = reviewer
	}

	webSearch, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "search",
		ToolDesc:   "Search the web using DuckDuckGo. Returns titles, URLs, and summaries.",
		MaxResults: 10,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		slog.Warn("agentloop: web search tool unavailable", "error", err)
	} else {
		l.webSearch = webSearch
	}
	return l
}

// Run drives the loop for one routed request. routedSkill is the skill the
// Router selected; its commands (plus every other loaded skill's, at the
// loop's discretion) are offered as tools on every step.
func (l *Loop) Run(ctx context.Context, query, routedSkill, taskBrief string) (Result, error) {
	tools := l.toolMenu()
	history := []inference.Message{{Role: inference.RoleUser, Content: taskBrief}}

	for step := 0; step < l.stepBudget; step++ {
		l.publish(step, "observe", "")
		stepCtx, cancel := context.WithTimeout(ctx, l.stepTimeout)
		snapshot := l.observe(stepCtx)

		l.publish(step, "orient", "")
		system := l.orient(stepCtx, query, snapshot, taskBrief)

		l.publish(step, "act", "")
		messages := append([]inference.Message{{Role: inference.RoleSystem, Content: system}}, history...)
		completion, err := l.bridge.Complete(stepCtx, messages, tools, nil)
		cancel()
		if err != nil {
			return Result{Success: false, Reason: StopStepBudget, Steps: step + 1}, err
		}

		if len(completion.ToolCalls) == 0 {
			return l.finish(ctx, query, routedSkill, completion.Text, step+1), nil
		}

		history = append(history, inference.Message{Role: inference.RoleAssistant, Content: completion.Text, ToolCalls: completion.ToolCalls})
		for _, call := range completion.ToolCalls {
			l.publish(step, "act", call.Name)
			history = append(history, l.act(ctx, call))
		}
	}

	return Result{Success: false, Reason: StopStepBudget, Steps: l.stepBudget}, nil
}

func (l *Loop) observe(ctx context.Context) sniffer.Snapshot {
	if l.snf == nil {
		return sniffer.Snapshot{}
	}
	return l.snf.Snapshot(ctx)
}

func (l *Loop) orient(ctx context.Context, query string, snapshot sniffer.Snapshot, taskBrief string) string {
	var sb strings.Builder
	sb.WriteString(l.persona)
	sb.WriteString("\n\n")
	sb.WriteString(snapshot.ToPromptString())

	if l.know != nil {
		if lessons, err := l.know.Lookup(ctx, query, lessonDomain, 3); err == nil && len(lessons) > 0 {
			sb.WriteString("\nRelevant past lessons:\n")
			for _, lsn := range lessons {
				fmt.Fprintf(&sb, "- %s: %s\n", lsn.Title, lsn.Content)
			}
		}
	}

	fmt.Fprintf(&sb, "\nMission: %s\n", taskBrief)
	return sb.String()
}

// act dispatches one requested tool call and returns the RoleTool message
// to append to the next step's context. The original routing query is
// deliberately not threaded into Execute here — per-tool-call feedback
// would conflate intermediate tool usage with the routing decision that
// brought the loop here; that record happens once, in finish, on reviewer
// approval.
func (l *Loop) act(ctx context.Context, call inference.ToolCall) inference.Message {
	if call.Name == webSearchToolName && l.webSearch != nil {
		return l.actWebSearch(ctx, call)
	}

	skillName, commandName, ok := strings.Cut(call.Name, ".")
	if !ok {
		return inference.Message{Role: inference.RoleTool, ToolCallID: call.ID, Content: fmt.Sprintf("invalid tool name %q", call.Name)}
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return inference.Message{Role: inference.RoleTool, ToolCallID: call.ID, Content: fmt.Sprintf("invalid arguments: %v", err)}
		}
	}

	res := l.disp.Execute(ctx, skillName, commandName, args, l.stepTimeout, "")
	payload, err := json.Marshal(res)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"ok":false,"message":%q}`, err.Error()))
	}
	return inference.Message{Role: inference.RoleTool, ToolCallID: call.ID, Content: string(payload)}
}

// actWebSearch runs the loop's built-in DuckDuckGo tool directly — it has no
// backing Skill manifest, so it never goes through Dispatch.
func (l *Loop) actWebSearch(ctx context.Context, call inference.ToolCall) inference.Message {
	stepCtx, cancel := context.WithTimeout(ctx, l.stepTimeout)
	defer cancel()

	result, err := l.webSearch.InvokableRun(stepCtx, call.Arguments)
	if err != nil {
		return inference.Message{Role: inference.RoleTool, ToolCallID: call.ID, Content: fmt.Sprintf(`{"ok":false,"message":%q}`, err.Error())}
	}
	return inference.Message{Role: inference.RoleTool, ToolCallID: call.ID, Content: result}
}

func (l *Loop) finish(ctx context.Context, query, routedSkill, artifact string, steps int) Result {
	if l.reviewer == nil {
		return Result{Success: true, Reason: StopTerminal, Artifact: artifact, Steps: steps}
	}

	approved, err := l.reviewer.Review(ctx, query, artifact)
	if err != nil || !approved {
		return Result{Success: true, Reason: StopReviewedNo, Artifact: artifact, Steps: steps}
	}

	if l.feed != nil && query != "" {
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			if err := l.feed.Record(query, routedSkill, true); err != nil {
				slog.Warn("agentloop: reviewer feedback record failed", "query", query, "skill", routedSkill, "error", err)
			}
		}()
	}
	return Result{Success: true, Reason: StopReviewed, Artifact: artifact, Steps: steps}
}

func (l *Loop) publish(step int, state, toolUsed string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.NewTypedEvent(events.SourceAgent, events.AgentStepPayload{
		Step: step, State: state, ToolUsed: toolUsed,
	}))
}

func (l *Loop) toolMenu() []inference.ToolSpec {
	skills := l.registry.All()
	tools := make([]inference.ToolSpec, 0, len(skills)*2+1)
	for _, s := range skills {
		for _, cmd := range s.Commands {
			tools = append(tools, inference.ToolSpec{
				Name:        s.Name + "." + cmd.Name,
				Description: cmd.Description,
				Parameters:  cmd.Parameters,
			})
		}
	}
	if l.webSearch != nil {
		tools = append(tools, inference.ToolSpec{
			Name:        webSearchToolName,
			Description: "Search the web for current information. Returns titles, URLs, and summaries.",
			Parameters: []manifest.ParamSpec{
				{Name: "query", Type: "string", Required: true, Description: "The search query"},
			},
		})
	}
	return tools
}

// Drain waits for in-flight reviewer feedback goroutines, up to timeout.
func (l *Loop) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
