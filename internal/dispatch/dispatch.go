// Package dispatch is the Dispatch & Isolation Engine ("Swarm"): the single
// entry point that runs a named command in either the kernel's own process
// or an isolated subprocess, and records the outcome into the feedback
// store without making the caller wait on it.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/isolator"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
	"github.com/corvid-labs/skillkernel/internal/manifest"
)

// DefaultTimeout is used when a caller passes zero.
const DefaultTimeout = 30 * time.Second

// Handler is a direct-mode command implementation, registered per
// "skill.command" id.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// SkillLookup resolves a loaded skill by name; satisfied by *registry.Registry.
type SkillLookup interface {
	Get(name string) (*manifest.Skill, bool)
}

// DispatchTrace is the observability envelope attached to every Result: an
// opaque correlation id plus start/completion timestamps. The same id tags
// every dispatch.started/completed/failed event this call publishes, so an
// external observer (the gateway's WebSocket event stream, an MCP client
// reading tool-call logs) can correlate a Result back to its event trail.
type DispatchTrace struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Result is the envelope every dispatch returns, mirroring Dispatch's
// ok/error contract.
type Result struct {
	OK      bool
	Payload any
	Kind    kernelerr.Kind
	Message string
	Trace   DispatchTrace
}

// Dispatch routes skill.command invocations to direct handlers or the
// Subprocess Isolator, and fires a fire-and-forget feedback record after
// every call.
type Dispatch struct {
	registry SkillLookup
	handlers map[string]Handler // "skill.command" -> direct handler
	iso      *isolator.Isolator
	feed     *feedback.Store
	bus      *events.Bus

	// inflight tracks background feedback-recording goroutines so the
	// process never exits (or GCs them) mid-write; mirrors the event bus's
	// own inflight WaitGroup idiom.
	inflight sync.WaitGroup
}

// New creates a Dispatch engine. iso and feed may be nil if the kernel was
// configured with no isolated skills / no feedback persistence, respectively.
func New(registry SkillLookup, iso *isolator.Isolator, feed *feedback.Store, bus *events.Bus) *Dispatch {
	return &Dispatch{
		registry: registry,
		handlers: make(map[string]Handler),
		iso:      iso,
		feed:     feed,
		bus:      bus,
	}
}

// RegisterHandler binds a direct-mode implementation to "skill.command".
func (d *Dispatch) RegisterHandler(skill, command string, h Handler) {
	d.handlers[skill+"."+command] = h
}

// Execute resolves skill.command, runs it in the mode the skill declares,
// and returns a Result envelope. query is the pseudo-query the Router used
// to reach this command, threaded through only so the post-execution
// feedback hook can attribute the outcome; pass "" to skip recording.
func (d *Dispatch) Execute(ctx context.Context, skillName, commandName string, args map[string]any, timeout time.Duration, query string) Result {
	traceID := uuid.NewString()
	startedAt := time.Now()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	skill, ok := d.registry.Get(skillName)
	if !ok {
		return d.finish(query, skillName, traceID, startedAt, Result{Kind: kernelerr.NotFound, Message: fmt.Sprintf("skill %q not loaded", skillName)})
	}
	cmd, ok := skill.Command(commandName)
	if !ok {
		return d.finish(query, skillName, traceID, startedAt, Result{Kind: kernelerr.NotFound, Message: fmt.Sprintf("skill %q has no command %q", skillName, commandName)})
	}
	if err := validateArgs(cmd, args); err != nil {
		return d.finish(query, skillName, traceID, startedAt, Result{Kind: kernelerr.InvalidArgs, Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = events.ContextWithTraceID(ctx, traceID)

	d.publish(traceID, events.EventDispatchStarted, skillName, commandName, string(skill.ExecutionMode), 0, "")

	var res Result
	switch skill.ExecutionMode {
	case manifest.ModeSubprocess:
		res = d.runSubprocess(ctx, skill, cmd, args)
	default:
		res = d.runDirect(ctx, skillName, commandName, args)
	}
	elapsed := time.Since(startedAt)

	if res.OK {
		d.publish(traceID, events.EventDispatchCompleted, skillName, commandName, string(skill.ExecutionMode), elapsed, "")
	} else {
		d.publish(traceID, events.EventDispatchFailed, skillName, commandName, string(skill.ExecutionMode), elapsed, string(res.Kind))
	}

	return d.finish(query, skillName, traceID, startedAt, res)
}

func (d *Dispatch) runDirect(ctx context.Context, skillName, commandName string, args map[string]any) Result {
	h, ok := d.handlers[skillName+"."+commandName]
	if !ok {
		return Result{Kind: kernelerr.NotFound, Message: fmt.Sprintf("no direct handler registered for %s.%s", skillName, commandName)}
	}

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		payload, err := h(ctx, args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{Kind: kernelerr.Runtime, Message: o.err.Error()}
		}
		return Result{OK: true, Payload: o.payload}
	case <-ctx.Done():
		return Result{Kind: kernelerr.Timeout, Message: ctx.Err().Error()}
	}
}

func (d *Dispatch) runSubprocess(ctx context.Context, skill *manifest.Skill, cmd manifest.Command, args map[string]any) Result {
	if d.iso == nil {
		return Result{Kind: kernelerr.Runtime, Message: "no subprocess isolator configured"}
	}
	jsonArgs, err := json.Marshal(args)
	if err != nil {
		return Result{Kind: kernelerr.InvalidArgs, Message: err.Error()}
	}

	remaining := DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		remaining = time.Until(dl)
	}

	res, err := d.iso.Run(ctx, skill.Dir, skill.IsolatedEnv, cmd.Entry, cmd.Name, jsonArgs, nil, remaining)
	if err != nil {
		kerr, ok := kernelerr.As(err)
		if !ok {
			return Result{Kind: kernelerr.Runtime, Message: err.Error()}
		}
		return Result{Kind: kerr.Kind, Message: kerr.Error()}
	}
	return Result{OK: true, Payload: res.Stdout}
}

func validateArgs(cmd manifest.Command, args map[string]any) error {
	for _, p := range cmd.Parameters {
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
		}
	}
	return nil
}

// finish fires the fire-and-forget feedback record for the outcome, stamps
// res.Trace, and returns res. The feedback record runs on its own goroutine
// so the caller never waits on feedback persistence.
func (d *Dispatch) finish(query, skillName, traceID string, startedAt time.Time, res Result) Result {
	res.Trace = DispatchTrace{ID: traceID, StartedAt: startedAt, CompletedAt: time.Now()}

	if query != "" && d.feed != nil {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			if err := d.feed.Record(query, skillName, res.OK); err != nil {
				slog.Warn("dispatch: feedback record failed", "query", query, "skill", skillName, "error", err)
			}
		}()
	}
	return res
}

func (d *Dispatch) publish(traceID string, t events.EventType, skill, command, mode string, duration time.Duration, kind string) {
	if d.bus == nil {
		return
	}
	e := events.NewTypedEventWithTrace(events.SourceDispatch, events.DispatchPayload{
		Skill: skill, Command: command, Mode: mode, Duration: duration, Kind: kind,
	}, traceID)
	e.Type = t
	d.bus.Publish(e)
}

// Drain waits for in-flight feedback-recording goroutines to finish, up to
// timeout. Intended for graceful shutdown / tests.
func (d *Dispatch) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
