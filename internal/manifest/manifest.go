// Package manifest holds the in-memory vocabulary shared by every component
// of the kernel: Skill, Command, and their parameter schema.
package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// ExecutionMode selects how Dispatch runs a skill's commands.
type ExecutionMode string

const (
	ModeDirect     ExecutionMode = "direct"
	ModeSubprocess ExecutionMode = "subprocess"
)

// Category is the normalized command category. Unknown categories collapse
// to CategoryGeneral at load time.
type Category string

const (
	CategoryRead     Category = "read"
	CategoryWrite    Category = "write"
	CategoryExecute  Category = "execute"
	CategoryRefactor Category = "refactor"
	CategoryView     Category = "view"
	CategoryGeneral  Category = "general"
)

func normalizeCategory(c string) Category {
	switch Category(c) {
	case CategoryRead, CategoryWrite, CategoryExecute, CategoryRefactor, CategoryView:
		return Category(c)
	default:
		return CategoryGeneral
	}
}

// ParamSpec describes one command parameter.
type ParamSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // "string" | "number" | "boolean" | "array" | "object"
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Command is an invocable operation belonging to a Skill, identified as
// "skill.command".
type Command struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Category    Category    `json:"category,omitempty" yaml:"category,omitempty"`
	Parameters  []ParamSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Entry       string      `json:"entry,omitempty" yaml:"entry,omitempty"` // direct: handler table key; subprocess: script entry point
}

// Signature renders a one-line "name(param, param=default) — description"
// form, used by the Context Builder's help section.
func (c Command) Signature() string {
	var parts []string
	for _, p := range c.Parameters {
		if p.Required {
			parts = append(parts, p.Name)
		} else if p.Default != nil {
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		} else {
			parts = append(parts, p.Name+"?")
		}
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// Skill is a directory-backed capability package.
type Skill struct {
	Name          string    `json:"name" yaml:"name"`
	Version       int       `json:"-" yaml:"-"` // incremented on every successful reload, never serialized
	Description   string    `json:"description" yaml:"description"`
	Keywords      []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Commands      []Command `json:"commands" yaml:"commands"`
	Guide         string    `json:"-" yaml:"-"` // GUIDE.md contents, if present
	RoutingPrompt string    `json:"-" yaml:"-"` // ROUTE.md contents, if present

	ExecutionMode ExecutionMode `json:"execution_mode,omitempty" yaml:"execution_mode,omitempty"`
	IsolatedEnv   string        `json:"isolated_env,omitempty" yaml:"isolated_env,omitempty"` // path to the skill's isolated environment, if any

	Dir string `json:"-" yaml:"-"` // on-disk directory this skill was loaded from
}

// CommandNames returns command names in declared order.
func (s *Skill) CommandNames() []string {
	names := make([]string, len(s.Commands))
	for i, c := range s.Commands {
		names[i] = c.Name
	}
	return names
}

// Command looks up a command by name.
func (s *Skill) Command(name string) (Command, bool) {
	for _, c := range s.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// ToolIDs returns the canonical "{skill}.{command}" id for every command,
// in lexical order — the shape the Holographic Index indexes under.
func (s *Skill) ToolIDs() []string {
	ids := make([]string, 0, len(s.Commands))
	for _, c := range s.Commands {
		ids = append(ids, s.Name+"."+c.Name)
	}
	sort.Strings(ids)
	return ids
}

// DuplicateCommandError reports a skill declaring the same command name
// twice. The loader surfaces this distinctly from other validation
// failures so callers can tell "malformed manifest" from "ambiguous
// command" apart.
type DuplicateCommandError struct {
	Skill   string
	Command string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("skill %q: duplicate command %q", e.Skill, e.Command)
}

// Validate checks the manifest-level invariants: no duplicate command names,
// a normalized category per command, and a non-empty entry for every
// command. Called by the loader before installing a (re)loaded skill.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill: name is required")
	}
	seen := make(map[string]bool, len(s.Commands))
	for i := range s.Commands {
		c := &s.Commands[i]
		if c.Name == "" {
			return fmt.Errorf("skill %q: command at index %d has no name", s.Name, i)
		}
		if seen[c.Name] {
			return &DuplicateCommandError{Skill: s.Name, Command: c.Name}
		}
		seen[c.Name] = true
		c.Category = normalizeCategory(string(c.Category))
		if c.Entry == "" {
			c.Entry = c.Name
		}
	}
	if s.ExecutionMode == "" {
		s.ExecutionMode = ModeDirect
	}
	return nil
}

// String renders a human-readable one-line summary, matching the register
// of a log line rather than a prompt blob.
func (s *Skill) String() string {
	return fmt.Sprintf("%s v%d (%d commands, mode=%s)", s.Name, s.Version, len(s.Commands), s.ExecutionMode)
}
