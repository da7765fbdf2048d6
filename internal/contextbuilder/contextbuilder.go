// Package contextbuilder assembles the single serialized context blob the
// kernel hands to a model for a given skill: description, command
// signatures, guide text, and routing prompt.
package contextbuilder

import (
	"strings"

	"github.com/corvid-labs/skillkernel/internal/manifest"
)

// Build renders a skill's full context blob, the shape a model sees when
// it needs to decide whether and how to use the skill.
func Build(s *manifest.Skill) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(s.Name)
	sb.WriteString("\n\n")
	sb.WriteString(s.Description)
	sb.WriteString("\n")

	if len(s.Keywords) > 0 {
		sb.WriteString("\nKeywords: ")
		sb.WriteString(strings.Join(s.Keywords, ", "))
		sb.WriteString("\n")
	}

	if len(s.Commands) > 0 {
		sb.WriteString("\n## Commands\n\n")
		for _, c := range s.Commands {
			sb.WriteString("- ")
			sb.WriteString(c.Signature())
			if c.Description != "" {
				sb.WriteString(" — ")
				sb.WriteString(c.Description)
			}
			sb.WriteString("\n")
		}
	}

	if s.Guide != "" {
		sb.WriteString("\n## Guide\n\n")
		sb.WriteString(s.Guide)
		sb.WriteString("\n")
	}

	if s.RoutingPrompt != "" {
		sb.WriteString("\n## When to route here\n\n")
		sb.WriteString(s.RoutingPrompt)
		sb.WriteString("\n")
	}

	return sb.String()
}

// BuildHelp renders a short one-skill-per-line help summary, the form used
// by the CLI's "skill list" verb and the agent loop's menu assembly.
func BuildHelp(skills []*manifest.Skill) string {
	var sb strings.Builder
	for _, s := range skills {
		sb.WriteString(s.Name)
		sb.WriteString(": ")
		sb.WriteString(s.Description)
		sb.WriteString(" (")
		names := make([]string, len(s.Commands))
		for i, c := range s.Commands {
			names[i] = c.Name
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(")\n")
	}
	return sb.String()
}
