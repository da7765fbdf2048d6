package router

import (
	"fmt"
	"strings"

	"github.com/corvid-labs/skillkernel/internal/knowledge"
	"github.com/corvid-labs/skillkernel/internal/sniffer"
)

// routingRubric is the fixed system preamble handed to the model on every
// routing call: it must pick one candidate (or none) and answer with one
// line of JSON, nothing else.
const routingRubric = `You are the routing layer of a development kernel. Given a user request,
the loaded skill menu, prior lessons, and the current environment, choose
the single best "skill.command" to dispatch.

Respond with exactly one line of JSON and no other text:
{"skill": "...", "command": "...", "task_brief": "...", "confidence": 0.0, "reasoning": "..."}

"task_brief" is the Mission Brief handed to the agent that executes the
command: restate the user's intent plus any constraints visible in the
environment. "confidence" is your belief in [0,1] that this is the right
command for the request. If nothing in the menu fits, set "command" to
"clarify" and confidence below 0.5.`

func buildRoutingPrompt(query, menu string, lessons []knowledge.Result, env sniffer.Snapshot, candidates []candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request: %s\n\n", query)
	sb.WriteString("Loaded skills:\n")
	sb.WriteString(menu)
	sb.WriteString("\n")

	if len(lessons) > 0 {
		sb.WriteString("\nRelevant past lessons:\n")
		for _, l := range lessons {
			fmt.Fprintf(&sb, "- %s: %s\n", l.Title, l.Content)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(env.ToPromptString())

	sb.WriteString("\nTop candidate commands (feedback-boosted score):\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s (%.3f)\n", c.ID, c.Score)
	}

	return sb.String()
}

// extractJSON trims any leading/trailing prose a model added around the
// single JSON object it was asked to return.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
