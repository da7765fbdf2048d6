package contextbuilder

import (
	"strings"
	"testing"

	"github.com/corvid-labs/skillkernel/internal/manifest"
)

func TestBuildIncludesCommandsAndSidecars(t *testing.T) {
	s := &manifest.Skill{
		Name:        "git",
		Description: "Git operations",
		Keywords:    []string{"vcs", "commit"},
		Commands: []manifest.Command{
			{Name: "status", Description: "Show working tree status"},
		},
		Guide:         "Always check status before committing.",
		RoutingPrompt: "Use when the user mentions version control.",
	}

	blob := Build(s)

	for _, want := range []string{"git", "Git operations", "vcs, commit", "status()", "Show working tree status", "Always check status", "version control"} {
		if !strings.Contains(blob, want) {
			t.Errorf("expected blob to contain %q, got:\n%s", want, blob)
		}
	}
}

func TestBuildHelpSummary(t *testing.T) {
	skills := []*manifest.Skill{
		{Name: "git", Description: "Git operations", Commands: []manifest.Command{{Name: "status"}, {Name: "commit"}}},
	}
	help := BuildHelp(skills)
	if !strings.Contains(help, "git: Git operations (status, commit)") {
		t.Errorf("unexpected help summary: %q", help)
	}
}
