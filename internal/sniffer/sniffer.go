// Package sniffer produces a live environment snapshot — version-control
// state and scratchpad size — consumed by routing and by the running agent
// on every reasoning cycle.
package sniffer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const previewCount = 3

// VCSStatus summarizes the working copy.
type VCSStatus struct {
	Branch        string
	StagedCount   int
	ModifiedCount int
	Preview       []string // up to previewCount unique modified paths, lexical order
}

// Snapshot is the full environment reading, assembled on demand and never
// cached across calls.
type Snapshot struct {
	Timestamp       time.Time
	VCS             *VCSStatus // nil if not a working copy / git unavailable
	ScratchpadLines int
}

// ToPromptString renders a stable textual form suitable for inclusion in a
// model prompt.
func (s Snapshot) ToPromptString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Environment (as of %s):\n", s.Timestamp.Format(time.RFC3339)))
	if s.VCS != nil {
		sb.WriteString(fmt.Sprintf("- branch: %s, staged: %d, modified: %d\n", s.VCS.Branch, s.VCS.StagedCount, s.VCS.ModifiedCount))
		if len(s.VCS.Preview) > 0 {
			sb.WriteString("- modified paths: " + strings.Join(s.VCS.Preview, ", ") + "\n")
		}
	} else {
		sb.WriteString("- not a version-controlled working copy\n")
	}
	sb.WriteString(fmt.Sprintf("- scratchpad lines: %d\n", s.ScratchpadLines))
	return sb.String()
}

// Sniffer reads environment state on demand.
type Sniffer struct {
	workdir        string
	scratchpadPath string
	budget         time.Duration
}

// New creates a Sniffer rooted at workdir, reading the given scratchpad
// file path, with a soft time budget for the whole snapshot.
func New(workdir, scratchpadPath string, budget time.Duration) *Sniffer {
	return &Sniffer{workdir: workdir, scratchpadPath: scratchpadPath, budget: budget}
}

// Snapshot assembles a fresh EnvironmentSnapshot. VCS and scratchpad scans
// run concurrently; neither failing blocks the other.
func (s *Sniffer) Snapshot(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	vcsCh := make(chan *VCSStatus, 1)
	go func() { vcsCh <- s.scanVCS(ctx) }()

	lines := s.scanScratchpad()

	return Snapshot{
		Timestamp:       time.Now(),
		VCS:             <-vcsCh,
		ScratchpadLines: lines,
	}
}

// scanVCS queries branch name, staged/modified counts, and a preview of
// modified paths via `git`. Returns nil if the working copy isn't a git
// repo or git isn't available — the contract is the behavior (best-effort
// environment awareness), not the mechanism.
func (s *Sniffer) scanVCS(ctx context.Context) *VCSStatus {
	branch, err := s.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil
	}

	statusOut, err := s.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil
	}

	var staged, modified int
	var modifiedPaths []string
	for _, line := range strings.Split(statusOut, "\n") {
		if len(line) < 3 {
			continue
		}
		indexState, workState := line[0], line[1]
		path := strings.TrimSpace(line[3:])

		if indexState != ' ' && indexState != '?' {
			staged++
		}
		if workState != ' ' {
			modified++
			modifiedPaths = append(modifiedPaths, path)
		}
	}

	sort.Strings(modifiedPaths)
	seen := make(map[string]bool, len(modifiedPaths))
	var preview []string
	for _, p := range modifiedPaths {
		if seen[p] {
			continue
		}
		seen[p] = true
		preview = append(preview, p)
		if len(preview) == previewCount {
			break
		}
	}

	return &VCSStatus{
		Branch:        strings.TrimSpace(branch),
		StagedCount:   staged,
		ModifiedCount: modified,
		Preview:       preview,
	}
}

func (s *Sniffer) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.workdir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// scanScratchpad counts the lines in the well-known scratchpad file, or
// returns 0 if it's absent.
func (s *Sniffer) scanScratchpad() int {
	f, err := os.Open(s.scratchpadPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count
}
