package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

func writeSkillDir(t *testing.T, name, manifestJSON string) string {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifestJSON), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return dir
}

func TestLoad_Simple(t *testing.T) {
	dir := writeSkillDir(t, "git", `{
		"name": "git",
		"description": "Git operations",
		"commands": [
			{"name": "commit", "description": "Commit staged changes", "category": "write"},
			{"name": "status", "description": "Show working tree status", "category": "read"}
		]
	}`)

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "git" {
		t.Fatalf("expected name %q, got %q", "git", s.Name)
	}
	if len(s.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(s.Commands))
	}
	if s.ExecutionMode != ModeDirect {
		t.Fatalf("expected default execution mode %q, got %q", ModeDirect, s.ExecutionMode)
	}
	ids := s.ToolIDs()
	if ids[0] != "git.commit" || ids[1] != "git.status" {
		t.Fatalf("unexpected tool ids: %v", ids)
	}
}

func TestLoad_UnknownCategoryNormalizesToGeneral(t *testing.T) {
	dir := writeSkillDir(t, "writer", `{
		"name": "writer",
		"description": "Prose generation",
		"commands": [{"name": "draft", "category": "poetic"}]
	}`)

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Commands[0].Category != CategoryGeneral {
		t.Fatalf("expected category to normalize to general, got %q", s.Commands[0].Category)
	}
}

func TestLoad_DuplicateCommandFails(t *testing.T) {
	dir := writeSkillDir(t, "dup", `{
		"name": "dup",
		"description": "Has dup commands",
		"commands": [
			{"name": "run"},
			{"name": "run"}
		]
	}`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for duplicate command")
	}
	if kernelerr.KindOf(err) != kernelerr.Duplicate {
		t.Fatalf("expected Duplicate, got %v", kernelerr.KindOf(err))
	}
}

func TestLoad_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	if kernelerr.KindOf(err) != kernelerr.LoadFailed {
		t.Fatalf("expected LoadFailed for missing manifest, got %v", kernelerr.KindOf(err))
	}
}

func TestLoad_Sidecars(t *testing.T) {
	dir := writeSkillDir(t, "git", `{
		"name": "git",
		"description": "Git operations",
		"commands": [{"name": "status"}]
	}`)
	if err := os.WriteFile(filepath.Join(dir, "GUIDE.md"), []byte("# Git skill guide"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ROUTE.md"), []byte("Route git.* when the query mentions version control."), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Guide == "" {
		t.Fatal("expected guide text to be read")
	}
	if s.RoutingPrompt == "" {
		t.Fatal("expected routing prompt text to be read")
	}
}

func TestLoad_MarkdownFrontMatter(t *testing.T) {
	dir := t.TempDir()
	md := "---\n" +
		"name: git\n" +
		"description: Git operations\n" +
		"commands:\n" +
		"  - name: status\n" +
		"    description: Show working tree status\n" +
		"    category: read\n" +
		"---\n\n# Git skill\n\nUse this to inspect repository state.\n"
	if err := os.WriteFile(filepath.Join(dir, MarkdownManifestFile), []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "git" || len(s.Commands) != 1 || s.Commands[0].Name != "status" {
		t.Fatalf("unexpected skill from front matter: %+v", s)
	}
}

func TestLoad_JSONCTakesPrecedenceOverMarkdown(t *testing.T) {
	dir := writeSkillDir(t, "git", `{"name": "git", "description": "jsonc wins", "commands": [{"name": "status"}]}`)
	if err := os.WriteFile(filepath.Join(dir, MarkdownManifestFile), []byte("---\nname: stale\ndescription: should not load\ncommands: []\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Description != "jsonc wins" {
		t.Fatalf("expected SKILL.jsonc to take precedence, got %q", s.Description)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"git", "filesystem"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{"name":"`+name+`"}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	names, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 skills, got %d: %v", len(names), names)
	}
}

func TestDiscover_MixedManifestForms(t *testing.T) {
	root := t.TempDir()
	jsoncDir := filepath.Join(root, "git")
	if err := os.MkdirAll(jsoncDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jsoncDir, ManifestFile), []byte(`{"name":"git"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	mdDir := filepath.Join(root, "filesystem")
	if err := os.MkdirAll(mdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mdDir, MarkdownManifestFile), []byte("---\nname: filesystem\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 skills, got %d: %v", len(names), names)
	}
}

func TestReload_PreservesOldOnFailure(t *testing.T) {
	dir := writeSkillDir(t, "git", `{
		"name": "git",
		"description": "Git operations",
		"commands": [{"name": "status"}]
	}`)

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Corrupt the manifest on disk.
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{not valid json`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Reload(dir, s.Version)
	if err == nil {
		t.Fatal("expected reload to fail on invalid manifest")
	}
	if kernelerr.KindOf(err) != kernelerr.ReloadFailed {
		t.Fatalf("expected ReloadFailed, got %v", kernelerr.KindOf(err))
	}
	// The caller's installed Skill (s) is untouched — fail-safe semantics.
	if s.Name != "git" {
		t.Fatal("previous skill value was mutated by a failed reload")
	}
}
