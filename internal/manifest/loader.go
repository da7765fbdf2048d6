package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/marcozac/go-jsonc"
	"gopkg.in/yaml.v3"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// ManifestFile is the structured command descriptor every skill directory
// must carry. Commands are declared here rather than discovered by
// importing arbitrary code.
const ManifestFile = "SKILL.jsonc"

// MarkdownManifestFile is the alternate manifest form: a SKILL.md whose
// leading "---" delimited block is YAML, parsed the same as SKILL.jsonc.
// Tried only when ManifestFile is absent, so a skill directory never needs
// to carry both.
const MarkdownManifestFile = "SKILL.md"

var frontMatterDelim = []byte("---")

// Load scans dir for SKILL.jsonc (or, failing that, SKILL.md front matter)
// plus the optional GUIDE.md/ROUTE.md sidecar files and returns a
// populated, validated Skill.
func Load(dir string) (*Skill, error) {
	s, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}
	s.Dir = dir

	if err := s.Validate(); err != nil {
		if isDuplicateCommand(err) {
			return nil, kernelerr.Wrap(kernelerr.Duplicate, err, "validate manifest for %q", dir)
		}
		return nil, kernelerr.Wrap(kernelerr.LoadFailed, err, "validate manifest for %q", dir)
	}

	s.Guide = readSidecar(dir, "GUIDE.md")
	s.RoutingPrompt = readSidecar(dir, "ROUTE.md")

	return &s, nil
}

func isDuplicateCommand(err error) bool {
	var dup *DuplicateCommandError
	return errors.As(err, &dup)
}

func readSidecar(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}

// loadManifest reads and parses whichever manifest form dir carries:
// SKILL.jsonc if present, else SKILL.md's YAML front matter.
func loadManifest(dir string) (Skill, error) {
	var s Skill

	if data, err := os.ReadFile(filepath.Join(dir, ManifestFile)); err == nil {
		if err := jsonc.Unmarshal(data, &s); err != nil {
			return Skill{}, kernelerr.Wrap(kernelerr.LoadFailed, err, "parse manifest for %q", dir)
		}
		return s, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, MarkdownManifestFile))
	if err != nil {
		return Skill{}, kernelerr.Wrap(kernelerr.LoadFailed, err, "read manifest for %q", dir)
	}
	front, err := extractFrontMatter(data)
	if err != nil {
		return Skill{}, kernelerr.Wrap(kernelerr.LoadFailed, err, "parse manifest for %q", dir)
	}
	if err := yaml.Unmarshal(front, &s); err != nil {
		return Skill{}, kernelerr.Wrap(kernelerr.LoadFailed, err, "parse manifest for %q", dir)
	}
	return s, nil
}

// extractFrontMatter pulls the "---\n...\n---" delimited block from the
// start of a SKILL.md file. The body after the closing delimiter is the
// skill's guide text and is ignored here; ROUTE.md/GUIDE.md remain the
// sidecar files for that.
func extractFrontMatter(data []byte) ([]byte, error) {
	data = bytes.TrimLeft(data, "\n")
	if !bytes.HasPrefix(data, frontMatterDelim) {
		return nil, errors.New("SKILL.md: missing leading --- front matter delimiter")
	}
	rest := data[len(frontMatterDelim):]
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return nil, errors.New("SKILL.md: missing closing --- front matter delimiter")
	}
	return rest[:end], nil
}

// Discover returns the skill directory names under root that contain a
// SKILL.jsonc or SKILL.md manifest, without loading them (used by
// Registry.ListAvailable).
func Discover(root string) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, file := range []string{ManifestFile, MarkdownManifestFile} {
		matches, err := doublestar.FilepathGlob(filepath.Join(root, "*", file))
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.Runtime, err, "discover skills under %q", root)
		}
		for _, m := range matches {
			name := filepath.Base(filepath.Dir(m))
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names, nil
}

// Reload re-parses the manifest at dir into a brand new Skill value without
// touching any previously installed version: the caller only installs the
// result once Reload returns successfully, so a bad edit never clobbers a
// working skill mid-reload.
func Reload(dir string, previousVersion int) (*Skill, error) {
	s, err := Load(dir)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.ReloadFailed, err, "reload %q", dir)
	}
	s.Version = previousVersion + 1
	return s, nil
}
