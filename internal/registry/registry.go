// Package registry owns the set of loaded skills: discovery, lifecycle
// (load/unload/reload), debounced change coalescing, and periodic polling
// for on-disk edits.
package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
	"github.com/corvid-labs/skillkernel/internal/manifest"
)

// Registry holds every currently loaded Skill, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*manifest.Skill
	dirs   map[string]string    // skill name -> source directory, tracked even across unload for reload-by-name
	mtimes map[string]time.Time // skill name -> last-seen manifest mtime, for poll-based change detection

	roots []string // directories scanned for skill subdirectories
	bus   *events.Bus

	deb    *debouncer
	poller *poller
}

// New creates an empty Registry that will discover skills under roots.
func New(roots []string, bus *events.Bus, debounceWindow time.Duration) *Registry {
	r := &Registry{
		skills: make(map[string]*manifest.Skill),
		dirs:   make(map[string]string),
		mtimes: make(map[string]time.Time),
		roots:  roots,
		bus:    bus,
	}
	r.deb = newDebouncer(debounceWindow, r.applyChange)
	return r
}

// DiscoverAll scans every root directory and loads every skill found,
// skipping (and logging) any that fail to parse. This is the initial,
// non-debounced bulk load performed at startup.
func (r *Registry) DiscoverAll(ctx context.Context) error {
	for _, root := range r.roots {
		names, err := manifest.Discover(root)
		if err != nil {
			return err
		}
		for _, name := range names {
			dir := filepath.Join(root, name)
			s, err := manifest.Load(dir)
			if err != nil {
				slog.Warn("registry: skipping skill", "dir", dir, "error", err)
				continue
			}
			r.install(s, dir)
		}
	}
	return nil
}

func (r *Registry) install(s *manifest.Skill, dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = s
	r.dirs[s.Name] = dir
	r.mtimes[s.Name] = manifestMTime(dir)
}

func manifestMTime(dir string) time.Time {
	info, err := os.Stat(filepath.Join(dir, manifest.ManifestFile))
	if err != nil {
		info, err = os.Stat(filepath.Join(dir, manifest.MarkdownManifestFile))
		if err != nil {
			return time.Time{}
		}
	}
	return info.ModTime()
}

// Get returns the skill with the given name, if loaded.
func (r *Registry) Get(name string) (*manifest.Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// All returns every loaded skill, sorted by name.
func (r *Registry) All() []*manifest.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*manifest.Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every loaded skill name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandIDs returns the "{skill}.{command}" id of every command across
// every loaded skill, sorted. Used by Reconcile to diff the Holographic
// Index's persisted entries against what is actually loaded.
func (r *Registry) CommandIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, s := range r.skills {
		ids = append(ids, s.ToolIDs()...)
	}
	sort.Strings(ids)
	return ids
}

// Load installs a new skill by directory, immediately (no debounce). Used
// by the CLI's explicit "skill load" verb.
func (r *Registry) Load(name, dir string) (*manifest.Skill, error) {
	r.mu.RLock()
	_, exists := r.skills[name]
	r.mu.RUnlock()
	if exists {
		return nil, kernelerr.New(kernelerr.Duplicate, "skill %q already loaded", name)
	}

	s, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	r.install(s, dir)
	r.publish(events.EventSkillLoaded, s)
	return s, nil
}

// Unload removes a skill immediately (no debounce).
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	s, ok := r.skills[name]
	if !ok {
		r.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "skill %q not loaded", name)
	}
	delete(r.skills, name)
	delete(r.mtimes, name)
	r.mu.Unlock()

	r.publish(events.EventSkillUnloaded, s)
	return nil
}

// Reload re-parses a loaded skill's manifest immediately (no debounce),
// installing the new version only on success (fail-safe: a bad edit leaves
// the previous version in place).
func (r *Registry) Reload(name string) (*manifest.Skill, error) {
	r.mu.RLock()
	dir, ok := r.dirs[name]
	old, _ := r.skills[name]
	r.mu.RUnlock()
	if !ok {
		return nil, kernelerr.New(kernelerr.NotFound, "skill %q not loaded", name)
	}

	prevVersion := 0
	if old != nil {
		prevVersion = old.Version
	}

	s, err := manifest.Reload(dir, prevVersion)
	if err != nil {
		return nil, err
	}
	r.install(s, dir)
	r.publish(events.EventSkillReloaded, s)
	return s, nil
}

func (r *Registry) publish(t events.EventType, s *manifest.Skill) {
	if r.bus == nil {
		return
	}
	e := events.NewTypedEvent(events.SourceRegistry, events.SkillChangePayload{
		SkillName:    s.Name,
		Version:      s.Version,
		CommandCount: len(s.Commands),
	})
	e.Type = t
	r.bus.Publish(e)
}

// scanTick compares the current on-disk skill directories against what is
// loaded and feeds any detected load/reload/unload into the debouncer. It
// is the callback driven by the cron-scheduled poller.
func (r *Registry) scanTick() {
	seen := make(map[string]bool)

	for _, root := range r.roots {
		names, err := manifest.Discover(root)
		if err != nil {
			slog.Warn("registry: poll discover failed", "root", root, "error", err)
			continue
		}
		for _, name := range names {
			seen[name] = true
			dir := filepath.Join(root, name)

			r.mu.RLock()
			lastMTime, loaded := r.mtimes[name]
			r.mu.RUnlock()

			current := manifestMTime(dir)
			switch {
			case !loaded:
				r.notifyChange(name, changeLoad, dir)
			case current.After(lastMTime):
				r.notifyChange(name, changeReload, dir)
			}
		}
	}

	r.mu.RLock()
	loadedNames := make([]string, 0, len(r.skills))
	for name := range r.skills {
		loadedNames = append(loadedNames, name)
	}
	r.mu.RUnlock()

	for _, name := range loadedNames {
		if !seen[name] {
			r.notifyChange(name, changeUnload, "")
		}
	}
}

// notifyChange records a detected filesystem change for name, coalescing
// it into the debounce window. dir is only used for load notifications
// (the directory a not-yet-loaded skill was discovered in).
func (r *Registry) notifyChange(name string, kind changeKind, dir string) {
	r.deb.notify(name, kind, dir)
}

// applyChange performs the coalesced action the debouncer decided on, once
// its window closes.
func (r *Registry) applyChange(name string, kind changeKind, dir string) {
	switch kind {
	case changeLoad:
		if dir == "" {
			return
		}
		s, err := manifest.Load(dir)
		if err != nil {
			slog.Warn("registry: debounced load failed", "skill", name, "error", err)
			return
		}
		r.install(s, dir)
		r.publish(events.EventSkillLoaded, s)

	case changeReload:
		if _, err := r.Reload(name); err != nil {
			slog.Warn("registry: debounced reload failed", "skill", name, "error", err)
		}

	case changeUnload:
		if err := r.Unload(name); err != nil {
			slog.Warn("registry: debounced unload failed", "skill", name, "error", err)
		}
	}
}

// StartPolling begins a cron-driven poll loop (schedule e.g. "@every 2s")
// that compares each root directory's skill subdirectories against what is
// currently loaded and feeds detected changes through the debounce window.
// Returns a stop function.
func (r *Registry) StartPolling(schedule string) (func(), error) {
	p, err := newPoller(schedule, r.scanTick)
	if err != nil {
		return nil, err
	}
	r.poller = p
	p.start()
	return p.stop, nil
}

// Close stops any running poll loop and waits for in-flight debounced
// change goroutines to finish.
func (r *Registry) Close() {
	if r.poller != nil {
		r.poller.stop()
	}
	r.deb.stop()
}
