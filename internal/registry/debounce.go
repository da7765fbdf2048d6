package registry

import (
	"log/slog"
	"sync"
	"time"
)

// changeKind is a pending registry mutation detected by the poll loop.
// Priority order when multiple kinds coalesce within one debounce window:
// unload beats reload beats load — a skill directory that was reloaded and
// then deleted before the window closed should end up unloaded, not
// reloaded into a version that no longer exists on disk.
type changeKind int

const (
	changeLoad changeKind = iota
	changeReload
	changeUnload
)

func (k changeKind) priority() int { return int(k) }

func (k changeKind) String() string {
	switch k {
	case changeLoad:
		return "load"
	case changeReload:
		return "reload"
	case changeUnload:
		return "unload"
	default:
		return "unknown"
	}
}

type pendingChange struct {
	kind  changeKind
	dir   string
	timer *time.Timer
}

// debouncer coalesces repeated notifications for the same skill name within
// a fixed window into a single flush, keeping the highest-priority kind
// seen. One timer per skill name.
type debouncer struct {
	window time.Duration
	apply  func(name string, kind changeKind, dir string)

	mu      sync.Mutex
	pending map[string]*pendingChange
	wg      sync.WaitGroup
	closed  bool
}

func newDebouncer(window time.Duration, apply func(name string, kind changeKind, dir string)) *debouncer {
	return &debouncer{
		window:  window,
		apply:   apply,
		pending: make(map[string]*pendingChange),
	}
}

// notify records a detected change for name, resetting (or coalescing into)
// its debounce timer.
func (d *debouncer) notify(name string, kind changeKind, dir string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if existing, ok := d.pending[name]; ok {
		existing.timer.Stop()
		if kind.priority() > existing.kind.priority() {
			existing.kind = kind
		}
		if dir != "" {
			existing.dir = dir
		}
		existing.timer = d.newTimer(name)
		return
	}

	d.pending[name] = &pendingChange{
		kind:  kind,
		dir:   dir,
		timer: d.newTimer(name),
	}
}

func (d *debouncer) newTimer(name string) *time.Timer {
	d.wg.Add(1)
	return time.AfterFunc(d.window, func() {
		defer d.wg.Done()
		d.flush(name)
	})
}

func (d *debouncer) flush(name string) {
	d.mu.Lock()
	change, ok := d.pending[name]
	if ok {
		delete(d.pending, name)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	slog.Debug("registry: flushing debounced change", "skill", name, "kind", change.kind)
	d.apply(name, change.kind, change.dir)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	d.closed = true
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = make(map[string]*pendingChange)
	d.mu.Unlock()
	d.wg.Wait()
}
