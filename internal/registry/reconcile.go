package registry

import (
	"context"
	"log/slog"
)

// IndexSyncer is the subset of the Holographic Index the registry needs to
// reconcile its currently loaded commands against what is persisted.
// Satisfied by *index.Index.
type IndexSyncer interface {
	IDs(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, id string, text string, meta map[string]any) error
	Delete(ctx context.Context, id string) error
}

// ReconcileStats reports the outcome of a startup reconciliation pass.
type ReconcileStats struct {
	Removed   int
	Reindexed int
}

// Reconcile diffs the index's persisted entries against the set of command
// ids every currently loaded skill declares: entries with no corresponding
// loaded command are deleted, and commands with no corresponding entry are
// (re)indexed. Mirrors the list/diff/upsert-or-delete shape of the
// teacher's bulk-reindex pass.
func Reconcile(ctx context.Context, r *Registry, idx IndexSyncer, contextText func(skillName, commandID string) (string, map[string]any)) (ReconcileStats, error) {
	persisted, err := idx.IDs(ctx)
	if err != nil {
		return ReconcileStats{}, err
	}
	persistedSet := make(map[string]bool, len(persisted))
	for _, id := range persisted {
		persistedSet[id] = true
	}

	loaded := r.CommandIDs()
	loadedSet := make(map[string]bool, len(loaded))
	for _, id := range loaded {
		loadedSet[id] = true
	}

	var stats ReconcileStats

	for id := range persistedSet {
		if !loadedSet[id] {
			if err := idx.Delete(ctx, id); err != nil {
				slog.Warn("reconcile: delete failed", "id", id, "error", err)
				continue
			}
			stats.Removed++
		}
	}

	for _, s := range r.All() {
		for _, id := range s.ToolIDs() {
			if persistedSet[id] {
				continue
			}
			text, meta := contextText(s.Name, id)
			if err := idx.Upsert(ctx, id, text, meta); err != nil {
				slog.Warn("reconcile: upsert failed", "id", id, "error", err)
				continue
			}
			stats.Reindexed++
		}
	}

	slog.Info("reconcile complete", "removed", stats.Removed, "reindexed", stats.Reindexed)
	return stats, nil
}
