// Package collection keeps the known environments in a persisted cache and
// refreshes it from the locator pipeline.
package collection

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
	"pyenvs/internal/logx"
)

type entry struct {
	env envinfo.Env
	// complete marks entries whose details are known to be current.
	complete bool
}

// Cache is the in-memory environment collection backed by a Store.
type Cache struct {
	store  Store
	logger *log.Logger

	mu      sync.Mutex
	entries []*entry

	changed events.Emitter[envinfo.ChangeEvent]
}

// NewCache creates an empty cache. Call Initialize to load the store.
func NewCache(store Store, logger *log.Logger) *Cache {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Cache{store: store, logger: logx.Component(logger, "cache")}
}

// Initialize loads the persisted entries. A failed load leaves the cache
// empty. Loaded entries start incomplete.
func (c *Cache) Initialize(ctx context.Context) error {
	envs, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("starting with an empty cache", "err", err)
		envs = nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
	for _, env := range envs {
		if env.Executable.Filename == "" {
			continue
		}
		c.entries = append(c.entries, &entry{env: env.Clone()})
	}
	c.logger.Debug("cache loaded", "count", len(c.entries))
	return nil
}

// Dispose drops every subscriber and flushes.
func (c *Cache) Dispose(ctx context.Context) error {
	c.changed.Clear()
	return c.Flush(ctx, false)
}

// OnChanged fires for every entry that is added, replaced or removed.
func (c *Cache) OnChanged() *events.Emitter[envinfo.ChangeEvent] {
	return &c.changed
}

// GetAllEnvs returns a snapshot of the cached environments.
func (c *Cache) GetAllEnvs() []envinfo.Env {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]envinfo.Env, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.env.Clone()
	}
	return out
}

// Len returns the number of cached environments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// find returns the index of the entry matching env, or -1. Callers hold mu.
func (c *Cache) find(env envinfo.Env) int {
	for i, e := range c.entries {
		if envinfo.AreSameEnv(e.env, env, true) {
			return i
		}
	}
	return -1
}

// AddEnv inserts env unless an entry for it already exists.
func (c *Cache) AddEnv(env envinfo.Env, hasCompleteInfo bool) {
	c.mu.Lock()
	if c.find(env) >= 0 {
		c.mu.Unlock()
		return
	}
	stored := env.Clone()
	c.entries = append(c.entries, &entry{env: stored, complete: hasCompleteInfo})
	c.mu.Unlock()

	c.changed.Fire(changeEvent(nil, &stored))
}

// UpdateEnv replaces the entry matching old with updated, or removes it when
// updated is nil. Complete entries are only overwritten with force.
func (c *Cache) UpdateEnv(old *envinfo.Env, updated *envinfo.Env, force bool) {
	match := old
	if match == nil {
		match = updated
	}
	if match == nil {
		return
	}

	c.mu.Lock()
	idx := c.find(*match)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	prev := c.entries[idx].env
	if updated == nil {
		c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
		c.mu.Unlock()
		c.changed.Fire(changeEvent(&prev, nil))
		return
	}
	if c.entries[idx].complete && !force {
		c.mu.Unlock()
		return
	}
	next := updated.Clone()
	c.entries[idx] = &entry{env: next, complete: force}
	c.mu.Unlock()

	c.changed.Fire(changeEvent(&prev, &next))
}

// ValidateCache evicts entries whose executable is gone. When fresh is a
// complete discovery result, rootless entries it no longer contains are
// evicted too. The evicted entries are returned.
func (c *Cache) ValidateCache(_ context.Context, fresh []envinfo.Env, isCompleteList bool) []envinfo.Env {
	ids := make(map[string]struct{}, len(fresh))
	for _, env := range fresh {
		ids[env.ID] = struct{}{}
	}
	stillFound := func(env envinfo.Env) bool {
		if _, ok := ids[env.ID]; ok {
			return true
		}
		for _, f := range fresh {
			if envinfo.AreSameEnv(env, f, true) {
				return true
			}
		}
		return false
	}

	c.mu.Lock()
	var evicted []envinfo.Env
	kept := c.entries[:0]
	for _, e := range c.entries {
		switch {
		case !executableExists(e.env.Executable.Filename):
			evicted = append(evicted, e.env)
		case isCompleteList && e.env.SearchLocation == "" && !stillFound(e.env):
			evicted = append(evicted, e.env)
		default:
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = kept
	c.mu.Unlock()

	for i := range evicted {
		c.logger.Debug("evicting stale environment", "path", evicted[i].Executable.Filename)
		c.changed.Fire(changeEvent(&evicted[i], nil))
	}
	return evicted
}

// GetLatestInfo returns the cached entry for path if it can be trusted: it
// is flagged complete, or the executable's timestamps still match. A
// timestamp match flags the entry complete.
func (c *Cache) GetLatestInfo(path string) (*envinfo.Env, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if !envinfo.SamePath(e.env.Executable.Filename, path) {
			continue
		}
		if e.complete || timesMatch(e.env) {
			e.complete = true
			out := e.env.Clone()
			return &out, true
		}
		return nil, false
	}
	return nil, false
}

// OutOfDate lists entries that are neither complete nor confirmed by their
// executable's timestamps.
func (c *Cache) OutOfDate() []envinfo.Env {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []envinfo.Env
	for _, e := range c.entries {
		if !e.complete && !timesMatch(e.env) {
			out = append(out, e.env.Clone())
		}
	}
	return out
}

// IsComplete reports whether the entry for path is flagged complete.
func (c *Cache) IsComplete(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if envinfo.SamePath(e.env.Executable.Filename, path) {
			return e.complete
		}
	}
	return false
}

// Flush persists the cache. With markComplete every entry is flagged
// complete first.
func (c *Cache) Flush(ctx context.Context, markComplete bool) error {
	c.mu.Lock()
	snapshot := make([]envinfo.Env, len(c.entries))
	for i, e := range c.entries {
		if markComplete {
			e.complete = true
		}
		snapshot[i] = e.env.Clone()
	}
	c.mu.Unlock()

	if err := c.store.Store(ctx, snapshot); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	c.logger.Debug("cache flushed", "count", len(snapshot), "complete", markComplete)
	return nil
}

// Clear removes every entry and persists the empty cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	removed := make([]envinfo.Env, len(c.entries))
	for i, e := range c.entries {
		removed[i] = e.env
	}
	c.entries = nil
	c.mu.Unlock()

	for i := range removed {
		c.changed.Fire(changeEvent(&removed[i], nil))
	}
	return c.Flush(ctx, false)
}

func changeEvent(old, updated *envinfo.Env) envinfo.ChangeEvent {
	ev := envinfo.ChangeEvent{Old: old, New: updated}
	switch {
	case updated != nil:
		k := updated.Kind
		ev.Kind = &k
		ev.SearchLocation = updated.SearchLocation
	case old != nil:
		k := old.Kind
		ev.Kind = &k
		ev.SearchLocation = old.SearchLocation
	}
	return ev
}

func executableExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func timesMatch(env envinfo.Env) bool {
	if env.Executable.Mtime < 0 || env.Executable.Ctime < 0 {
		return false
	}
	ctime, mtime, err := envinfo.FileTimes(env.Executable.Filename)
	if err != nil {
		return false
	}
	return ctime == env.Executable.Ctime && mtime == env.Executable.Mtime
}
