// SPDX-License-Identifier: MPL-2.0

// Package watch notices interpreters and environments appearing or
// disappearing under a set of root directories.
//
// Events are coalesced over a debounce window so a burst, like a venv being
// created, produces one callback with every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"pyenvs/internal/logx"
)

const (
	defaultDebounce = 500 * time.Millisecond
	defaultMaxDepth = 3
)

// DefaultPatterns select the paths whose changes can add or remove an
// environment.
var DefaultPatterns = []string{
	"**/bin/python*",
	"**/Scripts/python*.exe",
	"**/python.exe",
	"**/pyvenv.cfg",
	"**/conda-meta",
	"**/environments.txt",
	"*",
}

var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/site-packages/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Roots are watched recursively up to MaxDepth. Missing roots are
	// skipped.
	Roots []string

	// Patterns are doublestar globs matched against paths relative to their
	// root. Empty means DefaultPatterns.
	Patterns []string

	// Ignore adds to the built-in ignore patterns.
	Ignore []string

	// Debounce is the quiet period before OnChange fires.
	Debounce time.Duration

	// MaxDepth bounds how many directory levels below a root are watched.
	MaxDepth int

	// OnChange receives the absolute paths changed in one debounce window.
	OnChange func(ctx context.Context, changed []string) error

	Logger *log.Logger
}

// Watcher fires a debounced callback when matching paths change. Run must
// be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	roots    []string
	ignores  []string
	patterns []string
	debounce time.Duration
	maxDepth int
	logger   *log.Logger
	started  atomic.Bool
}

// New validates cfg and registers every existing root.
func New(cfg Config) (*Watcher, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := validatePatterns(patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		patterns: patterns,
		debounce: cfg.Debounce,
		maxDepth: cfg.MaxDepth,
		logger:   logx.Component(cfg.Logger, "watch"),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.maxDepth <= 0 {
		w.maxDepth = defaultMaxDepth
	}

	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			w.logger.Debug("skipping missing root", "root", abs)
			continue
		}
		if err := w.addTree(abs, abs); err != nil {
			fsw.Close()
			return nil, err
		}
		w.roots = append(w.roots, abs)
	}
	return w, nil
}

// Roots returns the roots actually being watched.
func (w *Watcher) Roots() []string {
	return slices.Clone(w.roots)
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation and the error for a fatal watcher failure.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			// Still handling the previous batch; try again later so
			// nothing pending is lost.
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Collect(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		sort.Strings(changed)
		w.logger.Debug("change batch", "paths", len(changed))
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Warn("change callback failed", "err", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Debug("close fsnotify", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			root, rel, ok := w.relative(evt.Name)
			if !ok || w.isIgnored(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(root, evt.Name)
			}
			if !w.matchesPatterns(rel) {
				continue
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

// RootsOf returns the watched roots containing any of paths.
func (w *Watcher) RootsOf(paths []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range paths {
		root, _, ok := w.relative(p)
		if !ok {
			continue
		}
		if _, dup := seen[root]; !dup {
			seen[root] = struct{}{}
			out = append(out, root)
		}
	}
	return out
}

// relative finds the most specific root holding path.
func (w *Watcher) relative(path string) (root, rel string, ok bool) {
	for _, r := range w.roots {
		candidate, err := filepath.Rel(r, path)
		if err != nil || candidate == ".." || strings.HasPrefix(candidate, ".."+string(filepath.Separator)) {
			continue
		}
		if !ok || len(r) > len(root) {
			root, rel, ok = r, candidate, true
		}
	}
	return root, rel, ok
}

func depthOf(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

func (w *Watcher) addTree(root, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Debug("skipping inaccessible path", "path", path, "err", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if depthOf(rel) > w.maxDepth || w.isIgnored(rel) || w.isIgnored(rel+"/") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", dir, err)
	}
	return nil
}

func (w *Watcher) maybeAddDir(root, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(root, path); err != nil {
		w.logger.Warn("watch new directory", "path", path, "err", err)
	}
}

func (w *Watcher) isIgnored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) matchesPatterns(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}
