package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
	"pyenvs/internal/locator"
	"pyenvs/internal/logx"
	"pyenvs/internal/watch"
)

const validateConcurrency = 4

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Logger *log.Logger
}

// Service answers environment queries from the cache and keeps the cache
// current by running refreshes through the locator pipeline.
type Service struct {
	cache  *Cache
	loc    locator.Locator
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	running    map[string]*Refresh
	successors map[string]*Refresh

	changed  events.Emitter[envinfo.ChangeEvent]
	progress events.Emitter[ProgressEvent]
	triggers events.Emitter[RefreshTrigger]

	cacheSub events.Token
	locSub   events.Token
}

// NewService wires cache and loc together. Call Start before serving and
// Close when done.
func NewService(cache *Cache, loc locator.Locator, opts ServiceOptions) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cache:      cache,
		loc:        loc,
		logger:     logx.Component(opts.Logger, "collection"),
		ctx:        ctx,
		cancel:     cancel,
		running:    map[string]*Refresh{},
		successors: map[string]*Refresh{},
	}
	s.cacheSub = cache.OnChanged().Subscribe(s.changed.Fire)
	if w, ok := loc.(locator.Watchable); ok {
		s.locSub = w.OnChanged().Subscribe(s.locatorChanged)
	}
	return s
}

// OnChanged fires for every cache change and, after the follow-up refresh,
// for every locator change.
func (s *Service) OnChanged() *events.Emitter[envinfo.ChangeEvent] {
	return &s.changed
}

// OnProgress fires as refreshes move through their stages.
func (s *Service) OnProgress() *events.Emitter[ProgressEvent] {
	return &s.progress
}

// OnRefreshTrigger fires each time a refresh actually starts.
func (s *Service) OnRefreshTrigger() *events.Emitter[RefreshTrigger] {
	return &s.triggers
}

// Cache returns the backing cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Start loads the persisted cache and revalidates entries that may be stale.
func (s *Service) Start(ctx context.Context) error {
	if err := s.cache.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	return s.ValidateCollection(ctx)
}

// Close stops background work, rejects queued refreshes and flushes the
// cache.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for key, succ := range s.successors {
		succ.settle(ErrClosed)
		delete(s.successors, key)
	}
	s.mu.Unlock()

	s.cache.OnChanged().Unsubscribe(s.cacheSub)
	if w, ok := s.loc.(locator.Watchable); ok {
		w.OnChanged().Unsubscribe(s.locSub)
	}
	return s.cache.Dispose(context.Background())
}

// GetEnvs returns the cached environments matching q. An empty cache kicks
// off a background refresh. With q.IgnoreCache the call waits for a refresh
// of q first.
func (s *Service) GetEnvs(ctx context.Context, q *envinfo.Query) ([]envinfo.Env, error) {
	if q != nil && q.IgnoreCache {
		if err := s.TriggerRefresh(q.Scope(), RefreshOptions{}).Wait(ctx); err != nil {
			return nil, err
		}
	} else if s.cache.Len() == 0 && !s.refreshing(q) {
		s.TriggerRefresh(nil, RefreshOptions{})
	}
	return envinfo.Filter(s.cache.GetAllEnvs(), q), nil
}

// ResolveEnv returns full details for the interpreter at path, preferring
// cached data that is known to be current.
func (s *Service) ResolveEnv(ctx context.Context, path string) (*envinfo.Env, error) {
	if !s.refreshing(nil) || s.cache.IsComplete(path) {
		if env, ok := s.cache.GetLatestInfo(path); ok {
			return env, nil
		}
	}

	env, err := s.loc.ResolveEnv(ctx, path)
	if err != nil {
		return nil, err
	}
	s.cache.UpdateEnv(env, env, true)
	s.cache.AddEnv(*env, true)
	return env, nil
}

// ValidateCollection evicts entries whose executable vanished and
// re-resolves entries whose executable changed since they were cached.
func (s *Service) ValidateCollection(ctx context.Context) error {
	s.cache.ValidateCache(ctx, nil, false)

	stale := s.cache.OutOfDate()
	if len(stale) == 0 {
		return nil
	}
	s.logger.Debug("revalidating cached environments", "count", len(stale))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateConcurrency)
	for i := range stale {
		old := stale[i]
		g.Go(func() error {
			env, err := s.loc.ResolveEnv(gctx, old.Executable.Filename)
			switch {
			case err == nil:
				s.cache.UpdateEnv(&old, env, true)
			case errors.Is(err, locator.ErrNotFound):
				s.cache.UpdateEnv(&old, nil, true)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				s.logger.Debug("revalidation failed", "path", old.Executable.Filename, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// TriggerRefresh starts a refresh for q, or returns a running one that
// already covers q. With opts.Fresh a running refresh for q is not shared;
// a single successor is queued behind it instead.
func (s *Service) TriggerRefresh(q *envinfo.Query, opts RefreshOptions) *Refresh {
	key := q.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		r := newRefresh(q, opts.Fresh)
		r.settle(ErrClosed)
		return r
	}

	if opts.Fresh {
		if succ := s.successors[key]; succ != nil {
			s.mu.Unlock()
			return succ
		}
		if cur := s.running[key]; cur != nil {
			succ := newRefresh(q, true)
			s.successors[key] = succ
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				select {
				case <-cur.Done():
					s.promote(key, succ)
				case <-s.ctx.Done():
				}
			}()
			s.mu.Unlock()
			return succ
		}
	} else {
		if cur := s.running[key]; cur != nil {
			s.mu.Unlock()
			return cur
		}
		if cur := s.running[""]; cur != nil {
			s.mu.Unlock()
			return cur
		}
	}

	r := newRefresh(q, opts.Fresh)
	s.startLocked(key, r)
	s.mu.Unlock()

	s.triggers.Fire(RefreshTrigger{Query: q, Fresh: opts.Fresh})
	return r
}

// StagePromise returns the promise for the running refresh of q reaching
// stage. A stage already passed gives a settled promise. It is nil when no
// refresh of q is running or the refresh never reaches stage.
func (s *Service) StagePromise(q *envinfo.Query, stage Stage) *Promise {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.running[q.Key()]
	if r == nil {
		return nil
	}
	return r.stages[stage]
}

// Watch runs a filesystem watcher until ctx ends. Each change batch is
// reported as a locator change for the affected roots, which queues a fresh
// unscoped refresh.
func (s *Service) Watch(ctx context.Context, cfg watch.Config) error {
	var w *watch.Watcher
	user := cfg.OnChange
	cfg.OnChange = func(ctx context.Context, changed []string) error {
		roots := w.RootsOf(changed)
		if len(roots) == 0 {
			s.locatorChanged(envinfo.ChangeEvent{})
		}
		for _, root := range roots {
			s.locatorChanged(envinfo.ChangeEvent{SearchLocation: root})
		}
		if user != nil {
			return user(ctx, changed)
		}
		return nil
	}
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}

	var err error
	w, err = watch.New(cfg)
	if err != nil {
		return err
	}
	s.logger.Info("watching", "roots", w.Roots())
	return w.Run(ctx)
}

// refreshing reports whether a refresh covering q is in flight.
func (s *Service) refreshing(q *envinfo.Query) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q == nil {
		return len(s.running) > 0
	}
	return s.running[q.Key()] != nil || s.running[""] != nil
}

func (s *Service) locatorChanged(ev envinfo.ChangeEvent) {
	r := s.TriggerRefresh(nil, RefreshOptions{Fresh: true})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		if err := r.Wait(s.ctx); err != nil {
			s.logger.Debug("refresh after change failed", "err", err)
			return
		}
		s.changed.Fire(ev)
	}()
}

func (s *Service) promote(key string, succ *Refresh) {
	s.mu.Lock()
	if s.successors[key] == succ {
		delete(s.successors, key)
	}
	if s.closed {
		s.mu.Unlock()
		succ.settle(ErrClosed)
		return
	}
	s.startLocked(key, succ)
	s.mu.Unlock()

	s.triggers.Fire(RefreshTrigger{Query: succ.Query, Fresh: true})
}

// startLocked registers r as running and launches it. Callers hold mu.
func (s *Service) startLocked(key string, r *Refresh) {
	r.stages = map[Stage]*Promise{
		StageDiscoveryStarted:  newPromise(),
		StageDiscoveryFinished: newPromise(),
	}
	if r.Query == nil {
		r.stages[StageAllPathsDiscovered] = newPromise()
	}
	s.running[key] = r
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.run(r)

		s.mu.Lock()
		if s.running[key] == r {
			delete(s.running, key)
		}
		s.mu.Unlock()

		// Stages reached already stay resolved; the rest settle with err.
		for _, p := range r.stages {
			p.settle(err)
		}
		r.settle(err)
	}()
}

func (s *Service) run(r *Refresh) error {
	q := r.Query
	s.reach(r, StageDiscoveryStarted)
	s.logger.Debug("refresh started", "query", q.Key(), "fresh", r.Fresh)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	it := s.loc.IterEnvs(ctx, q)
	var (
		seen    []*envinfo.Env
		pending []*envinfo.UpdateEvent
	)
	apply := func(ev *envinfo.UpdateEvent) {
		old := seen[ev.Index]
		seen[ev.Index] = ev.Update
		switch {
		case ev.Update == nil && old != nil:
			s.cache.UpdateEnv(old, nil, false)
		case ev.Update == nil:
		case old == nil:
			s.cache.AddEnv(*ev.Update, false)
		default:
			s.cache.UpdateEnv(old, ev.Update, false)
		}
	}
	flushPending := func() {
		rest := pending[:0]
		for _, ev := range pending {
			if ev.Index < len(seen) {
				apply(ev)
			} else {
				rest = append(rest, ev)
			}
		}
		pending = rest
	}

	envs, updates := it.Envs, it.Updates
	for envs != nil || updates != nil {
		select {
		case env, ok := <-envs:
			if !ok {
				envs = nil
				if err := it.Err(); err != nil {
					return fmt.Errorf("refresh: %w", err)
				}
				if q == nil {
					s.reach(r, StageAllPathsDiscovered)
				}
				continue
			}
			seen = append(seen, env)
			if env != nil {
				s.cache.AddEnv(*env, false)
			}
			flushPending()
		case ev, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			pending = append(pending, ev)
			flushPending()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	fresh := make([]envinfo.Env, 0, len(seen))
	for _, env := range seen {
		if env != nil {
			fresh = append(fresh, *env)
		}
	}
	evicted := s.cache.ValidateCache(ctx, fresh, q == nil)
	if err := s.cache.Flush(ctx, q == nil); err != nil {
		s.logger.Warn("could not persist cache", "err", err)
	}
	s.logger.Info("refresh finished", "query", q.Key(), "found", len(fresh), "evicted", len(evicted))
	s.reach(r, StageDiscoveryFinished)
	return nil
}

// reach resolves the promise for stage, then fires its progress event.
func (s *Service) reach(r *Refresh, stage Stage) {
	if p := r.stages[stage]; p != nil {
		p.settle(nil)
	}
	s.progress.Fire(ProgressEvent{Stage: stage, Query: r.Query})
}
