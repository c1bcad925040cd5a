// Package resolver fills in what discovery cannot see from the filesystem.
// Each environment is passed on at once in minimal form, and the
// interpreter is inspected in the background; the enriched descriptor
// follows as an update.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"pyenvs/internal/discovery"
	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/inspect"
	"pyenvs/internal/locator"
	"pyenvs/internal/logx"
	"pyenvs/internal/taskpool"
)

// Inspector runs an interpreter to learn its details.
type Inspector interface {
	Inspect(ctx context.Context, req inspect.Request, pos taskpool.Position) (*inspect.Info, error)
}

// Options configures a Locator.
type Options struct {
	Host   *hostenv.Env
	Logger *log.Logger
}

// Locator wraps a parent locator and resolves every environment it yields.
type Locator struct {
	parent    locator.Locator
	inspector Inspector
	host      *hostenv.Env
	logger    *log.Logger
	changed   events.Emitter[envinfo.ChangeEvent]
}

// New creates a resolving Locator over parent.
func New(parent locator.Locator, inspector Inspector, opts Options) *Locator {
	if opts.Host == nil {
		opts.Host = hostenv.FromOS()
	}
	return &Locator{
		parent:    parent,
		inspector: inspector,
		host:      opts.Host,
		logger:    logx.Component(opts.Logger, "resolver"),
	}
}

// OnChanged forwards the parent's change notifications.
func (l *Locator) OnChanged() *events.Emitter[envinfo.ChangeEvent] {
	if w, ok := l.parent.(locator.Watchable); ok {
		return w.OnChanged()
	}
	return &l.changed
}

// Kinds forwards the parent's kinds.
func (l *Locator) Kinds() []envinfo.Kind {
	if kr, ok := l.parent.(locator.KindReporter); ok {
		return kr.Kinds()
	}
	return nil
}

type iterState struct {
	mu      sync.Mutex
	seen    []*envinfo.Env
	pending sync.WaitGroup
}

// IterEnvs implements locator.Locator.
func (l *Locator) IterEnvs(ctx context.Context, q *envinfo.Query) *locator.Iterator {
	parent := l.parent.IterEnvs(ctx, q)
	p := locator.NewProducer(true)
	st := &iterState{}

	go func() {
		envs, updates := parent.Envs, parent.Updates
		for envs != nil || updates != nil {
			select {
			case env, ok := <-envs:
				if !ok {
					envs = nil
					p.Fail(parent.Err())
					p.CloseEnvs()
					continue
				}
				if env == nil {
					// Keep index spaces aligned with the parent.
					st.mu.Lock()
					st.seen = append(st.seen, nil)
					st.mu.Unlock()
					p.Yield(ctx, nil)
					continue
				}
				minimal := l.minimal(*env)
				st.mu.Lock()
				idx := len(st.seen)
				st.seen = append(st.seen, &minimal)
				st.mu.Unlock()

				if !p.Yield(ctx, &minimal) {
					envs = nil
					p.CloseEnvs()
					continue
				}
				st.pending.Add(1)
				go l.resolveInBackground(ctx, p, st, idx, &minimal)
			case ev, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				l.handleUpstream(ctx, p, st, ev)
			case <-ctx.Done():
				if envs != nil {
					envs = nil
					p.CloseEnvs()
				}
				updates = nil
			}
		}
		st.pending.Wait()
		p.CloseUpdates()
	}()

	return p.Iterator()
}

func (l *Locator) handleUpstream(ctx context.Context, p *locator.Producer, st *iterState, ev *envinfo.UpdateEvent) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if ev.Index < 0 || ev.Index >= len(st.seen) {
		l.logger.Debug("update for unknown index", "index", ev.Index)
		return
	}
	old := st.seen[ev.Index]
	if ev.Update == nil {
		l.logger.Debug("forwarding invalidation", "index", ev.Index)
		st.seen[ev.Index] = nil
		p.Update(ctx, &envinfo.UpdateEvent{Index: ev.Index, Old: old, Update: nil})
		return
	}
	if old == nil {
		l.logger.Debug("update for dropped entry", "index", ev.Index)
		return
	}
	minimal := l.minimal(*ev.Update)
	st.seen[ev.Index] = &minimal
	st.pending.Add(1)
	go l.resolveInBackground(ctx, p, st, ev.Index, &minimal)
}

// resolveInBackground inspects env and reports the outcome for idx. The
// result is dropped if the entry was replaced meanwhile.
func (l *Locator) resolveInBackground(ctx context.Context, p *locator.Producer, st *iterState, idx int, env *envinfo.Env) {
	defer st.pending.Done()

	info, err := l.inspector.Inspect(ctx, l.request(*env), taskpool.Back)
	if ctx.Err() != nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.seen[idx] != env {
		return
	}
	if err != nil {
		l.logger.Debug("dropping unresolvable environment", "path", env.Executable.Filename, "err", err)
		st.seen[idx] = nil
		p.Update(ctx, &envinfo.UpdateEvent{Index: idx, Old: env, Update: nil})
		return
	}
	resolved := info.Apply(*env)
	st.seen[idx] = &resolved
	p.Update(ctx, &envinfo.UpdateEvent{Index: idx, Old: env, Update: &resolved})
}

// ResolveEnv identifies and inspects a single interpreter ahead of any
// queued background work.
func (l *Locator) ResolveEnv(ctx context.Context, path string) (*envinfo.Env, error) {
	env, err := l.parent.ResolveEnv(ctx, path)
	switch {
	case errors.Is(err, locator.ErrNotFound):
		if _, _, statErr := envinfo.FileTimes(path); statErr != nil {
			return nil, err
		}
		e := envinfo.NewEnv(envinfo.KindUnknown, path)
		env = &e
	case err != nil:
		return nil, err
	}

	minimal := l.minimal(*env)
	info, err := l.inspector.Inspect(ctx, l.request(minimal), taskpool.Front)
	if err != nil {
		if !errors.Is(err, inspect.ErrNotResolved) {
			err = fmt.Errorf("%w: %v", inspect.ErrNotResolved, err)
		}
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved := info.Apply(minimal)
	return &resolved, nil
}

// minimal fills what can be known without running the interpreter.
func (l *Locator) minimal(env envinfo.Env) envinfo.Env {
	out := env.Clone()
	exe := out.Executable.Filename
	if out.Kind == envinfo.KindUnknown || out.Kind == "" {
		out.Kind = discovery.Identify(exe, l.host)
	}
	if out.Version.IsEmpty() {
		out.Version = envinfo.VersionFromPath(exe)
	}
	if out.Location == "" && (out.Kind.IsVirtual() || out.Kind == envinfo.KindCondaBase) {
		out.Location = discovery.EnvDirFromExecutable(exe)
	}
	if out.Name == "" && out.Location != "" && out.Kind.IsVirtual() {
		out.Name = filepath.Base(out.Location)
	}
	if ctime, mtime, err := envinfo.FileTimes(exe); err == nil {
		out.Executable.Ctime, out.Executable.Mtime = ctime, mtime
	} else {
		l.logger.Debug("stat failed", "path", exe, "err", err)
	}
	out.ID = envinfo.EnvID(exe)
	return out
}

func (l *Locator) request(env envinfo.Env) inspect.Request {
	req := inspect.Request{Executable: env.Executable.Filename}
	if env.Kind == envinfo.KindConda || env.Kind == envinfo.KindCondaBase {
		req.CondaPrefix = env.Location
		if req.CondaPrefix == "" {
			req.CondaPrefix = discovery.EnvDirFromExecutable(env.Executable.Filename)
		}
	}
	return req
}
