// Package reducer folds together the reports different locators make about
// the same environment.
package reducer

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
	"pyenvs/internal/locator"
	"pyenvs/internal/logx"
)

// Locator wraps a parent and yields each environment once.
type Locator struct {
	parent  locator.Locator
	logger  *log.Logger
	changed events.Emitter[envinfo.ChangeEvent]
}

// New creates a reducing Locator over parent.
func New(parent locator.Locator, logger *log.Logger) *Locator {
	return &Locator{parent: parent, logger: logx.Component(logger, "reducer")}
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

// ResolveEnv delegates to the parent.
func (l *Locator) ResolveEnv(ctx context.Context, path string) (*envinfo.Env, error) {
	return l.parent.ResolveEnv(ctx, path)
}

// state is owned by the single goroutine driving one iteration.
type state struct {
	ctx    context.Context
	p      *locator.Producer
	logger *log.Logger

	own          []*envinfo.Env
	contributors []map[int]*envinfo.Env
	childToOwn   map[int]int
	childCount   int
}

// IterEnvs implements locator.Locator.
func (l *Locator) IterEnvs(ctx context.Context, q *envinfo.Query) *locator.Iterator {
	parent := l.parent.IterEnvs(ctx, q)
	st := &state{
		ctx:        ctx,
		p:          locator.NewProducer(true),
		logger:     l.logger,
		childToOwn: map[int]int{},
	}

	go func() {
		defer st.p.CloseUpdates()
		envs, updates := parent.Envs, parent.Updates
		closeEnvs := func() {
			envs = nil
			st.p.Fail(parent.Err())
			st.p.CloseEnvs()
		}
		for envs != nil || updates != nil {
			select {
			case env, ok := <-envs:
				if !ok {
					closeEnvs()
					continue
				}
				if !st.add(env) {
					closeEnvs()
					return
				}
			case ev, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				if !st.update(ev) {
					if envs != nil {
						closeEnvs()
					}
					return
				}
			case <-ctx.Done():
				if envs != nil {
					closeEnvs()
				}
				return
			}
		}
	}()

	return st.p.Iterator()
}

// add handles a new entry from the parent. It returns false once ctx ended.
func (s *state) add(env *envinfo.Env) bool {
	childIdx := s.childCount
	s.childCount++
	if env == nil {
		return true
	}

	for j, existing := range s.own {
		if existing == nil || !envinfo.AreSameEnv(*existing, *env, true) {
			continue
		}
		s.contributors[j][childIdx] = env
		s.childToOwn[childIdx] = j
		return s.publish(j)
	}

	j := len(s.own)
	merged := env.Clone()
	s.own = append(s.own, &merged)
	s.contributors = append(s.contributors, map[int]*envinfo.Env{childIdx: env})
	s.childToOwn[childIdx] = j
	return s.p.Yield(s.ctx, &merged)
}

// update handles a parent update addressed by child index.
func (s *state) update(ev *envinfo.UpdateEvent) bool {
	j, ok := s.childToOwn[ev.Index]
	if !ok {
		s.logger.Debug("update for unknown entry", "index", ev.Index)
		return true
	}

	if ev.Update == nil {
		delete(s.contributors[j], ev.Index)
		delete(s.childToOwn, ev.Index)
		if len(s.contributors[j]) == 0 {
			old := s.own[j]
			s.own[j] = nil
			return s.p.Update(s.ctx, &envinfo.UpdateEvent{Index: j, Old: old, Update: nil})
		}
		return s.publish(j)
	}

	s.contributors[j][ev.Index] = ev.Update
	merged := s.fold(j)
	for k, other := range s.own {
		if k == j || other == nil || !envinfo.AreSameEnv(merged, *other, true) {
			continue
		}
		first, second := min(j, k), max(j, k)
		for childIdx, c := range s.contributors[second] {
			s.contributors[first][childIdx] = c
			s.childToOwn[childIdx] = first
		}
		s.contributors[second] = map[int]*envinfo.Env{}
		old := s.own[second]
		s.own[second] = nil
		if !s.publish(first) {
			return false
		}
		return s.p.Update(s.ctx, &envinfo.UpdateEvent{Index: second, Old: old, Update: nil})
	}
	return s.publish(j)
}

// publish re-merges own entry j from its contributors and sends the result.
func (s *state) publish(j int) bool {
	merged := s.fold(j)
	old := s.own[j]
	s.own[j] = &merged
	return s.p.Update(s.ctx, &envinfo.UpdateEvent{Index: j, Old: old, Update: &merged})
}

// fold merges the contributors of j in child order.
func (s *state) fold(j int) envinfo.Env {
	idx := make([]int, 0, len(s.contributors[j]))
	for i := range s.contributors[j] {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	merged := s.contributors[j][idx[0]].Clone()
	for _, i := range idx[1:] {
		merged = envinfo.Merge(merged, *s.contributors[j][i])
	}
	return merged
}
