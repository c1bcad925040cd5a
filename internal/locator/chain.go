package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
)

// Chain runs several locators at once and merges their output into one
// iterator. Entries are indexed in the order the chain yields them; child
// updates are re-addressed into that index space.
type Chain struct {
	locators []Locator
	changed  events.Emitter[envinfo.ChangeEvent]
}

// NewChain combines locators. Change notifications from watchable children
// are re-fired on the chain's own emitter.
func NewChain(locators ...Locator) *Chain {
	c := &Chain{locators: locators}
	for _, l := range locators {
		if w, ok := l.(Watchable); ok {
			w.OnChanged().Subscribe(c.changed.Fire)
		}
	}
	return c
}

// OnChanged implements Watchable.
func (c *Chain) OnChanged() *events.Emitter[envinfo.ChangeEvent] {
	return &c.changed
}

// Kinds reports the union of the children's kinds, or nil when any child
// can produce every kind.
func (c *Chain) Kinds() []envinfo.Kind {
	seen := map[envinfo.Kind]struct{}{}
	var out []envinfo.Kind
	for _, l := range c.locators {
		kr, ok := l.(KindReporter)
		if !ok || len(kr.Kinds()) == 0 {
			return nil
		}
		for _, k := range kr.Kinds() {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

// IterEnvs implements Locator.
func (c *Chain) IterEnvs(ctx context.Context, q *envinfo.Query) *Iterator {
	p := NewProducer(true)

	var (
		mu     sync.Mutex
		next   int
		envsWG sync.WaitGroup
		g      errgroup.Group
	)

	for _, l := range c.locators {
		if kr, ok := l.(KindReporter); ok && !q.MatchesAnyKind(kr.Kinds()) {
			continue
		}
		child := l.IterEnvs(ctx, q)
		envsWG.Add(1)

		g.Go(func() error {
			envsDone := false
			markEnvsDone := func() {
				if !envsDone {
					envsDone = true
					envsWG.Done()
				}
			}
			defer markEnvsDone()

			indexMap := map[int]int{}
			childIdx := 0
			envs, updates := child.Envs, child.Updates

			for envs != nil || updates != nil {
				select {
				case env, ok := <-envs:
					if !ok {
						envs = nil
						if err := child.Err(); err != nil {
							p.Fail(fmt.Errorf("chain: %w", err))
						}
						markEnvsDone()
						continue
					}
					mu.Lock()
					idx := next
					if !p.Yield(ctx, env) {
						mu.Unlock()
						return nil
					}
					next++
					mu.Unlock()
					indexMap[childIdx] = idx
					childIdx++
				case ev, ok := <-updates:
					if !ok {
						updates = nil
						continue
					}
					idx, known := indexMap[ev.Index]
					if !known {
						continue
					}
					if !p.Update(ctx, &envinfo.UpdateEvent{Index: idx, Old: ev.Old, Update: ev.Update}) {
						return nil
					}
				case <-ctx.Done():
					return nil
				}
			}
			return child.Err()
		})
	}

	go func() {
		envsWG.Wait()
		p.CloseEnvs()
	}()
	go func() {
		err := g.Wait()
		envsWG.Wait()
		if err != nil {
			p.Fail(fmt.Errorf("chain: %w", err))
		}
		p.CloseUpdates()
	}()

	return p.Iterator()
}

// ResolveEnv asks each child in turn and returns the first match.
func (c *Chain) ResolveEnv(ctx context.Context, path string) (*envinfo.Env, error) {
	var errs []error
	for _, l := range c.locators {
		env, err := l.ResolveEnv(ctx, path)
		if err == nil && env != nil {
			return env, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNotFound
}
