// Package locatortest provides a scripted Locator for tests.
package locatortest

import (
	"context"
	"sync"
	"sync/atomic"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
	"pyenvs/internal/locator"
)

// Fake yields Envs, then sends Updates, then closes. Every IterEnvs call
// replays the same script.
type Fake struct {
	Envs    []envinfo.Env
	Updates []envinfo.UpdateEvent
	// NoUpdates hides the Updates channel entirely.
	NoUpdates bool
	// Err is reported on the iterator after Envs are yielded.
	Err error
	// Hold, when set, is waited on before the main sequence closes.
	Hold <-chan struct{}
	// KindList is returned by Kinds.
	KindList []envinfo.Kind
	// Resolve answers ResolveEnv; nil means locator.ErrNotFound.
	Resolve func(ctx context.Context, path string) (*envinfo.Env, error)

	iterCalls    atomic.Int32
	resolveCalls atomic.Int32

	mu      sync.Mutex
	queries []*envinfo.Query
	changed events.Emitter[envinfo.ChangeEvent]
}

// IterEnvs implements locator.Locator.
func (f *Fake) IterEnvs(ctx context.Context, q *envinfo.Query) *locator.Iterator {
	f.iterCalls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	p := locator.NewProducer(!f.NoUpdates)
	go func() {
		for i := range f.Envs {
			if !p.Yield(ctx, f.Envs[i].Ptr()) {
				break
			}
		}
		if f.Hold != nil {
			select {
			case <-f.Hold:
			case <-ctx.Done():
			}
		}
		p.Fail(f.Err)
		p.CloseEnvs()
		if !f.NoUpdates {
			for i := range f.Updates {
				ev := f.Updates[i]
				if !p.Update(ctx, &ev) {
					break
				}
			}
		}
		p.CloseUpdates()
	}()
	return p.Iterator()
}

// ResolveEnv implements locator.Locator.
func (f *Fake) ResolveEnv(ctx context.Context, path string) (*envinfo.Env, error) {
	f.resolveCalls.Add(1)
	if f.Resolve == nil {
		return nil, locator.ErrNotFound
	}
	return f.Resolve(ctx, path)
}

// Kinds implements locator.KindReporter.
func (f *Fake) Kinds() []envinfo.Kind {
	return f.KindList
}

// OnChanged implements locator.Watchable.
func (f *Fake) OnChanged() *events.Emitter[envinfo.ChangeEvent] {
	return &f.changed
}

// IterCalls counts IterEnvs invocations.
func (f *Fake) IterCalls() int {
	return int(f.iterCalls.Load())
}

// ResolveCalls counts ResolveEnv invocations.
func (f *Fake) ResolveCalls() int {
	return int(f.resolveCalls.Load())
}

// Queries returns the queries IterEnvs was called with.
func (f *Fake) Queries() []*envinfo.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*envinfo.Query(nil), f.queries...)
}
