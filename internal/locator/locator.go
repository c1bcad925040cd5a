// Package locator defines how environment producers stream results.
//
// A locator yields environments on Envs in discovery order; the position of
// an entry on Envs is its index. Refinements arrive later on Updates as
// UpdateEvents addressed by index. Updates is closed only after Envs is
// closed and no further refinement will be sent, so a closed Updates channel
// means "fully settled". A nil Updates channel means the locator never
// refines its output.
package locator

import (
	"context"
	"errors"
	"sync"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/events"
)

// ErrNotFound is returned by ResolveEnv when the path is not an interpreter
// the locator understands.
var ErrNotFound = errors.New("environment not found")

// Iterator is the consumer side of one IterEnvs call.
type Iterator struct {
	Envs    <-chan *envinfo.Env
	Updates <-chan *envinfo.UpdateEvent

	errMu sync.Mutex
	err   error
}

// Err returns the error that ended iteration early, if any. Producers set
// it before closing Envs.
func (it *Iterator) Err() error {
	it.errMu.Lock()
	defer it.errMu.Unlock()
	return it.err
}

// SetErr records a failure. Producers call it before closing Envs.
func (it *Iterator) SetErr(err error) {
	if err == nil {
		return
	}
	it.errMu.Lock()
	if it.err == nil {
		it.err = err
	}
	it.errMu.Unlock()
}

// Locator is implemented by every stage of the discovery pipeline.
type Locator interface {
	IterEnvs(ctx context.Context, q *envinfo.Query) *Iterator
	ResolveEnv(ctx context.Context, path string) (*envinfo.Env, error)
}

// Watchable locators announce when their environments may have changed.
type Watchable interface {
	OnChanged() *events.Emitter[envinfo.ChangeEvent]
}

// KindReporter locators report which kinds they can produce so a query can
// skip them.
type KindReporter interface {
	Kinds() []envinfo.Kind
}

// Producer is the write side of an Iterator.
type Producer struct {
	it      *Iterator
	envs    chan *envinfo.Env
	updates chan *envinfo.UpdateEvent
}

// NewProducer creates an Iterator and its write side. withUpdates controls
// whether the iterator exposes an Updates channel.
func NewProducer(withUpdates bool) *Producer {
	p := &Producer{envs: make(chan *envinfo.Env)}
	p.it = &Iterator{Envs: p.envs}
	if withUpdates {
		p.updates = make(chan *envinfo.UpdateEvent)
		p.it.Updates = p.updates
	}
	return p
}

// Iterator returns the consumer side.
func (p *Producer) Iterator() *Iterator {
	return p.it
}

// Yield sends env on the main sequence. It returns false when ctx ended.
func (p *Producer) Yield(ctx context.Context, env *envinfo.Env) bool {
	select {
	case p.envs <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

// Update sends ev on the update channel. It returns false when ctx ended.
func (p *Producer) Update(ctx context.Context, ev *envinfo.UpdateEvent) bool {
	if p.updates == nil {
		return false
	}
	select {
	case p.updates <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Fail records err on the iterator.
func (p *Producer) Fail(err error) {
	p.it.SetErr(err)
}

// CloseEnvs ends the main sequence.
func (p *Producer) CloseEnvs() {
	close(p.envs)
}

// CloseUpdates sends the terminal "no further updates" signal.
func (p *Producer) CloseUpdates() {
	if p.updates != nil {
		close(p.updates)
	}
}

// FromEnvs returns an iterator that yields envs and never updates.
func FromEnvs(ctx context.Context, envs []envinfo.Env) *Iterator {
	p := NewProducer(false)
	go func() {
		defer p.CloseEnvs()
		for i := range envs {
			if !p.Yield(ctx, envs[i].Ptr()) {
				return
			}
		}
	}()
	return p.Iterator()
}

// Collect drains it, applying updates positionally. Invalidated entries are
// dropped from the result. It returns early if ctx ends.
func Collect(ctx context.Context, it *Iterator) ([]envinfo.Env, error) {
	var seen []*envinfo.Env
	envs, updates := it.Envs, it.Updates
	var pending []*envinfo.UpdateEvent

	for envs != nil || updates != nil {
		select {
		case env, ok := <-envs:
			if !ok {
				envs = nil
				continue
			}
			seen = append(seen, env)
			pending = applyReady(seen, pending)
		case ev, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			pending = applyReady(seen, append(pending, ev))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	out := make([]envinfo.Env, 0, len(seen))
	for _, env := range seen {
		if env != nil {
			out = append(out, *env)
		}
	}
	return out, nil
}

func applyReady(seen []*envinfo.Env, pending []*envinfo.UpdateEvent) []*envinfo.UpdateEvent {
	rest := pending[:0]
	for _, ev := range pending {
		if ev.Index >= len(seen) {
			rest = append(rest, ev)
			continue
		}
		seen[ev.Index] = ev.Update
	}
	return rest
}
