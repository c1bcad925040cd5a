// Package events provides a synchronous multi-subscriber event emitter.
package events

import "sync"

// Token identifies a subscription.
type Token uint64

type subscriber[T any] struct {
	token Token
	fn    func(T)
}

// Emitter fans events out to subscribers. Fire calls every live subscriber
// synchronously in subscription order. The zero value is ready to use.
type Emitter[T any] struct {
	mu   sync.Mutex
	next Token
	subs []subscriber[T]
}

// Subscribe registers fn and returns a token for Unsubscribe.
func (e *Emitter[T]) Subscribe(fn func(T)) Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.subs = append(e.subs, subscriber[T]{token: e.next, fn: fn})
	return e.next
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (e *Emitter[T]) Unsubscribe(tok Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.token == tok {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Fire delivers ev to a snapshot of the current subscribers.
func (e *Emitter[T]) Fire(ev T) {
	e.mu.Lock()
	subs := make([]subscriber[T], len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of live subscriptions.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Clear drops every subscription.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	e.subs = nil
	e.mu.Unlock()
}
