package collection

import (
	"context"
	"errors"
	"sync"

	"pyenvs/internal/envinfo"
)

// ErrClosed rejects refreshes that were queued when the service closed.
var ErrClosed = errors.New("collection service closed")

// Stage marks how far a refresh has progressed.
type Stage string

const (
	StageDiscoveryStarted   Stage = "discoveryStarted"
	StageAllPathsDiscovered Stage = "allPathsDiscovered"
	StageDiscoveryFinished  Stage = "discoveryFinished"
)

// ProgressEvent is fired on Service.OnProgress as a refresh advances.
type ProgressEvent struct {
	Stage Stage
	Query *envinfo.Query
}

// RefreshOptions tune TriggerRefresh.
type RefreshOptions struct {
	// Fresh forces a refresh that starts after any running one, instead of
	// sharing it. Watchers use it so changes made mid-refresh are not missed.
	Fresh bool
}

// Promise settles once with an optional error.
type Promise struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) settle(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Err returns the rejection error. It is nil until Done is closed.
func (p *Promise) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the promise settles or ctx ends.
func (p *Promise) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh is one discovery pass over the locator pipeline for a query.
type Refresh struct {
	*Promise
	Query *envinfo.Query
	Fresh bool

	// stages is fixed once the refresh starts.
	stages map[Stage]*Promise
}

func newRefresh(q *envinfo.Query, fresh bool) *Refresh {
	return &Refresh{Promise: newPromise(), Query: q, Fresh: fresh}
}

// RefreshTrigger is fired on Service.OnRefreshTrigger when a refresh starts.
type RefreshTrigger struct {
	Query *envinfo.Query
	Fresh bool
}
