package taskpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedWork struct {
	started chan int
	gates   map[int]chan struct{}
}

func newGatedWork(items ...int) *gatedWork {
	g := &gatedWork{started: make(chan int, len(items)), gates: map[int]chan struct{}{}}
	for _, it := range items {
		g.gates[it] = make(chan struct{})
	}
	return g
}

func (g *gatedWork) run(_ context.Context, item int) (int, error) {
	g.started <- item
	<-g.gates[item]
	if item < 0 {
		return 0, errors.New("negative")
	}
	return item * 10, nil
}

func (g *gatedWork) nextStarted(t *testing.T) int {
	t.Helper()
	select {
	case it := <-g.started:
		return it
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an item to start")
		return -1
	}
}

func TestBackIsFIFO(t *testing.T) {
	g := newGatedWork(0, 1, 2, 3, 4)
	p := New(g.run, 2)
	defer func() { p.Stop(); p.Wait() }()

	futures := make([]*Future[int], 5)
	for i := 0; i < 5; i++ {
		futures[i] = p.AddToQueue(i, Back)
	}

	first := map[int]bool{g.nextStarted(t): true, g.nextStarted(t): true}
	assert.Equal(t, map[int]bool{0: true, 1: true}, first)

	for i := 0; i < 3; i++ {
		close(g.gates[i])
		assert.Equal(t, i+2, g.nextStarted(t))
	}
	close(g.gates[3])
	close(g.gates[4])

	ctx := context.Background()
	for i, f := range futures {
		v, err := f.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, i*10, v)
	}
}

func TestFrontPreemptsQueuedItems(t *testing.T) {
	g := newGatedWork(0, 1, 2, 3, 99)
	p := New(g.run, 2)
	defer func() { p.Stop(); p.Wait() }()

	for i := 0; i < 4; i++ {
		p.AddToQueue(i, Back)
	}
	g.nextStarted(t)
	g.nextStarted(t)

	urgent := p.AddToQueue(99, Front)
	close(g.gates[0])
	assert.Equal(t, 99, g.nextStarted(t))

	close(g.gates[99])
	v, err := urgent.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 990, v)

	assert.Equal(t, 2, g.nextStarted(t))
	close(g.gates[1])
	close(g.gates[2])
	close(g.gates[3])
}

func TestWorkErrorsReachTheFuture(t *testing.T) {
	g := newGatedWork(-1)
	close(g.gates[-1])
	p := New(g.run, 1)
	defer func() { p.Stop(); p.Wait() }()

	_, err := p.AddToQueue(-1, Back).Wait(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStopped))
}

func TestStopRejectsQueuedItems(t *testing.T) {
	g := newGatedWork(0, 1, 2)
	p := New(g.run, 1)

	running := p.AddToQueue(0, Back)
	queued := []*Future[int]{p.AddToQueue(1, Back), p.AddToQueue(2, Back)}
	assert.Equal(t, 0, g.nextStarted(t))

	p.Stop()
	for _, f := range queued {
		_, err := f.Wait(context.Background())
		assert.ErrorIs(t, err, ErrStopped)
	}

	close(g.gates[0])
	v, err := running.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	_, err = p.AddToQueue(1, Back).Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	p.Wait()
}

func TestStopWakesParkedWorkers(t *testing.T) {
	p := New(func(context.Context, int) (int, error) { return 0, nil }, 3)
	p.Stop()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after Stop")
	}
}
