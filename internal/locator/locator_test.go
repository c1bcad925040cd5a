package locator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
	"pyenvs/internal/locator/locatortest"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStreamingOrder(t *testing.T) {
	ctx := testCtx(t)
	a := envinfo.NewEnv(envinfo.KindVenv, "/a/bin/python")
	b := envinfo.NewEnv(envinfo.KindVenv, "/b/bin/python")
	c := envinfo.NewEnv(envinfo.KindVenv, "/c/bin/python")
	updated := b
	updated.Name = "b-updated"

	fake := &locatortest.Fake{
		Envs:    []envinfo.Env{a, b, c},
		Updates: []envinfo.UpdateEvent{{Index: 1, Old: b.Ptr(), Update: updated.Ptr()}},
	}
	it := fake.IterEnvs(ctx, nil)

	var order []string
	envs, updates := it.Envs, it.Updates
	for envs != nil || updates != nil {
		select {
		case env, ok := <-envs:
			if !ok {
				envs = nil
				continue
			}
			order = append(order, env.Executable.Filename)
		case ev, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			order = append(order, "update:"+ev.Update.Name)
		}
	}
	assert.Equal(t, []string{"/a/bin/python", "/b/bin/python", "/c/bin/python", "update:b-updated"}, order)
}

func TestCollectAppliesUpdatesAndDrops(t *testing.T) {
	ctx := testCtx(t)
	a := envinfo.NewEnv(envinfo.KindVenv, "/a/bin/python")
	b := envinfo.NewEnv(envinfo.KindVenv, "/b/bin/python")
	resolved := a
	resolved.Executable.SysPrefix = "/a"

	fake := &locatortest.Fake{
		Envs: []envinfo.Env{a, b},
		Updates: []envinfo.UpdateEvent{
			{Index: 0, Old: a.Ptr(), Update: resolved.Ptr()},
			{Index: 1, Old: b.Ptr(), Update: nil},
		},
	}
	got, err := locator.Collect(ctx, fake.IterEnvs(ctx, nil))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/a", got[0].Executable.SysPrefix)
}

func TestChainReindexesChildUpdates(t *testing.T) {
	ctx := testCtx(t)
	a := envinfo.NewEnv(envinfo.KindConda, "/conda/bin/python")
	b := envinfo.NewEnv(envinfo.KindVenv, "/v/bin/python")
	bUpdated := b
	bUpdated.Name = "v"

	first := &locatortest.Fake{Envs: []envinfo.Env{a}, KindList: []envinfo.Kind{envinfo.KindConda}}
	second := &locatortest.Fake{
		Envs:     []envinfo.Env{b},
		Updates:  []envinfo.UpdateEvent{{Index: 0, Old: b.Ptr(), Update: bUpdated.Ptr()}},
		KindList: []envinfo.Kind{envinfo.KindVenv},
	}
	chain := locator.NewChain(first, second)

	got, err := locator.Collect(ctx, chain.IterEnvs(ctx, nil))
	require.NoError(t, err)
	require.Len(t, got, 2)
	names := map[string]string{}
	for _, env := range got {
		names[env.Executable.Filename] = env.Name
	}
	assert.Equal(t, "v", names["/v/bin/python"])
}

func TestChainSkipsLocatorsOutsideQuery(t *testing.T) {
	ctx := testCtx(t)
	conda := &locatortest.Fake{
		Envs:     []envinfo.Env{envinfo.NewEnv(envinfo.KindConda, "/conda/bin/python")},
		KindList: []envinfo.Kind{envinfo.KindConda},
	}
	venv := &locatortest.Fake{
		Envs:     []envinfo.Env{envinfo.NewEnv(envinfo.KindVenv, "/v/bin/python")},
		KindList: []envinfo.Kind{envinfo.KindVenv},
	}
	chain := locator.NewChain(conda, venv)

	got, err := locator.Collect(ctx, chain.IterEnvs(ctx, &envinfo.Query{Kinds: []envinfo.Kind{envinfo.KindVenv}}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, conda.IterCalls())
	assert.Equal(t, 1, venv.IterCalls())
}

func TestChainReportsChildErrors(t *testing.T) {
	ctx := testCtx(t)
	boom := errors.New("boom")
	chain := locator.NewChain(&locatortest.Fake{Err: boom}, &locatortest.Fake{})

	_, err := locator.Collect(ctx, chain.IterEnvs(ctx, nil))
	assert.ErrorIs(t, err, boom)
}

func TestChainForwardsChangeEvents(t *testing.T) {
	child := &locatortest.Fake{}
	chain := locator.NewChain(child)

	var got []envinfo.ChangeEvent
	chain.OnChanged().Subscribe(func(ev envinfo.ChangeEvent) { got = append(got, ev) })
	child.OnChanged().Fire(envinfo.ChangeEvent{SearchLocation: "/ws"})

	require.Len(t, got, 1)
	assert.Equal(t, "/ws", got[0].SearchLocation)
}

func TestChainResolveEnv(t *testing.T) {
	ctx := testCtx(t)
	want := envinfo.NewEnv(envinfo.KindPyenv, "/p/bin/python")
	chain := locator.NewChain(
		&locatortest.Fake{},
		&locatortest.Fake{Resolve: func(context.Context, string) (*envinfo.Env, error) { return want.Ptr(), nil }},
	)
	got, err := chain.ResolveEnv(ctx, "/p/bin/python")
	require.NoError(t, err)
	assert.Equal(t, envinfo.KindPyenv, got.Kind)

	_, err = locator.NewChain(&locatortest.Fake{}).ResolveEnv(ctx, "/x")
	assert.ErrorIs(t, err, locator.ErrNotFound)
}
