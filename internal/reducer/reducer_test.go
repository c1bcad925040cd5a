package reducer

import (
	"context"
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

func withVersion(env envinfo.Env, v string) envinfo.Env {
	parsed, err := envinfo.ParseVersion(v)
	if err != nil {
		panic(err)
	}
	env.Version = parsed
	return env
}

// drain reads the whole iterator, counting main-sequence entries.
func drain(t *testing.T, it *locator.Iterator) (yielded int, final []envinfo.Env) {
	t.Helper()
	ctx := testCtx(t)
	var seen []*envinfo.Env
	envs, updates := it.Envs, it.Updates
	for envs != nil || updates != nil {
		select {
		case env, ok := <-envs:
			if !ok {
				envs = nil
				continue
			}
			seen = append(seen, env)
		case ev, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			require.Less(t, ev.Index, len(seen), "update before its entry")
			seen[ev.Index] = ev.Update
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
	for _, e := range seen {
		if e != nil {
			final = append(final, *e)
		}
	}
	return len(seen), final
}

func TestDuplicatesAreYieldedOnce(t *testing.T) {
	ctx := testCtx(t)
	fromPath := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3", envinfo.SourcePathEnvVar)
	fromPyenv := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3", envinfo.SourceOther)
	other := envinfo.NewEnv(envinfo.KindVenv, "/p/.venv/bin/python", envinfo.SourceWorkspace)

	parent := &locatortest.Fake{Envs: []envinfo.Env{fromPath, other, fromPyenv}, NoUpdates: true}
	yielded, final := drain(t, New(parent, nil).IterEnvs(ctx, nil))

	assert.Equal(t, 2, yielded)
	require.Len(t, final, 2)
	assert.Equal(t, []envinfo.Source{envinfo.SourceOther, envinfo.SourcePathEnvVar}, final[0].Source)
}

func TestSystemAndVenvForSamePathMergeIntoVenv(t *testing.T) {
	ctx := testCtx(t)
	system := withVersion(envinfo.NewEnv(envinfo.KindSystem, "/home/u/proj/.venv/bin/python", envinfo.SourcePathEnvVar), "3.10.4")
	system.Executable.SysPrefix = "/home/u/proj/.venv"
	venv := envinfo.NewEnv(envinfo.KindVenv, "/home/u/proj/.venv/bin/python", envinfo.SourceWorkspace)
	venv.SearchLocation = "/home/u/proj"

	for name, order := range map[string][]envinfo.Env{
		"system first": {system, venv},
		"venv first":   {venv, system},
	} {
		t.Run(name, func(t *testing.T) {
			parent := &locatortest.Fake{Envs: order, NoUpdates: true}
			envs, err := locator.Collect(ctx, New(parent, nil).IterEnvs(ctx, nil))
			require.NoError(t, err)
			require.Len(t, envs, 1)

			got := envs[0]
			assert.Equal(t, envinfo.KindVenv, got.Kind)
			assert.Equal(t, "3.10.4", got.Version.String())
			assert.Equal(t, "/home/u/proj/.venv", got.Executable.SysPrefix)
			assert.Equal(t, "/home/u/proj", got.SearchLocation)
			assert.Equal(t, []envinfo.Source{envinfo.SourcePathEnvVar, envinfo.SourceWorkspace}, got.Source)
		})
	}
}

func TestSameDirectorySameVersionIsOneEnv(t *testing.T) {
	ctx := testCtx(t)
	a := withVersion(envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3"), "3.11.4")
	b := withVersion(envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3.11"), "3.11.4")
	c := withVersion(envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python2"), "2.7.18")

	parent := &locatortest.Fake{Envs: []envinfo.Env{a, b, c}, NoUpdates: true}
	envs, err := locator.Collect(ctx, New(parent, nil).IterEnvs(ctx, nil))
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}

func TestUpdateThatCollidesFoldsIntoEarlierEntry(t *testing.T) {
	ctx := testCtx(t)
	a := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3")
	b := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3.11")
	resolvedB := withVersion(b, "3.11.4")
	resolvedA := withVersion(a, "3.11.4")

	parent := &locatortest.Fake{
		Envs: []envinfo.Env{a, b},
		Updates: []envinfo.UpdateEvent{
			{Index: 0, Old: a.Ptr(), Update: resolvedA.Ptr()},
			{Index: 1, Old: b.Ptr(), Update: resolvedB.Ptr()},
		},
	}
	yielded, final := drain(t, New(parent, nil).IterEnvs(ctx, nil))
	assert.Equal(t, 2, yielded)
	require.Len(t, final, 1)
	assert.Equal(t, "3.11.4", final[0].Version.String())
}

func TestInvalidationKeepsOtherContributors(t *testing.T) {
	ctx := testCtx(t)
	fromPath := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3", envinfo.SourcePathEnvVar)
	fromRegistry := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3", envinfo.SourceWindowsRegistry)
	lonely := envinfo.NewEnv(envinfo.KindVenv, "/v/bin/python")

	parent := &locatortest.Fake{
		Envs: []envinfo.Env{fromPath, fromRegistry, lonely},
		Updates: []envinfo.UpdateEvent{
			{Index: 0, Old: fromPath.Ptr(), Update: nil},
			{Index: 2, Old: lonely.Ptr(), Update: nil},
		},
	}
	envs, err := locator.Collect(ctx, New(parent, nil).IterEnvs(ctx, nil))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, []envinfo.Source{envinfo.SourceWindowsRegistry}, envs[0].Source)
}

func TestMergeIsOrderIndependent(t *testing.T) {
	ctx := testCtx(t)
	base := []envinfo.Env{
		withVersion(envinfo.NewEnv(envinfo.KindPyenv, "/h/.pyenv/versions/3.9.1/bin/python", envinfo.SourcePyenv), "3.9.1"),
		envinfo.NewEnv(envinfo.KindSystem, "/h/.pyenv/versions/3.9.1/bin/python", envinfo.SourcePathEnvVar),
		envinfo.NewEnv(envinfo.KindUnknown, "/h/.pyenv/versions/3.9.1/bin/python"),
	}
	var results []envinfo.Env
	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		in := make([]envinfo.Env, 0, 3)
		for _, i := range order {
			in = append(in, base[i])
		}
		envs, err := locator.Collect(ctx, New(&locatortest.Fake{Envs: in, NoUpdates: true}, nil).IterEnvs(ctx, nil))
		require.NoError(t, err)
		require.Len(t, envs, 1)
		results = append(results, envs[0])
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
	assert.Equal(t, envinfo.KindPyenv, results[0].Kind)
}

func TestResolveEnvDelegates(t *testing.T) {
	want := envinfo.NewEnv(envinfo.KindVenv, "/x/bin/python")
	parent := &locatortest.Fake{Resolve: func(context.Context, string) (*envinfo.Env, error) { return want.Ptr(), nil }}
	got, err := New(parent, nil).ResolveEnv(context.Background(), "/x/bin/python")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Equal(t, 1, parent.ResolveCalls())
}
