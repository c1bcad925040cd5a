package collection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyenvs/internal/envinfo"
)

func makeExe(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	exe := filepath.Join(dir, "bin", "python")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	return exe
}

func withTimes(t *testing.T, env envinfo.Env) envinfo.Env {
	t.Helper()
	ctime, mtime, err := envinfo.FileTimes(env.Executable.Filename)
	require.NoError(t, err)
	env.Executable.Ctime, env.Executable.Mtime = ctime, mtime
	return env
}

func recordChanges(c *Cache) *[]envinfo.ChangeEvent {
	var got []envinfo.ChangeEvent
	c.OnChanged().Subscribe(func(ev envinfo.ChangeEvent) { got = append(got, ev) })
	return &got
}

func TestCacheAddEnvIgnoresDuplicates(t *testing.T) {
	c := NewCache(nil, nil)
	events := recordChanges(c)
	env := envinfo.NewEnv(envinfo.KindVenv, "/p/.venv/bin/python")

	c.AddEnv(env, false)
	c.AddEnv(env, true)

	assert.Equal(t, 1, c.Len())
	require.Len(t, *events, 1)
	assert.Nil(t, (*events)[0].Old)
	assert.Equal(t, envinfo.KindVenv, *(*events)[0].Kind)
}

func TestCacheUpdateEnvRespectsComplete(t *testing.T) {
	c := NewCache(nil, nil)
	env := envinfo.NewEnv(envinfo.KindVenv, "/p/.venv/bin/python")
	c.AddEnv(env, true)

	renamed := env.Clone()
	renamed.Name = "renamed"
	c.UpdateEnv(&env, &renamed, false)
	assert.Empty(t, c.GetAllEnvs()[0].Name, "complete entries are not overwritten without force")

	c.UpdateEnv(&env, &renamed, true)
	assert.Equal(t, "renamed", c.GetAllEnvs()[0].Name)

	c.UpdateEnv(&env, nil, false)
	assert.Zero(t, c.Len(), "nil update always removes")
}

func TestCacheGetAllEnvsReturnsCopies(t *testing.T) {
	c := NewCache(nil, nil)
	c.AddEnv(envinfo.NewEnv(envinfo.KindVenv, "/p/.venv/bin/python", envinfo.SourceWorkspace), false)

	snap := c.GetAllEnvs()
	snap[0].Source[0] = envinfo.SourceOther
	snap[0].Name = "mutated"

	fresh := c.GetAllEnvs()
	assert.Equal(t, envinfo.SourceWorkspace, fresh[0].Source[0])
	assert.Empty(t, fresh[0].Name)
}

func TestCacheValidateEvictsMissingAndUnseen(t *testing.T) {
	dir := t.TempDir()
	kept := envinfo.NewEnv(envinfo.KindVenv, makeExe(t, filepath.Join(dir, "kept")))
	rooted := envinfo.NewEnv(envinfo.KindVenv, makeExe(t, filepath.Join(dir, "rooted")))
	rooted.SearchLocation = dir
	unseen := envinfo.NewEnv(envinfo.KindVirtualEnv, makeExe(t, filepath.Join(dir, "unseen")))
	gone := envinfo.NewEnv(envinfo.KindVenv, filepath.Join(dir, "gone", "bin", "python"))

	c := NewCache(nil, nil)
	for _, env := range []envinfo.Env{kept, rooted, unseen, gone} {
		c.AddEnv(env, false)
	}
	events := recordChanges(c)

	evicted := c.ValidateCache(context.Background(), []envinfo.Env{kept}, false)
	require.Len(t, evicted, 1)
	assert.Equal(t, gone.ID, evicted[0].ID)

	evicted = c.ValidateCache(context.Background(), []envinfo.Env{kept}, true)
	require.Len(t, evicted, 1)
	assert.Equal(t, unseen.ID, evicted[0].ID)

	var ids []string
	for _, env := range c.GetAllEnvs() {
		ids = append(ids, env.ID)
	}
	assert.ElementsMatch(t, []string{kept.ID, rooted.ID}, ids)
	assert.Len(t, *events, 2)
	for _, ev := range *events {
		assert.Nil(t, ev.New)
	}
}

func TestCacheValidateEvictsRootedEnvWithMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	rootedGone := envinfo.NewEnv(envinfo.KindVenv, filepath.Join(dir, "proj", ".venv", "bin", "python"))
	rootedGone.SearchLocation = dir

	for _, complete := range []bool{false, true} {
		c := NewCache(nil, nil)
		c.AddEnv(rootedGone, false)

		evicted := c.ValidateCache(context.Background(), []envinfo.Env{rootedGone}, complete)
		require.Len(t, evicted, 1, "isCompleteList=%v", complete)
		assert.Equal(t, rootedGone.ID, evicted[0].ID)
		assert.Zero(t, c.Len(), "isCompleteList=%v", complete)
	}
}

func TestCacheGetLatestInfo(t *testing.T) {
	dir := t.TempDir()
	exe := makeExe(t, filepath.Join(dir, "env"))

	t.Run("stale times are not trusted", func(t *testing.T) {
		c := NewCache(nil, nil)
		c.AddEnv(envinfo.NewEnv(envinfo.KindVenv, exe), false)
		_, ok := c.GetLatestInfo(exe)
		assert.False(t, ok)
		assert.Len(t, c.OutOfDate(), 1)
	})

	t.Run("matching times promote to complete", func(t *testing.T) {
		c := NewCache(nil, nil)
		c.AddEnv(withTimes(t, envinfo.NewEnv(envinfo.KindVenv, exe)), false)
		assert.Empty(t, c.OutOfDate())
		assert.False(t, c.IsComplete(exe))

		env, ok := c.GetLatestInfo(exe)
		require.True(t, ok)
		assert.Equal(t, exe, env.Executable.Filename)
		assert.True(t, c.IsComplete(exe))
	})

	t.Run("complete entries are trusted", func(t *testing.T) {
		c := NewCache(nil, nil)
		c.AddEnv(envinfo.NewEnv(envinfo.KindVenv, exe), true)
		_, ok := c.GetLatestInfo(exe)
		assert.True(t, ok)
	})

	t.Run("unknown path", func(t *testing.T) {
		c := NewCache(nil, nil)
		_, ok := c.GetLatestInfo(filepath.Join(dir, "nope"))
		assert.False(t, ok)
	})
}

func TestCacheFlushAndReload(t *testing.T) {
	ctx := context.Background()
	store := NewJSONStore(filepath.Join(t.TempDir(), "envs.json"), nil)
	exe := makeExe(t, t.TempDir())

	c := NewCache(store, nil)
	require.NoError(t, c.Initialize(ctx))
	c.AddEnv(envinfo.NewEnv(envinfo.KindVenv, exe), false)
	require.NoError(t, c.Flush(ctx, true))
	assert.True(t, c.IsComplete(exe))

	reloaded := NewCache(store, nil)
	require.NoError(t, reloaded.Initialize(ctx))
	require.Equal(t, 1, reloaded.Len())
	assert.False(t, reloaded.IsComplete(exe), "complete flags are not persisted")
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	c := NewCache(store, nil)
	c.AddEnv(envinfo.NewEnv(envinfo.KindVenv, "/a/bin/python"), false)
	c.AddEnv(envinfo.NewEnv(envinfo.KindVenv, "/b/bin/python"), false)
	events := recordChanges(c)

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
	assert.Len(t, *events, 2)

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}
