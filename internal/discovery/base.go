// Package discovery holds the low-level locators. Each scans one place where
// interpreters get installed and yields minimal descriptors: kind,
// executable and provenance. Running the interpreters is left to later
// pipeline stages.
package discovery

import (
	"context"

	"github.com/charmbracelet/log"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/locator"
	"pyenvs/internal/logx"
)

const defaultSearchDepth = 4

// Options are shared by every low-level locator.
type Options struct {
	Host        *hostenv.Env
	Logger      *log.Logger
	SearchDepth int
}

func (o Options) normalized(component string) Options {
	if o.Host == nil {
		o.Host = hostenv.FromOS()
	}
	if o.SearchDepth <= 0 {
		o.SearchDepth = defaultSearchDepth
	}
	o.Logger = logx.Component(o.Logger, component)
	return o
}

type yieldFunc func(env envinfo.Env) bool

// iterate runs scan on its own goroutine and streams what it yields. The
// same executable is only yielded once per scan.
func iterate(ctx context.Context, scan func(ctx context.Context, yield yieldFunc)) *locator.Iterator {
	p := locator.NewProducer(false)
	go func() {
		defer p.CloseEnvs()
		seen := map[string]struct{}{}
		scan(ctx, func(env envinfo.Env) bool {
			key := envinfo.NormalizePath(env.Executable.Filename)
			if _, dup := seen[key]; dup {
				return ctx.Err() == nil
			}
			seen[key] = struct{}{}
			return p.Yield(ctx, env.Ptr())
		})
	}()
	return p.Iterator()
}

// resolveOwned builds a minimal descriptor for path when owns accepts it.
func resolveOwned(path string, host *hostenv.Env, owns func(string) bool, sources ...envinfo.Source) (*envinfo.Env, error) {
	if !fileExists(path) || !owns(path) {
		return nil, locator.ErrNotFound
	}
	env := envinfo.NewEnv(Identify(path, host), path, sources...)
	return &env, nil
}
