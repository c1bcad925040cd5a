package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"pyenvs/internal/collection"
	"pyenvs/internal/config"
	"pyenvs/internal/discovery"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/inspect"
	"pyenvs/internal/logx"
	"pyenvs/internal/paths"
	"pyenvs/internal/reducer"
	"pyenvs/internal/resolver"
)

// inspectRunner starts interpreter processes. Tests replace it.
var inspectRunner inspect.Runner = inspect.CmdRunner{}

type settings struct {
	Layout     paths.Layout
	ConfigFile string
	Config     config.Config
	Host       *hostenv.Env
}

func loadSettings() (settings, error) {
	layout, err := paths.Resolve(hostenv.FromOS())
	if err != nil {
		return settings{}, err
	}

	path := layout.ConfigFile
	if configFile != "" {
		path = configFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return settings{}, err
	}

	host, err := hostenv.Load(cfg.EnvFile)
	if err != nil {
		return settings{}, err
	}
	return settings{Layout: layout, ConfigFile: path, Config: cfg, Host: host}, nil
}

func (s settings) cachePath() string {
	if s.Config.Cache.Path != "" {
		return s.Config.Cache.Path
	}
	return s.Layout.CacheFile(s.Config.Cache.Backend)
}

func enabledSources(l config.LocatorsConfig) discovery.Sources {
	return discovery.Sources{
		Conda:             config.Enabled(l.Conda),
		Pyenv:             config.Enabled(l.Pyenv),
		GlobalVirtualEnvs: config.Enabled(l.GlobalVirtualEnvs),
		Poetry:            config.Enabled(l.Poetry),
		Workspace:         config.Enabled(l.Workspace),
		Path:              config.Enabled(l.Path),
		WindowsStore:      config.Enabled(l.WindowsStore),
		WindowsRegistry:   config.Enabled(l.WindowsRegistry),
	}
}

// app is the assembled discovery pipeline behind a collection service.
type app struct {
	settings
	logger  *log.Logger
	sources *discovery.Set
	svc     *collection.Service

	closers []func() error
}

// openApp wires discovery, resolution and reduction into a started
// collection service. The caller must Close the app.
func openApp(ctx context.Context, s settings) (*app, error) {
	if err := s.Layout.EnsureDirs(); err != nil {
		return nil, err
	}
	logger, logCloser, err := logx.New(s.Layout.LogsDir, logx.Options{Verbose: verbose})
	if err != nil {
		return nil, err
	}

	a := &app{settings: s, logger: logger}
	a.closers = append(a.closers, logCloser.Close)
	logger.Info("pyenvs starting", "config", s.ConfigFile, "data", s.Layout.DataDir)

	cfg := s.Config
	a.sources = discovery.Build(
		discovery.Options{Host: s.Host, Logger: logger, SearchDepth: cfg.SearchDepth},
		enabledSources(cfg.Locators),
		cfg.CondaPath,
		cfg.WorkspaceRoots,
	)
	logger.Debug("locators enabled", "names", a.sources.Names)

	condaBinary := ""
	if a.sources.Conda != nil {
		condaBinary = a.sources.Conda.Binary()
	}
	inspector, err := inspect.New(inspect.Options{
		Runner:      inspectRunner,
		Workers:     cfg.Workers,
		Timeout:     cfg.Inspect.Timeout,
		MemoSize:    cfg.Inspect.MemoSize,
		CondaBinary: condaBinary,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { inspector.Close(); return nil })

	var store collection.Store
	if noCache {
		store = &collection.MemoryStore{}
	} else {
		st, closeStore, err := collection.OpenStore(collection.Backend(cfg.Cache.Backend), s.cachePath(), logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		store = st
		a.closers = append(a.closers, closeStore)
	}

	resolving := resolver.New(a.sources, inspector, resolver.Options{Host: s.Host, Logger: logger})
	reducing := reducer.New(resolving, logger)
	a.svc = collection.NewService(collection.NewCache(store, logger), reducing, collection.ServiceOptions{Logger: logger})
	a.closers = append(a.closers, a.svc.Close)

	if err := a.svc.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("start collection: %w", err)
	}
	return a, nil
}

// Close releases everything openApp acquired, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
