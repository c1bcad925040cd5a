package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/logx"
)

const storeVersion = 1

// Store persists the cached environments between runs.
type Store interface {
	Load(ctx context.Context) ([]envinfo.Env, error)
	Store(ctx context.Context, envs []envinfo.Env) error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
)

// OpenStore opens the store for backend at path. The returned closer
// releases any handle the store keeps.
func OpenStore(backend Backend, path string, logger *log.Logger) (Store, func() error, error) {
	switch Backend(strings.ToLower(string(backend))) {
	case BackendJSON, "":
		return NewJSONStore(path, logger), func() error { return nil }, nil
	case BackendSQLite:
		s, err := OpenSQLiteStore(path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", backend)
}

type document struct {
	Version int           `json:"version"`
	Envs    []envinfo.Env `json:"envs"`
}

// JSONStore keeps the cache in a single JSON document.
type JSONStore struct {
	path   string
	logger *log.Logger
}

// NewJSONStore creates a JSONStore writing to path.
func NewJSONStore(path string, logger *log.Logger) *JSONStore {
	return &JSONStore{path: path, logger: logx.Component(logger, "store")}
}

// Path returns the file the store writes.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the document. A missing or corrupt file loads as empty.
func (s *JSONStore) Load(_ context.Context) ([]envinfo.Env, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("ignoring corrupt cache", "path", s.path, "err", err)
		return nil, nil
	}
	if doc.Version != storeVersion {
		s.logger.Info("ignoring cache from another version", "path", s.path, "version", doc.Version)
		return nil, nil
	}
	return doc.Envs, nil
}

// Store replaces the document atomically.
func (s *JSONStore) Store(_ context.Context, envs []envinfo.Env) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	if envs == nil {
		envs = []envinfo.Env{}
	}
	data, err := json.MarshalIndent(document{Version: storeVersion, Envs: envs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

// MemoryStore keeps envs in memory. Useful for tests and --no-cache runs.
type MemoryStore struct {
	mu   sync.Mutex
	envs []envinfo.Env
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) ([]envinfo.Env, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.envs), nil
}

// Store implements Store.
func (m *MemoryStore) Store(_ context.Context, envs []envinfo.Env) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envs = cloneAll(envs)
	return nil
}

func cloneAll(envs []envinfo.Env) []envinfo.Env {
	if envs == nil {
		return nil
	}
	out := make([]envinfo.Env, len(envs))
	for i, e := range envs {
		out[i] = e.Clone()
	}
	return out
}
