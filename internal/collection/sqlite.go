package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/logx"
)

// SQLiteStore keeps one row per environment in a WAL-mode database.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string, logger *log.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logx.Component(logger, "store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS envs (
		id         TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`)
	return err
}

// Load implements Store. Rows that fail to decode are skipped.
func (s *SQLiteStore) Load(ctx context.Context) ([]envinfo.Env, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM envs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query envs: %w", err)
	}
	defer rows.Close()

	var out []envinfo.Env
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan env: %w", err)
		}
		var env envinfo.Env
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			s.logger.Warn("skipping corrupt row", "id", id, "err", err)
			continue
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate envs: %w", err)
	}
	return out, nil
}

// Store implements Store by replacing every row in one transaction.
func (s *SQLiteStore) Store(ctx context.Context, envs []envinfo.Env) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOp(ctx, defaultRetryConfig, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM envs`); err != nil {
			return fmt.Errorf("clear envs: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO envs (id, data, updated_at) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, env := range envs {
			data, err := json.Marshal(env)
			if err != nil {
				return fmt.Errorf("encode env %s: %w", env.ID, err)
			}
			id := env.ID
			if id == "" {
				id = envinfo.EnvID(env.Executable.Filename)
			}
			if _, err := stmt.ExecContext(ctx, id, string(data), now); err != nil {
				return fmt.Errorf("insert env %s: %w", id, err)
			}
		}
		return tx.Commit()
	})
}
