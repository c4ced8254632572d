// Package database opens the optional Postgres backend and applies its migrations.
package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Proton-105/himera-dispatch/pkg/config"
)

const versionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}

// Migrator applies plain .up.sql migrations in lexical order, each once, recording applied
// versions in schema_migrations.
type Migrator struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *sqlx.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{
		db:  db,
		log: log,
	}
}

// ApplyDir applies the migrations found in a directory on disk.
func (m *Migrator) ApplyDir(ctx context.Context, dir string) (int, error) {
	return m.Apply(ctx, os.DirFS(dir), ".")
}

// Apply applies pending migrations from root of fsys and returns how many ran.
func (m *Migrator) Apply(ctx context.Context, fsys fs.FS, root string) (int, error) {
	names, err := ListMigrations(fsys, root)
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	baseLog := m.log.With(slog.String("dir", root))
	if len(names) == 0 {
		baseLog.Info("no .up.sql migrations found")
		return 0, nil
	}

	if _, err := m.db.ExecContext(ctx, versionTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var done []string
	if err := m.db.SelectContext(ctx, &done, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("read applied migrations: %w", err)
	}
	pending := Pending(names, done)

	for _, name := range pending {
		if err := m.applyFile(ctx, baseLog, fsys, root, name); err != nil {
			return 0, err
		}
	}

	baseLog.Info("migrations applied", slog.Int("applied", len(pending)), slog.Int("total", len(names)))
	return len(pending), nil
}

func (m *Migrator) applyFile(ctx context.Context, baseLog *slog.Logger, fsys fs.FS, root, name string) error {
	scopedLog := baseLog.With(slog.String("file", name))
	scopedLog.Info("applying migration")

	data, err := fs.ReadFile(fsys, path.Join(root, name))
	if err != nil {
		return fmt.Errorf("read migration %q: %w", name, err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %q: %w", name, err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	if statement := strings.TrimSpace(string(data)); statement != "" {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("execute migration %q: %w", name, err)
		}
	} else {
		scopedLog.Warn("migration is empty, recording it anyway")
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record migration %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %q: %w", name, err)
	}
	return nil
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

// ListMigrations returns all .up.sql files in dir in lexical order.
func ListMigrations(dir fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(dir, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// Pending returns the names not yet in applied, keeping their order.
func Pending(names, applied []string) []string {
	seen := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		seen[name] = struct{}{}
	}

	var out []string
	for _, name := range names {
		if _, ok := seen[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
