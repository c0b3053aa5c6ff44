// Package store persists captured tables to append-only SQLite files. Every
// column is stored as TEXT so captures with differing payload shapes stay
// append-compatible without migrations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/solarecho3/web-tools/pkg/table"
)

var (
	// ErrTableMissing is returned when reading a table the store does not hold.
	ErrTableMissing = errors.New("table does not exist")

	// ErrStoreMissing is returned when opening an absent store read-only.
	ErrStoreMissing = errors.New("store does not exist")
)

// Store is one SQLite file.
type Store struct {
	db     *bun.DB
	path   string
	logger zerolog.Logger
}

// Open opens the store at path, creating the file and its directory when
// absent.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return open(path, path, logger)
}

// OpenReadOnly opens an existing store without write access.
func OpenReadOnly(path string, logger zerolog.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, path)
		}
		return nil, fmt.Errorf("stat store: %w", err)
	}
	return open(path, "file:"+path+"?mode=ro", logger)
}

func open(path, dsn string, logger zerolog.Logger) (*Store, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	sqldb.SetMaxOpenConns(1)

	if _, err := sqldb.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("configure store %s: %w", path, err)
	}

	return &Store{
		db:     bun.NewDB(sqldb, sqlitedialect.New()),
		path:   path,
		logger: logger.With().Str("path", path).Logger(),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Tables lists the store's tables by name.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.NewSelect().
		TableExpr("sqlite_master").
		Column("name").
		Where("type = 'table'").
		Where("name NOT LIKE 'sqlite_%'").
		OrderExpr("name").
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// Columns lists a table's columns in definition order. An absent table has
// no columns.
func (s *Store) Columns(ctx context.Context, name string) ([]string, error) {
	var cols []string
	err := s.db.NewRaw("SELECT name FROM pragma_table_info(?) ORDER BY cid", name).Scan(ctx, &cols)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", name, err)
	}
	return cols, nil
}

// Count returns the number of rows in a table.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(name)).
		ColumnExpr("count(*)").
		Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Append writes t's rows to the named table. The table is created when
// absent and missing columns are added; existing rows are never touched.
// Values are stored as text. It returns the number of rows written.
func (s *Store) Append(ctx context.Context, name string, t *table.Table) (int, error) {
	cols := t.Columns()
	if len(cols) == 0 {
		return 0, nil
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.ensureTable(ctx, tx, name, cols); err != nil {
			return err
		}

		for i, r := range t.Rows() {
			values := make(map[string]interface{}, len(cols))
			for _, c := range cols {
				values[c] = table.FormatValue(r[c])
			}
			if _, err := tx.NewInsert().Model(&values).TableExpr("?", bun.Ident(name)).Exec(ctx); err != nil {
				return fmt.Errorf("insert row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", name, err)
	}

	s.logger.Debug().Str("table", name).Int("rows", t.Len()).Msg("Rows appended")
	return t.Len(), nil
}

// ensureTable creates the table or adds the columns it lacks.
func (s *Store) ensureTable(ctx context.Context, tx bun.Tx, name string, cols []string) error {
	var existing []string
	if err := tx.NewRaw("SELECT name FROM pragma_table_info(?) ORDER BY cid", name).Scan(ctx, &existing); err != nil {
		return fmt.Errorf("inspect %s: %w", name, err)
	}

	if len(existing) == 0 {
		defs := make([]string, len(cols))
		args := []interface{}{bun.Ident(name)}
		for i, c := range cols {
			defs[i] = "? TEXT"
			args = append(args, bun.Ident(c))
		}
		query := "CREATE TABLE IF NOT EXISTS ? (" + strings.Join(defs, ", ") + ")"
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		s.logger.Info().Str("table", name).Int("columns", len(cols)).Msg("Table created")
		return nil
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range cols {
		if have[c] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE ? ADD COLUMN ? TEXT", bun.Ident(name), bun.Ident(c)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", name, c, err)
		}
		s.logger.Debug().Str("table", name).Str("column", c).Msg("Column added")
	}
	return nil
}

// Read returns every row of a table in insertion order.
func (s *Store) Read(ctx context.Context, name string) (*table.Table, error) {
	return s.read(ctx, name, 0)
}

// ReadLimit returns at most limit rows of a table in insertion order.
func (s *Store) ReadLimit(ctx context.Context, name string, limit int) (*table.Table, error) {
	if limit < 1 {
		return nil, fmt.Errorf("read %s: limit must be >= 1 (got %d)", name, limit)
	}
	return s.read(ctx, name, limit)
}

// read loads rows of a table; limit 0 reads all of them.
func (s *Store) read(ctx context.Context, name string, limit int) (*table.Table, error) {
	cols, err := s.Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableMissing, name)
	}

	q := s.db.NewSelect().
		TableExpr("?", bun.Ident(name)).
		ColumnExpr("*").
		OrderExpr("rowid")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []map[string]interface{}
	err = q.Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	out := table.New(cols...)
	for _, r := range rows {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			switch v := r[c].(type) {
			case []byte:
				row[c] = string(v)
			default:
				row[c] = v
			}
		}
		out.AppendRow(row)
	}
	return out, nil
}
