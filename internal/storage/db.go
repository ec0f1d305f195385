package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dyike/cortexmarket/config"
)

var ErrNotFound = errors.New("storage: not found")

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is a *sql.DB that knows which SQL dialect it talks.
type DB struct {
	*sql.DB
	dialect Dialect
}

func (d *DB) Dialect() Dialect { return d.dialect }

// Open opens a sqlite file or a postgres DSN. For sqlite the parent
// directory is created and the WAL pragmas are applied.
func Open(driver, dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("db dsn is required")
	}
	switch Dialect(driver) {
	case DialectSQLite:
		return openSQLite(dsn)
	case DialectPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &DB{DB: db, dialect: DialectPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func OpenConfig(cfg *config.Config) (*DB, error) {
	if cfg.DBDriver == string(DialectPostgres) {
		return Open(cfg.DBDriver, cfg.DBDSN)
	}
	return Open(cfg.DBDriver, cfg.DBPath)
}

func openSQLite(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite 单写
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}
	return &DB{DB: db, dialect: DialectSQLite}, nil
}

// Rebind rewrites ? placeholders to $n for postgres.
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// serialPK is the auto-increment primary key column definition.
func (d *DB) serialPK() string {
	if d.dialect == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// inCodes renders a "code IN (...)" filter and its args.
func (d *DB) inCodes(column string, codes []string) (string, []any) {
	if d.dialect == DialectPostgres {
		return column + " = ANY(?)", []any{pq.Array(codes)}
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	return column + " IN (" + marks + ")", args
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.ExecContext(ctx, d.Rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.QueryContext(ctx, d.Rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.QueryRowContext(ctx, d.Rebind(query), args...)
}

func (d *DB) migrate(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
