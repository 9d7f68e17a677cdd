package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
	"github.com/roach88/autocat/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (catalog + membership table)
// 1 - Added index on <membership>.item_id for scoped deletes
const currentSchemaVersion = ir.SchemaVersion

// DefaultMembershipTable is used when Options.MembershipTable is empty.
const DefaultMembershipTable = "grouping_items"

// DefaultDriver is the database/sql driver used when Options.Driver is empty.
const DefaultDriver = "sqlite3"

// Options configures Open.
type Options struct {
	// Driver is a database/sql driver name: "sqlite3" or "pgx".
	Driver string

	// DSN is the data source. For sqlite3 this is a file path.
	DSN string

	// MembershipTable names the membership table. Must be a plain identifier.
	MembershipTable string
}

// Store provides durable storage for the catalog and grouping membership.
type Store struct {
	db      *sql.DB
	dialect querysql.Dialect
	table   string
}

// Execer runs compiled statements. Both *Store and the transaction handle
// passed to WithTx implement it.
type Execer interface {
	// Exec runs stmt and returns the number of affected rows.
	Exec(ctx context.Context, stmt querysql.Statement) (int64, error)
}

// Open creates or opens a SQLite database at the given path with the
// default membership table.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	return OpenWith(context.Background(), Options{DSN: path})
}

// OpenWith opens a store for any supported driver.
// Applies pragmas (SQLite only), schema and migrations.
func OpenWith(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DefaultDriver
	}
	if opts.MembershipTable == "" {
		opts.MembershipTable = DefaultMembershipTable
	}
	if !queryir.ValidIdentifier(opts.MembershipTable) {
		return nil, fmt.Errorf("invalid membership table name %q", opts.MembershipTable)
	}
	if opts.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	dialect, err := querysql.DialectForDriver(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, dialect: dialect, table: opts.MembershipTable}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if s.dialect == querysql.DialectSQLite {
		// Single writer.
		s.db.SetMaxOpenConns(1)
		s.db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, s.db); err != nil {
			return fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}
	if err := s.applySchema(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the underlying driver.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// MembershipTable returns the name of the membership table.
func (s *Store) MembershipTable() string {
	return s.table
}

// Exec implements Execer outside of any transaction.
func (s *Store) Exec(ctx context.Context, stmt querysql.Statement) (int64, error) {
	return execStatement(ctx, s.db, stmt)
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(Execer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(txExecer{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &TxError{Op: "commit", Err: err}
	}
	return nil
}

// TxError reports a failure to begin or commit a transaction.
type TxError struct {
	Op  string // "begin" or "commit"
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s transaction: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

type txExecer struct {
	tx *sql.Tx
}

func (t txExecer) Exec(ctx context.Context, stmt querysql.Statement) (int64, error) {
	return execStatement(ctx, t.tx, stmt)
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execStatement(ctx context.Context, db execContexter, stmt querysql.Statement) (int64, error) {
	res, err := db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// rebind adapts a ?-placeholder query to the store's dialect.
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

var sqlitePragmas = [...]string{
	"journal_mode = WAL",
	"synchronous = NORMAL",
	"busy_timeout = 5000",
	"foreign_keys = ON",
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, "PRAGMA "+p); err != nil {
			return fmt.Errorf("PRAGMA %s: %w", p, err)
		}
	}
	return nil
}

// membershipDDL creates the injected membership table.
func (s *Store) membershipDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    grouping_id BIGINT NOT NULL,
    item_id     BIGINT NOT NULL,
    position    BIGINT NOT NULL DEFAULT 0 CHECK (position >= 0),
    UNIQUE (grouping_id, item_id)
)`, s.table)
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func (s *Store) applySchema(ctx context.Context) error {
	stmts := append(splitStatements(schemaSQL), s.membershipDDL())
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// splitStatements splits a schema file on statement terminators.
// The schema holds no string literals containing semicolons.
func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// migrations[i] moves the schema from version i to i+1.
var migrations = []func(*Store, context.Context) error{
	(*Store).migrateToV1,
}

// runMigrations applies every migration newer than the stored version.
func (s *Store) runMigrations(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		if err := migrations[v](s, ctx); err != nil {
			return err
		}
	}
	return s.setSchemaVersion(ctx, currentSchemaVersion)
}

// schemaVersion reads PRAGMA user_version on SQLite and the autocat_schema
// table elsewhere.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if s.dialect == querysql.DialectSQLite {
		if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("get user_version: %w", err)
		}
		return version, nil
	}

	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS autocat_schema (version BIGINT NOT NULL)"); err != nil {
		return 0, fmt.Errorf("create autocat_schema: %w", err)
	}
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM autocat_schema").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if s.dialect == querysql.DialectSQLite {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM autocat_schema"); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind("INSERT INTO autocat_schema (version) VALUES (?)"), version); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// migrateToV1 indexes item_id so candidate-scoped deletes avoid a scan.
func (s *Store) migrateToV1(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_item ON %s(item_id)", s.table, s.table))
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// pragma reads the current value of a SQLite pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	err := s.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}
