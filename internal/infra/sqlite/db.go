// Package sqlite is the local transaction store of the weighbridge station.
// One file, one writer: every access goes through a single connection so
// read-modify-write sequences never interleave.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"

	"github.com/timbang-id/timbang/internal/domain"
)

// FileName is the database file inside the data directory.
const FileName = "timbang.db"

// timeLayout is how timestamps are stored: local wall clock, millisecond
// precision, readable by SQLite's date functions.
const timeLayout = "2006-01-02 15:04:05.000"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	msqlite.MustRegisterDeterministicScalarFunction("fold", 1, fold)
}

// fold lowercases text with Unicode rules. SQLite's own LIKE and lower()
// only fold ASCII.
func fold(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// affected reads RowsAffected, reporting a driver failure as a storage error.
func affected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StorageError{Op: op, Err: err}
	}
	return n, nil
}

// DB is the SQLite-backed store. The embedded *Tickets is bound to the
// connection pool; WithTx hands out a *Tickets bound to a transaction.
type DB struct {
	*Tickets
	db   *sqlx.DB
	path string
}

// Open opens (creating if needed) dir/timbang.db and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{Tickets: &Tickets{q: conn}, db: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error { return db.db.PingContext(ctx) }

// WithTx runs fn inside one immediate transaction. fn's error rolls back.
func (db *DB) WithTx(ctx context.Context, fn func(domain.TicketStore) error) (err error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin tx", Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tickets{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit tx", Err: err}
	}
	return nil
}

// ─── Time helpers ───────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.In(time.Local).Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
