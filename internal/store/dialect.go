package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect captures the few places where SQLite and Postgres differ.
type dialect interface {
	name() string
	driverName() string
	dsn(raw string) string
	rebind(query string) string
	// claimLock is appended to the claim SELECT.
	claimLock() string
	// columnsQuery lists the column names of the table bound to its single
	// placeholder.
	columnsQuery() string
	migrationDriver(db *sql.DB) (database.Driver, error)
	isUniqueViolation(err error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", "sqlite":
		return sqliteDialect{}, nil
	case "postgres":
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q (expected sqlite or postgres)", driver)
}

// sqliteDialect uses modernc.org/sqlite. Every transaction is opened with
// BEGIN IMMEDIATE, so the database write lock is held for the whole claim;
// rows cannot be handed out twice even across processes sharing the file.
type sqliteDialect struct{}

func (sqliteDialect) name() string       { return "sqlite" }
func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) dsn(raw string) string {
	if strings.Contains(raw, "_txlock") {
		return raw
	}
	dsn := raw
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func (sqliteDialect) rebind(query string) string { return query }
func (sqliteDialect) claimLock() string          { return "" }

func (sqliteDialect) columnsQuery() string {
	return `SELECT name FROM pragma_table_info(?)`
}

func (sqliteDialect) migrationDriver(db *sql.DB) (database.Driver, error) {
	return migratesqlite.WithInstance(db, &migratesqlite.Config{})
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// postgresDialect uses pgx through database/sql. Claims lock candidate rows
// with FOR UPDATE SKIP LOCKED so concurrent claimers never wait on, or
// receive, each other's rows.
type postgresDialect struct{}

func (postgresDialect) name() string               { return "postgres" }
func (postgresDialect) driverName() string         { return "pgx" }
func (postgresDialect) dsn(raw string) string      { return raw }
func (postgresDialect) rebind(query string) string { return rebindDollar(query) }
func (postgresDialect) claimLock() string          { return " FOR UPDATE OF e SKIP LOCKED" }

func (postgresDialect) columnsQuery() string {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?`
}

func (postgresDialect) migrationDriver(db *sql.DB) (database.Driver, error) {
	return migratepgx.WithInstance(db, &migratepgx.Config{})
}

func (postgresDialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
