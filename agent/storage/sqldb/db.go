/*
Package sqldb implements the record store on SQL databases. SQLite keeps one
database file per wallet. PostgreSQL keeps all the wallets in shared tables
where the store column separates them.
*/
package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Storage type names of the SQL providers.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// DB has separate writer and reader pools. SQLite allows only one writer at
// a time, so the writer pool has one connection. With PostgreSQL both point
// to the same pool.
type DB struct {
	Writer  *sql.DB
	Reader  *sql.DB
	dialect string
}

func sqliteDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
}

// OpenSQLite opens the database file with WAL mode and runs the migrations.
func OpenSQLite(path string) (db *DB, err error) {
	defer err2.Handle(&err, "open sqlite %s", path)

	dsn := sqliteDSN(path)

	writer := try.To1(sql.Open("sqlite", dsn))
	writer.SetMaxOpenConns(1)
	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	db = &DB{Writer: writer, Reader: reader, dialect: TypeSQLite}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenPostgres opens the database pool and runs the migrations.
func OpenPostgres(dsn string) (db *DB, err error) {
	defer err2.Handle(&err, "open postgres")

	pool := try.To1(sql.Open("postgres", dsn))
	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	db = &DB{Writer: pool, Reader: pool, dialect: TypePostgres}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	glog.V(2).Infoln("postgres record storage ready")
	return db, nil
}

// Close closes both pools. It returns the first error.
func (db *DB) Close() error {
	var firstErr error
	if db.Reader != db.Writer {
		if err := db.Reader.Close(); err != nil {
			firstErr = fmt.Errorf("close reader: %w", err)
		}
	}
	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

// rebind converts ? placeholders to the dialect. The queries of this package
// don't have question marks inside literals.
func (db *DB) rebind(q string) string {
	if db.dialect != TypePostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (db *DB) forUpdate() string {
	if db.dialect == TypePostgres {
		return " FOR UPDATE"
	}
	return ""
}
