package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const sqliteExt = ".db"

// SQLiteProvider keeps every wallet in its own database file.
type SQLiteProvider struct {
	dir string
}

var _ api.Provider = (*SQLiteProvider)(nil)

// NewSQLite returns a provider for the directory.
func NewSQLite(dir string) *SQLiteProvider {
	if dir == "" {
		dir = "."
	}
	return &SQLiteProvider{dir: dir}
}

func (p *SQLiteProvider) Type() string {
	return TypeSQLite
}

func (p *SQLiteProvider) filename(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\?#`) {
		return "", fmt.Errorf("illegal wallet name %q", name)
	}
	return filepath.Join(p.dir, name+sqliteExt), nil
}

func (p *SQLiteProvider) Exists(_ context.Context, name string) (bool, error) {
	fn, err := p.filename(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fn)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (p *SQLiteProvider) Create(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "create sqlite wallet %s", name)

	if try.To1(p.Exists(ctx, name)) {
		return nil, api.ErrWalletAlreadyExists
	}
	try.To(os.MkdirAll(p.dir, 0700))
	db := try.To1(OpenSQLite(try.To1(p.filename(name))))
	if err := addStore(ctx, db, name); err != nil {
		_ = db.Close()
		return nil, err
	}
	glog.V(2).Infoln("sqlite wallet created:", name)
	return &Store{name: name, db: db, owned: true}, nil
}

func (p *SQLiteProvider) Open(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "open sqlite wallet %s", name)

	if !try.To1(p.Exists(ctx, name)) {
		return nil, api.ErrWalletNotFound
	}
	db := try.To1(OpenSQLite(try.To1(p.filename(name))))
	return &Store{name: name, db: db, owned: true}, nil
}

func (p *SQLiteProvider) Remove(ctx context.Context, name string) (err error) {
	defer err2.Handle(&err, "remove sqlite wallet %s", name)

	if !try.To1(p.Exists(ctx, name)) {
		return api.ErrWalletNotFound
	}
	fn := try.To1(p.filename(name))
	try.To(os.Remove(fn))
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(fn + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			glog.Warningln("remove sqlite side file:", err)
		}
	}
	return nil
}

func addStore(ctx context.Context, db *DB, name string) error {
	res, err := db.Writer.ExecContext(ctx, db.rebind(`INSERT INTO stores (name, created_at)
VALUES (?, ?) ON CONFLICT (name) DO NOTHING`), name, time.Now().Unix())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return api.ErrWalletAlreadyExists
	}
	return nil
}

// PostgresProvider keeps all the wallets in one database. The provider owns
// the connection pool, and the stores share it.
type PostgresProvider struct {
	db *DB
}

var _ api.Provider = (*PostgresProvider)(nil)

// NewPostgres connects to the database and migrates the schema.
func NewPostgres(dsn string) (*PostgresProvider, error) {
	db, err := OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresProvider{db: db}, nil
}

func (p *PostgresProvider) Type() string {
	return TypePostgres
}

func (p *PostgresProvider) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := p.db.Reader.QueryRowContext(ctx,
		p.db.rebind(`SELECT 1 FROM stores WHERE name = ?`), name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (p *PostgresProvider) Create(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "create postgres wallet %s", name)

	if name == "" {
		return nil, fmt.Errorf("wallet name cannot be empty")
	}
	try.To(addStore(ctx, p.db, name))
	glog.V(2).Infoln("postgres wallet created:", name)
	return &Store{name: name, db: p.db}, nil
}

func (p *PostgresProvider) Open(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "open postgres wallet %s", name)

	if !try.To1(p.Exists(ctx, name)) {
		return nil, api.ErrWalletNotFound
	}
	return &Store{name: name, db: p.db}, nil
}

// Remove deletes the store row. Records go with it by the foreign key
// cascade.
func (p *PostgresProvider) Remove(ctx context.Context, name string) (err error) {
	defer err2.Handle(&err, "remove postgres wallet %s", name)

	res := try.To1(p.db.Writer.ExecContext(ctx,
		p.db.rebind(`DELETE FROM stores WHERE name = ?`), name))
	if try.To1(res.RowsAffected()) == 0 {
		return api.ErrWalletNotFound
	}
	return nil
}

// Close closes the shared pool. Stores opened from the provider cannot be
// used after it.
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}
