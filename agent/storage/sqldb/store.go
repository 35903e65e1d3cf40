package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Store is the record store of one wallet. All queries are limited to the
// store's own rows.
type Store struct {
	name  string
	db    *DB
	owned bool // close db with the store
}

var _ api.RecordStore = (*Store)(nil)

func (s *Store) Name() string {
	return s.name
}

func encodeTags(t api.Tags) (string, error) {
	if len(t) == 0 {
		return "{}", nil
	}
	d, err := json.Marshal(t)
	return string(d), err
}

func decodeTags(s string) (t api.Tags, err error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	err = json.Unmarshal([]byte(s), &t)
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, typ string) (r api.Record, err error) {
	var (
		tags    string
		expires int64
	)
	r.Type = typ
	if err = row.Scan(&r.ID, &r.Value, &tags, &expires); err != nil {
		return r, err
	}
	r.Tags, err = decodeTags(tags)
	r.ExpiresAt = api.ExpiryTime(expires)
	return r, err
}

const upsertSQL = `INSERT INTO records (store, record_type, record_id, value, tags, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (store, record_type, record_id)
DO UPDATE SET value = excluded.value, tags = excluded.tags, expires_at = excluded.expires_at`

const insertSQL = `INSERT INTO records (store, record_type, record_id, value, tags, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (store, record_type, record_id) DO NOTHING`

func (s *Store) Put(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "sql put")

	tags := try.To1(encodeTags(r.Tags))
	try.To1(s.db.Writer.ExecContext(ctx, s.db.rebind(upsertSQL),
		s.name, r.Type, r.ID, r.Value, tags, api.ExpiryNanos(r.ExpiresAt)))
	return nil
}

func (s *Store) Insert(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "sql insert")

	tags := try.To1(encodeTags(r.Tags))
	res := try.To1(s.db.Writer.ExecContext(ctx, s.db.rebind(insertSQL),
		s.name, r.Type, r.ID, r.Value, tags, api.ExpiryNanos(r.ExpiresAt)))
	if try.To1(res.RowsAffected()) == 0 {
		return fmt.Errorf("%w: %s/%s", api.ErrItemAlreadyExists, r.Type, r.ID)
	}
	return nil
}

const selectSQL = `SELECT record_id, value, tags, expires_at FROM records
WHERE store = ? AND record_type = ? AND record_id = ?`

func (s *Store) Get(ctx context.Context, typ, id string) (r api.Record, err error) {
	row := s.db.Reader.QueryRowContext(ctx, s.db.rebind(selectSQL), s.name, typ, id)
	r, err = scanRecord(row, typ)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	}
	return r, err
}

func (s *Store) Update(ctx context.Context, typ, id string, fn func(r *api.Record) error) (err error) {
	defer err2.Handle(&err)

	tx := try.To1(s.db.Writer.BeginTx(ctx, nil))
	defer func() { _ = tx.Rollback() }() // no-op after commit

	row := tx.QueryRowContext(ctx, s.db.rebind(selectSQL)+s.db.forUpdate(), s.name, typ, id)
	r, err := scanRecord(row, typ)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	}
	try.To(err)
	try.To(fn(&r))

	tags := try.To1(encodeTags(r.Tags))
	try.To1(tx.ExecContext(ctx, s.db.rebind(`UPDATE records
SET value = ?, tags = ?, expires_at = ?
WHERE store = ? AND record_type = ? AND record_id = ?`),
		r.Value, tags, api.ExpiryNanos(r.ExpiresAt), s.name, typ, id))
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, typ, id string) (err error) {
	defer err2.Handle(&err, "sql delete")

	res := try.To1(s.db.Writer.ExecContext(ctx, s.db.rebind(`DELETE FROM records
WHERE store = ? AND record_type = ? AND record_id = ?`), s.name, typ, id))
	if try.To1(res.RowsAffected()) == 0 {
		return fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	}
	return nil
}

const pageSQL = `SELECT record_id, value, tags, expires_at FROM records
WHERE store = ? AND record_type = ? AND substr(record_id, 1, ?) = ? AND record_id > ?
ORDER BY record_id LIMIT ?`

// Iterate uses keyset pagination. A connection is held only while one page
// is read.
func (s *Store) Iterate(_ context.Context, typ, idPrefix string) (api.Iterator, error) {
	prefixLen := utf8.RuneCountInString(idPrefix)
	q := s.db.rebind(pageSQL)
	fetch := func(ctx context.Context, after string, limit int) (page []api.Record, next string, err error) {
		defer err2.Handle(&err, "sql page %s", typ)

		rows := try.To1(s.db.Reader.QueryContext(ctx, q,
			s.name, typ, prefixLen, idPrefix, after, limit))
		defer rows.Close()

		page = make([]api.Record, 0, limit)
		for rows.Next() {
			page = append(page, try.To1(scanRecord(rows, typ)))
		}
		try.To(rows.Err())
		return page, api.NextCursor(page, limit), nil
	}
	return api.NewPageIterator(fetch, api.DefaultPageSize), nil
}

func (s *Store) Types(ctx context.Context) (types []string, err error) {
	defer err2.Handle(&err, "sql types")

	rows := try.To1(s.db.Reader.QueryContext(ctx, s.db.rebind(`SELECT DISTINCT record_type
FROM records WHERE store = ? ORDER BY record_type`), s.name))
	defer rows.Close()
	for rows.Next() {
		var t string
		try.To(rows.Scan(&t))
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (count int, err error) {
	defer err2.Handle(&err, "sql delete expired")

	res := try.To1(s.db.Writer.ExecContext(ctx, s.db.rebind(`DELETE FROM records
WHERE store = ? AND expires_at <> 0 AND expires_at <= ?`), s.name, now.UnixNano()))
	n := try.To1(res.RowsAffected())
	if n > 0 {
		glog.V(3).Infof("store %s: %d expired records deleted", s.name, n)
	}
	return int(n), nil
}

func (s *Store) Metadata(ctx context.Context) (data []byte, err error) {
	row := s.db.Reader.QueryRowContext(ctx,
		s.db.rebind(`SELECT metadata FROM stores WHERE name = ?`), s.name)
	err = row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrWalletNotFound
	}
	return data, err
}

func (s *Store) SetMetadata(ctx context.Context, data []byte) (err error) {
	defer err2.Handle(&err, "sql set metadata")

	res := try.To1(s.db.Writer.ExecContext(ctx,
		s.db.rebind(`UPDATE stores SET metadata = ? WHERE name = ?`), data, s.name))
	if try.To1(res.RowsAffected()) == 0 {
		return api.ErrWalletNotFound
	}
	return nil
}

func (s *Store) Close() error {
	if glog.V(3) {
		glog.Info("closing sql store: ", s.name)
	}
	if s.owned {
		return s.db.Close()
	}
	return nil
}
