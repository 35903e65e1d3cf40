/*
Package boltdb implements the record store with bbolt. Every wallet is a
separate bolt file and every record type has its own bucket.
*/
package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	bolt "go.etcd.io/bbolt"
)

const (
	recordPrefix = "r:"
	metaBucket   = "m"
	metaKey      = "metadata"
)

// Store is a bolt file backed record store.
type Store struct {
	name string
	db   *bolt.DB
}

var _ api.RecordStore = (*Store)(nil)

func openStore(filename, name string) (s *Store, err error) {
	defer err2.Handle(&err, "open bolt store")

	db := try.To1(bolt.Open(filename, 0600, &bolt.Options{Timeout: openTimeout}))
	err = db.Update(func(tx *bolt.Tx) (err error) {
		_, err = tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{name: name, db: db}, nil
}

func bucketName(typ string) []byte {
	return []byte(recordPrefix + typ)
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Put(_ context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "bolt put")

	data := try.To1(json.Marshal(api.NewEnvelope(r)))
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(r.Type))
		if err != nil {
			return err
		}
		return b.Put([]byte(r.ID), data)
	})
}

func (s *Store) Insert(_ context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "bolt insert")

	data := try.To1(json.Marshal(api.NewEnvelope(r)))
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(r.Type))
		if err != nil {
			return err
		}
		if b.Get([]byte(r.ID)) != nil {
			return fmt.Errorf("%w: %s/%s", api.ErrItemAlreadyExists, r.Type, r.ID)
		}
		return b.Put([]byte(r.ID), data)
	})
}

func (s *Store) Get(_ context.Context, typ, id string) (r api.Record, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		var e api.Envelope
		if err := get(tx, typ, id, &e); err != nil {
			return err
		}
		r = e.Record(typ, id)
		return nil
	})
	return r, err
}

func get(tx *bolt.Tx, typ, id string, e *api.Envelope) error {
	b := tx.Bucket(bucketName(typ))
	if b == nil {
		return fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	}
	d := b.Get([]byte(id))
	if d == nil {
		return fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	}
	// json.Unmarshal copies, d is valid only inside the transaction
	return json.Unmarshal(d, e)
}

func (s *Store) Update(_ context.Context, typ, id string, fn func(r *api.Record) error) error {
	return s.db.Update(func(tx *bolt.Tx) (err error) {
		defer err2.Handle(&err)

		var e api.Envelope
		try.To(get(tx, typ, id, &e))
		r := e.Record(typ, id)
		try.To(fn(&r))
		r.Type, r.ID = typ, id
		data := try.To1(json.Marshal(api.NewEnvelope(r)))
		return tx.Bucket(bucketName(typ)).Put([]byte(id), data)
	})
}

func (s *Store) Delete(_ context.Context, typ, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(typ))
		if b == nil || b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
		}
		return b.Delete([]byte(id))
	})
}

// Iterate reads the bucket in pages. Each page is read with its own short
// read transaction so that the caller can write while iterating.
func (s *Store) Iterate(_ context.Context, typ, idPrefix string) (api.Iterator, error) {
	fetch := func(ctx context.Context, after string, limit int) (page []api.Record, next string, err error) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		err = s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketName(typ))
			if b == nil {
				return nil
			}
			page = make([]api.Record, 0, limit)
			c := b.Cursor()
			prefix := []byte(idPrefix)
			var k, v []byte
			if after == "" {
				k, v = c.Seek(prefix)
			} else {
				k, v = c.Seek([]byte(after))
				if k != nil && string(k) == after {
					k, v = c.Next()
				}
			}
			for ; k != nil && bytes.HasPrefix(k, prefix) && len(page) < limit; k, v = c.Next() {
				var e api.Envelope
				if err := json.Unmarshal(v, &e); err != nil {
					return fmt.Errorf("decode %s/%s: %w", typ, k, err)
				}
				page = append(page, e.Record(typ, string(k)))
			}
			return nil
		})
		return page, api.NextCursor(page, limit), err
	}
	return api.NewPageIterator(fetch, api.DefaultPageSize), nil
}

func (s *Store) Types(_ context.Context) (types []string, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			n := string(name)
			if !strings.HasPrefix(n, recordPrefix) {
				return nil
			}
			if k, _ := b.Cursor().First(); k != nil {
				types = append(types, strings.TrimPrefix(n, recordPrefix))
			}
			return nil
		})
	})
	return types, err
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (count int, err error) {
	defer err2.Handle(&err, "bolt delete expired")

	try.To(s.db.Update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !bytes.HasPrefix(name, []byte(recordPrefix)) {
				return nil
			}
			var expired [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var e api.Envelope
				if err := json.Unmarshal(v, &e); err != nil {
					return err
				}
				if e.ExpiresAt != 0 && e.ExpiresAt <= now.UnixNano() {
					expired = append(expired, append([]byte{}, k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			count += len(expired)
			return nil
		})
	}))
	if count > 0 {
		glog.V(3).Infof("store %s: %d expired records deleted", s.name, count)
	}
	return count, nil
}

func (s *Store) Metadata(_ context.Context) (data []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		if d := tx.Bucket([]byte(metaBucket)).Get([]byte(metaKey)); d != nil {
			data = append([]byte{}, d...)
		}
		return nil
	})
	return data, err
}

func (s *Store) SetMetadata(_ context.Context, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put([]byte(metaKey), data)
	})
}

func (s *Store) Close() (err error) {
	defer err2.Handle(&err, "close bolt store %s", s.name)

	if glog.V(3) {
		glog.Info("closing bolt store: ", s.name)
	}
	return s.db.Close()
}
