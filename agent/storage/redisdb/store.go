/*
Package redisdb implements the record store on Redis. Many wallets share one
Redis database and their keys are separated by the store name:

	<prefix>:<store>:s             store hash: created, metadata
	<prefix>:<store>:r:<n>:<type>:<id>  record envelope JSON, n = len(type)
	<prefix>:<store>:i:<n>:<type>  sorted set of record IDs, lex ordered
	<prefix>:<store>:t             set of record types
	<prefix>:<store>:x             sorted set of expiring records by millis
*/
package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

// Store is the record store of one wallet in Redis.
type Store struct {
	name string
	keys keys
	rdb  redis.UniversalClient
}

var _ api.RecordStore = (*Store)(nil)

type keys string

func (k keys) store() string { return string(k) + ":s" }
func (k keys) types() string { return string(k) + ":t" }
func (k keys) exp() string   { return string(k) + ":x" }

func (k keys) record(typ, id string) string {
	return string(k) + ":r:" + strconv.Itoa(len(typ)) + ":" + typ + ":" + id
}

func (k keys) index(typ string) string {
	return string(k) + ":i:" + strconv.Itoa(len(typ)) + ":" + typ
}

// expMember encodes the record of the expiry index.
func expMember(typ, id string) string {
	return strconv.Itoa(len(typ)) + ":" + typ + id
}

func parseExpMember(m string) (typ, id string, ok bool) {
	n, rest, found := strings.Cut(m, ":")
	if !found {
		return "", "", false
	}
	l, err := strconv.Atoi(n)
	if err != nil || l > len(rest) {
		return "", "", false
	}
	return rest[:l], rest[l:], true
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) writeRecord(ctx context.Context, pipe redis.Pipeliner, r api.Record, data []byte) {
	pipe.Set(ctx, s.keys.record(r.Type, r.ID), data, 0)
	pipe.ZAdd(ctx, s.keys.index(r.Type), redis.Z{Member: r.ID})
	pipe.SAdd(ctx, s.keys.types(), r.Type)
	member := expMember(r.Type, r.ID)
	if r.ExpiresAt != nil {
		pipe.ZAdd(ctx, s.keys.exp(), redis.Z{
			Score:  float64(r.ExpiresAt.UnixMilli()),
			Member: member,
		})
	} else {
		pipe.ZRem(ctx, s.keys.exp(), member)
	}
}

func (s *Store) Put(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "redis put")

	data := try.To1(json.Marshal(api.NewEnvelope(r)))
	try.To1(s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.writeRecord(ctx, pipe, r, data)
		return nil
	}))
	return nil
}

func (s *Store) Insert(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "redis insert")

	data := try.To1(json.Marshal(api.NewEnvelope(r)))
	if !try.To1(s.rdb.SetNX(ctx, s.keys.record(r.Type, r.ID), data, 0).Result()) {
		return fmt.Errorf("%w: %s/%s", api.ErrItemAlreadyExists, r.Type, r.ID)
	}
	try.To1(s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.writeRecord(ctx, pipe, r, data)
		return nil
	}))
	return nil
}

func getRecord(ctx context.Context, c redis.Cmdable, key, typ, id string) (r api.Record, err error) {
	d, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return r, fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	} else if err != nil {
		return r, err
	}
	var e api.Envelope
	if err = json.Unmarshal(d, &e); err != nil {
		return r, err
	}
	return e.Record(typ, id), nil
}

func (s *Store) Get(ctx context.Context, typ, id string) (api.Record, error) {
	return getRecord(ctx, s.rdb, s.keys.record(typ, id), typ, id)
}

// Update uses optimistic locking and retries when the record changes under
// it.
func (s *Store) Update(ctx context.Context, typ, id string, fn func(r *api.Record) error) error {
	key := s.keys.record(typ, id)
	txf := func(tx *redis.Tx) error {
		r, err := getRecord(ctx, tx, key, typ, id)
		if err != nil {
			return err
		}
		if err = fn(&r); err != nil {
			return err
		}
		r.Type, r.ID = typ, id
		data, err := json.Marshal(api.NewEnvelope(r))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeRecord(ctx, pipe, r, data)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		glog.V(5).Infoln("redis update retry:", key)
	}
	return fmt.Errorf("redis update %s/%s: too many concurrent writers", typ, id)
}

func (s *Store) Delete(ctx context.Context, typ, id string) (err error) {
	defer err2.Handle(&err, "redis delete")

	var del *redis.IntCmd
	try.To1(s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.keys.record(typ, id))
		pipe.ZRem(ctx, s.keys.index(typ), id)
		pipe.ZRem(ctx, s.keys.exp(), expMember(typ, id))
		return nil
	}))
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s/%s", api.ErrItemNotFound, typ, id)
	}
	return nil
}

// Iterate pages the ID index by lex ranges and reads the records of a page
// with one MGET. Records deleted between the two reads are skipped.
func (s *Store) Iterate(_ context.Context, typ, idPrefix string) (api.Iterator, error) {
	max := "+"
	if idPrefix != "" {
		// UTF-8 never has 0xff, so it's after every ID with the prefix
		max = "[" + idPrefix + "\xff"
	}
	fetch := func(ctx context.Context, after string, limit int) (page []api.Record, next string, err error) {
		defer err2.Handle(&err, "redis page %s", typ)

		min := "[" + idPrefix
		if after != "" {
			min = "(" + after
		}
		ids := try.To1(s.rdb.ZRangeByLex(ctx, s.keys.index(typ), &redis.ZRangeBy{
			Min:   min,
			Max:   max,
			Count: int64(limit),
		}).Result())
		if len(ids) == 0 {
			return nil, "", nil
		}
		if len(ids) == limit {
			next = ids[len(ids)-1]
		}
		rkeys := make([]string, len(ids))
		for i, id := range ids {
			rkeys[i] = s.keys.record(typ, id)
		}
		values := try.To1(s.rdb.MGet(ctx, rkeys...).Result())
		page = make([]api.Record, 0, len(ids))
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var e api.Envelope
			try.To(json.Unmarshal([]byte(str), &e))
			page = append(page, e.Record(typ, ids[i]))
		}
		return page, next, nil
	}
	return api.NewPageIterator(fetch, api.DefaultPageSize), nil
}

func (s *Store) Types(ctx context.Context) (types []string, err error) {
	defer err2.Handle(&err, "redis types")

	all := try.To1(s.rdb.SMembers(ctx, s.keys.types()).Result())
	for _, t := range all {
		if try.To1(s.rdb.ZCard(ctx, s.keys.index(t)).Result()) > 0 {
			types = append(types, t)
		} else {
			s.rdb.SRem(ctx, s.keys.types(), t)
		}
	}
	sort.Strings(types)
	return types, nil
}

// DeleteExpired reads candidates from the expiry index with millisecond
// precision and checks each record's exact expiry time before deleting it.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (count int, err error) {
	defer err2.Handle(&err, "redis delete expired")

	members := try.To1(s.rdb.ZRangeByScore(ctx, s.keys.exp(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result())
	for _, m := range members {
		typ, id, ok := parseExpMember(m)
		if !ok {
			glog.Warningln("illegal expiry member:", m)
			s.rdb.ZRem(ctx, s.keys.exp(), m)
			continue
		}
		r, err := s.Get(ctx, typ, id)
		if errors.Is(err, api.ErrItemNotFound) {
			s.rdb.ZRem(ctx, s.keys.exp(), m)
			continue
		}
		try.To(err)
		if !r.Expired(now) {
			continue
		}
		if err := s.Delete(ctx, typ, id); err == nil {
			count++
		} else if !errors.Is(err, api.ErrItemNotFound) {
			return count, err
		}
	}
	if count > 0 {
		glog.V(3).Infof("store %s: %d expired records deleted", s.name, count)
	}
	return count, nil
}

func (s *Store) Metadata(ctx context.Context) ([]byte, error) {
	d, err := s.rdb.HGet(ctx, s.keys.store(), "metadata").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return d, err
}

func (s *Store) SetMetadata(ctx context.Context, data []byte) error {
	return s.rdb.HSet(ctx, s.keys.store(), "metadata", data).Err()
}

// Close doesn't close the client, it's owned by the provider.
func (s *Store) Close() error {
	glog.V(3).Infoln("closing redis store:", s.name)
	return nil
}
