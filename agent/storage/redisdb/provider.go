package redisdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/redis/go-redis/v9"
)

// Type is the storage type name of the Redis provider.
const Type = "redis"

// DefaultPrefix is the key prefix of all the wallets of the provider.
const DefaultPrefix = "fwallet"

const scanBatch = 500

// Provider keeps the wallets in one Redis database. The provider owns the
// client and the stores share it.
type Provider struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ api.Provider = (*Provider)(nil)

// NewRedis connects to Redis. The addr is either a host:port pair or a
// redis:// URL which can carry the password and the database number.
func NewRedis(ctx context.Context, addr string) (p *Provider, err error) {
	defer err2.Handle(&err, "connect redis")

	var opts *redis.Options
	if strings.Contains(addr, "://") {
		opts = try.To1(redis.ParseURL(addr))
	} else {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	glog.V(2).Infoln("redis connected:", opts.Addr)
	return NewWithClient(rdb, DefaultPrefix), nil
}

// NewWithClient returns a provider which uses an existing client.
func NewWithClient(rdb redis.UniversalClient, prefix string) *Provider {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Provider{rdb: rdb, prefix: prefix}
}

func (p *Provider) Type() string {
	return Type
}

func (p *Provider) keys(name string) (keys, error) {
	if name == "" || strings.ContainsAny(name, ":*?[]") {
		return "", fmt.Errorf("illegal wallet name %q", name)
	}
	return keys(p.prefix + ":" + name), nil
}

func (p *Provider) Exists(ctx context.Context, name string) (bool, error) {
	k, err := p.keys(name)
	if err != nil {
		return false, err
	}
	n, err := p.rdb.Exists(ctx, k.store()).Result()
	return n > 0, err
}

func (p *Provider) Create(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "create redis wallet %s", name)

	k := try.To1(p.keys(name))
	if !try.To1(p.rdb.HSetNX(ctx, k.store(), "created", time.Now().Unix()).Result()) {
		return nil, api.ErrWalletAlreadyExists
	}
	glog.V(2).Infoln("redis wallet created:", name)
	return &Store{name: name, keys: k, rdb: p.rdb}, nil
}

func (p *Provider) Open(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "open redis wallet %s", name)

	if !try.To1(p.Exists(ctx, name)) {
		return nil, api.ErrWalletNotFound
	}
	return &Store{name: name, keys: try.To1(p.keys(name)), rdb: p.rdb}, nil
}

// Remove deletes the store marker first, which makes the wallet invisible,
// and then scans and deletes the rest of its keys.
func (p *Provider) Remove(ctx context.Context, name string) (err error) {
	defer err2.Handle(&err, "remove redis wallet %s", name)

	k := try.To1(p.keys(name))
	if try.To1(p.rdb.Del(ctx, k.store()).Result()) == 0 {
		return api.ErrWalletNotFound
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		var batch []string
		batch, cursor = try.To2(p.rdb.Scan(ctx, cursor, string(k)+":*", scanBatch).Result())
		if len(batch) > 0 {
			try.To1(p.rdb.Unlink(ctx, batch...).Result())
			removed += len(batch)
		}
		if cursor == 0 {
			break
		}
	}
	glog.V(2).Infof("redis wallet %s removed, %d keys", name, removed)
	return nil
}

// Close closes the shared client.
func (p *Provider) Close() error {
	return p.rdb.Close()
}
