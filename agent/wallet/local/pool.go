/*
Package local implements the wallet operations over a record store of the
process. It's shared by the default and the virtual backends, which differ
only by how they map a scope to the physical record types of a store.
*/
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/wallet/keys"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
)

// Pool shares open record stores between wallet handles. Many providers,
// bolt for example, can open a store only once per process, and many virtual
// wallets use the same physical store. A store is closed when its last user
// releases it.
type Pool struct {
	provider api.Provider

	l      sync.Mutex
	stores map[string]*pooled
}

type pooled struct {
	store api.RecordStore
	check keys.Check
	refs  int
}

// NewPool returns a pool of the provider's stores.
func NewPool(p api.Provider) *Pool {
	return &Pool{provider: p, stores: make(map[string]*pooled)}
}

// Provider returns the provider of the pool.
func (p *Pool) Provider() api.Provider {
	return p.provider
}

// Create provisions a new store and seals the key check of the credentials
// into it.
func (p *Pool) Create(ctx context.Context, name string, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "create store %s", name)

	check := try.To1(keys.NewCheck(cred))
	s := try.To1(p.provider.Create(ctx, name))
	defer func() {
		if cerr := s.Close(); cerr != nil {
			glog.Warningln("close created store:", cerr)
		}
	}()
	if err := s.SetMetadata(ctx, check.Bytes()); err != nil {
		if rerr := p.provider.Remove(ctx, name); rerr != nil {
			glog.Warningln("rollback store create:", rerr)
		}
		return err
	}
	return nil
}

// Acquire opens the store or shares the already open one. The credentials
// are verified against the key check in both cases. Every successful Acquire
// must be paired with Release.
func (p *Pool) Acquire(ctx context.Context, name string, cred api.Credentials) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "acquire store %s", name)

	p.l.Lock()
	defer p.l.Unlock()

	e, ok := p.stores[name]
	if !ok {
		e = try.To1(p.open(ctx, name))
		p.stores[name] = e
	}
	if err := e.check.Verify(cred); err != nil {
		if !ok {
			delete(p.stores, name)
			_ = e.store.Close()
		}
		return nil, err
	}
	e.refs++
	glog.V(3).Infof("store %s acquired, refs %d", name, e.refs)
	return e.store, nil
}

func (p *Pool) open(ctx context.Context, name string) (e *pooled, err error) {
	s, err := p.provider.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	d, err := s.Metadata(ctx)
	if err == nil {
		var c keys.Check
		if c, err = keys.ParseCheck(d); err == nil {
			return &pooled{store: s, check: c}, nil
		}
	}
	_ = s.Close()
	return nil, fmt.Errorf("read key check: %w", err)
}

// Release gives the store back. The store is closed when it has no users.
func (p *Pool) Release(name string) error {
	p.l.Lock()
	defer p.l.Unlock()

	e, ok := p.stores[name]
	if !ok {
		return fmt.Errorf("%w: store %s not acquired", api.ErrInvalidHandle, name)
	}
	e.refs--
	assert.That(e.refs >= 0, "store refs cannot be negative")
	if e.refs > 0 {
		return nil
	}
	delete(p.stores, name)
	glog.V(3).Infoln("closing pooled store:", name)
	return e.store.Close()
}

// InUse tells if the store has users.
func (p *Pool) InUse(name string) bool {
	p.l.Lock()
	defer p.l.Unlock()
	_, ok := p.stores[name]
	return ok
}

// Remove deletes the store after verifying the credentials. A store in use
// cannot be removed.
func (p *Pool) Remove(ctx context.Context, name string, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "remove store %s", name)

	p.l.Lock()
	defer p.l.Unlock()

	if _, ok := p.stores[name]; ok {
		return api.ErrWalletInUse
	}
	e := try.To1(p.open(ctx, name))
	verr := e.check.Verify(cred)
	try.To(e.store.Close())
	try.To(verr)
	return p.provider.Remove(ctx, name)
}

// Each calls fn for every open store. The stores are kept acquired during
// the calls, and the first error stops the iteration.
func (p *Pool) Each(ctx context.Context, fn func(s api.RecordStore) error) error {
	p.l.Lock()
	acquired := make(map[string]api.RecordStore, len(p.stores))
	for name, e := range p.stores {
		e.refs++
		acquired[name] = e.store
	}
	p.l.Unlock()

	var errs []error
	stopped := false
	for name, s := range acquired {
		if !stopped && ctx.Err() == nil {
			if err := fn(s); err != nil {
				errs = append(errs, err)
				stopped = true
			}
		}
		if err := p.Release(name); err != nil {
			errs = append(errs, err)
		}
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
