/*
Package virtual is the multi-tenant wallet backend. One physical record store
holds many virtual wallets, which are selected by the virtual_wallet of the
credentials. The physical record type of every record is prefixed with the
virtual wallet ID and the scope separator, so a virtual wallet can only see
its own records.

Virtual wallets aren't provisioned. The physical store is created once and a
virtual wallet exists as soon as it has records.
*/
package virtual

import (
	"context"
	"sort"
	"strings"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/wallet/local"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Type is the backend type of the virtual wallets.
const Type = "virtual"

// Backend opens virtual wallets from the stores of one provider.
type Backend struct {
	pool *local.Pool
}

var _ api.Backend = (*Backend)(nil)

// New returns a virtual backend for the provider's stores.
func New(p api.Provider) *Backend {
	return NewWithPool(local.NewPool(p))
}

// NewWithPool returns a backend which shares the pool.
func NewWithPool(pool *local.Pool) *Backend {
	return &Backend{pool: pool}
}

func (b *Backend) Type() string {
	return Type
}

// Pool returns the store pool of the backend.
func (b *Backend) Pool() *local.Pool {
	return b.pool
}

// Prefix returns the physical record type prefix of the scope.
func Prefix(scope api.Scope) string {
	return scope.VirtualWalletID + api.ScopeSeparator
}

// Create provisions the physical store. The credentials' key protects all
// the virtual wallets of the store.
func (b *Backend) Create(ctx context.Context, name string, _ api.Config, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "create virtual wallet store")

	try.To(b.pool.Create(ctx, name, cred))
	glog.V(1).Infoln("virtual wallet store created:", name)
	return nil
}

func (b *Backend) Open(ctx context.Context, scope api.Scope, _ api.Config, cred api.Credentials) (w api.Wallet, err error) {
	defer err2.Handle(&err, "open virtual wallet")

	try.To(scope.Validate())
	s := try.To1(b.pool.Acquire(ctx, scope.WalletName, cred))
	glog.V(1).Infoln("virtual wallet opened:", scope)
	return local.New(scope, s, Prefix(scope), func() error {
		return b.pool.Release(scope.WalletName)
	}), nil
}

// Delete removes the physical store with every virtual wallet in it.
func (b *Backend) Delete(ctx context.Context, name string, _ api.Config, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "delete virtual wallet store")

	try.To(b.pool.Remove(ctx, name, cred))
	glog.V(1).Infoln("virtual wallet store deleted:", name)
	return nil
}

// Tenants returns the sorted IDs of the virtual wallets which have records
// in the store.
func (b *Backend) Tenants(ctx context.Context, name string, cred api.Credentials) (ids []string, err error) {
	defer err2.Handle(&err, "tenants of %s", name)

	s := try.To1(b.pool.Acquire(ctx, name, cred))
	defer func() {
		if rerr := b.pool.Release(name); rerr != nil {
			glog.Warningln("release store:", rerr)
		}
	}()

	seen := make(map[string]struct{})
	for _, t := range try.To1(s.Types(ctx)) {
		id, _, found := strings.Cut(t, api.ScopeSeparator)
		if !found {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
