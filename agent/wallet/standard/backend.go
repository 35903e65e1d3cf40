/*
Package standard is the default wallet backend: one physical record store
is one logical wallet, and only the root scope of the wallet can be opened.
*/
package standard

import (
	"context"
	"fmt"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/wallet/local"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Type is the backend type of the default wallets.
const Type = "default"

// Backend opens the wallets of one record store provider.
type Backend struct {
	pool *local.Pool
}

var _ api.Backend = (*Backend)(nil)

// New returns a default backend for the provider's stores.
func New(p api.Provider) *Backend {
	return NewWithPool(local.NewPool(p))
}

// NewWithPool returns a backend which shares the pool. Share the pool when
// the same stores are opened by other backends too.
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

func rootOnly(name string, cred api.Credentials) error {
	if cred.VirtualWallet != "" && cred.VirtualWallet != name {
		return fmt.Errorf("%w: default wallet %s has no virtual wallets",
			api.ErrInvalidCredentials, name)
	}
	return nil
}

func (b *Backend) Create(ctx context.Context, name string, _ api.Config, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "create default wallet")

	try.To(rootOnly(name, cred))
	try.To(b.pool.Create(ctx, name, cred))
	glog.V(1).Infoln("default wallet created:", name)
	return nil
}

func (b *Backend) Open(ctx context.Context, scope api.Scope, _ api.Config, cred api.Credentials) (w api.Wallet, err error) {
	defer err2.Handle(&err, "open default wallet")

	try.To(scope.Validate())
	if !scope.IsRoot() {
		return nil, fmt.Errorf("%w: default wallet %s has no virtual wallets",
			api.ErrInvalidCredentials, scope.WalletName)
	}
	s := try.To1(b.pool.Acquire(ctx, scope.WalletName, cred))
	glog.V(1).Infoln("default wallet opened:", scope)
	return local.New(scope, s, "", func() error {
		return b.pool.Release(scope.WalletName)
	}), nil
}

func (b *Backend) Delete(ctx context.Context, name string, _ api.Config, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "delete default wallet")

	try.To(rootOnly(name, cred))
	try.To(b.pool.Remove(ctx, name, cred))
	glog.V(1).Infoln("default wallet deleted:", name)
	return nil
}
