/*
Package registry keeps track of the open wallets of the process. A wallet is
opened through the Registry, which selects the backend by the type of the
wallet config and returns a Handle. There is at most one live handle per
scope.

The Registry is created with New at the startup and torn down with Close:

	r := registry.New(standard.New(p), virtual.New(p), remote.New())
	defer r.Close()

	h, err := r.Open(ctx, cfg, "agency", cred)
*/
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// DefaultType is used when the wallet config has no type.
const DefaultType = "default"

// Handle is an open wallet. The record operations are those of the
// api.Wallet of the backend. A Handle is closed with Close, after which it
// cannot be used.
type Handle struct {
	api.Wallet

	id  string
	typ string
	reg *Registry
}

// ID returns the handle ID which can be given to Registry.Lookup.
func (h *Handle) ID() string {
	return h.id
}

// Type returns the backend type of the wallet.
func (h *Handle) Type() string {
	return h.typ
}

// Close removes the handle from the registry and closes the wallet.
func (h *Handle) Close() (err error) {
	defer err2.Handle(&err, "close %s", h.id)

	try.To(h.reg.release(h))
	try.To(h.Wallet.Close())
	glog.V(1).Infof("wallet %s closed (%s)", h.Scope(), h.id)
	return nil
}

// Registry is the open wallet registry. All of its methods can be called
// concurrently.
type Registry struct {
	l        sync.Mutex
	backends map[string]api.Backend
	byScope  map[api.Scope]*Handle
	byID     map[string]*Handle
	opening  map[api.Scope]struct{}
	deleting map[string]struct{}
	closed   bool
}

// New returns a registry of the backends. Backends are keyed by their type.
func New(backends ...api.Backend) *Registry {
	r := &Registry{
		backends: make(map[string]api.Backend, len(backends)),
		byScope:  make(map[api.Scope]*Handle),
		byID:     make(map[string]*Handle),
		opening:  make(map[api.Scope]struct{}),
		deleting: make(map[string]struct{}),
	}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds the backend or replaces the one with the same type.
func (r *Registry) Register(b api.Backend) {
	r.l.Lock()
	defer r.l.Unlock()

	r.backends[b.Type()] = b
}

// Backend returns the backend of the type.
func (r *Registry) Backend(typ string) (api.Backend, error) {
	r.l.Lock()
	defer r.l.Unlock()

	return r.backend(typ)
}

func (r *Registry) backend(typ string) (api.Backend, error) {
	if typ == "" {
		typ = DefaultType
	}
	b, ok := r.backends[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownBackend, typ)
	}
	return b, nil
}

func (r *Registry) usable() error {
	if r.closed {
		return fmt.Errorf("%w: registry closed", api.ErrInvalidHandle)
	}
	return nil
}

func (r *Registry) usableBackend(typ string) (api.Backend, error) {
	r.l.Lock()
	defer r.l.Unlock()

	if err := r.usable(); err != nil {
		return nil, err
	}
	return r.backend(typ)
}

// Create provisions a new wallet.
func (r *Registry) Create(ctx context.Context, cfg api.Config, name string, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "create wallet %s", name)

	b := try.To1(r.usableBackend(cfg.Type))
	try.To(b.Create(ctx, name, cfg, cred))
	glog.V(1).Infof("wallet %s created (%s)", name, b.Type())
	return nil
}

// Open opens the scope given by the name and the virtual wallet of the
// credentials. Opening a scope which already has a handle fails with
// api.ErrWalletAlreadyOpened.
func (r *Registry) Open(ctx context.Context, cfg api.Config, name string, cred api.Credentials) (h *Handle, err error) {
	scope := api.NewScope(name, cred.VirtualWallet)
	defer err2.Handle(&err, "open wallet %s", scope)

	b := try.To1(r.reserve(cfg.Type, scope))
	w, err := b.Open(ctx, scope, cfg, cred)
	if err != nil {
		r.cancel(scope)
		return nil, err
	}
	h = &Handle{Wallet: w, id: uuid.NewString(), typ: b.Type(), reg: r}
	if err := r.commit(scope, h); err != nil {
		if cerr := w.Close(); cerr != nil {
			glog.Warningln("close after registry closed:", cerr)
		}
		return nil, err
	}
	glog.V(1).Infof("wallet %s opened (%s)", scope, h.id)
	return h, nil
}

// reserve marks the scope as opening. The backend I/O is done without the
// lock, and the reservation is ended by commit or cancel.
func (r *Registry) reserve(typ string, scope api.Scope) (b api.Backend, err error) {
	r.l.Lock()
	defer r.l.Unlock()

	try.To(r.usable())
	b = try.To1(r.backend(typ))
	try.To(scope.Validate())
	if _, ok := r.byScope[scope]; ok {
		return nil, fmt.Errorf("%w: %s", api.ErrWalletAlreadyOpened, scope)
	}
	if _, ok := r.opening[scope]; ok {
		return nil, fmt.Errorf("%w: %s is being opened", api.ErrWalletAlreadyOpened, scope)
	}
	if _, ok := r.deleting[scope.WalletName]; ok {
		return nil, fmt.Errorf("%w: %s is being deleted", api.ErrWalletInUse, scope.WalletName)
	}
	r.opening[scope] = struct{}{}
	return b, nil
}

func (r *Registry) cancel(scope api.Scope) {
	r.l.Lock()
	defer r.l.Unlock()

	delete(r.opening, scope)
}

// commit ends the reservation. It fails if the registry was closed while
// the backend was opening the wallet.
func (r *Registry) commit(scope api.Scope, h *Handle) error {
	r.l.Lock()
	defer r.l.Unlock()

	delete(r.opening, scope)
	if err := r.usable(); err != nil {
		return err
	}
	r.byScope[scope] = h
	r.byID[h.id] = h
	return nil
}

func (r *Registry) release(h *Handle) error {
	r.l.Lock()
	defer r.l.Unlock()

	if r.byID[h.id] != h {
		return fmt.Errorf("%w: %s", api.ErrInvalidHandle, h.id)
	}
	delete(r.byID, h.id)
	delete(r.byScope, h.Scope())
	return nil
}

// Lookup returns the open handle by its ID.
func (r *Registry) Lookup(id string) (*Handle, error) {
	r.l.Lock()
	defer r.l.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrInvalidHandle, id)
	}
	return h, nil
}

// Find returns the open handle of the scope.
func (r *Registry) Find(scope api.Scope) (*Handle, bool) {
	r.l.Lock()
	defer r.l.Unlock()

	h, ok := r.byScope[scope]
	return h, ok
}

// Opened returns the scopes of the open handles sorted by their string
// form.
func (r *Registry) Opened() []api.Scope {
	r.l.Lock()
	defer r.l.Unlock()

	scopes := make([]api.Scope, 0, len(r.byScope))
	for s := range r.byScope {
		scopes = append(scopes, s)
	}
	sort.Slice(scopes, func(i, j int) bool {
		return scopes[i].String() < scopes[j].String()
	})
	return scopes
}

func (r *Registry) inUse(name string) bool {
	for s := range r.byScope {
		if s.WalletName == name {
			return true
		}
	}
	for s := range r.opening {
		if s.WalletName == name {
			return true
		}
	}
	return false
}

// Delete removes the wallet. It fails with api.ErrWalletInUse while any
// scope of the wallet is open.
func (r *Registry) Delete(ctx context.Context, cfg api.Config, name string, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "delete wallet %s", name)

	b := try.To1(r.startDelete(cfg.Type, name))
	defer r.endDelete(name)

	try.To(b.Delete(ctx, name, cfg, cred))
	glog.V(1).Infof("wallet %s deleted (%s)", name, b.Type())
	return nil
}

func (r *Registry) startDelete(typ, name string) (b api.Backend, err error) {
	r.l.Lock()
	defer r.l.Unlock()

	try.To(r.usable())
	b = try.To1(r.backend(typ))
	if _, ok := r.deleting[name]; ok || r.inUse(name) {
		return nil, fmt.Errorf("%w: %s", api.ErrWalletInUse, name)
	}
	r.deleting[name] = struct{}{}
	return b, nil
}

func (r *Registry) endDelete(name string) {
	r.l.Lock()
	defer r.l.Unlock()

	delete(r.deleting, name)
}

// Close closes all the open handles. The registry cannot be used after it.
func (r *Registry) Close() error {
	r.l.Lock()
	if r.closed {
		r.l.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]*Handle, 0, len(r.byID))
	for _, h := range r.byID {
		handles = append(handles, h)
	}
	r.byID = make(map[string]*Handle)
	r.byScope = make(map[api.Scope]*Handle)
	r.l.Unlock()

	if glog.V(3) {
		glog.Infof("closing %d wallets", len(handles))
	}
	errs := make([]error, 0, len(handles))
	for _, h := range handles {
		if err := h.Wallet.Close(); err != nil {
			glog.Warning("closing error:", err)
			errs = append(errs, fmt.Errorf("close %s: %w", h.Scope(), err))
		}
	}
	return errors.Join(errs...)
}
