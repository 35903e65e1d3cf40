package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Wallet is an open wallet scope over a record store. All the record types
// of the scope are stored under the physical type prefix + type, which keeps
// the scopes sharing a store apart.
type Wallet struct {
	scope   api.Scope
	store   api.RecordStore
	prefix  string
	release func() error

	// Now returns the current time for expiry checks.
	Now func() time.Time

	l      sync.RWMutex
	closed bool
}

var _ api.Wallet = (*Wallet)(nil)

// New returns a wallet of the scope. The release is called once when the
// wallet is closed.
func New(scope api.Scope, s api.RecordStore, prefix string, release func() error) *Wallet {
	return &Wallet{
		scope:   scope,
		store:   s,
		prefix:  prefix,
		release: release,
		Now:     time.Now,
	}
}

func (w *Wallet) Scope() api.Scope {
	return w.scope
}

// use locks the wallet for an operation. The returned func must be called
// when the operation is done.
func (w *Wallet) use() (func(), error) {
	w.l.RLock()
	if w.closed {
		w.l.RUnlock()
		return nil, fmt.Errorf("%w: %s closed", api.ErrInvalidHandle, w.scope)
	}
	return w.l.RUnlock, nil
}

func (w *Wallet) physical(typ string) (string, error) {
	if typ == "" {
		return "", fmt.Errorf("record type cannot be empty")
	}
	if strings.Contains(typ, api.ScopeSeparator) {
		return "", fmt.Errorf("illegal character in record type %q", typ)
	}
	return w.prefix + typ, nil
}

func (w *Wallet) key(typ, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("record id cannot be empty")
	}
	return w.physical(typ)
}

func (w *Wallet) Set(ctx context.Context, typ, id string, value []byte, tags api.Tags) error {
	return w.Put(ctx, api.Record{Type: typ, ID: id, Value: value, Tags: tags})
}

func (w *Wallet) Put(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "set %s/%s", r.Type, r.ID)

	done := try.To1(w.use())
	defer done()

	typ := r.Type
	r.Type = try.To1(w.key(typ, r.ID))
	try.To(w.store.Put(ctx, r))
	glog.V(7).Infof("%s: set %s/%s", w.scope, typ, r.ID)
	return nil
}

func (w *Wallet) Add(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "add %s/%s", r.Type, r.ID)

	done := try.To1(w.use())
	defer done()

	r.Type = try.To1(w.key(r.Type, r.ID))
	return w.store.Insert(ctx, r)
}

func (w *Wallet) Get(ctx context.Context, typ, id string) (r api.Record, err error) {
	defer err2.Handle(&err, "get %s/%s", typ, id)

	done := try.To1(w.use())
	defer done()

	r = try.To1(w.store.Get(ctx, try.To1(w.key(typ, id)), id))
	r.Type = typ
	return r, nil
}

// GetNotExpired is Get which fails with api.ErrItemExpired when the record's
// expiry time has passed.
func (w *Wallet) GetNotExpired(ctx context.Context, typ, id string) (r api.Record, err error) {
	r, err = w.Get(ctx, typ, id)
	if err != nil {
		return r, err
	}
	if r.Expired(w.Now()) {
		return api.Record{}, fmt.Errorf("%w: %s/%s", api.ErrItemExpired, typ, id)
	}
	return r, nil
}

// List returns the records of the type in ID order. The scope is selected
// by the physical type before the filter sees any records.
func (w *Wallet) List(ctx context.Context, typ string, opts api.ListOptions) (it api.Iterator, err error) {
	defer err2.Handle(&err, "list %s", typ)

	done := try.To1(w.use())
	defer done()

	pt := try.To1(w.physical(typ))
	it = try.To1(w.store.Iterate(ctx, pt, opts.IDPrefix))
	it = api.Filtered(it, api.ListOptions{Filter: opts.Filter})
	return api.Mapped(it, func(r api.Record) api.Record {
		r.Type = typ
		return r
	}), nil
}

func (w *Wallet) Count(ctx context.Context, typ string, opts api.ListOptions) (int, error) {
	it, err := w.List(ctx, typ, opts)
	if err != nil {
		return 0, err
	}
	return api.Count(ctx, it)
}

func (w *Wallet) Delete(ctx context.Context, typ, id string) (err error) {
	defer err2.Handle(&err, "delete %s/%s", typ, id)

	done := try.To1(w.use())
	defer done()

	return w.store.Delete(ctx, try.To1(w.key(typ, id)), id)
}

func (w *Wallet) update(ctx context.Context, typ, id string, fn func(r *api.Record)) (err error) {
	defer err2.Handle(&err)

	done := try.To1(w.use())
	defer done()

	return w.store.Update(ctx, try.To1(w.key(typ, id)), id, func(r *api.Record) error {
		fn(r)
		return nil
	})
}

func (w *Wallet) SetExpiry(ctx context.Context, typ, id string, at *time.Time) (err error) {
	defer err2.Handle(&err, "set expiry %s/%s", typ, id)

	return w.update(ctx, typ, id, func(r *api.Record) {
		r.ExpiresAt = at
	})
}

func (w *Wallet) UpdateValue(ctx context.Context, typ, id string, value []byte) (err error) {
	defer err2.Handle(&err, "update value %s/%s", typ, id)

	return w.update(ctx, typ, id, func(r *api.Record) {
		r.Value = value
	})
}

// AddTags merges the tags to the record's tags.
func (w *Wallet) AddTags(ctx context.Context, typ, id string, tags api.Tags) (err error) {
	defer err2.Handle(&err, "add tags %s/%s", typ, id)

	return w.update(ctx, typ, id, func(r *api.Record) {
		if r.Tags == nil {
			r.Tags = make(api.Tags, len(tags))
		}
		for k, v := range tags {
			r.Tags[k] = v
		}
	})
}

// UpdateTags replaces all the tags of the record.
func (w *Wallet) UpdateTags(ctx context.Context, typ, id string, tags api.Tags) (err error) {
	defer err2.Handle(&err, "update tags %s/%s", typ, id)

	return w.update(ctx, typ, id, func(r *api.Record) {
		r.Tags = tags.Clone()
	})
}

func (w *Wallet) DeleteTags(ctx context.Context, typ, id string, names ...string) (err error) {
	defer err2.Handle(&err, "delete tags %s/%s", typ, id)

	return w.update(ctx, typ, id, func(r *api.Record) {
		for _, n := range names {
			delete(r.Tags, n)
		}
	})
}

// Close releases the store. Iterators of the wallet should be closed before
// it.
func (w *Wallet) Close() error {
	w.l.Lock()
	defer w.l.Unlock()

	if w.closed {
		return fmt.Errorf("%w: %s already closed", api.ErrInvalidHandle, w.scope)
	}
	w.closed = true
	glog.V(2).Infoln("closing wallet:", w.scope)
	if w.release == nil {
		return nil
	}
	return w.release()
}
