package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Wallet is an open remote wallet. Records are read and written by REST calls
// to the wallet service of the virtual wallet.
type Wallet struct {
	scope api.Scope
	vw    string
	c     *client
	auth  *authCache
	now   func() time.Time

	closed atomic.Bool
}

var _ api.Wallet = (*Wallet)(nil)

func (w *Wallet) Scope() api.Scope {
	return w.scope
}

// AuthEntry returns the current auth cache entry of the handle.
func (w *Wallet) AuthEntry() AuthCacheEntry {
	return w.auth.current()
}

func checkType(typ string) error {
	if typ == "" {
		return fmt.Errorf("record type cannot be empty")
	}
	return nil
}

func checkKey(typ, id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	return checkType(typ)
}

// call sends an authenticated request and checks the response status. A
// rejected token is dropped from the cache, and the next call authenticates
// again.
func (w *Wallet) call(ctx context.Context, method, url string, body any, read bool) (r response, err error) {
	if w.closed.Load() {
		return r, fmt.Errorf("%w: %s closed", api.ErrInvalidHandle, w.scope)
	}
	tok, err := w.auth.token(ctx)
	if err != nil {
		return r, err
	}
	r, err = w.c.do(ctx, method, url, tok, body, read)
	if err != nil {
		return r, err
	}
	err = r.check(method + " " + url)
	if errors.Is(err, api.ErrAuthenticationFailed) {
		w.auth.invalidate(tok)
	}
	return r, err
}

func (w *Wallet) Set(ctx context.Context, typ, id string, value []byte, tags api.Tags) error {
	return w.Put(ctx, api.Record{Type: typ, ID: id, Value: value, Tags: tags})
}

// Put sends the record with its expiry in one POST.
func (w *Wallet) Put(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "remote set")

	try.To(checkKey(r.Type, r.ID))
	try.To1(w.call(ctx, http.MethodPost, w.c.cfg.collectionURL(w.vw), r, false))
	return nil
}

func (w *Wallet) Add(ctx context.Context, r api.Record) (err error) {
	defer err2.Handle(&err, "remote add")

	try.To(checkKey(r.Type, r.ID))
	try.To1(w.call(ctx, http.MethodPost, w.c.cfg.collectionURL(w.vw)+"?strict=true",
		r, false))
	return nil
}

func (w *Wallet) Get(ctx context.Context, typ, id string) (r api.Record, err error) {
	defer err2.Handle(&err, "remote get")

	try.To(checkKey(typ, id))
	resp := try.To1(w.call(ctx, http.MethodGet, w.c.cfg.recordURL(w.vw, typ, id), nil, true))
	try.To(resp.decode(&r))
	r.Type, r.ID = typ, id
	return r, nil
}

func (w *Wallet) GetNotExpired(ctx context.Context, typ, id string) (r api.Record, err error) {
	r, err = w.Get(ctx, typ, id)
	if err != nil {
		return r, err
	}
	if r.Expired(w.now()) {
		return api.Record{}, fmt.Errorf("%w: %s/%s", api.ErrItemExpired, typ, id)
	}
	return r, nil
}

// List pages the records from the service. Pages without a filter are
// fetched with GET, and with a filter by POSTing it. Both are reads and
// they are retried the same way.
func (w *Wallet) List(_ context.Context, typ string, opts api.ListOptions) (api.Iterator, error) {
	if w.closed.Load() {
		return nil, fmt.Errorf("%w: %s closed", api.ErrInvalidHandle, w.scope)
	}
	if err := checkType(typ); err != nil {
		return nil, err
	}
	typeURL := w.c.cfg.typeURL(w.vw, typ)
	fetch := func(ctx context.Context, after string, limit int) (page []api.Record, next string, err error) {
		defer err2.Handle(&err, "remote list %s", typ)

		var resp response
		if len(opts.Filter) == 0 {
			q := url.Values{}
			if opts.IDPrefix != "" {
				q.Set("prefix", opts.IDPrefix)
			}
			if after != "" {
				q.Set("after", after)
			}
			q.Set("limit", strconv.Itoa(limit))
			resp = try.To1(w.call(ctx, http.MethodGet, typeURL+"?"+q.Encode(), nil, true))
		} else {
			resp = try.To1(w.call(ctx, http.MethodPost, typeURL, ListRequest{
				Prefix: opts.IDPrefix,
				Filter: opts.Filter,
				After:  after,
				Limit:  limit,
			}, true))
		}
		var lr ListResponse
		try.To(resp.decode(&lr))
		for i := range lr.Records {
			lr.Records[i].Type = typ
		}
		glog.V(5).Infof("remote list %s: %d records, next %q", typ, len(lr.Records), lr.Next)
		return lr.Records, lr.Next, nil
	}
	return api.NewPageIterator(fetch, api.DefaultPageSize), nil
}

func (w *Wallet) Count(ctx context.Context, typ string, opts api.ListOptions) (int, error) {
	it, err := w.List(ctx, typ, opts)
	if err != nil {
		return 0, err
	}
	return api.Count(ctx, it)
}

func (w *Wallet) Delete(ctx context.Context, typ, id string) (err error) {
	defer err2.Handle(&err, "remote delete")

	try.To(checkKey(typ, id))
	try.To1(w.call(ctx, http.MethodDelete, w.c.cfg.recordURL(w.vw, typ, id), nil, false))
	return nil
}

func (w *Wallet) update(ctx context.Context, typ, id string, u UpdateRequest) (err error) {
	defer err2.Handle(&err, "remote update %s", u.Op)

	try.To(checkKey(typ, id))
	try.To1(w.call(ctx, http.MethodPut, w.c.cfg.recordURL(w.vw, typ, id), u, false))
	return nil
}

func (w *Wallet) SetExpiry(ctx context.Context, typ, id string, at *time.Time) error {
	return w.update(ctx, typ, id, UpdateRequest{Op: OpExpiry, ExpiresAt: at})
}

func (w *Wallet) UpdateValue(ctx context.Context, typ, id string, value []byte) error {
	return w.update(ctx, typ, id, UpdateRequest{Op: OpValue, Value: value})
}

func (w *Wallet) AddTags(ctx context.Context, typ, id string, tags api.Tags) error {
	return w.update(ctx, typ, id, UpdateRequest{Op: OpAddTags, Tags: tags})
}

func (w *Wallet) UpdateTags(ctx context.Context, typ, id string, tags api.Tags) error {
	return w.update(ctx, typ, id, UpdateRequest{Op: OpUpdateTags, Tags: tags})
}

func (w *Wallet) DeleteTags(ctx context.Context, typ, id string, names ...string) error {
	return w.update(ctx, typ, id, UpdateRequest{Op: OpDeleteTags, Names: names})
}

// Close drops the handle. Nothing is sent to the service.
func (w *Wallet) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s already closed", api.ErrInvalidHandle, w.scope)
	}
	w.auth.invalidate(w.auth.current().Token)
	glog.V(2).Infoln("remote wallet closed:", w.scope)
	return nil
}
