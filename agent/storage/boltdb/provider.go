package boltdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Type is the storage type name of the bolt provider.
const Type = "bolt"

const (
	fileExt     = ".bolt"
	openTimeout = 2 * time.Second
)

// Provider keeps the wallet files in one directory.
type Provider struct {
	dir string
}

var _ api.Provider = (*Provider)(nil)

// New returns a provider for the directory. The directory is created when
// the first store is created.
func New(dir string) *Provider {
	if dir == "" {
		dir = "."
	}
	return &Provider{dir: dir}
}

func (p *Provider) Type() string {
	return Type
}

func (p *Provider) filename(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("illegal wallet name %q", name)
	}
	return filepath.Join(p.dir, name+fileExt), nil
}

func (p *Provider) Exists(_ context.Context, name string) (bool, error) {
	fn, err := p.filename(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fn)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (p *Provider) Create(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "create bolt wallet %s", name)

	if try.To1(p.Exists(ctx, name)) {
		return nil, api.ErrWalletAlreadyExists
	}
	try.To(os.MkdirAll(p.dir, 0700))
	fn := try.To1(p.filename(name))
	glog.V(2).Infoln("creating bolt wallet:", fn)
	return openStore(fn, name)
}

func (p *Provider) Open(ctx context.Context, name string) (s api.RecordStore, err error) {
	defer err2.Handle(&err, "open bolt wallet %s", name)

	if !try.To1(p.Exists(ctx, name)) {
		return nil, api.ErrWalletNotFound
	}
	return openStore(try.To1(p.filename(name)), name)
}

func (p *Provider) Remove(ctx context.Context, name string) (err error) {
	defer err2.Handle(&err, "remove bolt wallet %s", name)

	if !try.To1(p.Exists(ctx, name)) {
		return api.ErrWalletNotFound
	}
	glog.V(2).Infoln("removing bolt wallet:", name)
	return os.Remove(try.To1(p.filename(name)))
}
