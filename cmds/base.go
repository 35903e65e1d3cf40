/*
Package cmds has the implementations of the CLI commands. Each command is a
struct with Validate and Exec. The cobra layer in package cmd fills the
structs from flags and environment.
*/
package cmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/findy-network/findy-wallet/agent/registry"
	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/storage/boltdb"
	"github.com/findy-network/findy-wallet/agent/storage/redisdb"
	"github.com/findy-network/findy-wallet/agent/storage/sqldb"
	"github.com/findy-network/findy-wallet/agent/wallet/keys"
	"github.com/findy-network/findy-wallet/agent/wallet/local"
	"github.com/findy-network/findy-wallet/agent/wallet/remote"
	"github.com/findy-network/findy-wallet/agent/wallet/standard"
	"github.com/findy-network/findy-wallet/agent/wallet/virtual"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

var ErrInvalid = errors.New("invalid command, check arguments")

// Storage selects where the local wallets are stored.
type Storage struct {
	Type string
	Dir  string
	DSN  string // postgres
	Addr string // redis
}

func (s Storage) Validate() error {
	switch s.Type {
	case boltdb.Type, sqldb.TypeSQLite:
		if s.Dir == "" {
			return errors.New("storage directory cannot be empty")
		}
	case sqldb.TypePostgres:
		if s.DSN == "" {
			return errors.New("postgres DSN cannot be empty")
		}
	case redisdb.Type:
		if s.Addr == "" {
			return errors.New("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalid, s.Type)
	}
	return nil
}

// Provider returns the record store provider of the storage. Providers with
// connections implement io.Closer.
func (s Storage) Provider(ctx context.Context) (p api.Provider, err error) {
	defer err2.Handle(&err, "storage %s", s.Type)

	switch s.Type {
	case boltdb.Type:
		return boltdb.New(s.Dir), nil
	case sqldb.TypeSQLite:
		return sqldb.NewSQLite(s.Dir), nil
	case sqldb.TypePostgres:
		return try.To1(sqldb.NewPostgres(s.DSN)), nil
	case redisdb.Type:
		return try.To1(redisdb.NewRedis(ctx, s.Addr)), nil
	}
	return nil, fmt.Errorf("%w: unknown storage %q", ErrInvalid, s.Type)
}

// Cmd is the base of the commands which use one wallet.
type Cmd struct {
	Storage

	WalletName    string
	WalletKey     string
	KeyMethod     string
	VirtualWallet string
	AuthToken     string

	// WalletConfig is the wallet config as JSON. Its type selects the
	// backend.
	WalletConfig string
}

func (c Cmd) Validate() error {
	if c.WalletName == "" {
		return errors.New("wallet name cannot be empty")
	}
	cfg, err := c.Config()
	if err != nil {
		return err
	}
	if cfg.Type == remote.Type {
		if c.WalletKey == "" && c.AuthToken == "" {
			return errors.New("wallet key or auth token is needed")
		}
		return nil
	}
	if err := keys.ValidateKey(c.WalletKey, c.Credentials().KeyMethod()); err != nil {
		return err
	}
	return c.Storage.Validate()
}

func (c Cmd) Credentials() api.Credentials {
	return api.Credentials{
		Key:                 c.WalletKey,
		KeyDerivationMethod: c.KeyMethod,
		VirtualWallet:       c.VirtualWallet,
		AuthToken:           c.AuthToken,
	}
}

func (c Cmd) Config() (api.Config, error) {
	return api.ParseConfig(c.WalletConfig)
}

// Env is an open registry with the backends of the command.
type Env struct {
	Registry *registry.Registry
	Pool     *local.Pool

	closer io.Closer
}

// Close closes the wallets and the storage connections.
func (e *Env) Close() error {
	err := e.Registry.Close()
	if e.closer != nil {
		err = errors.Join(err, e.closer.Close())
	}
	return err
}

// NewEnv builds the registry of the default, virtual and remote backends.
// The local backends share the store pool. The storage isn't touched when
// the wallet is remote.
func (c Cmd) NewEnv(ctx context.Context) (e *Env, err error) {
	defer err2.Handle(&err)

	e = &Env{Registry: registry.New(remote.New())}
	cfg := try.To1(c.Config())
	if cfg.Type == remote.Type {
		return e, nil
	}
	p := try.To1(c.Provider(ctx))
	if cl, ok := p.(io.Closer); ok {
		e.closer = cl
	}
	e.Pool = local.NewPool(p)
	e.Registry.Register(standard.NewWithPool(e.Pool))
	e.Registry.Register(virtual.NewWithPool(e.Pool))
	glog.V(3).Infof("using %s storage", p.Type())
	return e, nil
}

// Open opens the wallet of the command. Closing the env closes the wallet.
func (c Cmd) Open(ctx context.Context) (e *Env, h *registry.Handle, err error) {
	defer err2.Handle(&err)

	e = try.To1(c.NewEnv(ctx))
	cfg := try.To1(c.Config())
	h, err = e.Registry.Open(ctx, cfg, c.WalletName, c.Credentials())
	if err != nil {
		_ = e.Close()
		return nil, nil, err
	}
	return e, h, nil
}

type Result interface {
	JSON() ([]byte, error)
}

type Command interface {
	Validate() error
	Exec(w io.Writer) (r Result, err error)
}

// Fprintln is fmt.Fprintln but it allows writer to be nil. Note! it throws an
// error.
func Fprintln(w io.Writer, a ...interface{}) {
	if w != nil {
		try.To1(fmt.Fprintln(w, a...))
	}
}

// Fprintf is fmt.Fprintf but it allows writer to be nil. Note! it throws an
// error.
func Fprintf(w io.Writer, format string, a ...interface{}) {
	if w != nil {
		try.To1(fmt.Fprintf(w, format, a...))
	}
}

// ParseLoggingArgs sets the glog flags from the string, e.g.
// "-logtostderr=true -v=2".
func ParseLoggingArgs(s string) {
	args := make([]string, 1, 12)
	args[0] = os.Args[0]
	args = append(args, strings.Fields(s)...)
	orgArgs := os.Args
	os.Args = args
	flag.Parse()
	os.Args = orgArgs
}
