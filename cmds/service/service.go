// Package service has the commands of the remote wallet service.
package service

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/findy-network/findy-wallet/agent/expiry"
	"github.com/findy-network/findy-wallet/agent/registry"
	"github.com/findy-network/findy-wallet/agent/wallet/local"
	"github.com/findy-network/findy-wallet/agent/wallet/virtual"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/findy-network/findy-wallet/server"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Cmd is the base of the service commands. The service wallet is always
// virtual, so the wallet config isn't used.
type Cmd struct {
	cmds.Cmd
	BasePath string
	TokenTTL time.Duration
}

func (c Cmd) Validate() error {
	c.WalletConfig = ""
	return c.Cmd.Validate()
}

type env struct {
	svc    *server.Service
	reg    *registry.Registry
	pool   *local.Pool
	closer io.Closer
}

func (e *env) Close() error {
	err := errors.Join(e.svc.Close(), e.reg.Close())
	if e.closer != nil {
		err = errors.Join(err, e.closer.Close())
	}
	return err
}

func (c Cmd) open(ctx context.Context) (e *env, err error) {
	defer err2.Handle(&err, "open service")

	p := try.To1(c.Provider(ctx))
	e = &env{pool: local.NewPool(p)}
	if cl, ok := p.(io.Closer); ok {
		e.closer = cl
	}
	e.reg = registry.New(virtual.NewWithPool(e.pool))
	cred := c.Credentials()
	cred.VirtualWallet = ""
	e.svc = server.New(e.reg, server.Config{
		WalletName:  c.WalletName,
		Credentials: cred,
		BasePath:    c.BasePath,
		TokenTTL:    c.TokenTTL,
	})
	if err := e.svc.Setup(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// ServeCmd runs the service until interrupted.
type ServeCmd struct {
	Cmd
	Addr       string
	SweepEvery time.Duration
}

func (c ServeCmd) Validate() error {
	if err := c.Cmd.Validate(); err != nil {
		return err
	}
	if c.Addr == "" {
		return errors.New("listen address cannot be empty")
	}
	return nil
}

func (c ServeCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := try.To1(c.open(ctx))
	defer e.Close()

	if c.SweepEvery > 0 {
		s := expiry.New(e.pool)
		try.To(s.Start(c.SweepEvery))
		defer s.Stop()
	}
	cmds.Fprintln(w, "serving wallet", c.WalletName, "on", c.Addr)
	try.To(e.svc.ListenAndServe(ctx, c.Addr))
	return nil, nil
}

// TenantCmd adds, removes or lists the tenants of the service wallet.
type TenantCmd struct {
	Cmd
	Tenant   string
	Password string
	Remove   bool
}

func (c TenantCmd) Validate() error {
	if err := c.Cmd.Validate(); err != nil {
		return err
	}
	if c.Tenant == "" && (c.Remove || c.Password != "") {
		return errors.New("tenant name cannot be empty")
	}
	if c.Tenant != "" && !c.Remove && c.Password == "" {
		return errors.New("tenant password cannot be empty")
	}
	return nil
}

func (c TenantCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	ctx := context.Background()
	e := try.To1(c.open(ctx))
	defer e.Close()

	switch {
	case c.Tenant == "":
		for _, name := range try.To1(e.svc.Tenants(ctx)) {
			cmds.Fprintln(w, name)
		}
	case c.Remove:
		try.To(e.svc.RemoveTenant(ctx, c.Tenant))
		cmds.Fprintln(w, "tenant removed:", c.Tenant)
	case c.Password != "":
		try.To(e.svc.AddTenant(ctx, c.Tenant, c.Password))
		cmds.Fprintln(w, "tenant added:", c.Tenant)
	}
	return nil, nil
}
