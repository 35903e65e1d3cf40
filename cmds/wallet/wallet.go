// Package wallet has the wallet lifecycle commands.
package wallet

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/findy-network/findy-wallet/agent/expiry"
	"github.com/findy-network/findy-wallet/agent/wallet/virtual"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

type CreateCmd struct {
	cmds.Cmd
}

func (c CreateCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	ctx := context.Background()
	e := try.To1(c.NewEnv(ctx))
	defer e.Close()

	try.To(e.Registry.Create(ctx, try.To1(c.Config()), c.WalletName, c.Credentials()))
	cmds.Fprintln(w, "wallet created:", c.WalletName)
	return nil, nil
}

type DeleteCmd struct {
	cmds.Cmd
}

func (c DeleteCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	ctx := context.Background()
	e := try.To1(c.NewEnv(ctx))
	defer e.Close()

	try.To(e.Registry.Delete(ctx, try.To1(c.Config()), c.WalletName, c.Credentials()))
	cmds.Fprintln(w, "wallet deleted:", c.WalletName)
	return nil, nil
}

// TenantsCmd lists the virtual wallets which have records in the wallet.
type TenantsCmd struct {
	cmds.Cmd
}

func (c TenantsCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	ctx := context.Background()
	e := try.To1(c.NewEnv(ctx))
	defer e.Close()

	b := try.To1(e.Registry.Backend(virtual.Type)).(*virtual.Backend)
	for _, id := range try.To1(b.Tenants(ctx, c.WalletName, c.Credentials())) {
		cmds.Fprintln(w, id)
	}
	return nil, nil
}

// SweepCmd removes the expired records of the wallet. With Every it keeps
// sweeping until interrupted.
type SweepCmd struct {
	cmds.Cmd
	Every time.Duration
}

func (c SweepCmd) Validate() error {
	if err := c.Cmd.Validate(); err != nil {
		return err
	}
	if c.Every < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	return nil
}

func (c SweepCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	ctx := context.Background()
	e, h := try.To2(c.Open(ctx))
	defer e.Close()
	if e.Pool == nil {
		return nil, errors.New("remote wallets are swept by their service")
	}

	s := expiry.New(e.Pool)
	if c.Every == 0 {
		n := try.To1(s.Sweep(ctx))
		cmds.Fprintf(w, "%d expired records removed from %s\n", n, h.Scope())
		return nil, nil
	}
	try.To(s.Start(c.Every))
	defer s.Stop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	cmds.Fprintf(w, "%d expired records removed from %s\n", s.Removed(), h.Scope())
	return nil, nil
}
