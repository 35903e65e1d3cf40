// Package key has the wallet key command.
package key

import (
	"errors"
	"io"

	"github.com/findy-network/findy-wallet/agent/wallet/keys"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/lainio/err2"
	"github.com/mr-tron/base58"
)

// CreateCmd prints a new RAW wallet key. A key created from a seed is always
// the same.
type CreateCmd struct {
	Seed string
}

func (c *CreateCmd) Validate() error {
	if c.Seed != "" && len(c.Seed) != keys.KeyLength {
		return errors.New("seed must be empty or length of 32")
	}
	return nil
}

func (c *CreateCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	walletKey := keys.GenerateKey()
	if c.Seed != "" {
		walletKey = base58.Encode([]byte(c.Seed))
	}
	cmds.Fprintln(w, walletKey)
	return r, nil
}
