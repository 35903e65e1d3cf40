package key

import (
	"errors"
	"io"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/wallet/keys"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// CheckCmd checks that the key is usable with the key derivation method.
type CheckCmd struct {
	Key    string
	Method string
}

func (c *CheckCmd) Validate() error {
	if c.Key == "" {
		return errors.New("key cannot be empty")
	}
	return nil
}

func (c *CheckCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "check key")

	method := api.Credentials{KeyDerivationMethod: c.Method}.KeyMethod()
	try.To(keys.ValidateKey(c.Key, method))
	cmds.Fprintln(w, "key is valid for", method)
	return r, nil
}
