/*
Package keys verifies wallet credentials. A wallet key is never stored. At
creation a key check is sealed with the key derived from the credentials, and
the check must open with the same credentials later.
*/
package keys

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/findy-network/findy-common-go/crypto"
	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the length of the derived key in bytes.
	KeyLength = 32

	saltLength = 16
)

// argon2i parameters per derivation method, memory in KiB.
var params = map[string]struct {
	time   uint32
	memory uint32
}{
	api.KeyDerivationArgon2iMod: {time: 3, memory: 64 * 1024},
	api.KeyDerivationArgon2iInt: {time: 2, memory: 32 * 1024},
}

var checkToken = []byte("findy-wallet key check v1")

// Check is the persisted proof that a key was used to create a wallet.
type Check struct {
	Method string `json:"method"`
	Salt   []byte `json:"salt,omitempty"`
	Sealed []byte `json:"sealed"`
}

// NewCheck derives the key from the credentials and seals a new check with
// it.
func NewCheck(cred api.Credentials) (c Check, err error) {
	defer err2.Handle(&err, "new key check")

	c.Method = cred.KeyMethod()
	if c.Method != api.KeyDerivationRaw {
		c.Salt = make([]byte, saltLength)
		try.To1(rand.Read(c.Salt))
	}
	k := try.To1(Derive(cred, c.Salt))
	c.Sealed = crypto.NewCipher(k).TryEncrypt(checkToken)
	return c, nil
}

// Verify returns api.ErrInvalidCredentials if the credentials don't open the
// check.
func (c Check) Verify(cred api.Credentials) (err error) {
	if cred.KeyMethod() != c.Method {
		return fmt.Errorf("%w: key derivation method mismatch",
			api.ErrInvalidCredentials)
	}
	k, err := Derive(cred, c.Salt)
	if err != nil {
		return err
	}
	plain, err := open(crypto.NewCipher(k), c.Sealed)
	if err != nil || subtle.ConstantTimeCompare(plain, checkToken) != 1 {
		glog.V(3).Infoln("key check failed:", err)
		return fmt.Errorf("%w: wrong key", api.ErrInvalidCredentials)
	}
	return nil
}

func open(c *crypto.Cipher, data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decrypt: %v", r)
		}
	}()
	return c.TryDecrypt(data), nil
}

// Bytes returns the check as JSON.
func (c Check) Bytes() []byte {
	d, _ := json.Marshal(c)
	return d
}

// ParseCheck reads a check written by Bytes.
func ParseCheck(d []byte) (c Check, err error) {
	if len(bytes.TrimSpace(d)) == 0 {
		return c, fmt.Errorf("key check missing")
	}
	err = json.Unmarshal(d, &c)
	return c, err
}

// Derive returns the 32 byte key of the credentials. RAW keys are base58
// decoded as is, other methods derive the key with argon2i and the salt.
func Derive(cred api.Credentials, salt []byte) ([]byte, error) {
	if cred.Key == "" {
		return nil, fmt.Errorf("%w: key cannot be empty", api.ErrInvalidCredentials)
	}
	method := cred.KeyMethod()
	if method == api.KeyDerivationRaw {
		k, err := base58.Decode(cred.Key)
		if err != nil || len(k) != KeyLength {
			return nil, fmt.Errorf("%w: raw key must be base58 of %d bytes",
				api.ErrInvalidCredentials, KeyLength)
		}
		return k, nil
	}
	p, ok := params[method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key derivation method %s",
			api.ErrInvalidCredentials, method)
	}
	return argon2.Key([]byte(cred.Key), salt, p.time, p.memory, 1, KeyLength), nil
}

// GenerateKey returns a new random RAW wallet key. It panics if the random
// source fails.
func GenerateKey() string {
	k := make([]byte, KeyLength)
	try.To1(rand.Read(k))
	return base58.Encode(k)
}

// ValidateKey checks the format of the key without deriving it.
func ValidateKey(k, method string) error {
	if k == "" {
		return fmt.Errorf("wallet key cannot be empty")
	}
	if method != api.KeyDerivationRaw {
		return nil
	}
	if d, err := base58.Decode(k); err != nil || len(d) != KeyLength {
		return fmt.Errorf("wallet key is not valid")
	}
	return nil
}
