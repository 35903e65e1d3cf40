package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScopeSeparator is reserved for the tenant prefix of physical record types.
// Virtual wallet IDs cannot contain it.
const ScopeSeparator = "\x1f"

// Scope identifies one logical wallet. VirtualWalletID is the WalletName for
// the root wallet.
type Scope struct {
	WalletName      string `json:"wallet_name"`
	VirtualWalletID string `json:"virtual_wallet_id"`
}

// NewScope resolves the scope of the wallet name and the optional virtual
// wallet.
func NewScope(name, virtualWallet string) Scope {
	if virtualWallet == "" {
		virtualWallet = name
	}
	return Scope{WalletName: name, VirtualWalletID: virtualWallet}
}

// IsRoot tells if the scope is the root wallet of its wallet name.
func (s Scope) IsRoot() bool {
	return s.VirtualWalletID == s.WalletName
}

// Validate checks that the scope can be used as a tenant key.
func (s Scope) Validate() error {
	if s.WalletName == "" {
		return fmt.Errorf("%w: wallet name cannot be empty", ErrInvalidCredentials)
	}
	if strings.Contains(s.VirtualWalletID, ScopeSeparator) {
		return fmt.Errorf("%w: illegal character in virtual wallet id",
			ErrInvalidCredentials)
	}
	return nil
}

func (s Scope) String() string {
	if s.IsRoot() {
		return s.WalletName
	}
	return s.WalletName + "/" + s.VirtualWalletID
}

// Key derivation methods of the wallet key.
const (
	KeyDerivationRaw        = "RAW"
	KeyDerivationArgon2iMod = "ARGON2I_MOD"
	KeyDerivationArgon2iInt = "ARGON2I_INT"
)

// Credentials are given when a wallet is opened and they stay fixed for the
// life of the handle.
type Credentials struct {
	Key                 string `json:"key"`
	KeyDerivationMethod string `json:"key_derivation_method,omitempty"`
	VirtualWallet       string `json:"virtual_wallet,omitempty"`
	AuthToken           string `json:"auth_token,omitempty"`
}

// KeyMethod returns the key derivation method, ARGON2I_MOD by default.
func (c Credentials) KeyMethod() string {
	if c.KeyDerivationMethod == "" {
		return KeyDerivationArgon2iMod
	}
	return c.KeyDerivationMethod
}

// String doesn't print secrets.
func (c Credentials) String() string {
	return fmt.Sprintf("{method: %s, virtual_wallet: %q, token: %v}",
		c.KeyMethod(), c.VirtualWallet, c.AuthToken != "")
}

// ParseCredentials reads credentials from JSON.
func ParseCredentials(s string) (c Credentials, err error) {
	if s == "" {
		return c, nil
	}
	if err = json.Unmarshal([]byte(s), &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return c, nil
}

// Config is the wallet configuration. Fields are shared by the backends and
// each backend uses the ones it needs.
type Config struct {
	// Type is the backend type: default, virtual or remote.
	Type string `json:"type,omitempty"`

	// FreshnessTime is milliseconds. Only the remote backend uses it.
	FreshnessTime *int `json:"freshness_time,omitempty"`

	Endpoint  string  `json:"endpoint,omitempty"`
	Ping      string  `json:"ping,omitempty"`
	Auth      string  `json:"auth,omitempty"`
	Keyval    string  `json:"keyval,omitempty"`
	Timeout   int     `json:"timeout,omitempty"` // milliseconds
	RateLimit float64 `json:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty"`

	// PoolHint is passed through from the caller. The storage doesn't use
	// it.
	PoolHint string `json:"-"`
}

// ParseConfig reads config from JSON.
func ParseConfig(s string) (c Config, err error) {
	if s == "" {
		return c, nil
	}
	if err = json.Unmarshal([]byte(s), &c); err != nil {
		return c, fmt.Errorf("wallet config: %w", err)
	}
	return c, nil
}

// Freshness returns the freshness time or def if not set.
func (c Config) Freshness(def time.Duration) time.Duration {
	if c.FreshnessTime == nil {
		return def
	}
	return time.Duration(*c.FreshnessTime) * time.Millisecond
}

// Backend is one wallet implementation, e.g. default, virtual or remote. A
// backend provisions wallets and opens connections to them.
type Backend interface {
	// Type returns the name the backend is selected by.
	Type() string

	Create(ctx context.Context, name string, cfg Config, cred Credentials) error
	Open(ctx context.Context, scope Scope, cfg Config, cred Credentials) (Wallet, error)
	Delete(ctx context.Context, name string, cfg Config, cred Credentials) error
}

// Wallet is an open connection to one scope. Implementations must be safe
// for concurrent use.
type Wallet interface {
	Scope() Scope

	Set(ctx context.Context, typ, id string, value []byte, tags Tags) error
	// Put upserts the whole record, the expiry included, in one write.
	Put(ctx context.Context, r Record) error
	Add(ctx context.Context, r Record) error
	Get(ctx context.Context, typ, id string) (Record, error)
	GetNotExpired(ctx context.Context, typ, id string) (Record, error)
	List(ctx context.Context, typ string, opts ListOptions) (Iterator, error)
	Count(ctx context.Context, typ string, opts ListOptions) (int, error)
	Delete(ctx context.Context, typ, id string) error

	SetExpiry(ctx context.Context, typ, id string, at *time.Time) error
	UpdateValue(ctx context.Context, typ, id string, value []byte) error
	AddTags(ctx context.Context, typ, id string, tags Tags) error
	UpdateTags(ctx context.Context, typ, id string, tags Tags) error
	DeleteTags(ctx context.Context, typ, id string, names ...string) error

	Close() error
}
