/*
Package remote is the wallet backend which proxies the record operations to
a remote wallet service over REST. The service is stateless: each request
carries an auth token which the backend obtains at open and caches per
handle. A cached token older than the configured freshness time is
validated again before it's used.

Only record operations cross the wire. Creating, opening, closing and
deleting the wallet identity are client side operations.
*/
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Type is the backend type of the remote wallets.
const Type = "remote"

// Backend opens remote wallets.
type Backend struct {
	doer Doer
	now  func() time.Time
}

var _ api.Backend = (*Backend)(nil)

// newHTTPClient returns a client which doesn't follow redirects. A followed
// redirect would turn a PUT or DELETE into a GET.
func newHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Option configures the Backend.
type Option func(b *Backend)

// WithDoer sets the HTTP client of the backend.
func WithDoer(d Doer) Option {
	return func(b *Backend) { b.doer = d }
}

// WithClock sets the time source of the auth freshness and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New returns a remote backend.
func New(opts ...Option) *Backend {
	b := &Backend{doer: newHTTPClient(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Type() string {
	return Type
}

func validate(cfg api.Config, cred api.Credentials) (rc RemoteConfig, err error) {
	rc, err = NewRemoteConfig(cfg)
	if err != nil {
		return rc, err
	}
	if cred.Key == "" && cred.AuthToken == "" {
		return rc, fmt.Errorf("%w: key or auth_token needed", api.ErrInvalidCredentials)
	}
	return rc, nil
}

// Create only validates the configuration. Remote wallets are provisioned
// by the service.
func (b *Backend) Create(_ context.Context, name string, cfg api.Config, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "create remote wallet %s", name)

	try.To1(validate(cfg, cred))
	try.To(api.NewScope(name, cred.VirtualWallet).Validate())
	return nil
}

// Open authenticates to the service. With an auth_token in the credentials
// the token is validated with the ping call, otherwise a new token is
// requested with the virtual wallet ID and the key.
func (b *Backend) Open(ctx context.Context, scope api.Scope, cfg api.Config, cred api.Credentials) (w api.Wallet, err error) {
	defer err2.Handle(&err, "open remote wallet %s", scope)

	try.To(scope.Validate())
	rc := try.To1(validate(cfg, cred))
	c := newClient(scope.String(), b.doer, rc)
	rw := &Wallet{
		scope: scope,
		vw:    scope.VirtualWalletID,
		c:     c,
		now:   b.now,
	}
	rw.auth = &authCache{
		freshness: rc.FreshnessTime,
		now:       b.now,
		refresh: func(ctx context.Context) (string, error) {
			return authenticate(ctx, c, scope.VirtualWalletID, cred)
		},
	}
	try.To1(rw.auth.token(ctx))
	glog.V(1).Infof("remote wallet %s opened: %s", scope, rc.Endpoint)
	return rw, nil
}

// Delete doesn't touch the service.
func (b *Backend) Delete(_ context.Context, name string, cfg api.Config, cred api.Credentials) (err error) {
	defer err2.Handle(&err, "delete remote wallet %s", name)

	try.To1(validate(cfg, cred))
	return nil
}

func authenticate(ctx context.Context, c *client, vw string, cred api.Credentials) (tok string, err error) {
	defer err2.Handle(&err, "authenticate")

	if cred.AuthToken != "" {
		r := try.To1(c.do(ctx, http.MethodGet, c.cfg.pingURL(), cred.AuthToken, nil, true))
		try.To(r.check("ping"))
		glog.V(3).Infoln("auth token validated for", vw)
		return cred.AuthToken, nil
	}
	r := try.To1(c.do(ctx, http.MethodPost, c.cfg.authURL(), "",
		AuthRequest{Username: vw, Password: cred.Key}, false))
	try.To(r.check("auth"))
	var ar AuthResponse
	try.To(r.decode(&ar))
	if ar.Token == "" {
		return "", fmt.Errorf("%w: empty token", api.ErrAuthenticationFailed)
	}
	glog.V(3).Infoln("authenticated", vw)
	return ar.Token, nil
}
