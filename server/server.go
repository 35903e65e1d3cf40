/*
Package server is the reference remote wallet service. It serves the records
of the virtual wallets of one physical wallet over REST, and it's what the
remote wallet backend talks to.

Tenants are registered with AddTenant. A tenant gets a token by POSTing its
name and password to the auth path, and every record call carries the token
in the Authorization header:

	Authorization: Token <token>

Errors are returned as text/plain messages.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/findy-network/findy-wallet/agent/registry"
	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/findy-network/findy-wallet/agent/wallet/keys"
	"github.com/findy-network/findy-wallet/agent/wallet/remote"
	"github.com/findy-network/findy-wallet/agent/wallet/virtual"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// tenantType is the record type of the tenant key checks. They are stored in
// the root scope of the physical wallet.
const tenantType = "tenant"

const (
	DefaultBasePath = "/api/v1/"
	DefaultTokenTTL = 24 * time.Hour
)

// Config of the service.
type Config struct {
	// WalletName is the physical wallet of the tenants.
	WalletName  string
	Credentials api.Credentials

	BasePath string
	TokenTTL time.Duration
}

// Service serves the virtual wallets. The registry must have the virtual
// backend.
type Service struct {
	cfg    Config
	reg    *registry.Registry
	tokens *tokens
	now    func() time.Time

	l      sync.Mutex
	opened map[string]*registry.Handle
}

// New returns a service of the physical wallet of the config.
func New(reg *registry.Registry, cfg Config) *Service {
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	s := &Service{
		cfg:    cfg,
		reg:    reg,
		now:    time.Now,
		opened: make(map[string]*registry.Handle),
	}
	s.tokens = newTokens(cfg.TokenTTL, func() time.Time { return s.now() })
	return s
}

var walletCfg = api.Config{Type: virtual.Type}

// Setup creates the physical wallet if it doesn't exist.
func (s *Service) Setup(ctx context.Context) (err error) {
	defer err2.Handle(&err, "setup service")

	err = s.reg.Create(ctx, walletCfg, s.cfg.WalletName, s.cfg.Credentials)
	if errors.Is(err, api.ErrWalletAlreadyExists) {
		glog.V(1).Infoln("using existing wallet", s.cfg.WalletName)
		return nil
	}
	return err
}

func (s *Service) validTenant(name string) error {
	if name == "" || name == s.cfg.WalletName ||
		strings.Contains(name, api.ScopeSeparator) {
		return fmt.Errorf("%w: illegal tenant name %q", api.ErrInvalidCredentials, name)
	}
	return nil
}

// handle returns the open handle of the tenant, or of the root scope with
// the wallet name.
func (s *Service) handle(ctx context.Context, tenant string) (h *registry.Handle, err error) {
	s.l.Lock()
	defer s.l.Unlock()

	if h, ok := s.opened[tenant]; ok {
		return h, nil
	}
	cred := s.cfg.Credentials
	cred.VirtualWallet = tenant
	h, err = s.reg.Open(ctx, walletCfg, s.cfg.WalletName, cred)
	if err != nil {
		return nil, err
	}
	s.opened[tenant] = h
	return h, nil
}

// AddTenant registers the tenant or changes its password. Old tokens of the
// tenant are revoked.
func (s *Service) AddTenant(ctx context.Context, tenant, password string) (err error) {
	defer err2.Handle(&err, "add tenant %s", tenant)

	try.To(s.validTenant(tenant))
	c := try.To1(keys.NewCheck(tenantCred(password)))
	root := try.To1(s.handle(ctx, s.cfg.WalletName))
	try.To(root.Set(ctx, tenantType, tenant, c.Bytes(), nil))
	if n := s.tokens.revoke(tenant); n > 0 {
		glog.V(2).Infof("%d tokens of %s revoked", n, tenant)
	}
	return nil
}

// RemoveTenant removes the tenant registration. The records of the tenant
// stay in the wallet.
func (s *Service) RemoveTenant(ctx context.Context, tenant string) (err error) {
	defer err2.Handle(&err, "remove tenant %s", tenant)

	root := try.To1(s.handle(ctx, s.cfg.WalletName))
	try.To(root.Delete(ctx, tenantType, tenant))
	s.tokens.revoke(tenant)
	return nil
}

// Tenants returns the registered tenants in order.
func (s *Service) Tenants(ctx context.Context) (names []string, err error) {
	defer err2.Handle(&err, "tenants")

	root := try.To1(s.handle(ctx, s.cfg.WalletName))
	it := try.To1(root.List(ctx, tenantType, api.ListOptions{}))
	for _, r := range try.To1(api.Collect(ctx, it)) {
		names = append(names, r.ID)
	}
	return names, nil
}

func tenantCred(password string) api.Credentials {
	return api.Credentials{Key: password, KeyDerivationMethod: api.KeyDerivationArgon2iInt}
}

// Authenticate checks the password of the tenant and issues a token.
func (s *Service) Authenticate(ctx context.Context, tenant, password string) (tok string, err error) {
	defer err2.Handle(&err, "authenticate %s", tenant)

	if s.validTenant(tenant) != nil {
		return "", api.ErrAuthenticationFailed
	}
	root := try.To1(s.handle(ctx, s.cfg.WalletName))
	r, err := root.Get(ctx, tenantType, tenant)
	if errors.Is(err, api.ErrItemNotFound) {
		return "", api.ErrAuthenticationFailed
	}
	try.To(err)
	c := try.To1(keys.ParseCheck(r.Value))
	if err := c.Verify(tenantCred(password)); err != nil {
		glog.V(3).Infoln("tenant password check:", err)
		return "", api.ErrAuthenticationFailed
	}
	return s.tokens.issue(tenant), nil
}

// IssueToken returns a token for the registered tenant without a password.
// It's for the admin use.
func (s *Service) IssueToken(ctx context.Context, tenant string) (tok string, err error) {
	defer err2.Handle(&err, "issue token %s", tenant)

	root := try.To1(s.handle(ctx, s.cfg.WalletName))
	try.To1(root.Get(ctx, tenantType, tenant))
	return s.tokens.issue(tenant), nil
}

// Close closes the wallet handles of the service.
func (s *Service) Close() error {
	s.l.Lock()
	defer s.l.Unlock()

	errs := make([]error, 0, len(s.opened))
	for name, h := range s.opened {
		errs = append(errs, h.Close())
		delete(s.opened, name)
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	b := s.cfg.BasePath
	kv := b + "{vw}/" + remote.DefaultKeyval

	mux.HandleFunc("POST "+b+remote.DefaultAuth+"{$}", s.auth)
	mux.HandleFunc("GET "+b+remote.DefaultPing+"{$}", s.ping)
	mux.HandleFunc("POST "+kv+"{$}", s.tenant(s.set))
	mux.HandleFunc("GET "+kv+"{type}/{$}", s.tenant(s.list))
	mux.HandleFunc("POST "+kv+"{type}/{$}", s.tenant(s.list))
	mux.HandleFunc("GET "+kv+"{type}/{id}/{$}", s.tenant(s.get))
	mux.HandleFunc("PUT "+kv+"{type}/{id}/{$}", s.tenant(s.update))
	mux.HandleFunc("DELETE "+kv+"{type}/{id}/{$}", s.tenant(s.remove))

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		if glog.V(5) {
			glog.Info("/version requested")
		}
		_, _ = w.Write([]byte(utils.Version))
	})
	return mux
}

// ListenAndServe serves on the address until the context is done.
func (s *Service) ListenAndServe(ctx context.Context, addr string) (err error) {
	defer err2.Handle(&err, "serve %s", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- server.Shutdown(sctx)
	}()

	if glog.V(1) {
		glog.Infof("wallet service of %s on %s%s", s.cfg.WalletName, addr, s.cfg.BasePath)
	}
	err = server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
