package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/findy-network/findy-wallet/agent/registry"
	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/storage/boltdb"
	"github.com/findy-network/findy-wallet/agent/wallet/remote"
	"github.com/findy-network/findy-wallet/agent/wallet/virtual"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawKey = "6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp"

var (
	testDir  string
	svc      *Service
	srv      *httptest.Server
	endpoint string
	clients  *registry.Registry
)

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	tearDown()
	os.Exit(code)
}

func setUp() {
	try.To(flag.Set("logtostderr", "true"))
	try.To(flag.Set("stderrthreshold", "WARNING"))
	try.To(flag.Set("v", "3"))
	flag.Parse()

	ctx := context.Background()
	testDir = try.To1(os.MkdirTemp("", "server-test"))
	reg := registry.New(virtual.New(boltdb.New(testDir)))
	svc = New(reg, Config{
		WalletName: "service",
		Credentials: api.Credentials{Key: rawKey,
			KeyDerivationMethod: api.KeyDerivationRaw},
	})
	try.To(svc.Setup(ctx))
	try.To(svc.AddTenant(ctx, "subject1", "pw1"))
	try.To(svc.AddTenant(ctx, "subject2", "pw2"))
	srv, endpoint = StartTestHTTPServer(svc)

	clients = registry.New(remote.New())
}

func tearDown() {
	_ = clients.Close()
	srv.Close()
	_ = svc.Close()
	_ = os.RemoveAll(testDir)
}

func remoteCfg() api.Config {
	fresh := 60_000
	return api.Config{Type: remote.Type, Endpoint: endpoint, FreshnessTime: &fresh}
}

func open(t *testing.T, tenant, password string) *registry.Handle {
	t.Helper()
	h, err := clients.Open(context.Background(), remoteCfg(), "client",
		api.Credentials{Key: password, VirtualWallet: tenant})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func list(t *testing.T, h *registry.Handle, typ string, opts api.ListOptions) []api.Record {
	t.Helper()
	ctx := context.Background()
	it, err := h.List(ctx, typ, opts)
	require.NoError(t, err)
	rs, err := api.Collect(ctx, it)
	require.NoError(t, err)
	return rs
}

func TestSubjectScenario(t *testing.T) {
	ctx := context.Background()
	h1 := open(t, "subject1", "pw1")
	require.NoError(t, h1.Set(ctx, "claim", "c1", []byte(`{"attr":"x"}`),
		api.Tags{"status": "active"}))

	h2 := open(t, "subject2", "pw2")
	assert.Empty(t, list(t, h2, "claim", api.ListOptions{}))
	_, err := h2.Get(ctx, "claim", "c1")
	assert.ErrorIs(t, err, api.ErrItemNotFound)

	rs := list(t, h1, "claim", api.ListOptions{Filter: api.Filter{api.Eq("status", "active")}})
	require.Len(t, rs, 1)
	assert.Equal(t, "c1", rs[0].ID)
	assert.Equal(t, []byte(`{"attr":"x"}`), rs[0].Value)

	require.NoError(t, h1.Delete(ctx, "claim", "c1"))
}

func TestRecordOps(t *testing.T) {
	ctx := context.Background()
	h := open(t, "subject1", "pw1")
	id := "ops/1 with space"

	require.NoError(t, h.Add(ctx, api.Record{Type: "cred", ID: id, Value: []byte("v1"),
		Tags: api.Tags{"a": "1", "b": "2"}}))
	assert.ErrorIs(t, h.Add(ctx, api.Record{Type: "cred", ID: id}), api.ErrItemAlreadyExists)

	require.NoError(t, h.UpdateValue(ctx, "cred", id, []byte("v2")))
	require.NoError(t, h.AddTags(ctx, "cred", id, api.Tags{"c": "3"}))
	require.NoError(t, h.DeleteTags(ctx, "cred", id, "a"))
	r, err := h.Get(ctx, "cred", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), r.Value)
	assert.Equal(t, api.Tags{"b": "2", "c": "3"}, r.Tags)

	require.NoError(t, h.UpdateTags(ctx, "cred", id, api.Tags{"z": "9"}))
	past := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, h.SetExpiry(ctx, "cred", id, &past))

	r, err = h.Get(ctx, "cred", id)
	require.NoError(t, err)
	assert.Equal(t, api.Tags{"z": "9"}, r.Tags)
	_, err = h.GetNotExpired(ctx, "cred", id)
	assert.ErrorIs(t, err, api.ErrItemExpired)

	require.NoError(t, h.Delete(ctx, "cred", id))
	assert.ErrorIs(t, h.Delete(ctx, "cred", id), api.ErrItemNotFound)
	assert.ErrorIs(t, h.UpdateValue(ctx, "cred", id, nil), api.ErrItemNotFound)

	_, err = h.Get(ctx, "cred", "")
	assert.Error(t, err)
	assert.Error(t, h.Delete(ctx, "cred", ""))
	assert.Error(t, h.UpdateValue(ctx, "cred", "", nil))
	assert.Error(t, h.Set(ctx, "", "x", nil, nil))

	for _, dotID := range []string{".", ".."} {
		_, err = h.Get(ctx, "cred", dotID)
		assert.ErrorIs(t, err, api.ErrItemNotFound, dotID)
		assert.ErrorIs(t, h.Delete(ctx, "cred", dotID), api.ErrItemNotFound, dotID)
		assert.ErrorIs(t, h.UpdateValue(ctx, "cred", dotID, nil), api.ErrItemNotFound, dotID)

		require.NoError(t, h.Set(ctx, "cred", dotID, []byte("secret-"+dotID), nil))
		r, err = h.Get(ctx, "cred", dotID)
		require.NoError(t, err, dotID)
		assert.Equal(t, dotID, r.ID)
		assert.Equal(t, []byte("secret-"+dotID), r.Value)

		require.NoError(t, h.UpdateValue(ctx, "cred", dotID, []byte("v2")))
		r, err = h.Get(ctx, "cred", dotID)
		require.NoError(t, err, dotID)
		assert.Equal(t, []byte("v2"), r.Value)

		require.NoError(t, h.Delete(ctx, "cred", dotID))
		_, err = h.Get(ctx, "cred", dotID)
		assert.ErrorIs(t, err, api.ErrItemNotFound, dotID)
	}
}

func TestPutWithExpiry(t *testing.T) {
	ctx := context.Background()
	h := open(t, "subject2", "pw2")

	past := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, h.Put(ctx, api.Record{Type: "offer", ID: "o1", Value: []byte("v"),
		ExpiresAt: &past}))
	r, err := h.Get(ctx, "offer", "o1")
	require.NoError(t, err)
	require.NotNil(t, r.ExpiresAt)
	assert.True(t, past.Equal(*r.ExpiresAt))
	_, err = h.GetNotExpired(ctx, "offer", "o1")
	assert.ErrorIs(t, err, api.ErrItemExpired)

	require.NoError(t, h.Put(ctx, api.Record{Type: "offer", ID: "o1", Value: []byte("v")}))
	_, err = h.GetNotExpired(ctx, "offer", "o1")
	assert.NoError(t, err)
	require.NoError(t, h.Delete(ctx, "offer", "o1"))
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	h := open(t, "subject2", "pw2")

	for i := 0; i < 230; i++ {
		tags := api.Tags{"n": "x"}
		if i%10 == 0 {
			tags["tenth"] = "1"
		}
		require.NoError(t, h.Set(ctx, "page", fmt.Sprintf("r%03d", i), nil, tags))
	}
	rs := list(t, h, "page", api.ListOptions{})
	require.Len(t, rs, 230)
	for i := 1; i < len(rs); i++ {
		assert.Less(t, rs[i-1].ID, rs[i].ID)
	}

	n, err := h.Count(ctx, "page", api.ListOptions{Filter: api.Filter{api.Has("tenth")}})
	require.NoError(t, err)
	assert.Equal(t, 23, n)

	n, err = h.Count(ctx, "page", api.ListOptions{IDPrefix: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestAuth(t *testing.T) {
	ctx := context.Background()

	_, err := clients.Open(ctx, remoteCfg(), "client",
		api.Credentials{Key: "wrong", VirtualWallet: "subject1"})
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)

	_, err = clients.Open(ctx, remoteCfg(), "client",
		api.Credentials{Key: "pw1", VirtualWallet: "nobody"})
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)

	tok, err := svc.IssueToken(ctx, "subject2")
	require.NoError(t, err)
	h, err := clients.Open(ctx, remoteCfg(), "token-client",
		api.Credentials{AuthToken: tok, VirtualWallet: "subject2"})
	require.NoError(t, err)
	require.NoError(t, h.Set(ctx, "t", "1", nil, nil))
	require.NoError(t, h.Close())

	_, err = clients.Open(ctx, remoteCfg(), "token-client",
		api.Credentials{AuthToken: "bogus", VirtualWallet: "subject2"})
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)

	_, err = svc.IssueToken(ctx, "nobody")
	assert.ErrorIs(t, err, api.ErrItemNotFound)
}

func TestForbidden(t *testing.T) {
	ctx := context.Background()
	tok, err := svc.IssueToken(ctx, "subject1")
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"subject2/keyval/claim/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err = http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"subject1/keyval/claim/", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

func TestTenants(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, svc.AddTenant(ctx, "subject3", "pw3"))
	tok, err := svc.Authenticate(ctx, "subject3", "pw3")
	require.NoError(t, err)
	_, ok := svc.tokens.tenant(tok)
	assert.True(t, ok)

	names, err := svc.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"subject1", "subject2", "subject3"}, names)

	require.NoError(t, svc.RemoveTenant(ctx, "subject3"))
	_, ok = svc.tokens.tenant(tok)
	assert.False(t, ok)
	_, err = svc.Authenticate(ctx, "subject3", "pw3")
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)

	assert.ErrorIs(t, svc.AddTenant(ctx, "service", "x"), api.ErrInvalidCredentials)
	assert.ErrorIs(t, svc.AddTenant(ctx, "a"+api.ScopeSeparator, "x"), api.ErrInvalidCredentials)
}

func TestTokenTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := newTokens(time.Hour, func() time.Time { return now })
	tok := tk.issue("a")

	tenant, ok := tk.tenant(tok)
	assert.True(t, ok)
	assert.Equal(t, "a", tenant)

	now = now.Add(time.Hour)
	_, ok = tk.tenant(tok)
	assert.False(t, ok)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest("x"), http.StatusBadRequest},
		{api.ErrInvalidFilterAttribute, http.StatusBadRequest},
		{api.ErrAuthenticationFailed, http.StatusUnauthorized},
		{api.ErrItemNotFound, http.StatusNotFound},
		{api.ErrItemAlreadyExists, http.StatusConflict},
		{api.ErrRemoteUnavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
