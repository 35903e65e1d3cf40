package virtual

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/storage/boltdb"
	"github.com/findy-network/findy-wallet/agent/storage/storetest"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawKey = "6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp"

var (
	testDir string
	cfg     = api.Config{Type: Type}
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

	testDir = try.To1(os.MkdirTemp("", "virtual-test"))
}

func tearDown() {
	_ = os.RemoveAll(testDir)
}

func credFor(vw string) api.Credentials {
	return api.Credentials{Key: rawKey, KeyDerivationMethod: api.KeyDerivationRaw,
		VirtualWallet: vw}
}

func newStore(t *testing.T) (*Backend, string) {
	t.Helper()
	b := New(boltdb.New(testDir))
	name := storetest.NewName()
	require.NoError(t, b.Create(context.Background(), name, cfg, credFor("")))
	return b, name
}

func open(t *testing.T, b *Backend, name, vw string) api.Wallet {
	t.Helper()
	w, err := b.Open(context.Background(), api.NewScope(name, vw), cfg, credFor(vw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func ids(t *testing.T, w api.Wallet, typ string, opts api.ListOptions) (ids []string) {
	t.Helper()
	ctx := context.Background()
	it, err := w.List(ctx, typ, opts)
	require.NoError(t, err)
	rs, err := api.Collect(ctx, it)
	require.NoError(t, err)
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestSubjectScenario(t *testing.T) {
	ctx := context.Background()
	b, name := newStore(t)

	subject1 := open(t, b, name, "subject1")
	require.NoError(t, subject1.Set(ctx, "claim", "c1", []byte(`{"attr":"x"}`),
		api.Tags{"status": "active"}))

	subject2 := open(t, b, name, "subject2")
	assert.Empty(t, ids(t, subject2, "claim", api.ListOptions{}))

	got := ids(t, subject1, "claim", api.ListOptions{
		Filter: api.Filter{api.Eq("status", "active")}})
	assert.Equal(t, []string{"c1"}, got)
}

func TestIsolation(t *testing.T) {
	ctx := context.Background()
	b, name := newStore(t)

	root := open(t, b, name, "")
	t1 := open(t, b, name, "t1")
	t2 := open(t, b, name, "t2")
	wallets := map[string]api.Wallet{name: root, "t1": t1, "t2": t2}

	for vw, w := range wallets {
		require.NoError(t, w.Set(ctx, "claim", "shared-id", []byte(vw),
			api.Tags{"owner": vw}))
		require.NoError(t, w.Set(ctx, "claim", "only-"+vw, []byte(vw), nil))
	}
	for vw, w := range wallets {
		r, err := w.Get(ctx, "claim", "shared-id")
		require.NoError(t, err)
		assert.Equal(t, []byte(vw), r.Value)

		got := ids(t, w, "claim", api.ListOptions{})
		assert.Equal(t, []string{"only-" + vw, "shared-id"}, got)

		// filters on another tenant's tag values find nothing
		for other := range wallets {
			if other == vw {
				continue
			}
			assert.Empty(t, ids(t, w, "claim", api.ListOptions{
				Filter: api.Filter{api.Eq("owner", other)}}))
			_, err := w.Get(ctx, "claim", "only-"+other)
			assert.ErrorIs(t, err, api.ErrItemNotFound)
		}
	}

	require.NoError(t, t1.Delete(ctx, "claim", "shared-id"))
	_, err := t2.Get(ctx, "claim", "shared-id")
	assert.NoError(t, err)
}

func TestTenants(t *testing.T) {
	ctx := context.Background()
	b, name := newStore(t)

	for _, vw := range []string{"b", "a", "c"} {
		w := open(t, b, name, vw)
		require.NoError(t, w.Set(ctx, "claim", "1", nil, nil))
		require.NoError(t, w.Set(ctx, "key", "1", nil, nil))
	}
	got, err := b.Tenants(ctx, name, credFor(""))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err = b.Tenants(ctx, name, api.Credentials{Key: "x", KeyDerivationMethod: api.KeyDerivationArgon2iInt})
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	b, name := newStore(t)

	_, err := b.Open(ctx, api.NewScope(name, "bad"+api.ScopeSeparator), cfg, credFor(""))
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)

	_, err = b.Open(ctx, api.NewScope("missing"+name, ""), cfg, credFor(""))
	assert.ErrorIs(t, err, api.ErrWalletNotFound)

	w := open(t, b, name, "t1")
	assert.ErrorIs(t, b.Delete(ctx, name, cfg, credFor("")), api.ErrWalletInUse)
	require.NoError(t, w.Close())
	require.NoError(t, b.Delete(ctx, name, cfg, credFor("")))
}
