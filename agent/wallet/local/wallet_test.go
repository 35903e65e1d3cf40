package local

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"

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
	cred    = api.Credentials{Key: rawKey, KeyDerivationMethod: api.KeyDerivationRaw}
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

	testDir = try.To1(os.MkdirTemp("", "local-wallet-test"))
}

func tearDown() {
	_ = os.RemoveAll(testDir)
}

func newPool(t *testing.T) (*Pool, string) {
	t.Helper()
	pool := NewPool(boltdb.New(testDir))
	name := storetest.NewName()
	require.NoError(t, pool.Create(context.Background(), name, cred))
	return pool, name
}

func openWallet(t *testing.T, pool *Pool, name, prefix string) *Wallet {
	t.Helper()
	s, err := pool.Acquire(context.Background(), name, cred)
	require.NoError(t, err)
	return New(api.NewScope(name, ""), s, prefix, func() error {
		return pool.Release(name)
	})
}

func TestPool(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)

	assert.ErrorIs(t, pool.Create(ctx, name, cred), api.ErrWalletAlreadyExists)

	wrong := api.Credentials{Key: "wrong key", KeyDerivationMethod: api.KeyDerivationArgon2iInt}
	_, err := pool.Acquire(ctx, name, wrong)
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)
	assert.False(t, pool.InUse(name))

	s1, err := pool.Acquire(ctx, name, cred)
	require.NoError(t, err)
	s2, err := pool.Acquire(ctx, name, cred)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	// wrong key is refused also when the store is already open
	_, err = pool.Acquire(ctx, name, wrong)
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)

	assert.ErrorIs(t, pool.Remove(ctx, name, cred), api.ErrWalletInUse)
	require.NoError(t, pool.Release(name))
	assert.True(t, pool.InUse(name))
	require.NoError(t, pool.Release(name))
	assert.False(t, pool.InUse(name))
	assert.ErrorIs(t, pool.Release(name), api.ErrInvalidHandle)

	assert.ErrorIs(t, pool.Remove(ctx, name, wrong), api.ErrInvalidCredentials)
	require.NoError(t, pool.Remove(ctx, name, cred))
	_, err = pool.Acquire(ctx, name, cred)
	assert.ErrorIs(t, err, api.ErrWalletNotFound)
}

func TestPool_Each(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "")
	defer w.Close()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, w.Add(ctx, api.Record{Type: "t", ID: "1", ExpiresAt: &past}))

	total := 0
	err := pool.Each(ctx, func(s api.RecordStore) error {
		n, err := s.DeleteExpired(ctx, time.Now())
		total += n
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.True(t, pool.InUse(name), "Each must give back only its own refs")
}

func TestWallet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "")
	defer w.Close()

	require.NoError(t, w.Set(ctx, "claim", "c1", []byte(`{"attr":"x"}`),
		api.Tags{"status": "active"}))
	r, err := w.Get(ctx, "claim", "c1")
	require.NoError(t, err)
	assert.Equal(t, "claim", r.Type)
	assert.Equal(t, []byte(`{"attr":"x"}`), r.Value)
	assert.Equal(t, api.Tags{"status": "active"}, r.Tags)

	require.NoError(t, w.Set(ctx, "claim", "c1", []byte("2"), nil))
	r, err = w.Get(ctx, "claim", "c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), r.Value)

	assert.ErrorIs(t, w.Add(ctx, api.Record{Type: "claim", ID: "c1"}), api.ErrItemAlreadyExists)

	require.NoError(t, w.Delete(ctx, "claim", "c1"))
	_, err = w.Get(ctx, "claim", "c1")
	assert.ErrorIs(t, err, api.ErrItemNotFound)
	assert.ErrorIs(t, w.Delete(ctx, "claim", "c1"), api.ErrItemNotFound)
}

func TestWallet_IllegalKeys(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "")
	defer w.Close()

	assert.Error(t, w.Set(ctx, "", "1", nil, nil))
	assert.Error(t, w.Set(ctx, "t", "", nil, nil))
	assert.Error(t, w.Set(ctx, "a"+api.ScopeSeparator+"b", "1", nil, nil))
	_, err := w.List(ctx, "", api.ListOptions{})
	assert.Error(t, err)
}

func TestWallet_Expiry(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "")
	defer w.Close()

	now := time.Now()
	w.Now = func() time.Time { return now }
	past := now.Add(-time.Second)
	require.NoError(t, w.Add(ctx, api.Record{Type: "proof", ID: "p1", ExpiresAt: &past}))

	_, err := w.Get(ctx, "proof", "p1")
	assert.NoError(t, err)
	_, err = w.GetNotExpired(ctx, "proof", "p1")
	assert.ErrorIs(t, err, api.ErrItemExpired)
	assert.True(t, api.IsNotFound(err))

	require.NoError(t, w.SetExpiry(ctx, "proof", "p1", nil))
	_, err = w.GetNotExpired(ctx, "proof", "p1")
	assert.NoError(t, err)

	future := now.Add(time.Minute)
	require.NoError(t, w.SetExpiry(ctx, "proof", "p1", &future))
	_, err = w.GetNotExpired(ctx, "proof", "p1")
	assert.NoError(t, err)
	w.Now = func() time.Time { return future }
	_, err = w.GetNotExpired(ctx, "proof", "p1")
	assert.ErrorIs(t, err, api.ErrItemExpired)

	_, err = w.GetNotExpired(ctx, "proof", "missing")
	assert.ErrorIs(t, err, api.ErrItemNotFound)
}

func TestWallet_Put(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "vw\x1f")
	defer w.Close()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, w.Put(ctx, api.Record{Type: "proof", ID: "p1", Value: []byte("v1"),
		Tags: api.Tags{"a": "1"}, ExpiresAt: &past}))
	r, err := w.Get(ctx, "proof", "p1")
	require.NoError(t, err)
	assert.Equal(t, "proof", r.Type)
	require.NotNil(t, r.ExpiresAt)
	_, err = w.GetNotExpired(ctx, "proof", "p1")
	assert.ErrorIs(t, err, api.ErrItemExpired)

	// upsert replaces the whole record, the expiry too
	require.NoError(t, w.Put(ctx, api.Record{Type: "proof", ID: "p1", Value: []byte("v2")}))
	r, err = w.GetNotExpired(ctx, "proof", "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), r.Value)
	assert.Nil(t, r.ExpiresAt)
	assert.Empty(t, r.Tags)

	assert.Error(t, w.Put(ctx, api.Record{Type: "proof"}))
}

func TestWallet_Updates(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "")
	defer w.Close()

	require.NoError(t, w.Set(ctx, "key", "k", []byte("v1"), nil))
	require.NoError(t, w.UpdateValue(ctx, "key", "k", []byte("v2")))
	require.NoError(t, w.AddTags(ctx, "key", "k", api.Tags{"a": "1", "b": "2"}))
	require.NoError(t, w.AddTags(ctx, "key", "k", api.Tags{"b": "3"}))

	r, err := w.Get(ctx, "key", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), r.Value)
	assert.Equal(t, api.Tags{"a": "1", "b": "3"}, r.Tags)

	require.NoError(t, w.DeleteTags(ctx, "key", "k", "a", "missing"))
	r, err = w.Get(ctx, "key", "k")
	require.NoError(t, err)
	assert.Equal(t, api.Tags{"b": "3"}, r.Tags)

	require.NoError(t, w.UpdateTags(ctx, "key", "k", api.Tags{"c": "4"}))
	r, err = w.Get(ctx, "key", "k")
	require.NoError(t, err)
	assert.Equal(t, api.Tags{"c": "4"}, r.Tags)

	assert.ErrorIs(t, w.UpdateValue(ctx, "key", "missing", nil), api.ErrItemNotFound)
	assert.ErrorIs(t, w.AddTags(ctx, "key", "missing", nil), api.ErrItemNotFound)
}

func TestWallet_ListAndCount(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "t1"+api.ScopeSeparator)
	defer w.Close()

	require.NoError(t, w.Set(ctx, "cred", "a1", nil, api.Tags{"k": "1"}))
	require.NoError(t, w.Set(ctx, "cred", "a2", nil, api.Tags{"k": "2"}))
	require.NoError(t, w.Set(ctx, "cred", "b1", nil, api.Tags{"k": "1", "x": ""}))
	require.NoError(t, w.Set(ctx, "other", "a1", nil, api.Tags{"k": "1"}))

	tests := []struct {
		name string
		opts api.ListOptions
		want []string
	}{
		{"all", api.ListOptions{}, []string{"a1", "a2", "b1"}},
		{"prefix", api.ListOptions{IDPrefix: "a"}, []string{"a1", "a2"}},
		{"exact", api.ListOptions{Filter: api.Filter{api.Eq("k", "1")}}, []string{"a1", "b1"}},
		{"presence", api.ListOptions{Filter: api.Filter{api.Has("x")}}, []string{"b1"}},
		{"prefix and filter", api.ListOptions{IDPrefix: "a",
			Filter: api.Filter{api.Eq("k", "1")}}, []string{"a1"}},
		{"nothing", api.ListOptions{Filter: api.Filter{api.Has("none")}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := w.List(ctx, "cred", tt.opts)
			require.NoError(t, err)
			rs, err := api.Collect(ctx, it)
			require.NoError(t, err)
			var ids []string
			for _, r := range rs {
				assert.Equal(t, "cred", r.Type)
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)

			n, err := w.Count(ctx, "cred", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func TestWallet_Close(t *testing.T) {
	ctx := context.Background()
	pool, name := newPool(t)
	w := openWallet(t, pool, name, "")

	require.NoError(t, w.Close())
	assert.False(t, pool.InUse(name))
	assert.ErrorIs(t, w.Close(), api.ErrInvalidHandle)
	assert.ErrorIs(t, w.Set(ctx, "t", "1", nil, nil), api.ErrInvalidHandle)
	_, err := w.Get(ctx, "t", "1")
	assert.ErrorIs(t, err, api.ErrInvalidHandle)
	_, err = w.List(ctx, "t", api.ListOptions{})
	assert.ErrorIs(t, err, api.ErrInvalidHandle)
	assert.ErrorIs(t, w.UpdateValue(ctx, "t", "1", nil), api.ErrInvalidHandle)
}
