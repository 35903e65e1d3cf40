package expiry

import (
	"context"
	"errors"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/storage/boltdb"
	"github.com/findy-network/findy-wallet/agent/storage/storetest"
	"github.com/findy-network/findy-wallet/agent/wallet/local"
	"github.com/findy-network/findy-wallet/agent/wallet/standard"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawKey = "6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp"

var (
	testDir string
	cred    = api.Credentials{Key: rawKey, KeyDerivationMethod: api.KeyDerivationRaw}
	now     = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
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

	testDir = try.To1(os.MkdirTemp("", "expiry-test"))
}

func tearDown() {
	_ = os.RemoveAll(testDir)
}

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func openWallet(t *testing.T, pool *local.Pool) api.Wallet {
	t.Helper()
	ctx := context.Background()
	b := standard.NewWithPool(pool)
	name := storetest.NewName()
	require.NoError(t, b.Create(ctx, name, api.Config{}, cred))
	w, err := b.Open(ctx, api.NewScope(name, ""), api.Config{}, cred)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	pool := local.NewPool(boltdb.New(testDir))
	w1 := openWallet(t, pool)
	w2 := openWallet(t, pool)

	for _, w := range []api.Wallet{w1, w2} {
		require.NoError(t, w.Add(ctx, api.Record{Type: "t", ID: "old", ExpiresAt: at(-time.Hour)}))
		require.NoError(t, w.Add(ctx, api.Record{Type: "t", ID: "new", ExpiresAt: at(time.Hour)}))
		require.NoError(t, w.Add(ctx, api.Record{Type: "t", ID: "none"}))
	}

	s := New(pool)
	s.SetClock(func() time.Time { return now })
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, w := range []api.Wallet{w1, w2} {
		_, err = w.Get(ctx, "t", "old")
		assert.ErrorIs(t, err, api.ErrItemNotFound)
		n, err := w.Count(ctx, "t", api.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type failingSource struct{ err error }

func (f failingSource) Each(context.Context, func(s api.RecordStore) error) error {
	return f.err
}

func TestSweep_Errors(t *testing.T) {
	ctx := context.Background()
	pool := local.NewPool(boltdb.New(testDir))
	w := openWallet(t, pool)
	require.NoError(t, w.Add(ctx, api.Record{Type: "t", ID: "old", ExpiresAt: at(-time.Hour)}))

	boom := errors.New("boom")
	s := New(failingSource{boom}, pool)
	s.SetClock(func() time.Time { return now })
	_, err := s.Sweep(ctx)
	assert.ErrorIs(t, err, boom)

	// the other sources are still swept
	_, err = w.Get(ctx, "t", "old")
	assert.ErrorIs(t, err, api.ErrItemNotFound)
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	pool := local.NewPool(boltdb.New(testDir))
	w := openWallet(t, pool)
	require.NoError(t, w.Add(ctx, api.Record{Type: "t", ID: "old", ExpiresAt: at(-time.Hour)}))

	s := New(pool)
	s.SetClock(func() time.Time { return now })
	require.NoError(t, s.Start(50*time.Millisecond))
	assert.Error(t, s.Start(time.Second))

	assert.Eventually(t, func() bool { return s.Removed() == 1 },
		2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}
