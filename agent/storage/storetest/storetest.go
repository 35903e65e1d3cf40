/*
Package storetest has the shared conformance tests of the record store
providers. Every provider package runs them from its own tests.
*/
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewName returns a unique store name usable by every provider.
func NewName() string {
	return "w" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Run runs all the conformance tests against the provider.
func Run(t *testing.T, p api.Provider) {
	t.Run("lifecycle", func(t *testing.T) { testLifecycle(t, p) })
	t.Run("round trip", func(t *testing.T) { testRoundTrip(t, p) })
	t.Run("update", func(t *testing.T) { testUpdate(t, p) })
	t.Run("iterate", func(t *testing.T) { testIterate(t, p) })
	t.Run("write while iterating", func(t *testing.T) { testWriteWhileIterating(t, p) })
	t.Run("expiry", func(t *testing.T) { testExpiry(t, p) })
	t.Run("metadata", func(t *testing.T) { testMetadata(t, p) })
}

// Create creates a new store and registers its removal to test cleanup.
func Create(t *testing.T, p api.Provider) api.RecordStore {
	t.Helper()
	ctx := context.Background()
	name := NewName()
	s, err := p.Create(ctx, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = p.Remove(ctx, name)
	})
	return s
}

func testLifecycle(t *testing.T, p api.Provider) {
	ctx := context.Background()
	name := NewName()

	ok, err := p.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.Open(ctx, name)
	assert.True(t, errors.Is(err, api.ErrWalletNotFound), "got: %v", err)
	assert.True(t, errors.Is(p.Remove(ctx, name), api.ErrWalletNotFound))

	s, err := p.Create(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, name, s.Name())
	require.NoError(t, s.Put(ctx, api.Record{Type: "t", ID: "1", Value: []byte("v")}))
	require.NoError(t, s.Close())

	ok, err = p.Exists(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = p.Create(ctx, name)
	assert.True(t, errors.Is(err, api.ErrWalletAlreadyExists), "got: %v", err)

	s, err = p.Open(ctx, name)
	require.NoError(t, err)
	r, err := s.Get(ctx, "t", "1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), r.Value)
	require.NoError(t, s.Close())

	require.NoError(t, p.Remove(ctx, name))
	ok, err = p.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testRoundTrip(t *testing.T, p api.Provider) {
	ctx := context.Background()
	s := Create(t, p)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	in := api.Record{
		Type:      "claim",
		ID:        "c1",
		Value:     []byte(`{"attr":"x"}`),
		Tags:      api.Tags{"status": "active", "~plain": ""},
		ExpiresAt: &exp,
	}
	require.NoError(t, s.Put(ctx, in))

	out, err := s.Get(ctx, "claim", "c1")
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Value, out.Value)
	assert.Equal(t, in.Tags, out.Tags)
	require.NotNil(t, out.ExpiresAt)
	assert.True(t, exp.Equal(*out.ExpiresAt))

	// last writer wins
	require.NoError(t, s.Put(ctx, api.Record{Type: "claim", ID: "c1", Value: []byte("2")}))
	out, err = s.Get(ctx, "claim", "c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), out.Value)
	assert.Empty(t, out.Tags)
	assert.Nil(t, out.ExpiresAt)

	err = s.Insert(ctx, api.Record{Type: "claim", ID: "c1", Value: []byte("3")})
	assert.True(t, errors.Is(err, api.ErrItemAlreadyExists), "got: %v", err)
	require.NoError(t, s.Insert(ctx, api.Record{Type: "claim", ID: "c2", Value: []byte("3")}))

	_, err = s.Get(ctx, "claim", "missing")
	assert.True(t, errors.Is(err, api.ErrItemNotFound), "got: %v", err)
	_, err = s.Get(ctx, "no-such-type", "c1")
	assert.True(t, errors.Is(err, api.ErrItemNotFound), "got: %v", err)

	require.NoError(t, s.Delete(ctx, "claim", "c1"))
	_, err = s.Get(ctx, "claim", "c1")
	assert.True(t, errors.Is(err, api.ErrItemNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "claim", "c1"), api.ErrItemNotFound))

	types, err := s.Types(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"claim"}, types)
}

func testUpdate(t *testing.T, p api.Provider) {
	ctx := context.Background()
	s := Create(t, p)

	require.NoError(t, s.Put(ctx, api.Record{Type: "key", ID: "k1",
		Value: []byte("old"), Tags: api.Tags{"a": "1"}}))

	err := s.Update(ctx, "key", "k1", func(r *api.Record) error {
		r.Value = []byte("new")
		r.Tags["b"] = "2"
		r.ID = "ignored"
		return nil
	})
	require.NoError(t, err)

	r, err := s.Get(ctx, "key", "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), r.Value)
	assert.Equal(t, api.Tags{"a": "1", "b": "2"}, r.Tags)
	_, err = s.Get(ctx, "key", "ignored")
	assert.True(t, errors.Is(err, api.ErrItemNotFound))

	boom := errors.New("boom")
	err = s.Update(ctx, "key", "k1", func(r *api.Record) error {
		r.Value = []byte("lost")
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	r, err = s.Get(ctx, "key", "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), r.Value)

	err = s.Update(ctx, "key", "missing", func(r *api.Record) error { return nil })
	assert.True(t, errors.Is(err, api.ErrItemNotFound), "got: %v", err)
}

func testIterate(t *testing.T, p api.Provider) {
	ctx := context.Background()
	s := Create(t, p)

	const count = 2*api.DefaultPageSize + 17
	for i := 0; i < count; i++ {
		require.NoError(t, s.Put(ctx, api.Record{Type: "cred",
			ID: fmt.Sprintf("a-%04d", i), Value: []byte{byte(i)}}))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, api.Record{Type: "cred",
			ID: fmt.Sprintf("b-%d", i)}))
	}
	require.NoError(t, s.Put(ctx, api.Record{Type: "other", ID: "a-0000"}))

	it, err := s.Iterate(ctx, "cred", "a-")
	require.NoError(t, err)
	rs, err := api.Collect(ctx, it)
	require.NoError(t, err)
	require.Len(t, rs, count)
	for i, r := range rs {
		assert.Equal(t, fmt.Sprintf("a-%04d", i), r.ID)
		assert.Equal(t, "cred", r.Type)
	}

	it, err = s.Iterate(ctx, "cred", "")
	require.NoError(t, err)
	n, err := api.Count(ctx, it)
	require.NoError(t, err)
	assert.Equal(t, count+5, n)

	it, err = s.Iterate(ctx, "nothing", "")
	require.NoError(t, err)
	n, err = api.Count(ctx, it)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// iterator is not restartable
	it, err = s.Iterate(ctx, "cred", "b-")
	require.NoError(t, err)
	_, err = api.Collect(ctx, it)
	require.NoError(t, err)
	assert.False(t, it.Next(ctx))
}

func testWriteWhileIterating(t *testing.T, p api.Provider) {
	ctx := context.Background()
	s := Create(t, p)

	for i := 0; i < api.DefaultPageSize+10; i++ {
		require.NoError(t, s.Put(ctx, api.Record{Type: "t", ID: fmt.Sprintf("%04d", i)}))
	}
	it, err := s.Iterate(ctx, "t", "")
	require.NoError(t, err)
	defer it.Close()

	seen := 0
	for it.Next(ctx) {
		r := it.Record()
		require.NoError(t, s.Put(ctx, api.Record{Type: "t", ID: r.ID, Value: []byte("seen")}))
		seen++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, api.DefaultPageSize+10, seen)
}

func testExpiry(t *testing.T, p api.Provider) {
	ctx := context.Background()
	s := Create(t, p)

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	require.NoError(t, s.Put(ctx, api.Record{Type: "t", ID: "old", ExpiresAt: &past}))
	require.NoError(t, s.Put(ctx, api.Record{Type: "t", ID: "new", ExpiresAt: &future}))
	require.NoError(t, s.Put(ctx, api.Record{Type: "u", ID: "forever"}))

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "t", "old")
	assert.True(t, errors.Is(err, api.ErrItemNotFound))
	_, err = s.Get(ctx, "t", "new")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "u", "forever")
	assert.NoError(t, err)

	n, err = s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testMetadata(t *testing.T, p api.Provider) {
	ctx := context.Background()
	s := Create(t, p)

	d, err := s.Metadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, d)

	require.NoError(t, s.SetMetadata(ctx, []byte("meta1")))
	require.NoError(t, s.SetMetadata(ctx, []byte("meta2")))
	d, err = s.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("meta2"), d)
}
