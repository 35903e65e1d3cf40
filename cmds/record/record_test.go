package record

import (
	"bytes"
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/findy-network/findy-wallet/cmds/wallet"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walletKey = "6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp"

var (
	testDir string
	baseCmd cmds.Cmd
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
	flag.Parse()

	testDir = try.To1(os.MkdirTemp("", "record-cmd-test"))
	baseCmd = cmds.Cmd{
		Storage:       cmds.Storage{Type: "sqlite", Dir: testDir},
		WalletName:    "record_cmd_wallet",
		WalletKey:     walletKey,
		KeyMethod:     api.KeyDerivationRaw,
		VirtualWallet: "tenant1",
		WalletConfig:  `{"type":"virtual"}`,
	}
	create := wallet.CreateCmd{Cmd: baseCmd}
	try.To(create.Validate())
	try.To1(create.Exec(nil))
}

func tearDown() {
	_ = os.RemoveAll(testDir)
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in      string
		want    api.Tags
		wantErr bool
	}{
		{"", nil, false},
		{`{"a":"1"}`, api.Tags{"a": "1"}, false},
		{"a=1,b=", api.Tags{"a": "1", "b": ""}, false},
		{"a", nil, true},
		{"{", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTags(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("status=active, has_it")
	require.NoError(t, err)
	assert.Equal(t, api.Filter{api.Has("has_it"), api.Eq("status", "active")}, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = ParseFilter("a,,b")
	assert.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	at, err := ParseExpiry("1h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), *at)

	at, err = ParseExpiry("2024-02-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *at)

	at, err = ParseExpiry("", now)
	require.NoError(t, err)
	assert.Nil(t, at)

	_, err = ParseExpiry("tomorrow", now)
	assert.Error(t, err)
}

func TestRecordCmds(t *testing.T) {
	var out bytes.Buffer

	set := SetCmd{ID: "c1", Value: `{"attr":"x"}`, Tags: "status=active"}
	set.Cmd, set.Type = baseCmd, "claim"
	require.NoError(t, set.Validate())
	_, err := set.Exec(&out)
	require.NoError(t, err)

	set.ID, set.Tags, set.Strict = "c2", "status=old", true
	_, err = set.Exec(&out)
	require.NoError(t, err)
	_, err = set.Exec(&out)
	assert.ErrorIs(t, err, api.ErrItemAlreadyExists)

	set.ID, set.Strict, set.Expires = "c3", false, "-1m"
	_, err = set.Exec(&out)
	require.NoError(t, err)

	get := GetCmd{ID: "c1"}
	get.Cmd, get.Type = baseCmd, "claim"
	require.NoError(t, get.Validate())
	out.Reset()
	r, err := get.Exec(&out)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"attr":"x"}`), r.(Result).Value)
	assert.Contains(t, out.String(), `"id":"c1"`)

	get.ID, get.NotExpired = "c3", true
	_, err = get.Exec(&out)
	assert.ErrorIs(t, err, api.ErrItemExpired)

	list := ListCmd{Filter: "status=active"}
	list.Cmd, list.Type = baseCmd, "claim"
	require.NoError(t, list.Validate())
	out.Reset()
	_, err = list.Exec(&out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"id":"c1"`)

	list.Filter, list.CountOnly = "status", true
	out.Reset()
	_, err = list.Exec(&out)
	require.NoError(t, err)
	assert.Equal(t, "3", strings.TrimSpace(out.String()))

	// other tenants don't see the records
	other := list
	other.VirtualWallet = "tenant2"
	out.Reset()
	_, err = other.Exec(&out)
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out.String()))

	del := DeleteCmd{ID: "c1"}
	del.Cmd, del.Type = baseCmd, "claim"
	require.NoError(t, del.Validate())
	_, err = del.Exec(&out)
	require.NoError(t, err)
	_, err = del.Exec(&out)
	assert.ErrorIs(t, err, api.ErrItemNotFound)
}

func TestValidate(t *testing.T) {
	get := GetCmd{}
	get.Cmd, get.Type = baseCmd, "claim"
	assert.Error(t, get.Validate())

	list := ListCmd{}
	list.Cmd = baseCmd
	assert.Error(t, list.Validate())
}
