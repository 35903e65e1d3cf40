package cmds

import (
	"context"
	"os"
	"testing"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walletKey = "6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp"

func TestStorage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Storage
		wantErr bool
	}{
		{"bolt", Storage{Type: "bolt", Dir: "."}, false},
		{"bolt no dir", Storage{Type: "bolt"}, true},
		{"sqlite", Storage{Type: "sqlite", Dir: "."}, false},
		{"postgres", Storage{Type: "postgres", DSN: "postgres://localhost/w"}, false},
		{"postgres no dsn", Storage{Type: "postgres"}, true},
		{"redis", Storage{Type: "redis", Addr: "localhost:6379"}, false},
		{"redis no addr", Storage{Type: "redis"}, true},
		{"unknown", Storage{Type: "mongo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCmd_Validate(t *testing.T) {
	bolt := Storage{Type: "bolt", Dir: "."}
	tests := []struct {
		name    string
		c       Cmd
		wantErr bool
	}{
		{"ok", Cmd{Storage: bolt, WalletName: "w", WalletKey: walletKey, KeyMethod: api.KeyDerivationRaw}, false},
		{"passphrase", Cmd{Storage: bolt, WalletName: "w", WalletKey: "pass"}, false},
		{"bad raw key", Cmd{Storage: bolt, WalletName: "w", WalletKey: "pass", KeyMethod: api.KeyDerivationRaw}, true},
		{"no name", Cmd{Storage: bolt, WalletKey: walletKey}, true},
		{"no key", Cmd{Storage: bolt, WalletName: "w"}, true},
		{"bad config", Cmd{Storage: bolt, WalletName: "w", WalletKey: "k", WalletConfig: "{"}, true},
		{"remote token", Cmd{WalletName: "w", AuthToken: "t", WalletConfig: `{"type":"remote"}`}, false},
		{"remote nothing", Cmd{WalletName: "w", WalletConfig: `{"type":"remote"}`}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCmd_Open(t *testing.T) {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "cmds-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := Cmd{
		Storage:    Storage{Type: "bolt", Dir: dir},
		WalletName: "cmds_wallet",
		WalletKey:  walletKey,
		KeyMethod:  api.KeyDerivationRaw,
	}
	e, err := c.NewEnv(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Registry.Create(ctx, api.Config{}, c.WalletName, c.Credentials()))
	require.NoError(t, e.Close())

	e, h, err := c.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.NewScope(c.WalletName, ""), h.Scope())
	require.NoError(t, e.Close())

	c.WalletName = "missing"
	_, _, err = c.Open(ctx)
	assert.ErrorIs(t, err, api.ErrWalletNotFound)
}
