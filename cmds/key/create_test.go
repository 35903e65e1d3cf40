package key

import (
	"bytes"
	"strings"
	"testing"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/wallet/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCmd_Exec(t *testing.T) {
	var out bytes.Buffer
	cmd := CreateCmd{Seed: "00000000000000000000thisisa_test"}
	require.NoError(t, cmd.Validate())
	_, err := cmd.Exec(&out)
	require.NoError(t, err)

	k := strings.TrimSpace(out.String())
	assert.NoError(t, keys.ValidateKey(k, api.KeyDerivationRaw))

	out.Reset()
	_, err = cmd.Exec(&out)
	require.NoError(t, err)
	assert.Equal(t, k, strings.TrimSpace(out.String()))
}

func TestCreateCmd_Random(t *testing.T) {
	var out bytes.Buffer
	cmd := CreateCmd{}
	require.NoError(t, cmd.Validate())
	_, err := cmd.Exec(&out)
	require.NoError(t, err)
	assert.NoError(t, keys.ValidateKey(strings.TrimSpace(out.String()), api.KeyDerivationRaw))
}

func TestCreateCmd_Validate(t *testing.T) {
	cmd := CreateCmd{Seed: "too short"}
	assert.Error(t, cmd.Validate())
}

func TestCheckCmd(t *testing.T) {
	tests := []struct {
		name   string
		cmd    CheckCmd
		okExec bool
	}{
		{"default method", CheckCmd{Key: "any passphrase"}, true},
		{"raw explicit", CheckCmd{Key: "6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp", Method: api.KeyDerivationRaw}, true},
		{"raw too short", CheckCmd{Key: "6cih1cVg", Method: api.KeyDerivationRaw}, false},
		{"passphrase", CheckCmd{Key: "my passphrase", Method: api.KeyDerivationArgon2iMod}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.cmd.Validate())
			var out bytes.Buffer
			_, err := tt.cmd.Exec(&out)
			if tt.okExec {
				assert.NoError(t, err)
				assert.Contains(t, out.String(), "key is valid")
			} else {
				assert.Error(t, err)
			}
		})
	}
	empty := CheckCmd{}
	assert.Error(t, empty.Validate())
}
