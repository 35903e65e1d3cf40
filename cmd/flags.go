package cmd

import (
	"log"

	"github.com/findy-network/findy-wallet/agent/storage/boltdb"
	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/findy-network/findy-wallet/completionhelp"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

// walletBase is filled by the wallet flags of the wallet, record and service
// commands.
var walletBase = cmds.Cmd{}

var walletEnvs = map[string]string{
	"storage":        "STORAGE",
	"dir":            "DIR",
	"dsn":            "DSN",
	"redis":          "REDIS",
	"wallet-name":    "WALLET_NAME",
	"wallet-key":     "WALLET_KEY",
	"key-method":     "KEY_METHOD",
	"virtual-wallet": "VIRTUAL_WALLET",
	"auth-token":     "AUTH_TOKEN",
	"wallet-config":  "WALLET_CONFIG",
}

// addWalletFlags adds the storage and wallet flags as persistent flags of
// the parent command.
func addWalletFlags(c *cobra.Command) {
	flags := c.PersistentFlags()
	flags.StringVar(&walletBase.Type, "storage", boltdb.Type, flagInfo("storage type: bolt, sqlite, postgres or redis", "", walletEnvs["storage"]))
	flags.StringVar(&walletBase.Dir, "dir", utils.DataDir(), flagInfo("directory of the bolt and sqlite wallets", "", walletEnvs["dir"]))
	flags.StringVar(&walletBase.DSN, "dsn", "", flagInfo("postgres DSN", "", walletEnvs["dsn"]))
	flags.StringVar(&walletBase.Addr, "redis", "", flagInfo("redis address or URL", "", walletEnvs["redis"]))
	flags.StringVar(&walletBase.WalletName, "wallet-name", "", flagInfo("wallet name", "", walletEnvs["wallet-name"]))
	flags.StringVar(&walletBase.WalletKey, "wallet-key", "", flagInfo("wallet key", "", walletEnvs["wallet-key"]))
	flags.StringVar(&walletBase.KeyMethod, "key-method", "", flagInfo("key derivation method: RAW, ARGON2I_MOD or ARGON2I_INT", "", walletEnvs["key-method"]))
	flags.StringVar(&walletBase.VirtualWallet, "virtual-wallet", "", flagInfo("virtual wallet ID", "", walletEnvs["virtual-wallet"]))
	flags.StringVar(&walletBase.AuthToken, "auth-token", "", flagInfo("auth token of the remote wallet", "", walletEnvs["auth-token"]))
	try.To(c.RegisterFlagCompletionFunc("wallet-name",
		func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return completionhelp.WalletNames(walletBase.Dir), cobra.ShellCompDirectiveNoFileComp
		}))
	flags.StringVar(&walletBase.WalletConfig, "wallet-config", "", flagInfo("wallet config JSON, e.g. {\"type\":\"virtual\"}", "", walletEnvs["wallet-config"]))
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	try.To(BindEnvs(walletEnvs, ""))
}

// run validates and executes the command unless it's a dry run.
func run(c cmds.Command) (err error) {
	if err = c.Validate(); err != nil {
		return err
	}
	if rootFlags.dryRun {
		return nil
	}
	_, err = c.Exec(rootCmd.OutOrStdout())
	return err
}
