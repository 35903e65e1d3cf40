package cmd

import (
	"log"

	"github.com/findy-network/findy-wallet/cmds/key"
	"github.com/lainio/err2"
	"github.com/spf13/cobra"
)

// keyCmd represents the key subcommand
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Parent command for handling wallet keys",
	Long: `
Parent command for handling wallet keys
	`,
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var keyEnvs = map[string]string{
	"seed":   "SEED",
	"key":    "KEY",
	"method": "METHOD",
}

var (
	keyCreateCmd = key.CreateCmd{}
	keyCheckCmd  = key.CheckCmd{}
)

var createKeyCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a valid RAW wallet key",
	Long: `
Creates a valid RAW wallet key. A key created from the same seed is always
the same.

Example
	findy-wallet tools key create \
		--seed 00000000000000000000thisisa_test
	`,
	PreRunE: func(_ *cobra.Command, _ []string) (err error) {
		return BindEnvs(keyEnvs, "KEY")
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(&keyCreateCmd)
	},
}

var checkKeyCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks that the key is usable with the key derivation method",
	Long: `
Checks that the key is usable with the key derivation method. RAW keys must
be base58 encoded 32 bytes.

Example
	findy-wallet tools key check --method RAW \
		--key 6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp
	`,
	PreRunE: func(_ *cobra.Command, _ []string) (err error) {
		return BindEnvs(keyEnvs, "KEY")
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(&keyCheckCmd)
	},
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	createKeyCmd.Flags().StringVar(&keyCreateCmd.Seed, "seed", "", flagInfo("seed for wallet key creation", keyCmd.Name(), keyEnvs["seed"]))
	checkKeyCmd.Flags().StringVar(&keyCheckCmd.Key, "key", "", flagInfo("wallet key", keyCmd.Name(), keyEnvs["key"]))
	checkKeyCmd.Flags().StringVar(&keyCheckCmd.Method, "method", "", flagInfo("key derivation method", keyCmd.Name(), keyEnvs["method"]))

	toolsCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(createKeyCmd, checkKeyCmd)
}
