package cmd

import (
	"github.com/findy-network/findy-wallet/cmds/wallet"
	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Parent command for wallet lifecycle",
	Long: `
Parent command for wallet lifecycle. The wallet flags are shared by all the
subcommands, and they can be given as FWALLET_ environment variables, e.g.
FWALLET_WALLET_NAME.
	`,
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var createWalletCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a new wallet",
	Long: `
Creates a new wallet. The wallet config type selects the backend.

Example
	findy-wallet wallet create \
		--wallet-name agency \
		--wallet-key 6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp \
		--key-method RAW \
		--wallet-config '{"type":"virtual"}'
	`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(wallet.CreateCmd{Cmd: walletBase})
	},
}

var deleteWalletCmd = &cobra.Command{
	Use:   "delete",
	Short: "Deletes the wallet and all its records",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(wallet.DeleteCmd{Cmd: walletBase})
	},
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Lists the virtual wallets which have records in the wallet",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(wallet.TenantsCmd{Cmd: walletBase})
	},
}

var sweepCmd = wallet.SweepCmd{}

var sweepWalletCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Removes the expired records",
	Long: `
Removes the expired records of the wallet. With --every the sweep is repeated
until the command is interrupted.
	`,
	RunE: func(_ *cobra.Command, _ []string) error {
		sweepCmd.Cmd = walletBase
		return run(sweepCmd)
	},
}

func init() {
	addWalletFlags(walletCmd)
	sweepWalletCmd.Flags().DurationVar(&sweepCmd.Every, "every", 0, "sweep interval, zero sweeps once")

	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(createWalletCmd, deleteWalletCmd, tenantsCmd, sweepWalletCmd)
}
