package cmd

import (
	"github.com/findy-network/findy-wallet/cmds/service"
	"github.com/findy-network/findy-wallet/server"
	"github.com/spf13/cobra"
)

var serviceEnvs = map[string]string{
	"address":   "ADDRESS",
	"base-path": "BASE_PATH",
	"token-ttl": "TOKEN_TTL",
	"sweep":     "SWEEP",
}

var (
	serviceBase = service.Cmd{}
	serveCmd    = service.ServeCmd{}
	tenantCmd   = service.TenantCmd{}
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Parent command for the remote wallet service",
	Long: `
Parent command for the remote wallet service. The service serves the virtual
wallets of one wallet to the remote wallet clients.
	`,
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var startServiceCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the service",
	Long: `
Starts the service and serves until interrupted.

Example
	findy-wallet service start \
		--wallet-name service \
		--wallet-key 6cih1cVgRH8yHD54nEYyPKLmdv67o8QbufxaTHot3Qxp \
		--key-method RAW \
		--address :8000
	`,
	PreRunE: func(_ *cobra.Command, _ []string) (err error) {
		return BindEnvs(serviceEnvs, "SERVICE")
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		serviceBase.Cmd = walletBase
		serveCmd.Cmd = serviceBase
		return run(serveCmd)
	},
}

var tenantServiceCmd = &cobra.Command{
	Use:   "tenant [name]",
	Short: "Adds, removes or lists the tenants of the service",
	Long: `
Adds a tenant when a password is given, removes it with --remove, and lists
all the tenants when no name is given.
	`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		serviceBase.Cmd = walletBase
		tenantCmd.Cmd = serviceBase
		tenantCmd.Tenant = ""
		if len(args) == 1 {
			tenantCmd.Tenant = args[0]
		}
		return run(tenantCmd)
	},
}

func init() {
	addWalletFlags(serviceCmd)
	pf := serviceCmd.PersistentFlags()
	pf.StringVar(&serviceBase.BasePath, "base-path", server.DefaultBasePath, flagInfo("API base path", "SERVICE", serviceEnvs["base-path"]))
	pf.DurationVar(&serviceBase.TokenTTL, "token-ttl", server.DefaultTokenTTL, flagInfo("auth token lifetime", "SERVICE", serviceEnvs["token-ttl"]))

	f := startServiceCmd.Flags()
	f.StringVar(&serveCmd.Addr, "address", ":8000", flagInfo("listen address", "SERVICE", serviceEnvs["address"]))
	f.DurationVar(&serveCmd.SweepEvery, "sweep", 0, flagInfo("expiry sweep interval, zero is off", "SERVICE", serviceEnvs["sweep"]))

	f = tenantServiceCmd.Flags()
	f.StringVar(&tenantCmd.Password, "password", "", "tenant password")
	f.BoolVar(&tenantCmd.Remove, "remove", false, "remove the tenant")

	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(startServiceCmd, tenantServiceCmd)
}
