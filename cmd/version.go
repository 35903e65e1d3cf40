package cmd

import (
	"runtime"
	"runtime/debug"

	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/lainio/err2"
	"github.com/spf13/cobra"
)

var versionDoc = `
Prints the version of the CLI tool. The Go version and the VCS revision are
printed when the binary carries the build information.
`

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version and build information of the CLI tool",
	Long:  versionDoc,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		defer err2.Handle(&err)

		w := cmd.OutOrStdout()
		cmds.Fprintln(w, "findy-wallet", utils.Version)
		cmds.Fprintln(w, "go:", runtime.Version())
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" || s.Key == "vcs.time" {
					cmds.Fprintf(w, "%s: %s\n", s.Key, s.Value)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
