package cmd

import (
	"io"

	"github.com/findy-network/findy-wallet/cmds"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

var treeDoc = `Prints the findy-wallet command structure.

The whole command structure is printed if no argument is given. If a command
path is given as arguments, only its structure is printed, e.g.

	findy-wallet tree record
	findy-wallet tree tools key --short
`

var treeFlags struct {
	level int
	short bool
}

var treeCmd = &cobra.Command{
	Use:   "tree [command...]",
	Short: "Prints the findy-wallet command structure",
	Long:  treeDoc,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		c := rootCmd
		if len(args) > 0 {
			c, _ = try.To2(rootCmd.Find(args))
		}
		printStructure(cmd.OutOrStdout(), c, "", 0, true)
		return nil
	},
}

func printStructure(w io.Writer, cmd *cobra.Command, insertion string, level int, last bool) {
	if treeFlags.level != 0 && level >= treeFlags.level {
		return
	}
	branch := "├── "
	next := insertion + "│   "
	if last {
		branch = "└── "
		next = insertion + "    "
	}
	if treeFlags.short && cmd.Short != "" {
		cmds.Fprintf(w, "%s%s%s: %s\n", insertion, branch, cmd.Name(), cmd.Short)
	} else {
		cmds.Fprintf(w, "%s%s%s\n", insertion, branch, cmd.Name())
	}
	subs := cmd.Commands()
	for i, sub := range subs {
		printStructure(w, sub, next, level+1, i == len(subs)-1)
	}
}

func init() {
	treeCmd.Flags().IntVarP(&treeFlags.level, "level", "L", 0, "level of the tree, zero is ignored")
	treeCmd.Flags().BoolVar(&treeFlags.short, "short", false, "print the short descriptions")
	rootCmd.AddCommand(treeCmd)
}
