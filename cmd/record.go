package cmd

import (
	"github.com/findy-network/findy-wallet/cmds/record"
	"github.com/spf13/cobra"
)

var recordType string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Parent command for wallet records",
	Long: `
Parent command for wallet records

Example
	findy-wallet record set --wallet-name agency --wallet-key ... \
		--type claim --id c1 --value '{"attr":"x"}' --tags status=active
	findy-wallet record list --wallet-name agency --wallet-key ... \
		--type claim --filter status=active
	`,
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var (
	setRecord    = record.SetCmd{}
	getRecord    = record.GetCmd{}
	listRecord   = record.ListCmd{}
	deleteRecord = record.DeleteCmd{}
)

var setRecordCmd = &cobra.Command{
	Use:   "set",
	Short: "Sets the record",
	RunE: func(_ *cobra.Command, _ []string) error {
		setRecord.Cmd, setRecord.Type = walletBase, recordType
		return run(setRecord)
	},
}

var getRecordCmd = &cobra.Command{
	Use:   "get",
	Short: "Prints the record as JSON",
	RunE: func(_ *cobra.Command, _ []string) error {
		getRecord.Cmd, getRecord.Type = walletBase, recordType
		return run(getRecord)
	},
}

var listRecordCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints the records of the type as JSON lines",
	Long: `
Prints the records of the type as JSON lines in ID order. The filter has
clauses separated by commas: tag=value for exact match and tag for presence.
	`,
	RunE: func(_ *cobra.Command, _ []string) error {
		listRecord.Cmd, listRecord.Type = walletBase, recordType
		return run(listRecord)
	},
}

var deleteRecordCmd = &cobra.Command{
	Use:   "delete",
	Short: "Deletes the record",
	RunE: func(_ *cobra.Command, _ []string) error {
		deleteRecord.Cmd, deleteRecord.Type = walletBase, recordType
		return run(deleteRecord)
	},
}

func init() {
	addWalletFlags(recordCmd)
	recordCmd.PersistentFlags().StringVar(&recordType, "type", "", "record type")

	f := setRecordCmd.Flags()
	f.StringVar(&setRecord.ID, "id", "", "record id")
	f.StringVar(&setRecord.Value, "value", "", "record value")
	f.StringVar(&setRecord.Tags, "tags", "", "tags as JSON or k=v,k2=v2")
	f.StringVar(&setRecord.Expires, "expires", "", "expiry as RFC 3339 time or duration from now")
	f.BoolVar(&setRecord.Strict, "strict", false, "fail if the record exists")

	f = getRecordCmd.Flags()
	f.StringVar(&getRecord.ID, "id", "", "record id")
	f.BoolVar(&getRecord.NotExpired, "not-expired", false, "fail if the record has expired")

	f = listRecordCmd.Flags()
	f.StringVar(&listRecord.Prefix, "prefix", "", "record id prefix")
	f.StringVar(&listRecord.Filter, "filter", "", "tag filter, e.g. status=active,schema_id")
	f.BoolVar(&listRecord.CountOnly, "count", false, "print only the count")

	deleteRecordCmd.Flags().StringVar(&deleteRecord.ID, "id", "", "record id")

	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(setRecordCmd, getRecordCmd, listRecordCmd, deleteRecordCmd)
}
