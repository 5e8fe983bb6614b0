package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	prospectsStatus string
	prospectsLimit  int
	prospectsJSON   bool
	handoffJSON     bool
)

var prospectsCmd = &cobra.Command{
	Use:   "prospects",
	Short: "List prospect records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RecordFilter{Status: model.Status(prospectsStatus), Limit: prospectsLimit}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("unknown status %q", prospectsStatus)
		}
		records, err := st.ListRecords(ctx, filter)
		if err != nil {
			return err
		}
		if prospectsJSON {
			return writeJSON(cmd.OutOrStdout(), records)
		}
		return printRecords(cmd.OutOrStdout(), records)
	},
}

var handoffCmd = &cobra.Command{
	Use:   "handoff <record-id>",
	Short: "Show the handoff packet for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		h, err := loadHandoff(ctx, st, args[0])
		if err != nil {
			return err
		}
		if handoffJSON {
			return writeJSON(cmd.OutOrStdout(), h)
		}
		return printHandoff(cmd.OutOrStdout(), h)
	},
}

func init() {
	prospectsCmd.Flags().StringVar(&prospectsStatus, "status", "", "only records in this status")
	prospectsCmd.Flags().IntVar(&prospectsLimit, "limit", 0, "maximum records to list (0 for all)")
	prospectsCmd.Flags().BoolVar(&prospectsJSON, "json", false, "print JSON")
	handoffCmd.Flags().BoolVar(&handoffJSON, "json", false, "print JSON")
	rootCmd.AddCommand(prospectsCmd, handoffCmd)
}
