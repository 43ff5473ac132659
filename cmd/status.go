package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"video-agent/ledger"
	"video-agent/types"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the ledger record of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := openLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer led.Close()

		rec, err := led.Get(cmd.Context(), args[0])
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("no run %q in the %s ledger", args[0], cfg.Ledger.Backend)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "run_id\t%s\n", rec.RunID)
		for _, f := range types.StatusFields {
			fmt.Fprintf(tw, "%s\t%s\n", f, rec.Get(f))
		}
		return tw.Flush()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the record as JSON")
	rootCmd.AddCommand(statusCmd)
}
