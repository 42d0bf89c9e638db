package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/logging"
)

var eventsCmd = &cobra.Command{
	Use:   "events <journal>",
	Short: "Print the life-cycle events recorded for a run",
	Long: `Print the events a previous "serve --journal" run recorded in its
SQLite journal, oldest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().String("run-id", "", "Run to print (required)")
	eventsCmd.Flags().Bool("json", false, "Print one JSON object per line")

	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	asJSON, _ := cmd.Flags().GetBool("json")
	if runID == "" {
		return ErrRunIDRequired
	}

	sink, err := logging.OpenSQLiteSink(args[0])
	if err != nil {
		return errx.Wrap(ErrReadJournal, err)
	}
	defer sink.Close()

	events, err := sink.Events(cmd.Context(), runID)
	if err != nil {
		return errx.Wrap(ErrReadJournal, err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for i := range events {
			if err := enc.Encode(&events[i]); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tREQUEST\tHANDLER\tSUMMARY")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.Local().Format(time.TimeOnly), ev.EventType, dash(ev.RequestID), dash(ev.Handler), ev.Summary)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
