package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/handler"
	"github.com/jingkaihe/netmock/pkg/mockfile"
)

var checkCmd = &cobra.Command{
	Use:   "check <mock-file>",
	Short: "Validate a mock file and list the handlers it defines",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, closer, err := newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	_, hs, err := loadMocks(args[0], logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tVARIANT\tONCE\tHANDLER")
	for i, h := range hs {
		info := h.Info()
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", i, info.Variant, info.Once, info.Header)
	}
	return w.Flush()
}

func loadMocks(path string, logger *slog.Logger) (*mockfile.File, []handler.Handler, error) {
	f, err := mockfile.Load(path)
	if err != nil {
		return nil, nil, errx.Wrap(ErrLoadMocks, err)
	}
	hs, err := mockfile.Compile(f.Handlers, logger)
	if err != nil {
		return nil, nil, errx.Wrap(ErrCompileMocks, err)
	}
	return f, hs, nil
}
