package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/sheetrelay/internal/workbook"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var failOnCycle bool

	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Sequence the formulas of a spreadsheet file",
		Long: `Read an xlsx workbook and report, per sheet, the formula evaluation
order, circular references and cross-sheet references. Formulas are never
evaluated. Sheets with circular references are reported as indeterminate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], failOnCycle, cmd)
		},
	}
	cmd.Flags().BoolVar(&failOnCycle, "fail-on-cycle", false, "exit 1 when any sheet is indeterminate")
	return cmd
}

func runImport(opts *RootOptions, path string, failOnCycle bool, cmd *cobra.Command) error {
	rep, err := workbook.Import(path, opts.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "import", err)
	}

	f := opts.formatter(cmd)
	if err := f.Success(rep, func(w io.Writer) { printImport(w, rep, f.Verbose) }); err != nil {
		return err
	}
	if bad := rep.Indeterminate(); failOnCycle && len(bad) > 0 {
		return NewExitError(ExitFailure, "circular references in "+strings.Join(bad, ", "))
	}
	return nil
}

func printImport(w io.Writer, rep workbook.Report, verbose bool) {
	rows := make([]table.Row, len(rep.Sheets))
	for i, s := range rep.Sheets {
		status := "ok"
		if s.Indeterminate() {
			status = "indeterminate"
		}
		rows[i] = table.Row{s.Name, fmt.Sprintf("%dx%d", s.Rows, s.Cols), len(s.Formulas),
			s.Sequence.NodeCount, len(s.Sequence.External), status}
	}
	renderTable(w, table.Row{"sheet", "extent", "formulas", "nodes", "external", "status"}, rows)

	for _, s := range rep.Sheets {
		for _, c := range s.Sequence.Cycles {
			fmt.Fprintf(w, "✗ %s: cycle %s\n", s.Name, strings.Join(c, " → "))
		}
		if verbose && len(s.Sequence.Order) > 0 {
			fmt.Fprintf(w, "%s order: %s\n", s.Name, strings.Join(s.Sequence.Order, " "))
		}
	}
}
