package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/ir"
)

// SheetSummary is one line of the sheet listing.
type SheetSummary struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "inspect [sheet-id]",
		Short: "Show sheets or KPI history",
		Long: `Restore state from the store and show it.

Without arguments, lists every sheet. With a sheet id, prints its cells;
formula cells are shown with a leading "=". With --kpis, prints a branch's
KPI snapshot history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := rootOpts.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			f := rootOpts.formatter(cmd)
			switch {
			case branch != "":
				return inspectKPIs(f, eng, branch)
			case len(args) == 1:
				return inspectSheet(f, eng, args[0])
			default:
				return listSheets(f, eng)
			}
		},
	}
	cmd.Flags().StringVar(&branch, "kpis", "", "show the KPI history of this branch")
	return cmd
}

func listSheets(f *OutputFormatter, eng *engine.Engine) error {
	var out []SheetSummary
	for _, id := range eng.SheetIDs() {
		v, err := eng.Sheet(id)
		if err != nil {
			return WrapExitError(ExitCommandError, "inspect", err)
		}
		out = append(out, SheetSummary{ID: v.ID, Kind: string(v.Kind), Rows: v.RowCount, Cols: v.ColCount})
	}
	return f.Success(out, func(w io.Writer) {
		rows := make([]table.Row, len(out))
		for i, s := range out {
			rows[i] = table.Row{s.ID, s.Kind, s.Rows, s.Cols}
		}
		renderTable(w, table.Row{"sheet", "kind", "rows", "cols"}, rows)
	})
}

func inspectSheet(f *OutputFormatter, eng *engine.Engine, id string) error {
	v, err := eng.Sheet(id)
	if err != nil {
		_ = f.Error(string(engine.CodeOf(err)), err.Error(), nil)
		return WrapExitError(ExitCommandError, "inspect", err)
	}

	grid := make([][]string, v.RowCount)
	for r := range grid {
		grid[r] = make([]string, v.ColCount)
	}
	for _, c := range v.Cells {
		text := c.Value.Text()
		if c.IsFormula() {
			text = "=" + c.Formula
		}
		grid[c.Row][c.Col] = text
	}

	return f.Success(grid, func(w io.Writer) {
		if len(grid) == 0 {
			fmt.Fprintln(w, "(empty sheet)")
			return
		}
		header := table.Row{"#"}
		for _, h := range grid[0] {
			header = append(header, h)
		}
		rows := make([]table.Row, 0, len(grid)-1)
		for r := 1; r < len(grid); r++ {
			row := table.Row{r + 1}
			for _, text := range grid[r] {
				row = append(row, text)
			}
			rows = append(rows, row)
		}
		renderTable(w, header, rows)
		fmt.Fprintf(w, "(%d rows)\n", len(rows))
	})
}

func inspectKPIs(f *OutputFormatter, eng *engine.Engine, branch string) error {
	hist := eng.History(branch)
	return f.Success(hist, func(w io.Writer) {
		if len(hist) == 0 {
			fmt.Fprintf(w, "(no snapshots for %s)\n", branch)
			return
		}
		var rows []table.Row
		for _, s := range hist {
			for _, id := range ir.SortedKeys(s.Metrics) {
				m := s.Metrics[id]
				value := m.Value.Text()
				if m.Formula != "" {
					value = "=" + m.Formula
				}
				rows = append(rows, table.Row{s.Seq, s.TriggerSheet, id, value, m.Unit, m.SourceCell})
			}
		}
		renderTable(w, table.Row{"seq", "trigger", "metric", "value", "unit", "cell"}, rows)
	})
}
