package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/ir"
)

// HashesOutput is the hashes command's result.
type HashesOutput struct {
	Hashes engine.StateHashes `json:"hashes"`
	Drift  []string           `json:"drift,omitempty"`
}

// NewHashesCommand creates the hashes command.
func NewHashesCommand(rootOpts *RootOptions) *cobra.Command {
	var verify, write string

	cmd := &cobra.Command{
		Use:   "hashes",
		Short: "Print order-independent state hashes",
		Long: `Restore state from the store and print content hashes of the fact,
match and summary sheets and the KPI history.

--write saves the hashes as JSON. --verify compares against a saved file
and exits 1 on any drift.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashes(rootOpts, verify, write, cmd)
		},
	}
	cmd.Flags().StringVar(&verify, "verify", "", "compare against hashes saved in this file")
	cmd.Flags().StringVar(&write, "write", "", "save hashes to this file")
	return cmd
}

func runHashes(opts *RootOptions, verify, write string, cmd *cobra.Command) error {
	eng, closeStore, err := opts.openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	hashes, err := eng.Hashes()
	if err != nil {
		return WrapExitError(ExitCommandError, "compute hashes", err)
	}
	out := HashesOutput{Hashes: hashes}

	if write != "" {
		data, err := json.MarshalIndent(hashes, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "encode hashes", err)
		}
		if err := os.WriteFile(write, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "write hashes", err)
		}
	}
	if verify != "" {
		data, err := os.ReadFile(verify)
		if err != nil {
			return WrapExitError(ExitCommandError, "read hashes", err)
		}
		var want engine.StateHashes
		if err := json.Unmarshal(data, &want); err != nil {
			return WrapExitError(ExitCommandError, "parse hashes "+verify, err)
		}
		out.Drift = diffHashes(want, hashes)
	}

	f := opts.formatter(cmd)
	if err := f.Success(out, func(w io.Writer) { printHashes(w, out, verify != "") }); err != nil {
		return err
	}
	if len(out.Drift) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("state drift in %d component(s)", len(out.Drift)))
	}
	return nil
}

// diffHashes lists the components whose hash differs, aggregates first
// then sheets in sorted order.
func diffHashes(want, got engine.StateHashes) []string {
	var drift []string
	for _, c := range []struct {
		name      string
		want, got string
	}{
		{"facts", want.Facts, got.Facts},
		{"matches", want.Matches, got.Matches},
		{"summaries", want.Summaries, got.Summaries},
		{"kpis", want.KPIs, got.KPIs},
	} {
		if c.want != c.got {
			drift = append(drift, c.name)
		}
	}
	ids := map[string]bool{}
	for id := range want.Sheets {
		ids[id] = true
	}
	for id := range got.Sheets {
		ids[id] = true
	}
	for _, id := range ir.SortedKeys(ids) {
		if want.Sheets[id] != got.Sheets[id] {
			drift = append(drift, "sheet:"+id)
		}
	}
	return drift
}

func printHashes(w io.Writer, out HashesOutput, verified bool) {
	h := out.Hashes
	rows := []table.Row{
		{"facts", h.Facts},
		{"matches", h.Matches},
		{"summaries", h.Summaries},
		{"kpis", h.KPIs},
	}
	for _, id := range ir.SortedKeys(h.Sheets) {
		rows = append(rows, table.Row{"sheet:" + id, h.Sheets[id]})
	}
	renderTable(w, table.Row{"component", "sha256"}, rows)

	if !verified {
		return
	}
	if len(out.Drift) == 0 {
		fmt.Fprintln(w, "✓ No drift")
		return
	}
	for _, d := range out.Drift {
		fmt.Fprintf(w, "✗ drift: %s\n", d)
	}
}
