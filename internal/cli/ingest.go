package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/route"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Batch            bool
	DryRun           bool
	RequireTimestamp bool
}

// IngestOutput is the ingest command's result.
type IngestOutput struct {
	RouteID   string               `json:"routeId"`
	SheetID   string               `json:"sheetId"`
	Ingested  int                  `json:"ingested"`
	Failed    int                  `json:"failed"`
	Rows      []int                `json:"rows,omitempty"`
	Errors    []engine.RecordError `json:"errors,omitempty"`
	Warnings  []route.Warning      `json:"warnings,omitempty"`
	Snapshots int                  `json:"snapshots"`
}

// PreviewOutput is one dry-run record.
type PreviewOutput struct {
	SheetID  string              `json:"sheetId"`
	Row      map[string]ir.Value `json:"row"`
	Keys     map[string]ir.Value `json:"keys,omitempty"`
	Warnings []route.Warning     `json:"warnings,omitempty"`
	Dropped  []string            `json:"dropped,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <route-id> [file]",
		Short: "Ingest JSON records through a route",
		Long: `Ingest JSON records through a route.

Reads one JSON object or an array of objects from file (or stdin when the
file is omitted or "-"), appends them to the route's fact sheet and runs
the recompute cascade. With a store configured the rows are persisted.

Examples:
  sheetrelay ingest erp.po po.json --store relay.db
  cat receipts.json | sheetrelay ingest wms.receipt --batch
  sheetrelay ingest ap.invoice invoice.json --dry-run`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := "-"
			if len(args) == 2 {
				file = args[1]
			}
			return runIngest(opts, args[0], file, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Batch, "batch", false, "append all records, then run one cascade")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show the normalized rows without appending")
	cmd.Flags().BoolVar(&opts.RequireTimestamp, "require-timestamp", false, "reject records without the route's timestamp field")
	cmd.Flags().Bool("strict", false, "reject records with missing required fields")

	return cmd
}

func runIngest(opts *IngestOptions, routeID, file string, cmd *cobra.Command) error {
	records, err := readRecords(cmd.InOrStdin(), file)
	if err != nil {
		return WrapExitError(ExitCommandError, "read records", err)
	}

	eng, closeStore, err := opts.openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	f := opts.formatter(cmd)
	if opts.DryRun {
		return dryRun(f, eng, routeID, records)
	}

	res, err := eng.Ingest(cmd.Context(), routeID, records, engine.IngestOptions{
		Batch:            opts.Batch,
		Strict:           opts.Config.Gateway.StrictRequired,
		RequireTimestamp: opts.RequireTimestamp,
	})
	if err != nil {
		_ = f.Error(string(engine.CodeOf(err)), err.Error(), nil)
		if engine.CodeOf(err) == engine.CodeUnknownRoute {
			return WrapExitError(ExitCommandError, "ingest", err)
		}
		return WrapExitError(ExitFailure, "ingest", err)
	}

	out := IngestOutput{
		RouteID:  res.RouteID,
		SheetID:  res.SheetID,
		Ingested: res.Ingested,
		Failed:   res.Failed,
		Rows:     res.Rows,
		Errors:   res.Errors,
		Warnings: res.Warnings,
	}
	for _, rc := range res.Recomputes {
		if rc.Snapshot != nil {
			out.Snapshots++
		}
	}
	if err := f.Success(out, func(w io.Writer) { printIngest(w, out) }); err != nil {
		return err
	}
	if out.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) rejected", out.Failed))
	}
	return nil
}

func dryRun(f *OutputFormatter, eng *engine.Engine, routeID string, records []map[string]any) error {
	_, fs, err := eng.Normalizer().Schema(routeID)
	if err != nil {
		_ = f.Error(string(engine.CodeUnknownRoute), err.Error(), nil)
		return WrapExitError(ExitCommandError, "dry run", err)
	}

	previews := make([]PreviewOutput, 0, len(records))
	for i, rec := range records {
		p, err := eng.Normalizer().DryRun(routeID, rec)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("dry run record %d", i), err)
		}
		row := make(map[string]ir.Value, len(fs.Columns))
		for c, col := range fs.Columns {
			row[col.ID] = p.Values[c]
		}
		previews = append(previews, PreviewOutput{
			SheetID:  p.SheetID,
			Row:      row,
			Keys:     p.Keys,
			Warnings: p.Warnings,
			Dropped:  p.Dropped,
		})
	}

	return f.Success(previews, func(w io.Writer) {
		header := table.Row{"#"}
		for _, col := range fs.Columns {
			header = append(header, col.ID)
		}
		header = append(header, "dropped")
		rows := make([]table.Row, len(previews))
		for i, p := range previews {
			r := table.Row{i}
			for _, col := range fs.Columns {
				r = append(r, p.Row[col.ID].Text())
			}
			rows[i] = append(r, strings.Join(p.Dropped, ","))
		}
		renderTable(w, header, rows)
	})
}

func printIngest(w io.Writer, out IngestOutput) {
	fmt.Fprintf(w, "✓ %s → %s: %d ingested, %d failed, %d snapshot(s)\n",
		out.RouteID, out.SheetID, out.Ingested, out.Failed, out.Snapshots)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  ✗ record %d: %s\n", e.Index, e.Error)
	}
	for _, warn := range out.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warn)
	}
}

// readRecords decodes one object or an array of objects.
func readRecords(stdin io.Reader, file string) ([]map[string]any, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is not an object", i)
			}
			out[i] = rec
		}
		if len(out) == 0 {
			return nil, errors.New("no records")
		}
		return out, nil
	default:
		return nil, errors.New("want an object or an array of objects")
	}
}
