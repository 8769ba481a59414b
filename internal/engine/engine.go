package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/registry"
	"github.com/roach88/sheetrelay/internal/route"
	"github.com/roach88/sheetrelay/internal/sheet"
	"github.com/roach88/sheetrelay/internal/store"
)

// Engine owns every sheet of every module and is the single writer.
//
// Thread-safety model:
//   - every public method takes mu, so ingest → recompute sequences never
//     interleave and always run to completion
//   - reads return copies
//
// INVARIANTS:
//   - fact sheets only grow; row indices only increase
//   - match and summary sheets are only rewritten whole
//   - KPI history is append-only
type Engine struct {
	mu sync.Mutex

	reg    *registry.Registry
	norm   *route.Normalizer
	store  *store.Store
	clock  SeqSource
	logger *slog.Logger

	normOpts []route.Option

	sheets  map[string]*sheet.Sheet
	history map[string][]ir.MetricSnapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists fact rows and KPI snapshots to s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithClock sets the logical clock for row and snapshot seqs.
func WithClock(c SeqSource) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger. The normalizer shares it unless a
// normalizer option overrides it.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNormalizerOptions passes options through to the route normalizer,
// e.g. a fixed ID generator or wall clock for tests.
func WithNormalizerOptions(opts ...route.Option) Option {
	return func(e *Engine) { e.normOpts = append(e.normOpts, opts...) }
}

// New creates an engine over a frozen registry. Every declared sheet is
// created empty and derived sheets are built once, without a KPI snapshot.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:     reg,
		clock:   NewClock(),
		logger:  slog.Default(),
		sheets:  make(map[string]*sheet.Sheet),
		history: make(map[string][]ir.MetricSnapshot),
	}
	for _, opt := range opts {
		opt(e)
	}

	normOpts := append([]route.Option{route.WithLogger(e.logger)}, e.normOpts...)
	e.norm = route.NewNormalizer(reg, normOpts...)

	for _, mod := range reg.Modules() {
		for _, fs := range mod.FactSheets {
			e.sheets[fs.SheetID] = sheet.New(fs.SheetID, sheet.KindFact, sheet.NewSchema(fs.Columns))
		}
		for _, ms := range mod.MatchSheets {
			e.sheets[ms.SheetID] = sheet.New(ms.SheetID, sheet.KindMatch, sheet.NewSchema(ms.Columns))
		}
		for _, ss := range mod.SummarySheets {
			e.sheets[ss.SheetID] = sheet.New(ss.SheetID, sheet.KindSummary, sheet.NewSchema(ss.Columns))
		}
	}
	e.rebuildAll()
	return e
}

// Registry returns the registry the engine was built with.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Normalizer returns the engine's route normalizer, for dry runs.
func (e *Engine) Normalizer() *route.Normalizer { return e.norm }

// IngestOptions tune one ingestion call.
type IngestOptions struct {
	// Batch defers the index rebuild to one pass after all rows are
	// appended, suppresses per-row logging and runs exactly one recompute.
	Batch bool

	// Strict rejects records with required-field violations.
	Strict bool

	// RequireTimestamp rejects records without the route's timestamp field.
	RequireTimestamp bool
}

// RecordError reports one rejected record.
type RecordError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestResult summarizes an ingestion call.
type IngestResult struct {
	RouteID  string
	SheetID  string
	Ingested int
	Failed   int
	Rows     []int
	Warnings []route.Warning
	Errors   []RecordError

	// Recomputes holds one entry per cascade run (one for a batch).
	Recomputes []RecomputeResult
}

// Ingest normalizes records through routeID and appends them to the
// route's fact sheet. Rejected records are counted in Failed and do not
// abort the call. An unknown route fails the whole call. When an error is
// returned mid-call, the rows listed in the result are already committed.
func (e *Engine) Ingest(ctx context.Context, routeID string, records []map[string]any, opts IngestOptions) (IngestResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, fs, err := e.norm.Schema(routeID)
	if err != nil {
		return IngestResult{}, &Error{Code: CodeUnknownRoute, Message: "route not declared", RouteID: routeID, Err: err}
	}
	sh, ok := e.sheets[fs.SheetID]
	if !ok {
		return IngestResult{}, unknownSheet(fs.SheetID)
	}

	res := IngestResult{RouteID: routeID, SheetID: fs.SheetID}
	nopts := route.Options{Strict: opts.Strict, RequireTimestamp: opts.RequireTimestamp, Quiet: opts.Batch}

	var pending []route.Normalized
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := e.norm.Normalize(routeID, rec, nopts)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RecordError{Index: i, Error: err.Error()})
			if !opts.Batch {
				e.logger.Warn("record rejected", "route", routeID, "index", i, "error", err)
			}
			continue
		}
		res.Warnings = append(res.Warnings, n.Warnings...)

		if opts.Batch {
			pending = append(pending, n)
			continue
		}

		row, err := e.appendRows(ctx, sh, []route.Normalized{n})
		if err != nil {
			return res, err
		}
		res.Ingested++
		res.Rows = append(res.Rows, row...)
		e.logger.Debug("row ingested", "route", routeID, "sheet", sh.ID(), "row", row[0])

		rc, err := e.recompute(ctx, sh.ID())
		if err != nil {
			return res, err
		}
		res.Recomputes = append(res.Recomputes, rc)
	}

	if opts.Batch && len(pending) > 0 {
		rows, err := e.appendRows(ctx, sh, pending)
		if err != nil {
			return res, err
		}
		res.Ingested += len(rows)
		res.Rows = append(res.Rows, rows...)

		rc, err := e.recompute(ctx, sh.ID())
		if err != nil {
			return res, err
		}
		res.Recomputes = append(res.Recomputes, rc)
	}

	e.logger.Info("ingest complete",
		"route", routeID, "sheet", sh.ID(), "ingested", res.Ingested, "failed", res.Failed, "batch", opts.Batch)
	return res, nil
}

// AppendRows appends pre-typed rows directly to a fact sheet and runs one
// recompute cascade. Used for seeding and scenario fixtures.
func (e *Engine) AppendRows(ctx context.Context, sheetID string, rows [][]ir.Value, prov sheet.Provenance) (RecomputeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sh, ok := e.sheets[sheetID]
	if !ok {
		return RecomputeResult{}, unknownSheet(sheetID)
	}
	if sh.Kind() != sheet.KindFact {
		return RecomputeResult{}, &Error{Code: CodeNotFactSheet, Message: fmt.Sprintf("cannot append to %s sheet", sh.Kind()), SheetID: sheetID}
	}

	pending := make([]route.Normalized, len(rows))
	for i, values := range rows {
		if len(values) != sh.ColCount() {
			return RecomputeResult{}, fmt.Errorf("append rows: row %d has %d values, sheet %s has %d columns", i, len(values), sheetID, sh.ColCount())
		}
		pending[i] = route.Normalized{SheetID: sheetID, Values: values, Provenance: prov}
	}
	if _, err := e.appendRows(ctx, sh, pending); err != nil {
		return RecomputeResult{}, err
	}
	return e.recompute(ctx, sheetID)
}

// appendRows persists then appends rows. Nothing is appended in memory if
// the store rejects the write.
func (e *Engine) appendRows(ctx context.Context, sh *sheet.Sheet, rows []route.Normalized) ([]int, error) {
	next := sh.RowCount()
	stored := make([]store.FactRow, len(rows))
	for i, n := range rows {
		stored[i] = store.FactRow{
			SheetID:    sh.ID(),
			RowIdx:     next + i,
			Seq:        e.clock.Next(),
			Values:     n.Values,
			Provenance: n.Provenance,
		}
	}
	if e.store != nil {
		if err := e.store.AppendFactRows(ctx, stored); err != nil {
			return nil, storeError("append fact rows", err)
		}
	}

	out := make([]int, 0, len(rows))
	for _, n := range rows {
		prov := n.Provenance
		row, err := sh.AppendRowDeferred(n.Values, &prov)
		if err != nil {
			return out, fmt.Errorf("append to %s: %w", sh.ID(), err)
		}
		out = append(out, row)
	}
	// one index rebuild per call, however many rows were appended
	sh.RebuildIndex()
	return out, nil
}

// SheetIDs returns every sheet id, sorted.
func (e *Engine) SheetIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ir.SortedKeys(e.sheets)
}

// SheetView is a point-in-time copy of a sheet.
type SheetView struct {
	ID       string
	Kind     sheet.Kind
	Columns  []ir.ColumnDef
	RowCount int
	ColCount int
	Cells    []sheet.Cell
}

// Records returns the view's data rows as typed records.
func (v SheetView) Records() []sheet.Record {
	schema := sheet.NewSchema(v.Columns)
	width := len(v.Columns)
	var out []sheet.Record
	for r := 1; r < v.RowCount; r++ {
		values := make([]ir.Value, width)
		for c := 0; c < width; c++ {
			values[c] = v.Cells[r*width+c].Value
		}
		out = append(out, sheet.NewRecord(schema, values))
	}
	return out
}

// Sheet returns a copy of one sheet.
func (e *Engine) Sheet(id string) (SheetView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sh, ok := e.sheets[id]
	if !ok {
		return SheetView{}, unknownSheet(id)
	}
	return SheetView{
		ID:       sh.ID(),
		Kind:     sh.Kind(),
		Columns:  sh.Schema().Columns(),
		RowCount: sh.RowCount(),
		ColCount: sh.ColCount(),
		Cells:    sh.Cells(),
	}, nil
}

// Cell resolves one A1 address on a sheet.
func (e *Engine) Cell(sheetID, a1 string) (sheet.Cell, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sh, ok := e.sheets[sheetID]
	if !ok {
		return sheet.Cell{}, false, unknownSheet(sheetID)
	}
	c, found := sh.CellAt(a1)
	return c, found, nil
}

// IndexBuilds reports how many times a sheet's address index was rebuilt.
func (e *Engine) IndexBuilds(sheetID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sh, ok := e.sheets[sheetID]; ok {
		return sh.IndexBuilds()
	}
	return 0
}

func (e *Engine) factTables(mod ir.ModuleDef) map[string]*sheet.Table {
	out := make(map[string]*sheet.Table, len(mod.FactSheets))
	for _, fs := range mod.FactSheets {
		if sh, ok := e.sheets[fs.SheetID]; ok {
			out[fs.SheetID] = sh.Table()
		}
	}
	return out
}

// replace rewrites derived sheets in sorted id order and returns the ids.
func (e *Engine) replace(rows map[string][]sheet.Row) []string {
	ids := ir.SortedKeys(rows)
	for _, id := range ids {
		if sh, ok := e.sheets[id]; ok {
			sh.Replace(rows[id])
		}
	}
	return ids
}
