// Package route maps external records onto fact sheet rows.
package route

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/registry"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// DefaultSystem is the provenance system used when neither the record
// nor the route scope names one.
const DefaultSystem = "external"

// DateLayout is the normalized form of date columns.
const DateLayout = "2006-01-02"

var (
	// ErrUnknownRoute is returned for a route id the registry does not declare.
	ErrUnknownRoute = errors.New("unknown route")

	// ErrRequiredField is returned in strict mode when a required column is empty.
	ErrRequiredField = errors.New("required field missing")

	// ErrMissingTimestamp is returned when a timestamp is required but absent.
	ErrMissingTimestamp = errors.New("missing event timestamp")
)

// Options tune one normalization.
type Options struct {
	// Strict rejects records with required-field violations instead of
	// emitting them with warnings.
	Strict bool

	// RequireTimestamp rejects records that do not carry the route's
	// timestamp field.
	RequireTimestamp bool

	// Quiet suppresses per-record warning logs (batch ingestion).
	Quiet bool
}

// Warning is a non-blocking problem found while normalizing.
type Warning struct {
	Column  string `json:"column"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string { return w.Column + ": " + w.Message }

// Normalized is one record mapped onto its target sheet.
type Normalized struct {
	RouteID    string
	SheetID    string
	Values     []ir.Value
	Keys       map[string]ir.Value
	Provenance sheet.Provenance
	Warnings   []Warning
}

// Preview is the result of a dry run.
type Preview struct {
	Normalized
	// Dropped lists incoming fields that are present but unmapped, sorted.
	Dropped []string
}

// Normalizer maps records through the registry's routes.
type Normalizer struct {
	reg    *registry.Registry
	ids    IDGenerator
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithIDGenerator sets the generator for missing source ids.
func WithIDGenerator(g IDGenerator) Option { return func(n *Normalizer) { n.ids = g } }

// WithNow sets the clock for missing timestamps.
func WithNow(now func() time.Time) Option { return func(n *Normalizer) { n.now = now } }

// WithLogger sets the logger for required-field warnings.
func WithLogger(l *slog.Logger) Option { return func(n *Normalizer) { n.logger = l } }

// NewNormalizer creates a normalizer over a frozen registry.
func NewNormalizer(reg *registry.Registry, opts ...Option) *Normalizer {
	n := &Normalizer{
		reg:    reg,
		ids:    UUIDv7Generator{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Schema returns the target schema of a route.
func (n *Normalizer) Schema(routeID string) (ir.RouteDef, ir.FactSheetDef, error) {
	rt, ok := n.reg.Route(routeID)
	if !ok {
		return ir.RouteDef{}, ir.FactSheetDef{}, fmt.Errorf("%w: %q", ErrUnknownRoute, routeID)
	}
	mod, ok := n.reg.ModuleForSheet(rt.TargetSheet)
	if !ok {
		return ir.RouteDef{}, ir.FactSheetDef{}, fmt.Errorf("%w: %q targets undeclared sheet %q", ErrUnknownRoute, routeID, rt.TargetSheet)
	}
	fs, ok := mod.FactSheet(rt.TargetSheet)
	if !ok {
		return ir.RouteDef{}, ir.FactSheetDef{}, fmt.Errorf("%w: %q targets non-fact sheet %q", ErrUnknownRoute, routeID, rt.TargetSheet)
	}
	return rt, *fs, nil
}

// Normalize maps record onto the route's target sheet, in schema order.
// Required-field violations become warnings unless opts.Strict is set.
func (n *Normalizer) Normalize(routeID string, record map[string]any, opts Options) (Normalized, error) {
	rt, fs, err := n.Schema(routeID)
	if err != nil {
		return Normalized{}, err
	}

	out := Normalized{
		RouteID: routeID,
		SheetID: fs.SheetID,
		Values:  make([]ir.Value, len(fs.Columns)),
		Keys:    make(map[string]ir.Value, len(rt.Keys)),
	}

	for i, col := range fs.Columns {
		spec, mapped := rt.Fields[col.ID]
		if !mapped {
			continue
		}
		typ := spec.Type
		if typ == "" {
			typ = col.Type
		}
		raw, present := lookup(record, spec.Source)
		v, warn := coerce(raw, typ)
		if warn != "" {
			out.Warnings = append(out.Warnings, Warning{Column: col.ID, Source: spec.Source, Message: warn})
		}
		if (spec.Required || col.Required) && (!present || v.IsEmpty()) {
			if opts.Strict {
				return Normalized{}, fmt.Errorf("%w: route %s column %s (source %q)", ErrRequiredField, routeID, col.ID, spec.Source)
			}
			out.Warnings = append(out.Warnings, Warning{Column: col.ID, Source: spec.Source, Message: "required field missing"})
		}
		out.Values[i] = v
	}

	for _, key := range rt.Keys {
		for i, col := range fs.Columns {
			if col.ID == key {
				out.Keys[key] = out.Values[i]
			}
		}
	}

	prov, err := n.provenance(rt, record, opts)
	if err != nil {
		return Normalized{}, err
	}
	out.Provenance = prov

	if len(out.Warnings) > 0 && !opts.Quiet {
		for _, w := range out.Warnings {
			n.logger.Warn("record normalized with warning",
				"route", routeID, "sheet", fs.SheetID, "column", w.Column, "message", w.Message)
		}
	}
	return out, nil
}

// DryRun reports what Normalize would produce without side effects, plus
// which incoming fields would be dropped. Strict checks are not applied.
func (n *Normalizer) DryRun(routeID string, record map[string]any) (Preview, error) {
	norm, err := n.Normalize(routeID, record, Options{Quiet: true})
	if err != nil {
		return Preview{}, err
	}
	rt, _, _ := n.Schema(routeID)

	used := map[string]bool{
		rt.Provenance.SystemField:    true,
		rt.Provenance.SourceIDField:  true,
		rt.Provenance.TimestampField: true,
	}
	for _, spec := range rt.Fields {
		used[spec.Source] = true
		// a dotted source consumes its top-level field
		if head, _, ok := strings.Cut(spec.Source, "."); ok {
			used[head] = true
		}
	}
	var dropped []string
	for field := range record {
		if !used[field] {
			dropped = append(dropped, field)
		}
	}
	slices.Sort(dropped)
	return Preview{Normalized: norm, Dropped: dropped}, nil
}

func (n *Normalizer) provenance(rt ir.RouteDef, record map[string]any, opts Options) (sheet.Provenance, error) {
	p := sheet.Provenance{RouteID: rt.RouteID}

	if raw, ok := lookup(record, rt.Provenance.SystemField); ok && rt.Provenance.SystemField != "" {
		p.SourceSystem = ir.FromAny(raw).Text()
	}
	if p.SourceSystem == "" {
		p.SourceSystem = rt.Scope
	}
	if p.SourceSystem == "" {
		p.SourceSystem = DefaultSystem
	}

	if raw, ok := lookup(record, rt.Provenance.SourceIDField); ok && rt.Provenance.SourceIDField != "" {
		p.SourceID = ir.FromAny(raw).Text()
	}
	if p.SourceID == "" {
		p.SourceID = n.ids.Generate()
	}

	var ts time.Time
	if raw, ok := lookup(record, rt.Provenance.TimestampField); ok && rt.Provenance.TimestampField != "" {
		ts, _ = parseTime(raw)
	}
	if ts.IsZero() {
		if opts.RequireTimestamp {
			field := rt.Provenance.TimestampField
			if field == "" {
				field = "(unconfigured)"
			}
			return p, fmt.Errorf("%w: route %s field %s", ErrMissingTimestamp, rt.RouteID, field)
		}
		ts = n.now()
	}
	p.IngestedAt = ts.UTC()
	return p, nil
}

// lookup reads field from record; a dotted name falls back to nested maps.
func lookup(record map[string]any, field string) (any, bool) {
	if field == "" {
		return nil, false
	}
	if v, ok := record[field]; ok {
		return v, v != nil
	}
	head, rest, ok := strings.Cut(field, ".")
	if !ok {
		return nil, false
	}
	nested, ok := record[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}

// coerce converts raw to the declared type. It never fails: values that do
// not convert are kept raw and a warning is returned.
func coerce(raw any, typ ir.ColumnType) (ir.Value, string) {
	if raw == nil {
		return ir.Empty(), ""
	}
	switch raw.(type) {
	case map[string]any, []any:
		return ir.Empty(), "nested value ignored"
	}
	v := ir.FromAny(raw)
	if v.Kind() == ir.KindString && strings.TrimSpace(v.Str()) == "" {
		return ir.Empty(), ""
	}

	switch typ {
	case ir.TypeNumber, ir.TypeInteger:
		if f, ok := toNumber(v); ok {
			if typ == ir.TypeInteger && f != math.Trunc(f) {
				return ir.NewNumber(f), "non-integral value for integer column"
			}
			return ir.NewNumber(f), ""
		}
		return v, fmt.Sprintf("%q is not numeric; kept raw", v.Text())
	case ir.TypeBoolean:
		if v.Kind() == ir.KindBool {
			return v, ""
		}
		switch strings.ToLower(strings.TrimSpace(v.Text())) {
		case "true", "yes", "y", "1":
			return ir.NewBool(true), ""
		case "false", "no", "n", "0":
			return ir.NewBool(false), ""
		}
		return v, fmt.Sprintf("%q is not boolean; kept raw", v.Text())
	case ir.TypeDate:
		if t, ok := parseTime(raw); ok {
			return ir.NewString(t.UTC().Format(DateLayout)), ""
		}
		return v, fmt.Sprintf("%q is not a date; kept raw", v.Text())
	default:
		return ir.NewString(v.Text()), ""
	}
}

func toNumber(v ir.Value) (float64, bool) {
	if v.Kind() == ir.KindNumber {
		return v.Float()
	}
	if v.Kind() != ir.KindString {
		return 0, false
	}
	s := strings.ReplaceAll(strings.TrimSpace(v.Str()), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTime(raw any) (time.Time, bool) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
