package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/registry"
	"github.com/roach88/sheetrelay/internal/route"
	"github.com/roach88/sheetrelay/internal/testutil"
)

// Result is the outcome of one scenario run.
type Result struct {
	Pass   bool               `json:"pass"`
	Errors []string           `json:"errors,omitempty"`
	Steps  []StepResult       `json:"steps"`
	Hashes engine.StateHashes `json:"hashes"`

	// State is the canonical JSON of every sheet and KPI history.
	State []byte `json:"-"`
}

// StepResult summarizes one ingest step.
type StepResult struct {
	Route    string `json:"route"`
	Ingested int    `json:"ingested"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

func newResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures a run.
type Option func(*runner)

// WithLogger sets the engine logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option { return func(r *runner) { r.logger = l } }

// WithRegistry supplies definitions, overriding the scenario's own path.
func WithRegistry(reg *registry.Registry) Option { return func(r *runner) { r.reg = reg } }

type runner struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// Run executes a scenario against a fresh in-memory engine. Step and
// assertion mismatches are reported in the Result; an error means the
// scenario could not run at all.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	if r.reg == nil {
		if s.Definitions == "" {
			return nil, errors.New("scenario names no definitions and none were supplied")
		}
		reg, err := registry.Load(s.Definitions)
		if err != nil {
			return nil, fmt.Errorf("load definitions: %w", err)
		}
		r.reg = reg
	}

	eng := engine.New(r.reg,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithLogger(r.logger),
		engine.WithNormalizerOptions(
			route.WithIDGenerator(route.NewSequenceGenerator(s.Name)),
			route.WithNow(testutil.NewStepClock(testutil.Epoch, time.Second).Now),
		))

	result := newResult()
	for i, step := range s.Steps {
		result.Steps = append(result.Steps, runStep(ctx, eng, i, step, result))
	}
	for i, a := range s.Assertions {
		if err := evaluate(eng, a); err != nil {
			result.addError("assertions[%d] %s: %v", i, a.Type, err)
		}
	}

	hashes, err := eng.Hashes()
	if err != nil {
		return nil, fmt.Errorf("hash state: %w", err)
	}
	result.Hashes = hashes
	state, err := ir.MarshalCanonical(eng.CanonicalState())
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	result.State = state
	return result, nil
}

func runStep(ctx context.Context, eng *engine.Engine, i int, step Step, result *Result) StepResult {
	out := StepResult{Route: step.Route}
	res, err := eng.Ingest(ctx, step.Route, step.Records, engine.IngestOptions{
		Batch:            step.Batch,
		Strict:           step.Strict,
		RequireTimestamp: step.RequireTimestamp,
	})
	if err != nil {
		out.Error = string(engine.CodeOf(err))
	} else {
		out.Ingested = res.Ingested
		out.Failed = res.Failed
	}

	exp := step.Expect
	if exp == nil {
		if err != nil {
			result.addError("steps[%d] %s: %v", i, step.Route, err)
		}
		return out
	}
	if out.Error != exp.Error {
		result.addError("steps[%d] %s: error %q, want %q", i, step.Route, out.Error, exp.Error)
	}
	if exp.Ingested != nil && out.Ingested != *exp.Ingested {
		result.addError("steps[%d] %s: ingested %d, want %d", i, step.Route, out.Ingested, *exp.Ingested)
	}
	if exp.Failed != nil && out.Failed != *exp.Failed {
		result.addError("steps[%d] %s: failed %d, want %d", i, step.Route, out.Failed, *exp.Failed)
	}
	return out
}
