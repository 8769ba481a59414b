package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sheetrelay/internal/formula"
)

// Scenario is one harness run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Definitions is the module/route definition file or directory. A
	// relative path is resolved against the scenario file. When empty the
	// runner supplies the registry.
	Definitions string `yaml:"definitions,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step ingests records through one route.
type Step struct {
	Route   string           `yaml:"route"`
	Records []map[string]any `yaml:"records"`

	Batch            bool `yaml:"batch,omitempty"`
	Strict           bool `yaml:"strict,omitempty"`
	RequireTimestamp bool `yaml:"require_timestamp,omitempty"`

	// Expect checks the ingest outcome. Nil skips the check.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect is the expected outcome of a step. Unset counts are not
// checked. Error is an engine error code such as UNKNOWN_ROUTE.
type StepExpect struct {
	Ingested *int   `yaml:"ingested,omitempty"`
	Failed   *int   `yaml:"failed,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// Assertion checks the final engine state.
type Assertion struct {
	Type string `yaml:"type"`

	// Cell is "Sheet!A1" (cell, formula).
	Cell string `yaml:"cell,omitempty"`

	// Value is the expected scalar (cell, kpi). An omitted value expects
	// an empty cell.
	Value any `yaml:"value,omitempty"`

	// Formula is the expected formula text without "=" (formula, kpi).
	Formula string `yaml:"formula,omitempty"`

	Sheet  string `yaml:"sheet,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	Metric string `yaml:"metric,omitempty"`

	Count *int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertCell          = "cell"
	AssertFormula       = "formula"
	AssertRowCount      = "row_count"
	AssertKPI           = "kpi"
	AssertSnapshotCount = "snapshot_count"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so that
// typos fail loudly. A relative Definitions path is resolved against the
// file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Definitions != "" && !filepath.IsAbs(s.Definitions) {
		s.Definitions = filepath.Join(filepath.Dir(path), s.Definitions)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if step.Route == "" {
			return fmt.Errorf("steps[%d]: route is required", i)
		}
		if len(step.Records) == 0 {
			return fmt.Errorf("steps[%d]: records are required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCell, AssertFormula:
		if _, _, err := formula.SplitAddress(a.Cell); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
		if a.Type == AssertFormula && a.Formula == "" {
			return fmt.Errorf("formula: formula text is required")
		}
	case AssertRowCount:
		if a.Sheet == "" || a.Count == nil {
			return fmt.Errorf("row_count: sheet and count are required")
		}
	case AssertKPI:
		if a.Branch == "" || a.Metric == "" {
			return fmt.Errorf("kpi: branch and metric are required")
		}
	case AssertSnapshotCount:
		if a.Branch == "" || a.Count == nil {
			return fmt.Errorf("snapshot_count: branch and count are required")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
