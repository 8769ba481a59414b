package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where scenario state snapshots live, relative to the
// scenario directory.
const GoldenDir = "golden"

// RunWithGolden runs a scenario, fails t on any scenario error and compares
// the canonical state against testdata/golden/<name>.golden. Regenerate
// with go test -update.
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()

	result, err := Run(context.Background(), s, opts...)
	if err != nil {
		t.Fatalf("run %s: %v", s.Name, err)
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n  %s", s.Name, strings.Join(result.Errors, "\n  "))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, result.State)
	return result
}

// GoldenPath is the golden file for a scenario file.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), GoldenDir, name+".golden")
}

// CompareGolden reports whether result's state matches the golden file.
// A missing golden file is not a mismatch; ok is true and exists false.
func CompareGolden(path string, result *Result) (ok, exists bool, err error) {
	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("read golden file: %w", err)
	}
	return bytes.Equal(bytes.TrimSpace(want), result.State), true, nil
}

// UpdateGolden writes result's state to path.
func UpdateGolden(path string, result *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	if err := os.WriteFile(path, result.State, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
