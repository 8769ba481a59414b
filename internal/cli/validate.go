package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sheetrelay/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Modules  int                        `json:"modules"`
	Routes   int                        `json:"routes"`
	Errors   []registry.ValidationError `json:"errors,omitempty"`
	Warnings []registry.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [definitions]",
		Short: "Validate module and route definitions",
		Long: `Validate module and route definitions without starting the engine.

Reads every .yaml, .yml and .cue file under the path (default: the
configured definitions) and reports every problem found. Warnings leave
the definitions usable; errors do not.

Exit codes:
  0 - Definitions are valid (warnings allowed)
  1 - One or more errors
  2 - Definitions could not be read`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config.Definitions
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	defs, err := registry.LoadDir(path)
	if err != nil {
		code := registry.ErrCodeNotFound
		var le *registry.LoadError
		if errors.As(err, &le) {
			code = le.Code
		}
		_ = f.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load definitions", err)
	}

	result := ValidationResult{Valid: true, Modules: len(defs.Modules), Routes: len(defs.Routes)}
	for _, v := range registry.Validate(defs) {
		if v.IsWarning() {
			result.Warnings = append(result.Warnings, v)
			continue
		}
		result.Errors = append(result.Errors, v)
		result.Valid = false
	}

	if err := f.Success(result, func(w io.Writer) { printValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}

func printValidation(w io.Writer, r ValidationResult) {
	for _, e := range r.Errors {
		fmt.Fprintf(w, "✗ %s\n", e.Error())
	}
	for _, e := range r.Warnings {
		fmt.Fprintf(w, "! %s\n", e.Error())
	}
	if r.Valid {
		fmt.Fprintf(w, "✓ Definitions valid (%d modules, %d routes)\n", r.Modules, r.Routes)
	}
}
