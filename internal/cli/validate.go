package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/pulse/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	Path     string   `json:"path"`
	Name     string   `json:"name,omitempty"`
	Valid    bool     `json:"valid"`
	Code     string   `json:"code,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>",
		Short: "Check scenario files against the schema",
		Long: `Validate scenario files without running them.

Every .yaml/.yml file is checked against the embedded CUE schema, decoded
with unknown fields rejected, and checked for consistency (durations,
assertion fields, panics without error capture).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := findScenarioFiles(path, "")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("path not found: %s", path), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("path not found: %s", path))
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to scan scenarios", err)
	}
	if len(files) == 0 {
		_ = formatter.Error(ErrCodeNoFiles, fmt.Sprintf("no scenario files found in %s", path), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files found in %s", path))
	}

	result := ValidationResult{Valid: true}
	for _, f := range files {
		formatter.VerboseLog("Validating %s", f)
		fv := validateFile(f)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeSchema, Message: "validation failed"}
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(w, "✓ %s\n", fv.Path)
				continue
			}
			fmt.Fprintf(w, "✗ %s [%s]\n", fv.Path, fv.Code)
			for _, p := range fv.Problems {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(path string) FileValidation {
	sc, err := harness.LoadScenario(path)
	if err != nil {
		fv := FileValidation{Path: path, Code: loadErrorCode(err)}
		var schemaErr *harness.SchemaError
		if errors.As(err, &schemaErr) {
			fv.Problems = schemaErr.Violations
		} else {
			fv.Problems = []string{err.Error()}
		}
		return fv
	}
	return FileValidation{Path: path, Name: sc.Name, Valid: true}
}

// loadErrorCode maps a harness.LoadScenario error to an error code.
func loadErrorCode(err error) string {
	var schemaErr *harness.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return ErrCodeSchema
	case errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	default:
		return ErrCodeInvalid
	}
}
