package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollup/internal/scenario"
)

// ErrCodeParse marks a scenario file that could not be parsed at all.
const ErrCodeParse = "E200"

// FileValidation holds the validation result of one scenario file.
type FileValidation struct {
	File   string                     `json:"file"`
	Valid  bool                       `json:"valid"`
	Errors []scenario.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenario files without running them",
		Long: `Parse and check scenario files without running them.

Reports every problem in every file: unknown nodes, duplicate or cyclic
links, malformed steps and values that do not fit the scenario's merge.

Exit codes:
  0 - All files are valid
  1 - One or more files are invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	results := make([]FileValidation, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		r := validateFile(path)
		if !r.Valid {
			invalid++
		}
		results = append(results, r)

		if r.Valid {
			formatter.Printf("✓ %s\n", path)
			continue
		}
		formatter.Printf("✗ %s\n", path)
		for _, e := range r.Errors {
			formatter.Printf("  %s\n", e.Error())
		}
	}

	if formatter.JSON() {
		var cliErr *CLIError
		if invalid > 0 {
			cliErr = &CLIError{Code: ErrCodeLoad, Message: fmt.Sprintf("%d invalid file(s)", invalid)}
		}
		if err := formatter.Respond(results, cliErr); err != nil {
			return err
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid file(s)", invalid))
	}
	return nil
}

func validateFile(path string) FileValidation {
	s, err := scenario.Parse(path)
	if err != nil {
		return FileValidation{
			File:   path,
			Errors: []scenario.ValidationError{{Field: "file", Message: err.Error(), Code: ErrCodeParse}},
		}
	}
	errs := scenario.Validate(s)
	return FileValidation{File: path, Valid: len(errs) == 0, Errors: errs}
}
