package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmacphail/suzerain/internal/scenario"
)

// ValidationResult holds validation results for one scenario file.
type ValidationResult struct {
	Path      string `json:"path"`
	Valid     bool   `json:"valid"`
	Name      string `json:"name,omitempty"`
	Countries int    `json:"countries,omitempty"`
	Provinces int    `json:"provinces,omitempty"`
}

func (r ValidationResult) String() string {
	if !r.Valid {
		return fmt.Sprintf("%s: INVALID", r.Path)
	}
	return fmt.Sprintf("%s: ok (%s, %d countries, %d provinces)",
		r.Path, r.Name, r.Countries, r.Provinces)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files against the schema and reference rules
without building a world. Catches bad tags, floats where decimal strings
belong, out-of-range values, and dangling owner references.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	failed := 0
	for _, path := range paths {
		s, err := scenario.Load(path)
		if err != nil {
			failed++
			// Error always returns an ExitError, aggregated below.
			_ = formatter.Error(ExitFailure, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		result := ValidationResult{
			Path:      path,
			Valid:     true,
			Name:      s.Name,
			Countries: len(s.Countries),
			Provinces: len(s.Provinces),
		}
		if err := formatter.Success(result); err != nil {
			return err
		}
	}

	if failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d of %d file(s) invalid", failed, len(paths))}
	}
	return nil
}
