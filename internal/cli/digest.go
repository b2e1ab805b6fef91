package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmacphail/suzerain/internal/diplomacy"
	"github.com/tmacphail/suzerain/internal/scenario"
	"github.com/tmacphail/suzerain/internal/sim"
)

// DigestResult holds the initial-state digest of a scenario.
type DigestResult struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

func (r DigestResult) String() string {
	return fmt.Sprintf("%s  %s", r.Digest, r.Path)
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest <scenario.yaml>",
		Short: "Print the initial-state digest of a scenario",
		Long: `Build the world described by a scenario file and print its state
digest. Two hosts loading the same file must print the same digest;
a mismatch means the builds are not replay compatible.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(rootOpts, args[0], cmd)
		},
	}
}

func runDigest(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	s, err := scenario.Load(path)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to load scenario: %v", err))
	}

	ctx, err := scenario.Apply(s, sim.Config{})
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to build world: %v", err))
	}
	defer ctx.Dispose()
	if err := diplomacy.NewStore(ctx.Bus, 64).Attach(ctx); err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to attach diplomacy: %v", err))
	}

	return formatter.Success(DigestResult{
		Path:   path,
		Name:   s.Name,
		Digest: ctx.Digest(),
	})
}
