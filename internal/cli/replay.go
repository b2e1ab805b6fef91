package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmacphail/suzerain/internal/diplomacy"
	"github.com/tmacphail/suzerain/internal/savegame"
	"github.com/tmacphail/suzerain/internal/scenario"
	"github.com/tmacphail/suzerain/internal/sim"
)

// ReplayResult holds the outcome of replaying a saved session.
type ReplayResult struct {
	Token    string `json:"token"`
	Scenario string `json:"scenario"`
	Replayed int    `json:"replayed"`
	Tick     uint32 `json:"tick"`
	Digest   string `json:"digest"`
	Verified bool   `json:"verified"`
}

func (r ReplayResult) String() string {
	verified := "no checkpoint"
	if r.Verified {
		verified = "verified"
	}
	return fmt.Sprintf("session %s: %d command(s) replayed to tick %d (%s)\ndigest %s",
		r.Token, r.Replayed, r.Tick, verified, r.Digest)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <session-token>",
		Short: "Replay a saved session and verify its digest",
		Long: `Rebuild a saved session from its scenario and persisted command log,
then verify the replayed state against the stored digest checkpoint.
A mismatch means the scenario or the code changed since the save was
written, and the session is no longer trustworthy.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], cmd)
		},
	}
}

func runReplay(opts *RootOptions, token string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	store, err := savegame.Open(opts.SavePath)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to open save: %v", err))
	}
	defer store.Close()

	sess, err := store.GetSession(cmd.Context(), token)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to find session: %v", err))
	}

	scn, err := scenario.Load(sess.Scenario)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to load scenario: %v", err))
	}

	simctx, err := scenario.Apply(scn, sim.Config{})
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to build world: %v", err))
	}
	defer simctx.Dispose()
	if err := diplomacy.NewStore(simctx.Bus, 64).Attach(simctx); err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to attach diplomacy: %v", err))
	}

	_, loaded, err := store.Load(cmd.Context(), token, simctx)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to replay session: %v", err))
	}

	return formatter.Success(ReplayResult{
		Token:    token,
		Scenario: sess.Scenario,
		Replayed: loaded.Replayed,
		Tick:     simctx.Tick(),
		Digest:   loaded.Digest,
		Verified: loaded.DigestVerified,
	})
}
