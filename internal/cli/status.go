package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openftth/gdb-integrator/internal/store"
)

// StatusResult reports how far the integrator has processed the edit log.
type StatusResult struct {
	Checkpoint     int64 `json:"checkpoint"`
	LatestSequence int64 `json:"latest_sequence"`
	Backlog        int64 `json:"backlog"`
}

func (r StatusResult) String() string {
	return fmt.Sprintf("checkpoint=%d latest=%d backlog=%d", r.Checkpoint, r.LatestSequence, r.Backlog)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show edit-log processing lag",
		Long: `Compare the committed checkpoint against the newest edit-log row.

A growing backlog means the integrator is down or falling behind the
GIS editors.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.Database.DSN, cfg.Tolerance, cfg.Database.SRID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	checkpoint, err := st.Checkpoint(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}
	latest, err := st.LatestSequence(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read edit log", err)
	}

	return formatter.Success(StatusResult{
		Checkpoint:     checkpoint,
		LatestSequence: latest,
		Backlog:        latest - checkpoint,
	})
}
