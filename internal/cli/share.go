package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/fault"
)

// NewShareCommand creates the share command.
func NewShareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <entity-id>",
		Short: "Request network sharing for an entity",
		Long: `Request network sharing for an entity.

Runs the quality review; on success the entity moves to pending_review and
joins the outbox. On failure the entity stays personal and the reasons are
printed.

Example:
  selam share pin:market-north`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return shareEntity(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// NewUnshareCommand creates the unshare command.
func NewUnshareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unshare <entity-id>",
		Short: "Return an entity to personal scope",
		Long: `Return an entity to personal scope.

Removes any outbox entry and resets the publication state to local_only.
Collaborators who already received the entity keep their copies.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return unshareEntity(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func shareEntity(opts *RootOptions, entityID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	c, st, _, err := openNode(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			formatter.VerboseLog("error closing database: %v", closeErr)
		}
	}()

	result, err := c.RequestNetworkShare(cmd.Context(), entityID)
	if err != nil {
		return WrapExitError(ExitCommandError, "share request failed", err)
	}

	if !result.Accepted {
		_ = formatter.Error(string(fault.ClassPolicy), "share refused", result.Reasons)
		return NewExitError(ExitFailure, fmt.Sprintf("share refused: %s", strings.Join(result.Reasons, ", ")))
	}

	return formatter.Success(map[string]string{
		"entity_id": entityID,
		"state":     string(entity.StatePendingReview),
	})
}

func unshareEntity(opts *RootOptions, entityID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	c, st, _, err := openNode(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			formatter.VerboseLog("error closing database: %v", closeErr)
		}
	}()

	if err := c.SetScope(cmd.Context(), entityID, entity.ScopePersonal); err != nil {
		return WrapExitError(ExitCommandError, "unshare failed", err)
	}

	return formatter.Success(map[string]string{
		"entity_id": entityID,
		"state":     string(entity.StateLocalOnly),
	})
}
