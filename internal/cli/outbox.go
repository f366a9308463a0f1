package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewOutboxCommand creates the outbox command.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "List entities queued for network delivery",
		Long: `List entities queued for network delivery, in enqueue order.

Entries carry the publication state and any recorded delivery failure.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listOutbox(rootOpts, cmd)
		},
	}
	return cmd
}

// outboxRow is the JSON shape of one outbox entry.
type outboxRow struct {
	EntityID string   `json:"entity_id"`
	Kind     string   `json:"kind"`
	State    string   `json:"state"`
	Reasons  []string `json:"reasons,omitempty"`
	Seq      int64    `json:"seq"`
}

func listOutbox(opts *RootOptions, cmd *cobra.Command) error {
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

	entries, err := c.PendingOutbox(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}

	if opts.Format == "json" {
		rows := make([]outboxRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, outboxRow{
				EntityID: e.EntityID,
				Kind:     string(e.EntityKind),
				State:    string(e.PublishState),
				Reasons:  e.Reasons,
				Seq:      e.EnqueuedSeq,
			})
		}
		return formatter.Success(rows)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "outbox empty")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-6d %-30s %s", e.EnqueuedSeq, e.EntityID, e.PublishState)
		if len(e.Reasons) > 0 {
			line += "  (" + strings.Join(e.Reasons, ", ") + ")"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
