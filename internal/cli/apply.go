package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selamnet/selam/internal/transport"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	EventID   string
	EventType string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [frame-file]",
		Short: "Apply an inbound event frame",
		Long: `Apply an inbound event frame received from a collaborator.

Reads the frame from the given file, or from stdin when the argument is
omitted or "-". The optional --event-id and --event-type flags carry the
transport metadata tags and are cross-checked against the frame contents.

Exit code 1 means the event was rejected; the reason is printed.

Example:
  selam apply frame.txt
  cat frame.txt | selam apply --event-id 0198... --event-type pin-create`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			return applyFrame(opts, source, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EventID, "event-id", "", "expected event ID from transport metadata")
	cmd.Flags().StringVar(&opts.EventType, "event-type", "", "expected event type from transport metadata")

	return cmd
}

func applyFrame(opts *ApplyOptions, source string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var raw []byte
	var err error
	if source == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frame", err)
	}

	c, st, _, err := openNode(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			formatter.VerboseLog("error closing database: %v", closeErr)
		}
	}()

	tags := transport.Tags{EventID: opts.EventID, EventType: opts.EventType}
	result := c.ApplyInbound(cmd.Context(), strings.TrimSpace(string(raw)), tags)

	if !result.Applied {
		_ = formatter.Rejection(result.Reason, nil)
		return NewExitError(ExitFailure, fmt.Sprintf("event not applied: %s", result.Reason))
	}

	data := map[string]string{"applied": "true"}
	if result.Entity != nil {
		data["entity_id"] = result.Entity.ID
	}
	return formatter.Success(data)
}
