// Package cli implements the selam node command-line tool.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/selamnet/selam/internal/config"
	"github.com/selamnet/selam/internal/core"
	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to the node config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the selam CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "selam",
		Short: "Selam - local-first community mesh node",
		Long:  "A local-first sync node for a mesh community app: signed event log, conflict-free merge, and a local-vs-network publication lifecycle.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "selam.yaml", "path to node config file")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewShareCommand(opts))
	cmd.AddCommand(NewUnshareCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// openNode loads the config, opens the store, and wires a Core.
// The caller must Close the returned store.
func openNode(opts *RootOptions) (*core.Core, *store.Store, *config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	signer, err := envelope.NewDerivedSigner(cfg.AuthorKey)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "invalid author key", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	c, err := core.New(st, signer, func() int64 { return time.Now().Unix() })
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to start node core", err)
	}

	return c, st, cfg, nil
}
