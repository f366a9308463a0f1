package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/selamnet/selam/internal/config"
	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	NodeName  string
	StorePath string
	AuthorKey string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a node config and database",
		Long: `Initialize a node: write the config file and create the SQLite database.

Generates a fresh author key unless --key is given.

Example:
  selam init --name "market stall"
  selam init --config /data/selam.yaml --db /data/selam.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initNode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.NodeName, "name", "", "human-readable node name")
	cmd.Flags().StringVar(&opts.StorePath, "db", config.DefaultStorePath, "path to SQLite database")
	cmd.Flags().StringVar(&opts.AuthorKey, "key", "", "64-char hex author key (generated if omitted)")

	return cmd
}

func initNode(opts *InitOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(opts.Config); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("config file %s already exists", opts.Config))
	}

	key := opts.AuthorKey
	if key == "" {
		generated, err := envelope.GenerateKey()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to generate author key", err)
		}
		key = generated
	}
	if _, err := envelope.NewDerivedSigner(key); err != nil {
		return WrapExitError(ExitCommandError, "invalid author key", err)
	}

	cfg := &config.Config{
		NodeName:  opts.NodeName,
		StorePath: opts.StorePath,
		AuthorKey: key,
	}
	if err := config.Save(opts.Config, cfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to write config", err)
	}

	// Create the database up front so later commands fail loudly on a bad path.
	st, err := store.Open(opts.StorePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create database", err)
	}
	if err := st.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to close database", err)
	}

	formatter.VerboseLog("config written to %s", opts.Config)
	return formatter.Success(map[string]string{
		"config":        opts.Config,
		"store":         opts.StorePath,
		"author_pubkey": key,
	})
}
