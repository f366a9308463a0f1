package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selamnet/selam/internal/config"
	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/tilepack"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show node identity, log size, and entity counts",
		Long: `Show node status: author key, event log size, entity counts per kind,
outbox depth, and the tile pack install order (flagging dependency cycles).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(rootOpts, cmd)
		},
	}
	return cmd
}

// nodeStatus is the JSON shape of the status response.
type nodeStatus struct {
	NodeName     string         `json:"node_name,omitempty"`
	AuthorPubkey string         `json:"author_pubkey"`
	LogSize      int64          `json:"log_size"`
	Entities     map[string]int `json:"entities"`
	OutboxDepth  int            `json:"outbox_depth"`
	TilePacks    []string       `json:"tile_packs,omitempty"`
	TileCycles   [][]string     `json:"tile_cycles,omitempty"`
}

func showStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	c, st, cfg, err := openNode(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			formatter.VerboseLog("error closing database: %v", closeErr)
		}
	}()

	ctx := cmd.Context()

	logSize, err := c.LogSize(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log size", err)
	}

	counts := map[string]int{}
	for _, kind := range []entity.Kind{entity.KindPin, entity.KindBusiness, entity.KindPromise, entity.KindChat, entity.KindService} {
		list, err := c.Entities(ctx, kind)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list entities", err)
		}
		if len(list) > 0 {
			counts[string(kind)] = len(list)
		}
	}

	outbox, err := c.PendingOutbox(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}

	status := nodeStatus{
		NodeName:     cfg.NodeName,
		AuthorPubkey: c.AuthorPubkey(),
		LogSize:      logSize,
		Entities:     counts,
		OutboxDepth:  len(outbox),
	}

	if len(cfg.TilePacks) > 0 {
		order, cycles, err := tileOrder(cfg.TilePacks)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid tile pack config", err)
		}
		status.TilePacks = order
		status.TileCycles = cycles
	}

	if opts.Format == "json" {
		return formatter.Success(status)
	}

	out := cmd.OutOrStdout()
	if status.NodeName != "" {
		fmt.Fprintf(out, "node:    %s\n", status.NodeName)
	}
	fmt.Fprintf(out, "author:  %s\n", status.AuthorPubkey)
	fmt.Fprintf(out, "log:     %d events\n", status.LogSize)
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(out, "  %-9s %d\n", kind, counts[kind])
	}
	fmt.Fprintf(out, "outbox:  %d pending\n", status.OutboxDepth)
	if len(status.TilePacks) > 0 {
		fmt.Fprintf(out, "tiles:   %s\n", strings.Join(status.TilePacks, " -> "))
	}
	for _, cycle := range status.TileCycles {
		fmt.Fprintf(out, "tile cycle: %s\n", strings.Join(cycle, ", "))
	}
	return nil
}

// tileOrder computes the install order for the configured tile packs.
// Cycles are reported rather than fatal so status still renders.
func tileOrder(packs []config.TilePack) ([]string, [][]string, error) {
	declared := make([]tilepack.Pack, 0, len(packs))
	ids := make([]string, 0, len(packs))
	for _, p := range packs {
		declared = append(declared, tilepack.Pack{ID: p.ID, DependsOn: p.DependsOn})
		ids = append(ids, p.ID)
	}

	resolver, err := tilepack.NewResolver(declared)
	if err != nil {
		return nil, nil, err
	}

	if cycles := resolver.DetectCycles(); len(cycles) > 0 {
		return nil, cycles, nil
	}
	order, err := resolver.InstallOrder(ids...)
	if err != nil {
		return nil, nil, err
	}
	return order, nil, nil
}
