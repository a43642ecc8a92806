package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"arbor/internal/adapters/tui"
	"arbor/internal/adapters/tui/views"
	"arbor/internal/application/events"
	"arbor/internal/engine"
)

func newWatchCmd(s *session) *cobra.Command {
	var opts events.SubtreeOptions
	var asJSON bool
	var count int
	cmd := &cobra.Command{
		Use:   "watch [root-id]",
		Short: "Stream change events for a branch",
		Long: `Stream change events for a branch, or for the whole tree without an id,
until interrupted. With --initial the current branch is sent first as a
snapshot event.`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		sub, err := c.SubscribeSubtree(ctx, cmd.Flags().Arg(0), opts)
		if err != nil {
			return err
		}
		defer sub.Cancel()

		w := cmd.OutOrStdout()
		enc := json.NewEncoder(w)
		for seen := 0; count <= 0 || seen < count; seen++ {
			select {
			case <-ctx.Done():
				return nil
			case err := <-sub.Errors:
				return err
			case ev, ok := <-sub.Events:
				if !ok {
					return nil
				}
				if asJSON {
					if err := enc.Encode(ev); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(w, views.FormatEvent(ev))
			}
		}
		return nil
	})
	cmd.Flags().BoolVar(&opts.IncludeInitialValue, "initial", false, "start with a snapshot of the branch")
	cmd.Flags().IntVar(&opts.MaxDepth, "depth", 0, "only events this many levels below the root (default unbounded)")
	cmd.Flags().StringSliceVar(&opts.NodeTypes, "type", nil, "only events about these node types")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON lines")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many events")
	return cmd
}

func newTUICmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Browse and edit the tree in a terminal UI",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		return tui.Run(ctx, c)
	})
	return cmd
}
