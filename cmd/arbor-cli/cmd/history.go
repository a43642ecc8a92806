package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"arbor/internal/domain"
	"arbor/internal/engine"
)

// Undo history lives in the running engine, so these are mostly useful
// inside the shell

func newUndoCmd(s *session) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Revert the latest command",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		if err := report(cmd.OutOrStdout(), "Undone", c.Submit(ctx, domain.UndoPayload{GroupID: group})); err != nil {
			return err
		}
		printDepth(cmd, c)
		return nil
	})
	cmd.Flags().StringVarP(&group, "group", "g", "", "undo the latest command of this group")
	return cmd
}

func newRedoCmd(s *session) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "redo",
		Short: "Re-apply the latest undone command",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		if err := report(cmd.OutOrStdout(), "Redone", c.Submit(ctx, domain.RedoPayload{GroupID: group})); err != nil {
			return err
		}
		printDepth(cmd, c)
		return nil
	})
	cmd.Flags().StringVarP(&group, "group", "g", "", "redo the latest command of this group")
	return cmd
}

func printDepth(cmd *cobra.Command, c *engine.Client) {
	undo, redo := c.HistoryDepth()
	fmt.Fprintf(cmd.OutOrStdout(), "  %d to undo, %d to redo\n", undo, redo)
}
