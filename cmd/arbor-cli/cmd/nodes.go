package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"arbor/internal/application/commands"
	"arbor/internal/domain"
	"arbor/internal/engine"
)

func newCreateCmd(s *session) *cobra.Command {
	var parentID, data string
	var strict bool

	cmd := &cobra.Command{
		Use:   "create <type> <name>",
		Short: "Create a node",
		Long: `Create a node of a registered type. The node is drafted as a working
copy and committed in one step.

Examples:
  arbor-cli create folder "Reports"
  arbor-cli create document "Summary" --parent <id> --data '{"title":"Q1"}'
  arbor-cli create dataset "Sales" --data @sales.json`,
		Args: cobra.ExactArgs(2),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		raw, err := dataArg(data)
		if err != nil {
			return err
		}
		res := c.CreateNode(ctx, parentID, cmd.Flags().Arg(0), cmd.Flags().Arg(1), raw, policyFlag(strict))
		return report(cmd.OutOrStdout(), "Created", res)
	})
	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "parent node id (default root level)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "entity data as JSON, or @file")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a name conflict instead of renaming")
	return cmd
}

// edit changes an existing node through a working copy
func edit(ctx context.Context, c *engine.Client, id string, patch domain.WorkingCopyPatch, policy domain.NameConflictPolicy) (res commands.CommandResult) {
	wc := c.Submit(ctx, domain.CreateWorkingCopyPayload{NodeID: id})
	if !wc.Success {
		return wc
	}
	res = c.Submit(ctx, domain.UpdateWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID, Patch: patch})
	if res.Success {
		res = c.Submit(ctx, domain.CommitWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID, OnNameConflict: policy})
	}
	if !res.Success {
		c.Submit(ctx, domain.DiscardWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID})
	}
	return res
}

func newRenameCmd(s *session) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a node",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		name := cmd.Flags().Arg(1)
		res := edit(ctx, c, cmd.Flags().Arg(0), domain.WorkingCopyPatch{Name: &name}, policyFlag(strict))
		return report(cmd.OutOrStdout(), "Renamed", res)
	})
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a name conflict instead of renaming")
	return cmd
}

func newUpdateCmd(s *session) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "update <id> --data <json>",
		Short: "Replace a node's entity data",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		raw, err := dataArg(data)
		if err != nil {
			return err
		}
		res := edit(ctx, c, cmd.Flags().Arg(0), domain.WorkingCopyPatch{Data: raw}, "")
		return report(cmd.OutOrStdout(), "Updated", res)
	})
	cmd.Flags().StringVarP(&data, "data", "d", "", "entity data as JSON, or @file")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newMoveCmd(s *session) *cobra.Command {
	var to string
	var strict bool
	cmd := &cobra.Command{
		Use:   "move <id>... [--to <parent-id>]",
		Short: "Move nodes under another parent",
		Long: `Move nodes under another parent. Without --to the nodes move to the
root level. Moving a node below itself is rejected.`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		res := c.Submit(ctx, domain.MoveNodesPayload{NodeIDs: cmd.Flags().Args(), NewParentID: to, OnNameConflict: policyFlag(strict)})
		return report(cmd.OutOrStdout(), "Moved", res)
	})
	cmd.Flags().StringVarP(&to, "to", "t", "", "new parent id (default root level)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a name conflict instead of renaming")
	return cmd
}

func newDuplicateCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicate <id>...",
		Short: "Copy branches next to their originals",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		res := c.Submit(ctx, domain.DuplicateNodesPayload{NodeIDs: cmd.Flags().Args()})
		return report(cmd.OutOrStdout(), "Duplicated", res)
	})
	return cmd
}

func newTrashCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash <id>...",
		Short: "Move branches to the trash",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		res := c.Submit(ctx, domain.MoveToTrashPayload{NodeIDs: cmd.Flags().Args()})
		return report(cmd.OutOrStdout(), "Trashed", res)
	})
	return cmd
}

func newRecoverCmd(s *session) *cobra.Command {
	var fallback string
	cmd := &cobra.Command{
		Use:   "recover <id>...",
		Short: "Restore trashed branches to where they came from",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		res := c.Submit(ctx, domain.RecoverFromTrashPayload{NodeIDs: cmd.Flags().Args(), FallbackParentID: fallback})
		return report(cmd.OutOrStdout(), "Recovered", res)
	})
	cmd.Flags().StringVar(&fallback, "fallback", "", "parent to use when the original one is gone")
	return cmd
}

func newDeleteCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete branches permanently",
		Long: `Delete branches permanently, with their entities. Deleting the trash
root (` + domain.TrashRootID + `) empties the trash.`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		res := c.Submit(ctx, domain.PermanentDeletePayload{NodeIDs: cmd.Flags().Args()})
		return report(cmd.OutOrStdout(), "Deleted", res)
	})
	return cmd
}
