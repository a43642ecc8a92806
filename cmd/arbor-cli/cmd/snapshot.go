package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"arbor/internal/domain"
	"arbor/internal/engine"
)

func newCopyCmd(s *session) *cobra.Command {
	var system bool
	cmd := &cobra.Command{
		Use:   "copy <id>...",
		Short: "Copy branches to the clipboard",
		Long: `Copy branches to the session clipboard, where a later paste finds them.
With --clipboard the snapshot also goes to the system clipboard as JSON.`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		snap, err := c.CopyNodes(ctx, cmd.Flags().Args())
		if err != nil {
			return err
		}
		if system {
			raw, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if err := clipboard.WriteAll(string(raw)); err != nil {
				return fmt.Errorf("system clipboard: %w", err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Copied %d nodes\n", len(snap.Nodes))
		return nil
	})
	cmd.Flags().BoolVar(&system, "clipboard", false, "also copy the snapshot to the system clipboard")
	return cmd
}

func newPasteCmd(s *session) *cobra.Command {
	var parentID string
	var system, strict bool
	cmd := &cobra.Command{
		Use:   "paste",
		Short: "Paste the clipboard under a node",
		Long: `Paste the last copied branches under a node, with fresh node ids.
With --clipboard the snapshot is read from the system clipboard instead.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		payload := domain.PasteNodesPayload{ParentID: parentID, OnNameConflict: policyFlag(strict)}
		if system {
			raw, err := clipboard.ReadAll()
			if err != nil {
				return fmt.Errorf("system clipboard: %w", err)
			}
			snap, err := decodeSnapshot([]byte(raw))
			if err != nil {
				return err
			}
			payload.Snapshot = snap
		}
		return report(cmd.OutOrStdout(), "Pasted", c.Submit(ctx, payload))
	})
	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "parent node id (default root level)")
	cmd.Flags().BoolVar(&system, "clipboard", false, "read the snapshot from the system clipboard")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a name conflict instead of renaming")
	return cmd
}

func newExportCmd(s *session) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <id>...",
		Short: "Write branches to a JSON snapshot",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		snap, err := c.ExportNodes(ctx, cmd.Flags().Args())
		if err != nil {
			return err
		}
		if output == "" || output == "-" {
			return printJSON(cmd.OutOrStdout(), snap)
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		if err := printJSON(f, snap); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d nodes to %s\n", len(snap.Nodes), output)
		return nil
	})
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func newImportCmd(s *session) *cobra.Command {
	var parentID string
	var strict bool
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Insert an exported snapshot",
		Long: `Insert an exported snapshot under a node. Every id in the snapshot is
regenerated, shared resources included.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		var raw []byte
		var err error
		if name := cmd.Flags().Arg(0); name == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(name)
		}
		if err != nil {
			return err
		}
		snap, err := decodeSnapshot(raw)
		if err != nil {
			return err
		}
		res := c.Submit(ctx, domain.ImportNodesPayload{Snapshot: snap, ParentID: parentID, OnNameConflict: policyFlag(strict)})
		return report(cmd.OutOrStdout(), "Imported", res)
	})
	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "parent node id (default root level)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a name conflict instead of renaming")
	return cmd
}

func decodeSnapshot(raw []byte) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("snapshot is not valid JSON: %w", err)
	}
	return &snap, nil
}
