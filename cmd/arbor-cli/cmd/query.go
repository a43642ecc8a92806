package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"arbor/internal/application/query"
	"arbor/internal/domain"
	"arbor/internal/engine"
)

func newListCmd(s *session) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list [parent-id]",
		Short: "List the children of a node",
		Long: `List the children of a node, ordered by name. Without an id lists the
root level. Use "` + domain.TrashRootID + `" to list the trash.`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		page, err := c.GetChildren(ctx, cmd.Flags().Arg(0), offset, limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(page.Nodes) == 0 {
			fmt.Fprintln(w, "No nodes.")
			return nil
		}
		for _, n := range page.Nodes {
			printNode(w, "", n)
		}
		if page.HasMore {
			fmt.Fprintf(w, "... %d more (use --offset %d)\n", page.Total-page.Offset-len(page.Nodes), page.Offset+len(page.Nodes))
		}
		return nil
	})
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many children")
	cmd.Flags().IntVar(&limit, "limit", query.DefaultPageSize, "page size")
	return cmd
}

func newTreeCmd(s *session) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree [root-id]",
		Short: "Display a branch, or the whole tree, indented",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		var roots []domain.TreeNode
		maxDepth := depth
		if id := cmd.Flags().Arg(0); id != "" {
			node, err := c.GetNode(ctx, id)
			if err != nil {
				return err
			}
			roots = []domain.TreeNode{*node}
		} else {
			page, err := c.GetChildren(ctx, "", 0, 0)
			if err != nil {
				return err
			}
			roots = page.Nodes
			if maxDepth > 0 {
				maxDepth--
			}
		}

		w := cmd.OutOrStdout()
		if len(roots) == 0 {
			fmt.Fprintln(w, "Empty tree.")
			return nil
		}
		for _, root := range roots {
			below := []domain.TreeNode{}
			if maxDepth != 0 {
				var err error
				if below, err = c.GetDescendants(ctx, root.ID, maxDepth); err != nil {
					return err
				}
			}
			printTree(w, root, below)
		}
		return nil
	})
	cmd.Flags().IntVar(&depth, "depth", -1, "maximum depth to show (default unbounded)")
	return cmd
}

func printTree(w io.Writer, root domain.TreeNode, below []domain.TreeNode) {
	children := map[string][]domain.TreeNode{}
	for _, n := range below {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	var walk func(n domain.TreeNode, depth int)
	walk = func(n domain.TreeNode, depth int) {
		fmt.Fprintf(w, "%s%s [%s]  %s\n", strings.Repeat("  ", depth), n.Name, n.NodeType, n.ID)
		kids := children[n.ID]
		domain.SortNodes(kids)
		for _, k := range kids {
			walk(k, depth+1)
		}
	}
	walk(root, 0)
}

func newGetCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a node and its entity data as JSON",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		node, err := c.GetNode(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		data, err := c.EntityData(ctx, *node)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			*domain.TreeNode
			Data json.RawMessage `json:"data,omitempty"`
		}{node, data})
	})
	return cmd
}

func newPathCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path <id>",
		Short: "Print the path from the top of the tree to a node",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		path, err := c.GetPathToRoot(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		names := make([]string, len(path))
		for i, n := range path {
			names[i] = n.Name
		}
		fmt.Fprintln(cmd.OutOrStdout(), "/"+strings.Join(names, "/"))
		return nil
	})
	return cmd
}

func newSearchCmd(s *session) *cobra.Command {
	var opts query.SearchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find nodes by name",
		Long: `Find nodes by name. Matching is case-insensitive; exact and prefix
matches rank first. With --regex the query is a regular expression.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		opts.Query = cmd.Flags().Arg(0)
		results, err := c.SearchNodes(ctx, opts)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(w, "No results.")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(w, "%s  %s  [%s]\n", r.Node.ID, r.Path, r.Node.NodeType)
		}
		return nil
	})
	cmd.Flags().BoolVar(&opts.Regex, "regex", false, "treat the query as a regular expression")
	cmd.Flags().StringVar(&opts.NodeType, "type", "", "only nodes of this type")
	cmd.Flags().BoolVar(&opts.IncludeTrash, "trash", false, "include trashed nodes")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of results")
	return cmd
}

func newTypesCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the registered node types",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		for _, t := range c.Types() {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	})
	return cmd
}

func newDraftsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List open working copies",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = s.run(func(ctx context.Context, c *engine.Client) error {
		drafts, err := c.ListWorkingCopies(ctx)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(drafts) == 0 {
			fmt.Fprintln(w, "No drafts.")
			return nil
		}
		for _, wc := range drafts {
			target := "new"
			if wc.NodeID != "" {
				target = wc.NodeID
			}
			fmt.Fprintf(w, "%s  %s  [%s]  %s\n", wc.ID, wc.Name, wc.NodeType, target)
		}
		return nil
	})
	return cmd
}
