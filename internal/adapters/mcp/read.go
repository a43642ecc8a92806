// Package mcp exposes the tree engine as MCP tools
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"arbor/internal/application/commands"
	"arbor/internal/application/query"
	"arbor/internal/domain"
)

// Engine is what the tools need from the engine client
type Engine interface {
	SubmitGroup(ctx context.Context, groupID string, payload domain.Payload) commands.CommandResult
	CreateNode(ctx context.Context, parentID, nodeType, name string, data json.RawMessage, policy domain.NameConflictPolicy) commands.CommandResult

	GetNode(ctx context.Context, id string) (*domain.TreeNode, error)
	GetChildren(ctx context.Context, parentID string, offset, limit int) (*query.Page, error)
	GetDescendants(ctx context.Context, id string, maxDepth int) ([]domain.TreeNode, error)
	GetPathToRoot(ctx context.Context, id string) ([]domain.TreeNode, error)
	FilterNodesByType(ctx context.Context, nodeType string, includeTrash bool) ([]domain.TreeNode, error)
	SearchNodes(ctx context.Context, opts query.SearchOptions) ([]query.SearchResult, error)
	EntityData(ctx context.Context, node domain.TreeNode) (json.RawMessage, error)
	CopyNodes(ctx context.Context, ids []string) (*domain.Snapshot, error)
	ExportNodes(ctx context.Context, ids []string) (*domain.Snapshot, error)
	ListWorkingCopies(ctx context.Context) ([]domain.WorkingCopy, error)
}

// RegisterReadTools adds all read-only tree tools to the MCP server.
func RegisterReadTools(s *server.MCPServer, eng Engine) {
	s.AddTool(listTool(), listHandler(eng))
	s.AddTool(getTool(), getHandler(eng))
	s.AddTool(treeTool(), treeHandler(eng))
	s.AddTool(pathTool(), pathHandler(eng))
	s.AddTool(searchTool(), searchHandler(eng))
	s.AddTool(byTypeTool(), byTypeHandler(eng))
	s.AddTool(exportTool(), exportHandler(eng))
	s.AddTool(workingCopiesTool(), workingCopiesHandler(eng))
}

// --- list ---

func listTool() mcp.Tool {
	return mcp.NewTool("list",
		mcp.WithDescription("List the children of a node, sorted by name. Without a parent lists the root level."),
		mcp.WithString("parent_id",
			mcp.Description("Parent node ID. Omit for the root level; use __trash__ for the trash."),
		),
		mcp.WithNumber("offset", mcp.Description("Number of children to skip")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 100)")),
	)
}

func listHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		page, err := eng.GetChildren(ctx, req.GetString("parent_id", ""), req.GetInt("offset", 0), req.GetInt("limit", 0))
		if err != nil {
			return toolError(err)
		}
		if len(page.Nodes) == 0 {
			return mcp.NewToolResultText("No results."), nil
		}
		var sb strings.Builder
		for _, n := range page.Nodes {
			sb.WriteString(formatNode(n))
			sb.WriteByte('\n')
		}
		if page.HasMore {
			next := page.Offset + len(page.Nodes)
			fmt.Fprintf(&sb, "%d of %d shown, continue with offset=%d\n", len(page.Nodes), page.Total, next)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- get ---

func getTool() mcp.Tool {
	return mcp.NewTool("get",
		mcp.WithDescription("Show one node with its entity data as JSON."),
		mcp.WithString("id",
			mcp.Description("Node ID"),
			mcp.Required(),
		),
	)
}

func getHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		node, err := eng.GetNode(ctx, req.GetString("id", ""))
		if err != nil {
			return toolError(err)
		}
		data, err := eng.EntityData(ctx, *node)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(struct {
			Node *domain.TreeNode `json:"node"`
			Data json.RawMessage  `json:"data,omitempty"`
		}{node, data})
	}
}

// --- tree ---

func treeTool() mcp.Tool {
	return mcp.NewTool("tree",
		mcp.WithDescription("Display a branch as an indented tree. Without an ID shows the whole tree."),
		mcp.WithString("id", mcp.Description("Branch root node ID")),
		mcp.WithNumber("depth", mcp.Description("Maximum depth below the root (default unbounded)")),
	)
}

func treeHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("id", "")
		depth := req.GetInt("depth", -1)

		var roots []domain.TreeNode
		if id == "" {
			page, err := eng.GetChildren(ctx, "", 0, 0)
			if err != nil {
				return toolError(err)
			}
			roots = page.Nodes
			if depth > 0 {
				depth--
			}
		} else {
			node, err := eng.GetNode(ctx, id)
			if err != nil {
				return toolError(err)
			}
			roots = []domain.TreeNode{*node}
		}

		var sb strings.Builder
		for _, root := range roots {
			below, err := eng.GetDescendants(ctx, root.ID, depth)
			if err != nil {
				return toolError(err)
			}
			renderTree(&sb, root, below)
		}
		if sb.Len() == 0 {
			return mcp.NewToolResultText("Empty tree."), nil
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// renderTree prints root and its descendants, children sorted by name
func renderTree(sb *strings.Builder, root domain.TreeNode, below []domain.TreeNode) {
	children := map[string][]domain.TreeNode{}
	for _, n := range below {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	var walk func(n domain.TreeNode, prefix string)
	walk = func(n domain.TreeNode, prefix string) {
		fmt.Fprintf(sb, "%s%s  %s  [%s]\n", prefix, n.ID, n.Name, n.NodeType)
		kids := children[n.ID]
		domain.SortNodes(kids)
		for _, c := range kids {
			walk(c, prefix+"  ")
		}
	}
	walk(root, "")
}

// --- path ---

func pathTool() mcp.Tool {
	return mcp.NewTool("path",
		mcp.WithDescription("Show the chain of nodes from the root level down to a node."),
		mcp.WithString("id",
			mcp.Description("Node ID"),
			mcp.Required(),
		),
	)
}

func pathHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		chain, err := eng.GetPathToRoot(ctx, req.GetString("id", ""))
		if err != nil {
			return toolError(err)
		}
		names := make([]string, len(chain))
		for i, n := range chain {
			names[i] = n.Name
		}
		return mcp.NewToolResultText("/" + strings.Join(names, "/")), nil
	}
}

// --- search ---

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Search node names. Returns matches with their paths, best first."),
		mcp.WithString("query",
			mcp.Description("Substring to look for, or a regular expression when regex is set"),
			mcp.Required(),
		),
		mcp.WithBoolean("regex", mcp.Description("Treat the query as a regular expression")),
		mcp.WithString("node_type", mcp.Description("Only nodes of this type")),
		mcp.WithBoolean("include_trash", mcp.Description("Also search the trash")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	)
}

func searchHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		results, err := eng.SearchNodes(ctx, query.SearchOptions{
			Query:        req.GetString("query", ""),
			Regex:        req.GetBool("regex", false),
			NodeType:     req.GetString("node_type", ""),
			IncludeTrash: req.GetBool("include_trash", false),
			Limit:        req.GetInt("limit", 0),
		})
		if err != nil {
			return toolError(err)
		}

		if len(results) == 0 {
			return mcp.NewToolResultText("No results found."), nil
		}

		var sb strings.Builder
		for _, r := range results {
			fmt.Fprintf(&sb, "%s  %s  [%s]\n", r.Node.ID, r.Path, r.Node.NodeType)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- by_type ---

func byTypeTool() mcp.Tool {
	return mcp.NewTool("by_type",
		mcp.WithDescription("List every node of one type, outside the trash unless asked."),
		mcp.WithString("node_type",
			mcp.Description("Node type, e.g. folder, document, dataset, stylemap"),
			mcp.Required(),
		),
		mcp.WithBoolean("include_trash", mcp.Description("Include trashed nodes")),
	)
}

func byTypeHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		nodes, err := eng.FilterNodesByType(ctx, req.GetString("node_type", ""), req.GetBool("include_trash", false))
		if err != nil {
			return toolError(err)
		}
		return formatNodes(nodes)
	}
}

// --- export ---

func exportTool() mcp.Tool {
	return mcp.NewTool("export",
		mcp.WithDescription("Export branches with entity data and shared resources as a JSON snapshot that import accepts."),
		mcp.WithString("node_ids",
			mcp.Description("Comma separated node IDs"),
			mcp.Required(),
		),
	)
}

func exportHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := eng.ExportNodes(ctx, splitIDs(req.GetString("node_ids", "")))
		if err != nil {
			return toolError(err)
		}
		return jsonResult(snap)
	}
}

// --- working_copies ---

func workingCopiesTool() mcp.Tool {
	return mcp.NewTool("working_copies",
		mcp.WithDescription("List open working copies and drafts."),
	)
}

func workingCopiesHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wcs, err := eng.ListWorkingCopies(ctx)
		if err != nil {
			return toolError(err)
		}
		if len(wcs) == 0 {
			return mcp.NewToolResultText("No results."), nil
		}
		var sb strings.Builder
		for _, wc := range wcs {
			kind := "edit of " + wc.NodeID
			if wc.IsDraft {
				kind = "draft under " + orRoot(wc.ParentID)
			}
			fmt.Fprintf(&sb, "%s  %s  [%s]  %s\n", wc.ID, wc.Name, wc.NodeType, kind)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- helpers ---

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func formatNodes(nodes []domain.TreeNode) (*mcp.CallToolResult, error) {
	if len(nodes) == 0 {
		return mcp.NewToolResultText("No results."), nil
	}
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(formatNode(n))
		sb.WriteByte('\n')
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func formatNode(n domain.TreeNode) string {
	line := fmt.Sprintf("%s  %s  [%s]", n.ID, n.Name, n.NodeType)
	if n.HasChildren {
		line += fmt.Sprintf("  (%d below)", n.DescendantCount)
	}
	return line
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func orRoot(id string) string {
	if id == "" {
		return "root"
	}
	return id
}
