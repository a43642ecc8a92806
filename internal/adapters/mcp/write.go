package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"arbor/internal/application/commands"
	"arbor/internal/domain"
)

// RegisterWriteTools adds all tree mutation tools to the MCP server.
func RegisterWriteTools(s *server.MCPServer, eng Engine) {
	s.AddTool(createTool(), createHandler(eng))
	s.AddTool(updateTool(), updateHandler(eng))
	s.AddTool(moveTool(), moveHandler(eng))
	s.AddTool(duplicateTool(), duplicateHandler(eng))
	s.AddTool(copyTool(), copyHandler(eng))
	s.AddTool(pasteTool(), pasteHandler(eng))
	s.AddTool(importTool(), importHandler(eng))
	s.AddTool(trashTool(), trashHandler(eng))
	s.AddTool(recoverTool(), recoverHandler(eng))
	s.AddTool(deleteTool(), deleteHandler(eng))
	s.AddTool(undoTool(), undoHandler(eng))
	s.AddTool(redoTool(), redoHandler(eng))
}

var (
	groupOption    = mcp.WithString("group_id", mcp.Description("Undo group: consecutive commands with the same group undo together"))
	conflictOption = mcp.WithString("on_name_conflict", mcp.Description("auto-rename (default) or error"), mcp.Enum("auto-rename", "error"))
	nodeIDsOption  = mcp.WithString("node_ids", mcp.Description("Comma separated node IDs"), mcp.Required())
)

func policy(req mcp.CallToolRequest) domain.NameConflictPolicy {
	return domain.NameConflictPolicy(req.GetString("on_name_conflict", ""))
}

// --- create ---

func createTool() mcp.Tool {
	return mcp.NewTool("create",
		mcp.WithDescription("Create a node. Name collisions get a numbered suffix unless on_name_conflict=error."),
		mcp.WithString("parent_id", mcp.Description("Parent node ID. Omit to create at the root level.")),
		mcp.WithString("node_type", mcp.Description("Registered node type"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Display name"), mcp.Required()),
		mcp.WithString("data", mcp.Description("Entity data as JSON")),
		conflictOption,
	)
}

func createHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := rawJSON(req.GetString("data", ""))
		if err != nil {
			return toolError(err)
		}
		res := eng.CreateNode(ctx, req.GetString("parent_id", ""), req.GetString("node_type", ""), req.GetString("name", ""), data, policy(req))
		return commandResult("Created", res)
	}
}

// --- update ---

func updateTool() mcp.Tool {
	return mcp.NewTool("update",
		mcp.WithDescription("Rename a node and/or replace its entity data through a working copy. Fails with COMMIT_CONFLICT if the node changed meanwhile."),
		mcp.WithString("id", mcp.Description("Node ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("data", mcp.Description("New entity data as JSON")),
		conflictOption,
		groupOption,
	)
}

func updateHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var patch domain.WorkingCopyPatch
		if name := req.GetString("name", ""); name != "" {
			patch.Name = &name
		}
		data, err := rawJSON(req.GetString("data", ""))
		if err != nil {
			return toolError(err)
		}
		patch.Data = data
		if patch.IsEmpty() {
			return toolError(fmt.Errorf("nothing to update: give a name or data"))
		}

		group := req.GetString("group_id", "")
		wc := eng.SubmitGroup(ctx, group, domain.CreateWorkingCopyPayload{NodeID: req.GetString("id", "")})
		if !wc.Success {
			return commandResult("", wc)
		}
		discard := func() {
			eng.SubmitGroup(ctx, group, domain.DiscardWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID})
		}
		if res := eng.SubmitGroup(ctx, group, domain.UpdateWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID, Patch: patch}); !res.Success {
			discard()
			return commandResult("", res)
		}
		res := eng.SubmitGroup(ctx, group, domain.CommitWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID, OnNameConflict: policy(req)})
		if !res.Success {
			discard()
		}
		return commandResult("Updated", res)
	}
}

// --- move ---

func moveTool() mcp.Tool {
	return mcp.NewTool("move",
		mcp.WithDescription("Move nodes under a new parent. The whole batch fails if any move would create a cycle."),
		nodeIDsOption,
		mcp.WithString("parent_id", mcp.Description("Destination node ID. Omit to move to the root level.")),
		conflictOption,
		groupOption,
	)
}

func moveHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.MoveNodesPayload{
			NodeIDs:        splitIDs(req.GetString("node_ids", "")),
			NewParentID:    req.GetString("parent_id", ""),
			OnNameConflict: policy(req),
		})
		return commandResult("Moved", res)
	}
}

// --- duplicate ---

func duplicateTool() mcp.Tool {
	return mcp.NewTool("duplicate",
		mcp.WithDescription("Copy branches next to their originals as \"<name> (Copy)\"."),
		nodeIDsOption,
		conflictOption,
		groupOption,
	)
}

func duplicateHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.DuplicateNodesPayload{
			NodeIDs:        splitIDs(req.GetString("node_ids", "")),
			OnNameConflict: policy(req),
		})
		return commandResult("Duplicated", res)
	}
}

// --- copy ---

func copyTool() mcp.Tool {
	return mcp.NewTool("copy",
		mcp.WithDescription("Copy branches to the session clipboard for a later paste."),
		nodeIDsOption,
	)
}

func copyHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := eng.CopyNodes(ctx, splitIDs(req.GetString("node_ids", "")))
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Copied %d nodes in %d branches.", len(snap.Nodes), len(snap.Roots))), nil
	}
}

// --- paste ---

func pasteTool() mcp.Tool {
	return mcp.NewTool("paste",
		mcp.WithDescription("Paste a snapshot under a parent with fresh node IDs. Without a snapshot pastes the session clipboard."),
		mcp.WithString("parent_id", mcp.Description("Destination node ID. Omit to paste at the root level.")),
		mcp.WithString("snapshot", mcp.Description("Snapshot JSON as produced by export")),
		conflictOption,
		groupOption,
	)
}

func pasteHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := snapshotArg(req, false)
		if err != nil {
			return toolError(err)
		}
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.PasteNodesPayload{
			Snapshot:       snap,
			ParentID:       req.GetString("parent_id", ""),
			OnNameConflict: policy(req),
		})
		return commandResult("Pasted", res)
	}
}

// --- import ---

func importTool() mcp.Tool {
	return mcp.NewTool("import",
		mcp.WithDescription("Import an exported snapshot. Node and shared resource IDs are regenerated."),
		mcp.WithString("parent_id", mcp.Description("Destination node ID. Omit to import at the root level.")),
		mcp.WithString("snapshot", mcp.Description("Snapshot JSON as produced by export"), mcp.Required()),
		conflictOption,
		groupOption,
	)
}

func importHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := snapshotArg(req, true)
		if err != nil {
			return toolError(err)
		}
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.ImportNodesPayload{
			Snapshot:       snap,
			ParentID:       req.GetString("parent_id", ""),
			OnNameConflict: policy(req),
		})
		return commandResult("Imported", res)
	}
}

// --- trash ---

func trashTool() mcp.Tool {
	return mcp.NewTool("trash",
		mcp.WithDescription("Move nodes to the trash. They keep their data and can be recovered."),
		nodeIDsOption,
		groupOption,
	)
}

func trashHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.MoveToTrashPayload{
			NodeIDs: splitIDs(req.GetString("node_ids", "")),
		})
		return commandResult("Trashed", res)
	}
}

// --- recover ---

func recoverTool() mcp.Tool {
	return mcp.NewTool("recover",
		mcp.WithDescription("Restore trashed nodes to where they were trashed from."),
		nodeIDsOption,
		mcp.WithString("fallback_parent_id", mcp.Description("Destination when the original parent no longer exists")),
		conflictOption,
		groupOption,
	)
}

func recoverHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.RecoverFromTrashPayload{
			NodeIDs:          splitIDs(req.GetString("node_ids", "")),
			FallbackParentID: req.GetString("fallback_parent_id", ""),
			OnNameConflict:   policy(req),
		})
		return commandResult("Recovered", res)
	}
}

// --- delete ---

func deleteTool() mcp.Tool {
	return mcp.NewTool("delete",
		mcp.WithDescription("Permanently delete nodes and their branches. Deleting __trash__ empties the trash. Undo restores them."),
		nodeIDsOption,
		groupOption,
	)
}

func deleteHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := eng.SubmitGroup(ctx, req.GetString("group_id", ""), domain.PermanentDeletePayload{
			NodeIDs: splitIDs(req.GetString("node_ids", "")),
		})
		return commandResult("Deleted", res)
	}
}

// --- undo / redo ---

func undoTool() mcp.Tool {
	return mcp.NewTool("undo",
		mcp.WithDescription("Undo the latest change, or the latest change of one group."),
		mcp.WithString("group_id", mcp.Description("Only undo changes from this group")),
	)
}

func undoHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		group := req.GetString("group_id", "")
		return commandResult("Undone", eng.SubmitGroup(ctx, "", domain.UndoPayload{GroupID: group}))
	}
}

func redoTool() mcp.Tool {
	return mcp.NewTool("redo",
		mcp.WithDescription("Redo the latest undone change, or the latest one of a group."),
		mcp.WithString("group_id", mcp.Description("Only redo changes from this group")),
	)
}

func redoHandler(eng Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		group := req.GetString("group_id", "")
		return commandResult("Redone", eng.SubmitGroup(ctx, "", domain.RedoPayload{GroupID: group}))
	}
}

// --- helpers ---

func commandResult(verb string, res commands.CommandResult) (*mcp.CallToolResult, error) {
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.Code, res.Error)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (seq %d)", verb, res.Seq)
	if res.NodeID != "" {
		fmt.Fprintf(&sb, " node %s", res.NodeID)
	}
	sb.WriteByte('\n')
	if len(res.IDMap) > 0 {
		olds := make([]string, 0, len(res.IDMap))
		for old := range res.IDMap {
			olds = append(olds, old)
		}
		sort.Strings(olds)
		for _, old := range olds {
			fmt.Fprintf(&sb, "%s -> %s\n", old, res.IDMap[old])
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func rawJSON(s string) (json.RawMessage, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("data is not valid JSON")
	}
	return json.RawMessage(s), nil
}

func snapshotArg(req mcp.CallToolRequest, required bool) (*domain.Snapshot, error) {
	raw := req.GetString("snapshot", "")
	if raw == "" {
		if required {
			return nil, fmt.Errorf("snapshot is required")
		}
		return nil, nil
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("snapshot is not valid JSON: %w", err)
	}
	return &snap, nil
}
