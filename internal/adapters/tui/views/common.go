package views

import (
	"context"
	"encoding/json"

	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/application/commands"
	"arbor/internal/application/query"
	"arbor/internal/domain"
)

// Tree is the part of the engine client the views drive
type Tree interface {
	Submit(ctx context.Context, payload domain.Payload) commands.CommandResult
	CreateNode(ctx context.Context, parentID, nodeType, name string, data json.RawMessage, policy domain.NameConflictPolicy) commands.CommandResult

	GetNode(ctx context.Context, id string) (*domain.TreeNode, error)
	GetChildren(ctx context.Context, parentID string, offset, limit int) (*query.Page, error)
	GetPathToRoot(ctx context.Context, id string) ([]domain.TreeNode, error)
	SearchNodes(ctx context.Context, opts query.SearchOptions) ([]query.SearchResult, error)
	CopyNodes(ctx context.Context, ids []string) (*domain.Snapshot, error)
	EntityData(ctx context.Context, node domain.TreeNode) (json.RawMessage, error)
	Types() []string
}

// ViewState contains common state shared by all view models.
// Embed this struct in view models to get width/height and message handling.
type ViewState struct {
	Width      int
	Height     int
	Message    string
	MessageErr bool
}

// SetSize updates the view dimensions
func (s *ViewState) SetSize(width, height int) {
	s.Width = width
	s.Height = height
}

// SetMessage sets a message to display in the view
func (s *ViewState) SetMessage(msg string, isErr bool) {
	s.Message = msg
	s.MessageErr = isErr
}

// ClearMessage clears the current message
func (s *ViewState) ClearMessage() {
	s.Message = ""
	s.MessageErr = false
}

// Messages for view switching
type SwitchToFormMsg struct {
	Mode   FormMode
	Target *domain.TreeNode
}

type SwitchToConfirmMsg struct {
	Target domain.TreeNode
}

type SwitchToSearchMsg struct{}

type SwitchToHelpMsg struct{}

// SwitchToBrowserMsg returns to the browser, selecting FocusID when set
type SwitchToBrowserMsg struct {
	FocusID string
}

// CommandDoneMsg reports a finished command and returns to the browser,
// selecting FocusID when set
type CommandDoneMsg struct {
	Message string
	Err     error
	FocusID string
}

// commandCmd runs a command off the update loop and reports it
func commandCmd(verb string, run func() commands.CommandResult) tea.Cmd {
	return func() tea.Msg {
		res := run()
		if !res.Success {
			return CommandDoneMsg{Err: res.Err()}
		}
		return CommandDoneMsg{Message: verb}
	}
}

// editNode applies patch to a node through a working copy
func editNode(ctx context.Context, tree Tree, id string, patch domain.WorkingCopyPatch) commands.CommandResult {
	wc := tree.Submit(ctx, domain.CreateWorkingCopyPayload{NodeID: id})
	if !wc.Success {
		return wc
	}
	res := tree.Submit(ctx, domain.UpdateWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID, Patch: patch})
	if res.Success {
		res = tree.Submit(ctx, domain.CommitWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID})
	}
	if !res.Success {
		tree.Submit(ctx, domain.DiscardWorkingCopyPayload{WorkingCopyID: wc.WorkingCopyID})
	}
	return res
}
