package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/adapters/tui/styles"
	"arbor/internal/application/commands"
	"arbor/internal/domain"
)

// ConfirmKeyMap defines key bindings for confirmation views
type ConfirmKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultConfirmKeys returns the default confirmation key bindings
var DefaultConfirmKeys = ConfirmKeyMap{
	Confirm: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "confirm"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("n", "esc"),
		key.WithHelp("n/esc", "cancel"),
	),
}

// ConfirmModel asks before deleting a branch for good
type ConfirmModel struct {
	ViewState
	ctx    context.Context
	tree   Tree
	target domain.TreeNode
	Keys   ConfirmKeyMap
}

// NewConfirmModel creates a new confirmation model with default keys
func NewConfirmModel(ctx context.Context, tree Tree) *ConfirmModel {
	return &ConfirmModel{ctx: ctx, tree: tree, Keys: DefaultConfirmKeys}
}

// SetTarget sets the node that will be deleted
func (m *ConfirmModel) SetTarget(node domain.TreeNode) {
	m.target = node
	m.ClearMessage()
}

func (m *ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m *ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.Keys.Cancel):
		return m, switchTo(SwitchToBrowserMsg{})
	case key.Matches(keyMsg, m.Keys.Confirm):
		ctx, tree, target := m.ctx, m.tree, m.target
		verb := "Deleted " + target.Name
		if target.IsTrashRoot() {
			verb = "Emptied the trash"
		}
		return m, commandCmd(verb, func() commands.CommandResult {
			return tree.Submit(ctx, domain.PermanentDeletePayload{NodeIDs: []string{target.ID}})
		})
	}
	return m, nil
}

func (m *ConfirmModel) View() string {
	question := "Delete this branch permanently? It cannot be undone."
	if m.target.IsTrashRoot() {
		question = "Empty the trash? Nothing in it can be recovered."
	}

	var b strings.Builder
	b.WriteString(RenderTargetInfo(m.target, "Delete"))
	b.WriteString("\n\n")
	b.WriteString(RenderConfirmPrompt(question))
	return RenderPanel("Delete", "", b.String(), m.Message, m.MessageErr, "")
}

// RenderConfirmPrompt renders the standard confirmation prompt
func RenderConfirmPrompt(question string) string {
	var b strings.Builder
	b.WriteString(question)
	b.WriteString(" ")
	b.WriteString(styles.HelpKey.Render("y"))
	b.WriteString(styles.HelpDesc.Render(" to confirm, "))
	b.WriteString(styles.HelpKey.Render("n"))
	b.WriteString(styles.HelpDesc.Render(" to cancel"))
	return b.String()
}

// RenderTargetInfo renders information about the target node
func RenderTargetInfo(node domain.TreeNode, action string) string {
	var b strings.Builder
	b.WriteString(styles.InputLabel.Render(action + " " + node.NodeType + ":"))
	b.WriteString("\n  ")
	b.WriteString(RenderNodeLabel(node))
	if node.DescendantCount > 0 {
		b.WriteString(RenderMuted(fmt.Sprintf("  (%d below)", node.DescendantCount)))
	}
	b.WriteString("\n  ")
	b.WriteString(RenderMuted(node.ID))
	return b.String()
}
