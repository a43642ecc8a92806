package views

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/application/commands"
	"arbor/internal/domain"
)

// FormMode selects what the form edits
type FormMode int

const (
	FormCreate FormMode = iota
	FormRename
)

const (
	fieldName = iota
	fieldType
	fieldData
)

// FormModel creates a node or renames one
type FormModel struct {
	ViewState
	ctx    context.Context
	tree   Tree
	mode   FormMode
	target *domain.TreeNode
	form   *InputForm
}

// NewFormModel creates an empty form; call Open before showing it
func NewFormModel(ctx context.Context, tree Tree) *FormModel {
	return &FormModel{ctx: ctx, tree: tree}
}

// Open resets the form for mode. For FormCreate target is the parent (nil
// for the root level); for FormRename it is the node being renamed.
func (m *FormModel) Open(mode FormMode, target *domain.TreeNode) tea.Cmd {
	m.mode = mode
	m.target = target
	m.ClearMessage()

	switch mode {
	case FormRename:
		m.form = NewInputForm(NewInputField("Name", "New name", 255))
		if target != nil {
			m.form.SetValue(fieldName, target.Name)
		}
	default:
		types := m.tree.Types()
		typeField := NewInputField("Type", "folder", 64)
		typeField.Hint = "one of: " + strings.Join(types, ", ")
		dataField := NewInputField("Data", `optional JSON, e.g. {"title":"..."}`, 0)
		m.form = NewInputForm(NewInputField("Name", "Node name", 255), typeField, dataField)
		if len(types) > 0 {
			m.form.SetValue(fieldType, types[0])
		}
	}
	return m.form.Init()
}

type formResultMsg struct {
	verb string
	res  commands.CommandResult
}

func (m *FormModel) Init() tea.Cmd {
	return nil
}

func (m *FormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	switch msg := msg.(type) {
	case formResultMsg:
		if !msg.res.Success {
			m.SetMessage(msg.res.Err().Error(), true)
			return m, nil
		}
		focus := msg.res.NodeID
		if focus == "" && m.target != nil {
			focus = m.target.ID
		}
		return m, switchTo(CommandDoneMsg{Message: msg.verb, FocusID: focus})

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.form.Keys.Cancel):
			return m, switchTo(SwitchToBrowserMsg{})
		case key.Matches(msg, m.form.Keys.Submit):
			return m, m.submit()
		}
	}

	_, cmd := m.form.Update(msg)
	return m, cmd
}

func (m *FormModel) submit() tea.Cmd {
	name := m.form.Value(fieldName)
	if name == "" {
		m.SetMessage("name is required", true)
		return nil
	}
	ctx, tree := m.ctx, m.tree

	if m.mode == FormRename {
		if m.target == nil {
			return nil
		}
		id := m.target.ID
		return func() tea.Msg {
			return formResultMsg{verb: "Renamed to " + name, res: editNode(ctx, tree, id, domain.WorkingCopyPatch{Name: &name})}
		}
	}

	nodeType := m.form.Value(fieldType)
	if !slices.Contains(tree.Types(), nodeType) {
		m.SetMessage(fmt.Sprintf("unknown type %q", nodeType), true)
		return nil
	}
	var data json.RawMessage
	if raw := m.form.Value(fieldData); raw != "" {
		if !json.Valid([]byte(raw)) {
			m.SetMessage("data is not valid JSON", true)
			return nil
		}
		data = json.RawMessage(raw)
	}
	parentID := ""
	if m.target != nil {
		parentID = m.target.ID
	}
	return func() tea.Msg {
		res := tree.CreateNode(ctx, parentID, nodeType, name, data, domain.NameConflictAutoRename)
		return formResultMsg{verb: "Created " + name, res: res}
	}
}

func (m *FormModel) View() string {
	if m.form == nil {
		return ""
	}

	title, subtitle, action := "New node", "at the root level", "create"
	if m.target != nil {
		subtitle = "under " + m.target.Name
	}
	if m.mode == FormRename {
		title, subtitle, action = "Rename", "", "rename"
		if m.target != nil {
			subtitle = m.target.Name
		}
	}

	var b strings.Builder
	for i := range m.form.Fields {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.form.RenderField(i))
		b.WriteString("\n")
	}
	return RenderPanel(title, subtitle, b.String(), m.Message, m.MessageErr, m.form.RenderHelp(action))
}
