package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/adapters/tui/styles"
)

// HelpKeyMap defines key bindings for the help view
type HelpKeyMap struct {
	Close key.Binding
}

var HelpKeys = HelpKeyMap{
	Close: key.NewBinding(
		key.WithKeys("esc", "q", "?"),
		key.WithHelp("esc/q/?", "close"),
	),
}

// HelpModel is the model for the help view
type HelpModel struct {
	ViewState
	types []string
}

// NewHelpModel creates a new help view model listing the registered types
func NewHelpModel(types []string) *HelpModel {
	return &HelpModel{types: types}
}

// Init initializes the help view
func (m *HelpModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view
func (m *HelpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, HelpKeys.Close) {
		return m, switchTo(SwitchToBrowserMsg{})
	}
	return m, nil
}

type helpSection struct {
	title    string
	bindings []key.Binding
}

func (m *HelpModel) sections() []helpSection {
	k := BrowserKeys
	return []helpSection{
		{"Navigation", []key.Binding{k.Up, k.Down, k.PageUp, k.PageDown, k.Left, k.Right, k.Enter}},
		{"Edit", []key.Binding{k.New, k.NewRoot, k.Rename, k.EditData, k.Duplicate, k.Mark, k.MoveHere, k.MoveRoot}},
		{"Clipboard", []key.Binding{k.Copy, k.Paste}},
		{"Trash", []key.Binding{k.Trash, k.Recover, k.Delete, k.ShowTrash}},
		{"History", []key.Binding{k.Undo, k.Redo}},
		{"General", []key.Binding{k.Search, EventKeys.Toggle, k.Help, k.Quit}},
	}
}

// View renders the help view
func (m *HelpModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("arbor help"))
	b.WriteString("\n")

	for _, s := range m.sections() {
		b.WriteString(styles.InputLabel.Render(s.title))
		b.WriteString("\n")
		for _, binding := range s.bindings {
			h := binding.Help()
			b.WriteString(helpLine(h.Key, h.Desc))
		}
		b.WriteString("\n")
	}

	if len(m.types) > 0 {
		b.WriteString(styles.InputLabel.Render("Node types"))
		b.WriteString("\n  ")
		for i, t := range m.types {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(styles.NodeType.Foreground(styles.TypeColor(t)).Render(t))
		}
		b.WriteString("\n\n")
	}

	b.WriteString(styles.HelpDesc.Render("Press "))
	b.WriteString(styles.HelpKey.Render("esc"))
	b.WriteString(styles.HelpDesc.Render(" or "))
	b.WriteString(styles.HelpKey.Render("?"))
	b.WriteString(styles.HelpDesc.Render(" to close"))

	return styles.App.Render(b.String())
}

func helpLine(key, desc string) string {
	return "  " + styles.HelpKey.Render(padRight(key, 16)) + styles.HelpDesc.Render(desc) + "\n"
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}
