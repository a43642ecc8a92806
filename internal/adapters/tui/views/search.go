package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/adapters/tui/styles"
	"arbor/internal/application/query"
)

// SearchKeyMap defines key bindings for the search view
type SearchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	CopyID key.Binding
	Cancel key.Binding
}

var SearchKeys = SearchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+p"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+n"),
		key.WithHelp("↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "go to"),
	),
	CopyID: key.NewBinding(
		key.WithKeys("ctrl+y"),
		key.WithHelp("ctrl+y", "copy id"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
}

const maxShownResults = 10

// SearchModel is the model for the search view
type SearchModel struct {
	ViewState
	ctx     context.Context
	tree    Tree
	input   textinput.Model
	results []query.SearchResult
	cursor  int
}

// NewSearchModel creates a new search view model
func NewSearchModel(ctx context.Context, tree Tree) *SearchModel {
	input := textinput.New()
	input.Placeholder = "Search by name..."
	input.Focus()

	return &SearchModel{
		ctx:   ctx,
		tree:  tree,
		input: input,
	}
}

// Init initializes the search view
func (m *SearchModel) Init() tea.Cmd {
	return textinput.Blink
}

// Reset resets the search view
func (m *SearchModel) Reset() {
	m.input.SetValue("")
	m.results = nil
	m.cursor = 0
	m.input.Focus()
	m.ClearMessage()
}

type searchResultsMsg struct {
	query   string
	results []query.SearchResult
	err     error
}

// Update handles messages for the search view
func (m *SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case searchResultsMsg:
		// Results for a query the user already typed past are dropped
		if msg.query != m.input.Value() {
			return m, nil
		}
		if msg.err != nil {
			m.SetMessage(msg.err.Error(), true)
			return m, nil
		}
		m.ClearMessage()
		m.results = msg.results
		m.cursor = 0
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, SearchKeys.Cancel):
			return m, switchTo(SwitchToBrowserMsg{})

		case key.Matches(msg, SearchKeys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, SearchKeys.Down):
			if m.cursor < min(len(m.results), maxShownResults)-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, SearchKeys.Select):
			if m.cursor < len(m.results) {
				return m, switchTo(SwitchToBrowserMsg{FocusID: m.results[m.cursor].Node.ID})
			}
			return m, nil

		case key.Matches(msg, SearchKeys.CopyID):
			if m.cursor < len(m.results) {
				id := m.results[m.cursor].Node.ID
				if err := clipboard.WriteAll(id); err != nil {
					m.SetMessage("clipboard unavailable: "+err.Error(), true)
				} else {
					m.SetMessage("Copied "+id, false)
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	q := m.input.Value()
	if len(q) >= 2 {
		return m, tea.Batch(cmd, m.search(q))
	}
	m.results = nil
	return m, cmd
}

func (m *SearchModel) search(q string) tea.Cmd {
	ctx, tree := m.ctx, m.tree
	return func() tea.Msg {
		results, err := tree.SearchNodes(ctx, query.SearchOptions{Query: q, Limit: 50})
		return searchResultsMsg{query: q, results: results, err: err}
	}
}

// View renders the search view
func (m *SearchModel) View() string {
	var b strings.Builder

	b.WriteString(styles.InputFocused.Render(m.input.View()))
	b.WriteString("\n\n")

	if len(m.results) == 0 {
		if len(m.input.Value()) >= 2 {
			b.WriteString(RenderMuted("No results found"))
		} else {
			b.WriteString(RenderMuted("Type at least 2 characters to search"))
		}
	} else {
		b.WriteString(RenderSubtitle(fmt.Sprintf("%d results", len(m.results))))
		b.WriteString("\n\n")

		shown := min(len(m.results), maxShownResults)
		for i := 0; i < shown; i++ {
			b.WriteString(m.renderResult(m.results[i], i == m.cursor))
			b.WriteString("\n")
		}
		if len(m.results) > shown {
			b.WriteString(RenderMuted(fmt.Sprintf("... and %d more", len(m.results)-shown)))
		}
	}

	help := RenderHelpLine(SearchKeys.Up, SearchKeys.Down, SearchKeys.Select, SearchKeys.CopyID, SearchKeys.Cancel)
	return RenderPanel("Search", "", b.String(), m.Message, m.MessageErr, help)
}

func (m *SearchModel) renderResult(result query.SearchResult, selected bool) string {
	if selected {
		return styles.NodeSelected.Render(result.Path + " [" + result.Node.NodeType + "]")
	}
	return result.Path + " " + styles.NodeType.Render("["+result.Node.NodeType+"]")
}
