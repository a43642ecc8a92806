package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/adapters/tui/styles"
	"arbor/internal/domain"
)

// EventKeyMap defines key bindings for the event log
type EventKeyMap struct {
	Toggle key.Binding
}

var EventKeys = EventKeyMap{
	Toggle: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "event log")),
}

// maxEventLines bounds the log kept in memory
const maxEventLines = 200

// EventLogModel shows the most recent change events
type EventLogModel struct {
	lines []string
	view  viewport.Model
}

// NewEventLogModel creates an event log of the given height
func NewEventLogModel(width, height int) *EventLogModel {
	return &EventLogModel{view: viewport.New(width, height)}
}

// Append adds an event and scrolls to it
func (m *EventLogModel) Append(ev domain.TreeChangeEvent) {
	m.lines = append(m.lines, FormatEvent(ev))
	if len(m.lines) > maxEventLines {
		m.lines = m.lines[len(m.lines)-maxEventLines:]
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

// Len returns the number of lines held
func (m *EventLogModel) Len() int {
	return len(m.lines)
}

func (m *EventLogModel) SetSize(width, height int) {
	m.view.Width = width
	m.view.Height = height
}

func (m *EventLogModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return cmd
}

func (m *EventLogModel) View() string {
	return styles.EventPane.Render(m.view.View())
}

// FormatEvent renders one event as a single log line
func FormatEvent(ev domain.TreeChangeEvent) string {
	seq := fmt.Sprintf("#%-4d", ev.Seq)
	name := ev.NodeID
	if ev.Node != nil {
		name = ev.Node.Name
	} else if ev.PreviousNode != nil {
		name = ev.PreviousNode.Name
	}

	switch ev.Type {
	case domain.EventNodeCreated:
		return seq + styles.EventCreated.Render("+ "+name)
	case domain.EventNodeDeleted:
		return seq + styles.EventDeleted.Render("- "+name)
	case domain.EventNodeUpdated:
		text := "~ " + name
		if ev.Moved() {
			text += " moved"
		}
		if ev.PreviousNode != nil && ev.Node != nil && ev.PreviousNode.Name != ev.Node.Name {
			text = "~ " + ev.PreviousNode.Name + " -> " + ev.Node.Name
		}
		return seq + styles.EventUpdated.Render(text)
	case domain.EventChildrenChanged:
		return seq + styles.EventOther.Render(fmt.Sprintf("  children of %s (%d)", name, len(ev.AffectedChildren)))
	case domain.EventSnapshot:
		return seq + styles.EventOther.Render(fmt.Sprintf("  snapshot of %d nodes", len(ev.Nodes)))
	}
	return seq + styles.EventOther.Render("  "+string(ev.Type))
}
