package styles

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	Primary   = lipgloss.Color("#0F766E") // teal
	Secondary = lipgloss.Color("#65A30D") // leaf green
	Muted     = lipgloss.Color("#78716C") // bark
	Warning   = lipgloss.Color("#D97706")
	Error     = lipgloss.Color("#DC2626")
	Info      = lipgloss.Color("#2563EB")
	White     = lipgloss.Color("#FAFAF9")
)

// Layout and text
var (
	App       = lipgloss.NewStyle().Padding(1, 2)
	Title     = lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1)
	Subtitle  = lipgloss.NewStyle().Foreground(Muted).Italic(true)
	MutedText = lipgloss.NewStyle().Foreground(Muted)
	Success   = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	ErrorMsg  = lipgloss.NewStyle().Foreground(Error).Bold(true)
)

// Tree rows. A node with children renders as a container, everything else
// as a leaf; the trash branch is dimmed.
var (
	NodeContainer = lipgloss.NewStyle().Bold(true)
	NodeLeaf      = lipgloss.NewStyle()
	NodeSelected  = lipgloss.NewStyle().Background(Primary).Foreground(White).Bold(true)
	NodeMarked    = lipgloss.NewStyle().Foreground(Warning).Underline(true)
	NodeTrash     = lipgloss.NewStyle().Foreground(Muted).Italic(true).Faint(true)
	NodeType      = lipgloss.NewStyle().Foreground(Muted)

	TreeBranch    = lipgloss.NewStyle().Foreground(Muted)
	TreeExpanded  = "▾ "
	TreeCollapsed = "▸ "
	TreeLeaf      = "  "
)

// Change-event pane, one style per event family
var (
	EventPane = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(Muted)
	EventCreated = lipgloss.NewStyle().Foreground(Secondary)
	EventUpdated = lipgloss.NewStyle().Foreground(Info)
	EventDeleted = lipgloss.NewStyle().Foreground(Error)
	EventOther   = MutedText
)

// Forms and help
var (
	InputLabel   = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	InputField   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Muted).Padding(0, 1)
	InputFocused = InputField.BorderForeground(Primary)

	HelpKey       = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	HelpDesc      = MutedText
	HelpSeparator = lipgloss.NewStyle().Foreground(Muted).SetString(" · ")
)

var builtinTypeColors = map[string]lipgloss.Color{
	"folder":   Primary,
	"document": Info,
	"dataset":  Secondary,
	"stylemap": Warning,
}

// fallback colors for plugin types registered at runtime
var typeColors = []lipgloss.Color{"#7C3AED", "#DB2777", "#EA580C", "#0891B2"}

// TypeColor returns a stable color for a node type
func TypeColor(nodeType string) lipgloss.Color {
	if c, ok := builtinTypeColors[nodeType]; ok {
		return c
	}
	var h uint32
	for _, r := range nodeType {
		h = h*31 + uint32(r)
	}
	return typeColors[h%uint32(len(typeColors))]
}
