package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"arbor/internal/adapters/tui/styles"
	"arbor/internal/domain"
)

// RenderHelpLine renders bindings as "key desc" pairs
func RenderHelpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, styles.HelpKey.Render(h.Key)+" "+styles.HelpDesc.Render(h.Desc))
	}
	return strings.Join(parts, styles.HelpSeparator.String())
}

// RenderMessage styles a status line; empty stays empty
func RenderMessage(message string, isError bool) string {
	switch {
	case message == "":
		return ""
	case isError:
		return styles.ErrorMsg.Render(message)
	default:
		return styles.Success.Render(message)
	}
}

func RenderSubtitle(subtitle string) string { return styles.Subtitle.Render(subtitle) }

func RenderMuted(text string) string { return styles.MutedText.Render(text) }

// RenderNodeLabel renders a node name with its type, styled by type
func RenderNodeLabel(node domain.TreeNode) string {
	style := styles.NodeLeaf
	if node.HasChildren {
		style = styles.NodeContainer
	}
	if node.NodeType == domain.TrashNodeType {
		style = styles.NodeTrash
	} else {
		style = style.Foreground(styles.TypeColor(node.NodeType))
	}
	return style.Render(node.Name) + " " + styles.NodeType.Render("["+node.NodeType+"]")
}

// RenderPanel wraps a body in the app padding with a title and help line
func RenderPanel(title, subtitle, body, message string, messageErr bool, help string) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(title))
	b.WriteString("\n")
	if subtitle != "" {
		b.WriteString(RenderSubtitle(subtitle))
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	if message != "" {
		b.WriteString("\n")
		b.WriteString(RenderMessage(message, messageErr))
	}
	if help != "" {
		b.WriteString("\n\n")
		b.WriteString(help)
	}
	return styles.App.Render(b.String())
}
