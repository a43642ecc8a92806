package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/adapters/tui/styles"
)

// InputFormKeyMap holds the bindings shared by every form
type InputFormKeyMap struct {
	Submit key.Binding
	Cancel key.Binding
	Next   key.Binding
	Prev   key.Binding
}

var DefaultInputFormKeys = InputFormKeyMap{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous field")),
}

// InputField is one labelled text input. Hint is shown under the field
// while it has focus.
type InputField struct {
	Label string
	Hint  string
	Input textinput.Model
}

func NewInputField(label, placeholder string, charLimit int) InputField {
	in := textinput.New()
	in.Placeholder = placeholder
	if charLimit > 0 {
		in.CharLimit = charLimit
	}
	return InputField{Label: label, Input: in}
}

// InputForm is an ordered set of fields with exactly one focused
type InputForm struct {
	Fields       []InputField
	FocusedField int
	Keys         InputFormKeyMap
}

func NewInputForm(fields ...InputField) *InputForm {
	f := &InputForm{Fields: fields, Keys: DefaultInputFormKeys}
	f.focus(0)
	return f
}

func (f *InputForm) Init() tea.Cmd {
	return textinput.Blink
}

// Update moves focus on next/prev keys and feeds everything else to the
// focused input. The bool reports whether the form consumed the message.
func (f *InputForm) Update(msg tea.Msg) (bool, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, f.Keys.Next):
			f.focus(f.FocusedField + 1)
			return true, nil
		case key.Matches(k, f.Keys.Prev):
			f.focus(f.FocusedField - 1)
			return true, nil
		}
	}
	if !f.valid(f.FocusedField) {
		return false, nil
	}
	var cmd tea.Cmd
	field := &f.Fields[f.FocusedField]
	field.Input, cmd = field.Input.Update(msg)
	return false, cmd
}

// focus wraps around in both directions
func (f *InputForm) focus(i int) {
	n := len(f.Fields)
	if n == 0 {
		return
	}
	i = ((i % n) + n) % n
	for j := range f.Fields {
		if j == i {
			f.Fields[j].Input.Focus()
		} else {
			f.Fields[j].Input.Blur()
		}
	}
	f.FocusedField = i
}

func (f *InputForm) valid(i int) bool {
	return i >= 0 && i < len(f.Fields)
}

// Value returns the trimmed text of field i, or "" when i is out of range
func (f *InputForm) Value(i int) string {
	if !f.valid(i) {
		return ""
	}
	return strings.TrimSpace(f.Fields[i].Input.Value())
}

func (f *InputForm) SetValue(i int, value string) {
	if f.valid(i) {
		f.Fields[i].Input.SetValue(value)
	}
}

func (f *InputForm) RenderField(i int) string {
	if !f.valid(i) {
		return ""
	}
	field := f.Fields[i]
	lines := []string{styles.InputLabel.Render(field.Label)}
	if i != f.FocusedField {
		return strings.Join(append(lines, styles.InputField.Render(field.Input.View())), "\n")
	}
	lines = append(lines, styles.InputFocused.Render(field.Input.View()))
	if field.Hint != "" {
		lines = append(lines, styles.MutedText.Render(field.Hint))
	}
	return strings.Join(lines, "\n")
}

// RenderHelp lists the form keys, naming the submit action
func (f *InputForm) RenderHelp(action string) string {
	entry := func(k, desc string) string {
		return styles.HelpKey.Render(k) + " " + styles.HelpDesc.Render(desc)
	}
	var parts []string
	if len(f.Fields) > 1 {
		parts = append(parts, entry("tab", "next field"))
	}
	parts = append(parts, entry("enter", action), entry("esc", "cancel"))
	return strings.Join(parts, "  ")
}
