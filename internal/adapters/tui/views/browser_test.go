package views

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/internal/adapters/editor"
	"arbor/internal/domain"
	"arbor/internal/engine"
)

func openBrowser(t *testing.T, ctx context.Context, c *engine.Client) *BrowserModel {
	t.Helper()
	m := NewBrowserModel(ctx, c, nil)
	m.SetSize(100, 40)
	runCmd(t, m, m.Init())
	require.True(t, m.loaded)
	return m
}

// visible lists the rows as indented names
func visible(m *BrowserModel) []string {
	out := make([]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = strings.Repeat("  ", r.depth) + r.node.Name
	}
	return out
}

func press(t *testing.T, m *BrowserModel, keys ...string) []tea.Msg {
	t.Helper()
	var out []tea.Msg
	for _, k := range keys {
		out = append(out, run(t, m, keyMsg(k))...)
	}
	return out
}

func TestBrowser_ExpandCollapse(t *testing.T) {
	ctx, c := newTree(t)
	a := create(t, ctx, c, "", "folder", "Alpha", "")
	create(t, ctx, c, a, "document", "Brief", "")
	create(t, ctx, c, "", "folder", "Charlie", "")

	m := openBrowser(t, ctx, c)
	assert.Equal(t, []string{"Alpha", "Charlie"}, visible(m))
	assert.Equal(t, "Alpha", m.Selected().Name)

	press(t, m, "l")
	assert.Equal(t, []string{"Alpha", "  Brief", "Charlie"}, visible(m))

	press(t, m, "j")
	assert.Equal(t, "Brief", m.Selected().Name)

	// h on a leaf jumps to its parent, a second h collapses it
	press(t, m, "h")
	assert.Equal(t, "Alpha", m.Selected().Name)
	press(t, m, "h")
	assert.Equal(t, []string{"Alpha", "Charlie"}, visible(m))

	press(t, m, "enter")
	assert.Equal(t, []string{"Alpha", "  Brief", "Charlie"}, visible(m))
	assert.Contains(t, m.View(), "Brief")
}

func TestBrowser_TrashRecoverUndo(t *testing.T) {
	ctx, c := newTree(t)
	create(t, ctx, c, "", "folder", "Alpha", "")
	create(t, ctx, c, "", "folder", "Charlie", "")
	m := openBrowser(t, ctx, c)

	press(t, m, "d")
	assert.Equal(t, []string{"Charlie"}, visible(m))
	assert.False(t, m.MessageErr, m.Message)

	press(t, m, "t", "j", "l")
	assert.Equal(t, []string{"Charlie", domain.TrashRootName, "  Alpha"}, visible(m))

	// Trashed nodes cannot be trashed again or used as a paste target
	press(t, m, "j")
	require.Equal(t, "Alpha", m.Selected().Name)
	assert.Empty(t, press(t, m, "n"))

	press(t, m, "R")
	assert.Equal(t, []string{"Alpha", "Charlie", domain.TrashRootName}, visible(m))
	assert.Equal(t, "Alpha", m.Selected().Name)

	press(t, m, "u")
	assert.Equal(t, []string{"Charlie", domain.TrashRootName, "  Alpha"}, visible(m))

	press(t, m, "ctrl+r")
	assert.Equal(t, []string{"Alpha", "Charlie", domain.TrashRootName}, visible(m))
}

func TestBrowser_MarkAndMove(t *testing.T) {
	ctx, c := newTree(t)
	create(t, ctx, c, "", "folder", "Alpha", "")
	charlie := create(t, ctx, c, "", "folder", "Charlie", "")
	m := openBrowser(t, ctx, c)

	press(t, m, "m")
	assert.True(t, m.MessageErr)

	press(t, m, "j", "x", "k", "m")
	assert.Equal(t, []string{"Alpha"}, visible(m))

	press(t, m, "l")
	assert.Equal(t, []string{"Alpha", "  Charlie"}, visible(m))

	press(t, m, "j", "x", "M")
	assert.Equal(t, []string{"Alpha", "Charlie"}, visible(m))
	n, err := c.GetNode(ctx, charlie)
	require.NoError(t, err)
	assert.Empty(t, n.ParentID)
}

func TestBrowser_CopyPasteDuplicate(t *testing.T) {
	ctx, c := newTree(t)
	a := create(t, ctx, c, "", "folder", "Alpha", "")
	create(t, ctx, c, a, "document", "Brief", "")
	create(t, ctx, c, "", "folder", "Charlie", "")
	m := openBrowser(t, ctx, c)

	press(t, m, "y")
	assert.Equal(t, "Copied 2 nodes", m.Message)

	press(t, m, "j", "p", "l")
	assert.Equal(t, []string{"Alpha", "Charlie", "  Alpha"}, visible(m))

	press(t, m, "k", "c")
	assert.Equal(t, []string{"Alpha", "Alpha (2)", "Charlie", "  Alpha"}, visible(m))
}

func TestBrowser_FocusExpandsPath(t *testing.T) {
	ctx, c := newTree(t)
	a := create(t, ctx, c, "", "folder", "Alpha", "")
	b := create(t, ctx, c, a, "folder", "Bravo", "")
	deep := create(t, ctx, c, b, "document", "Deep", "")
	create(t, ctx, c, "", "folder", "Charlie", "")
	m := openBrowser(t, ctx, c)

	run(t, m, CommandDoneMsg{Message: "Created Deep", FocusID: deep})
	assert.Equal(t, []string{"Alpha", "  Bravo", "    Deep", "Charlie"}, visible(m))
	assert.Equal(t, deep, m.Selected().ID)
	assert.Equal(t, "Created Deep", m.Message)
}

func TestBrowser_Switches(t *testing.T) {
	ctx, c := newTree(t)
	a := create(t, ctx, c, "", "folder", "Alpha", "")
	m := openBrowser(t, ctx, c)

	tests := []struct {
		key  string
		want tea.Msg
	}{
		{"n", SwitchToFormMsg{Mode: FormCreate, Target: m.Selected()}},
		{"N", SwitchToFormMsg{Mode: FormCreate}},
		{"r", SwitchToFormMsg{Mode: FormRename, Target: m.Selected()}},
		{"D", SwitchToConfirmMsg{Target: *m.Selected()}},
		{"/", SwitchToSearchMsg{}},
		{"?", SwitchToHelpMsg{}},
		{"q", tea.QuitMsg{}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := press(t, m, tt.key)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
	assert.Equal(t, a, m.Selected().ID)
}

func TestBrowser_CommandErrorShown(t *testing.T) {
	ctx, c := newTree(t)
	m := openBrowser(t, ctx, c)
	assert.Contains(t, m.View(), "Empty tree")

	press(t, m, "u")
	assert.True(t, m.MessageErr)
	assert.NotEmpty(t, m.Message)
}

func TestBrowser_EditDataFromEditor(t *testing.T) {
	ctx, c := newTree(t)
	doc := create(t, ctx, c, "", "document", "Brief", `{"title":"Draft"}`)
	m := openBrowser(t, ctx, c)

	press(t, m, "E")
	assert.True(t, m.MessageErr)
	assert.Equal(t, "no editor available", m.Message)

	file, err := editor.WriteDataFile(doc, json.RawMessage(`{"title":"Draft"}`))
	require.NoError(t, err)
	run(t, m, editorDoneMsg{file: file})
	assert.Equal(t, "Data unchanged", m.Message)

	file, err = editor.WriteDataFile(doc, json.RawMessage(`{"title":"Draft"}`))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file.Path, []byte(`{"title":"Final"}`), 0o600))
	run(t, m, editorDoneMsg{file: file})
	assert.Equal(t, "Updated data", m.Message)
	_, err = os.Stat(file.Path)
	assert.True(t, os.IsNotExist(err))

	node, err := c.GetNode(ctx, doc)
	require.NoError(t, err)
	data, err := c.EntityData(ctx, *node)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Final"}`, string(data))

	file, err = editor.WriteDataFile(doc, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file.Path, []byte(`{"format":"pdf"}`), 0o600))
	run(t, m, editorDoneMsg{file: file})
	assert.True(t, m.MessageErr)
}
