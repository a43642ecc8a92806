package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"arbor/internal/adapters/editor"
	"arbor/internal/adapters/tui/styles"
	"arbor/internal/application/commands"
	"arbor/internal/application/query"
	"arbor/internal/domain"
)

// BrowserKeyMap defines key bindings for the browser view
type BrowserKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Left      key.Binding
	Right     key.Binding
	Enter     key.Binding
	New       key.Binding
	NewRoot   key.Binding
	Rename    key.Binding
	EditData  key.Binding
	Duplicate key.Binding
	Mark      key.Binding
	MoveHere  key.Binding
	MoveRoot  key.Binding
	Copy      key.Binding
	Paste     key.Binding
	Trash     key.Binding
	Recover   key.Binding
	Delete    key.Binding
	ShowTrash key.Binding
	Undo      key.Binding
	Redo      key.Binding
	Search    key.Binding
	Help      key.Binding
	Quit      key.Binding
}

var BrowserKeys = BrowserKeyMap{
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	PageUp:    key.NewBinding(key.WithKeys("ctrl+u", "pgup"), key.WithHelp("ctrl+u", "page up")),
	PageDown:  key.NewBinding(key.WithKeys("ctrl+d", "pgdown"), key.WithHelp("ctrl+d", "page down")),
	Left:      key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "collapse")),
	Right:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "expand")),
	Enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "toggle")),
	New:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new child")),
	NewRoot:   key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "new at root")),
	Rename:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
	EditData:  key.NewBinding(key.WithKeys("E"), key.WithHelp("E", "edit data")),
	Duplicate: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "duplicate")),
	Mark:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "mark to move")),
	MoveHere:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "move marked here")),
	MoveRoot:  key.NewBinding(key.WithKeys("M"), key.WithHelp("M", "move marked to root")),
	Copy:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy")),
	Paste:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "paste")),
	Trash:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "trash")),
	Recover:   key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "recover")),
	Delete:    key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete")),
	ShowTrash: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "show trash")),
	Undo:      key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo")),
	Redo:      key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "redo")),
	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// row is one visible line of the tree
type row struct {
	node    domain.TreeNode
	depth   int
	trashed bool
}

// BrowserModel is the model for the tree browser view
type BrowserModel struct {
	ViewState
	ctx    context.Context
	tree   Tree
	editor *editor.Opener

	rows      []row
	expanded  map[string]bool
	showTrash bool
	marked    string
	pager     *Paginator

	loaded   bool
	loading  bool
	dirty    bool
	selectID string
}

// NewBrowserModel creates a new browser model. Without an editor the data
// of a node cannot be edited.
func NewBrowserModel(ctx context.Context, tree Tree, ed *editor.Opener) *BrowserModel {
	return &BrowserModel{
		ctx:      ctx,
		tree:     tree,
		editor:   ed,
		expanded: map[string]bool{},
		pager:    NewPaginator(20),
	}
}

// Init initializes the browser
func (m *BrowserModel) Init() tea.Cmd {
	return m.Reload()
}

type treeLoadedMsg struct {
	rows []row
}

type focusPathMsg struct {
	path []domain.TreeNode
}

type errMsg struct {
	err error
}

// dataFileMsg carries entity data written out for the editor
type dataFileMsg struct {
	file *editor.DataFile
}

// editorDoneMsg is sent when the editor exits
type editorDoneMsg struct {
	file *editor.DataFile
	err  error
}

// Reload re-reads the visible part of the tree. While a load is running
// the request is remembered and served when it finishes.
func (m *BrowserModel) Reload() tea.Cmd {
	if m.loading {
		m.dirty = true
		return nil
	}
	m.loading = true
	m.dirty = false

	expanded := make(map[string]bool, len(m.expanded))
	for id, open := range m.expanded {
		expanded[id] = open
	}
	ctx, tree, showTrash := m.ctx, m.tree, m.showTrash
	return func() tea.Msg {
		rows, err := collectRows(ctx, tree, expanded, showTrash)
		if err != nil {
			return errMsg{err}
		}
		return treeLoadedMsg{rows}
	}
}

// Focus expands the path to id and selects it
func (m *BrowserModel) Focus(id string) tea.Cmd {
	ctx, tree := m.ctx, m.tree
	return func() tea.Msg {
		path, err := tree.GetPathToRoot(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return focusPathMsg{path}
	}
}

// collectRows walks the root level and every expanded node, depth first
func collectRows(ctx context.Context, tree Tree, expanded map[string]bool, showTrash bool) ([]row, error) {
	var rows []row
	var walk func(parentID string, depth int, trashed bool) error
	walk = func(parentID string, depth int, trashed bool) error {
		children, err := allChildren(ctx, tree, parentID)
		if err != nil {
			return err
		}
		for _, n := range children {
			rows = append(rows, row{node: n, depth: depth, trashed: trashed})
			if n.HasChildren && expanded[n.ID] {
				if err := walk(n.ID, depth+1, trashed); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk("", 0, false); err != nil {
		return nil, err
	}
	if showTrash {
		trash, err := tree.GetNode(ctx, domain.TrashRootID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row{node: *trash, trashed: true})
		if trash.HasChildren && expanded[trash.ID] {
			if err := walk(trash.ID, 1, true); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

func allChildren(ctx context.Context, tree Tree, parentID string) ([]domain.TreeNode, error) {
	var out []domain.TreeNode
	for offset := 0; ; {
		page, err := tree.GetChildren(ctx, parentID, offset, query.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Nodes...)
		if !page.HasMore {
			return out, nil
		}
		offset += len(page.Nodes)
	}
}

// Update handles messages for the browser
func (m *BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case treeLoadedMsg:
		m.loading = false
		m.loaded = true
		m.setRows(msg.rows)
		if m.dirty {
			return m, m.Reload()
		}
		return m, nil

	case focusPathMsg:
		if len(msg.path) == 0 {
			return m, nil
		}
		for _, n := range msg.path[:len(msg.path)-1] {
			m.expanded[n.ID] = true
			if n.NodeType == domain.TrashNodeType {
				m.showTrash = true
			}
		}
		m.selectID = msg.path[len(msg.path)-1].ID
		return m, m.Reload()

	case errMsg:
		m.loading = false
		m.SetMessage(msg.err.Error(), true)
		return m, nil

	case dataFileMsg:
		cmd, err := m.editor.Command(msg.file.Path)
		if err != nil {
			msg.file.Remove()
			m.SetMessage(err.Error(), true)
			return m, nil
		}
		return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
			return editorDoneMsg{file: msg.file, err: err}
		})

	case editorDoneMsg:
		return m, m.applyEdit(msg)

	case CommandDoneMsg:
		if msg.Err != nil {
			m.SetMessage(msg.Err.Error(), true)
			return m, nil
		}
		m.SetMessage(msg.Message, false)
		if msg.FocusID != "" {
			return m, m.Focus(msg.FocusID)
		}
		return m, m.Reload()

	case tea.KeyMsg:
		m.ClearMessage()
		return m, m.handleKey(msg)
	}

	return m, nil
}

func (m *BrowserModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	node := m.Selected()
	ctx, tree := m.ctx, m.tree

	switch {
	case key.Matches(msg, BrowserKeys.Quit):
		return tea.Quit

	case key.Matches(msg, BrowserKeys.Up):
		m.pager.CursorUp()
	case key.Matches(msg, BrowserKeys.Down):
		m.pager.CursorDown()
	case key.Matches(msg, BrowserKeys.PageUp):
		m.pager.PageUp()
	case key.Matches(msg, BrowserKeys.PageDown):
		m.pager.PageDown()

	case key.Matches(msg, BrowserKeys.Left):
		if node == nil {
			return nil
		}
		if m.expanded[node.ID] {
			delete(m.expanded, node.ID)
			return m.Reload()
		}
		m.selectParent()

	case key.Matches(msg, BrowserKeys.Right), key.Matches(msg, BrowserKeys.Enter):
		if node == nil || !node.HasChildren {
			return nil
		}
		if m.expanded[node.ID] {
			if key.Matches(msg, BrowserKeys.Enter) {
				delete(m.expanded, node.ID)
				return m.Reload()
			}
			return nil
		}
		m.expanded[node.ID] = true
		return m.Reload()

	case key.Matches(msg, BrowserKeys.New):
		if node != nil && !m.inTrash(node) {
			target := *node
			return switchTo(SwitchToFormMsg{Mode: FormCreate, Target: &target})
		}
	case key.Matches(msg, BrowserKeys.NewRoot):
		return switchTo(SwitchToFormMsg{Mode: FormCreate})
	case key.Matches(msg, BrowserKeys.Rename):
		if node != nil && !node.IsTrashRoot() {
			target := *node
			return switchTo(SwitchToFormMsg{Mode: FormRename, Target: &target})
		}

	case key.Matches(msg, BrowserKeys.EditData):
		if node == nil || m.inTrash(node) {
			return nil
		}
		if m.editor == nil {
			m.SetMessage("no editor available", true)
			return nil
		}
		target := *node
		return func() tea.Msg {
			data, err := tree.EntityData(ctx, target)
			if err != nil {
				return CommandDoneMsg{Err: err}
			}
			file, err := editor.WriteDataFile(target.ID, data)
			if err != nil {
				return CommandDoneMsg{Err: err}
			}
			return dataFileMsg{file}
		}

	case key.Matches(msg, BrowserKeys.Duplicate):
		if node != nil && !m.inTrash(node) {
			ids := []string{node.ID}
			return commandCmd("Duplicated "+node.Name, func() commands.CommandResult {
				return tree.Submit(ctx, domain.DuplicateNodesPayload{NodeIDs: ids})
			})
		}

	case key.Matches(msg, BrowserKeys.Mark):
		if node != nil && !node.IsTrashRoot() {
			m.marked = node.ID
			m.SetMessage(fmt.Sprintf("Marked %s, press m on the destination", node.Name), false)
		}
	case key.Matches(msg, BrowserKeys.MoveHere), key.Matches(msg, BrowserKeys.MoveRoot):
		if m.marked == "" {
			m.SetMessage("Nothing marked, press x on a node first", true)
			return nil
		}
		dest := ""
		if key.Matches(msg, BrowserKeys.MoveHere) {
			if node == nil {
				return nil
			}
			dest = node.ID
		}
		ids := []string{m.marked}
		m.marked = ""
		return commandCmd("Moved", func() commands.CommandResult {
			return tree.Submit(ctx, domain.MoveNodesPayload{NodeIDs: ids, NewParentID: dest})
		})

	case key.Matches(msg, BrowserKeys.Copy):
		if node != nil && !node.IsTrashRoot() {
			ids := []string{node.ID}
			return func() tea.Msg {
				snap, err := tree.CopyNodes(ctx, ids)
				if err != nil {
					return CommandDoneMsg{Err: err}
				}
				return CommandDoneMsg{Message: fmt.Sprintf("Copied %d nodes", len(snap.Nodes))}
			}
		}
	case key.Matches(msg, BrowserKeys.Paste):
		dest := ""
		if node != nil {
			if m.inTrash(node) {
				return nil
			}
			dest = node.ID
		}
		return commandCmd("Pasted", func() commands.CommandResult {
			return tree.Submit(ctx, domain.PasteNodesPayload{ParentID: dest})
		})

	case key.Matches(msg, BrowserKeys.Trash):
		if node != nil && !m.inTrash(node) {
			ids := []string{node.ID}
			return commandCmd("Moved "+node.Name+" to the trash", func() commands.CommandResult {
				return tree.Submit(ctx, domain.MoveToTrashPayload{NodeIDs: ids})
			})
		}
	case key.Matches(msg, BrowserKeys.Recover):
		if node != nil && node.ParentID == domain.TrashRootID {
			ids := []string{node.ID}
			return commandCmd("Recovered "+node.Name, func() commands.CommandResult {
				return tree.Submit(ctx, domain.RecoverFromTrashPayload{NodeIDs: ids})
			})
		}
	case key.Matches(msg, BrowserKeys.Delete):
		if node != nil {
			return switchTo(SwitchToConfirmMsg{Target: *node})
		}
	case key.Matches(msg, BrowserKeys.ShowTrash):
		m.showTrash = !m.showTrash
		return m.Reload()

	case key.Matches(msg, BrowserKeys.Undo):
		return commandCmd("Undone", func() commands.CommandResult {
			return tree.Submit(ctx, domain.UndoPayload{})
		})
	case key.Matches(msg, BrowserKeys.Redo):
		return commandCmd("Redone", func() commands.CommandResult {
			return tree.Submit(ctx, domain.RedoPayload{})
		})

	case key.Matches(msg, BrowserKeys.Search):
		return switchTo(SwitchToSearchMsg{})
	case key.Matches(msg, BrowserKeys.Help):
		return switchTo(SwitchToHelpMsg{})
	}
	return nil
}

// applyEdit reads the edited data back and commits it when it changed
func (m *BrowserModel) applyEdit(msg editorDoneMsg) tea.Cmd {
	defer msg.file.Remove()
	if msg.err != nil {
		m.SetMessage("editor: "+msg.err.Error(), true)
		return nil
	}
	data, changed, err := msg.file.Read()
	if err != nil {
		m.SetMessage(err.Error(), true)
		return nil
	}
	if !changed {
		m.SetMessage("Data unchanged", false)
		return nil
	}
	ctx, tree, id := m.ctx, m.tree, msg.file.NodeID
	return commandCmd("Updated data", func() commands.CommandResult {
		return editNode(ctx, tree, id, domain.WorkingCopyPatch{Data: data})
	})
}

func switchTo(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// inTrash reports whether a visible node is the trash or inside it
func (m *BrowserModel) inTrash(node *domain.TreeNode) bool {
	if node.IsTrashRoot() {
		return true
	}
	cur := m.pager.Cursor()
	if cur < len(m.rows) && m.rows[cur].node.ID == node.ID {
		return m.rows[cur].trashed
	}
	return false
}

func (m *BrowserModel) selectParent() {
	cur := m.pager.Cursor()
	if cur >= len(m.rows) {
		return
	}
	depth := m.rows[cur].depth
	for i := cur - 1; i >= 0; i-- {
		if m.rows[i].depth < depth {
			m.pager.SetCursor(i)
			return
		}
	}
}

// setRows swaps in a fresh tree, keeping the selection on the same node.
// A pending focus target survives loads that do not contain it yet.
func (m *BrowserModel) setRows(rows []row) {
	want := m.selectID
	if want == "" {
		if sel := m.Selected(); sel != nil {
			want = sel.ID
		}
	}
	cur := m.pager.Cursor()

	m.rows = rows
	m.pager.SetTotal(len(rows))
	for i, r := range rows {
		if r.node.ID == want {
			m.pager.SetCursor(i)
			m.selectID = ""
			return
		}
	}
	if !m.dirty {
		m.selectID = ""
	}
	m.pager.SetCursor(cur)
}

// Selected returns the node under the cursor
func (m *BrowserModel) Selected() *domain.TreeNode {
	cur := m.pager.Cursor()
	if cur >= 0 && cur < len(m.rows) {
		n := m.rows[cur].node
		return &n
	}
	return nil
}

// View renders the browser
func (m *BrowserModel) View() string {
	if !m.loaded {
		return RenderPanel("arbor", "", RenderMuted("Loading..."), m.Message, m.MessageErr, "")
	}

	var b strings.Builder
	if len(m.rows) == 0 {
		b.WriteString(RenderMuted("Empty tree. Press N to create a node."))
		b.WriteString("\n")
	}
	start, end := m.pager.VisibleRange()
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(m.rows[i], i == m.pager.Cursor()))
		b.WriteString("\n")
	}
	if len(m.rows) > end-start {
		b.WriteString(RenderMuted(fmt.Sprintf("%d-%d of %d", start+1, end, len(m.rows))))
		b.WriteString("\n")
	}

	help := RenderHelpLine(BrowserKeys.New, BrowserKeys.Rename, BrowserKeys.Trash, BrowserKeys.Undo, BrowserKeys.Search, BrowserKeys.Help, BrowserKeys.Quit)
	return RenderPanel("arbor", "", b.String(), m.Message, m.MessageErr, help)
}

func (m *BrowserModel) renderRow(r row, selected bool) string {
	indent := strings.Repeat("  ", r.depth)

	prefix := styles.TreeLeaf
	if r.node.HasChildren {
		prefix = styles.TreeCollapsed
		if m.expanded[r.node.ID] {
			prefix = styles.TreeExpanded
		}
	}

	text := RenderNodeLabel(r.node)
	switch {
	case selected:
		text = styles.NodeSelected.Render(r.node.Name + " [" + r.node.NodeType + "]")
	case r.node.ID == m.marked:
		text = styles.NodeMarked.Render(r.node.Name + " [" + r.node.NodeType + "]")
	}
	return indent + styles.TreeBranch.Render(prefix) + text
}

// SetSize updates the view dimensions
func (m *BrowserModel) SetSize(width, height int) {
	m.ViewState.SetSize(width, height)
	// Title, help and padding take about eight lines
	m.pager.SetPageSize(height - 8)
}
