package views

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"arbor/internal/config"
	"arbor/internal/engine"
	"arbor/internal/logging"
)

func newTree(t *testing.T) (context.Context, *engine.Client) {
	t.Helper()
	home := t.TempDir()
	cfg := config.Default()
	cfg.Home = home
	cfg.Database = filepath.Join(home, "arbor.db")
	cfg.Ephemeral.InMemory = true
	cfg.Metrics.Enabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	e, err := engine.Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		e.Close()
	})
	return ctx, e.Client()
}

func create(t *testing.T, ctx context.Context, c *engine.Client, parentID, nodeType, name, data string) string {
	t.Helper()
	var raw json.RawMessage
	if data != "" {
		raw = json.RawMessage(data)
	}
	res := c.CreateNode(ctx, parentID, nodeType, name, raw, "")
	require.True(t, res.Success, res.Error)
	return res.NodeID
}

type updater interface {
	Update(tea.Msg) (tea.Model, tea.Cmd)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// run feeds msg to m, then every message its commands produce, until the
// commands run dry. Messages meant for the app (view switches, quit, and
// command results outside the browser) are returned instead of fed back.
func run(t *testing.T, m updater, msg tea.Msg) []tea.Msg {
	t.Helper()
	_, isBrowser := m.(*BrowserModel)

	var out []tea.Msg
	queue := []tea.Msg{msg}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100, "update loop does not settle")
		next := queue[0]
		queue = queue[1:]

		switch next.(type) {
		case SwitchToFormMsg, SwitchToConfirmMsg, SwitchToSearchMsg, SwitchToHelpMsg, SwitchToBrowserMsg, tea.QuitMsg:
			out = append(out, next)
			continue
		case CommandDoneMsg:
			if !isBrowser {
				out = append(out, next)
				continue
			}
		}
		_, cmd := m.Update(next)
		queue = append(queue, exec(cmd)...)
	}
	return out
}

// runCmd executes cmd and feeds its messages to m
func runCmd(t *testing.T, m updater, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	var out []tea.Msg
	for _, msg := range exec(cmd) {
		out = append(out, run(t, m, msg)...)
	}
	return out
}

func exec(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, exec(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}
