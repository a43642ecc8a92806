package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"arbor/internal/adapters/editor"
	"arbor/internal/adapters/tui/views"
	"arbor/internal/application/events"
	"arbor/internal/domain"
)

// Client is what the TUI needs from a running engine
type Client interface {
	views.Tree
	SubscribeSubtree(ctx context.Context, rootID string, opts events.SubtreeOptions) (*events.Subscription, error)
}

// ViewState represents the current view
type ViewState int

const (
	ViewBrowser ViewState = iota
	ViewForm
	ViewConfirm
	ViewSearch
	ViewHelp
)

const eventPaneHeight = 8

// App is the main TUI application model
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	client Client
	sub    *events.Subscription

	state   ViewState
	browser *views.BrowserModel
	form    *views.FormModel
	confirm *views.ConfirmModel
	search  *views.SearchModel
	help    *views.HelpModel
	log     *views.EventLogModel

	showEvents bool
	width      int
	height     int
}

// NewApp creates a new TUI application. Close must be called once the
// program exits. ed may be nil when no editor should be used.
func NewApp(ctx context.Context, client Client, ed *editor.Opener) *App {
	ctx, cancel := context.WithCancel(ctx)
	return &App{
		ctx:     ctx,
		cancel:  cancel,
		client:  client,
		state:   ViewBrowser,
		browser: views.NewBrowserModel(ctx, client, ed),
		form:    views.NewFormModel(ctx, client),
		confirm: views.NewConfirmModel(ctx, client),
		search:  views.NewSearchModel(ctx, client),
		help:    views.NewHelpModel(client.Types()),
		log:     views.NewEventLogModel(80, eventPaneHeight),
	}
}

// Close ends the event subscription
func (a *App) Close() {
	a.cancel()
	if a.sub != nil {
		a.sub.Cancel()
	}
}

type subscribedMsg struct {
	sub *events.Subscription
}

type changeMsg struct {
	event domain.TreeChangeEvent
}

type subscriptionEndedMsg struct {
	err error
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.browser.Init(), a.subscribe())
}

func (a *App) subscribe() tea.Cmd {
	ctx, client := a.ctx, a.client
	return func() tea.Msg {
		sub, err := client.SubscribeSubtree(ctx, "", events.SubtreeOptions{})
		if err != nil {
			return subscriptionEndedMsg{err}
		}
		return subscribedMsg{sub}
	}
}

// waitForEvent blocks on the next change event of sub
func waitForEvent(sub *events.Subscription) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return subscriptionEndedMsg{}
			}
			return changeMsg{event: ev}
		case err := <-sub.Errors:
			return subscriptionEndedMsg{err}
		}
	}
}

// Update handles messages for the application
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case subscribedMsg:
		a.sub = msg.sub
		return a, waitForEvent(msg.sub)

	case changeMsg:
		a.log.Append(msg.event)
		return a, tea.Batch(a.browser.Reload(), waitForEvent(a.sub))

	case subscriptionEndedMsg:
		if msg.err != nil {
			a.browser.SetMessage("live updates stopped: "+msg.err.Error(), true)
		}
		return a, nil

	case views.SwitchToFormMsg:
		a.state = ViewForm
		return a, a.form.Open(msg.Mode, msg.Target)

	case views.SwitchToConfirmMsg:
		a.state = ViewConfirm
		a.confirm.SetTarget(msg.Target)
		return a, nil

	case views.SwitchToSearchMsg:
		a.state = ViewSearch
		a.search.Reset()
		return a, a.search.Init()

	case views.SwitchToHelpMsg:
		a.state = ViewHelp
		return a, nil

	case views.SwitchToBrowserMsg:
		a.state = ViewBrowser
		if msg.FocusID != "" {
			return a, a.browser.Focus(msg.FocusID)
		}
		return a, nil

	case views.CommandDoneMsg:
		a.state = ViewBrowser
		_, cmd := a.browser.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if a.state == ViewBrowser && key.Matches(msg, views.EventKeys.Toggle) {
			a.showEvents = !a.showEvents
			a.resize()
			return a, nil
		}
	}

	// Delegate to current view
	var cmd tea.Cmd
	switch a.state {
	case ViewBrowser:
		_, cmd = a.browser.Update(msg)
	case ViewForm:
		_, cmd = a.form.Update(msg)
	case ViewConfirm:
		_, cmd = a.confirm.Update(msg)
	case ViewSearch:
		_, cmd = a.search.Update(msg)
	case ViewHelp:
		_, cmd = a.help.Update(msg)
	}

	return a, cmd
}

func (a *App) resize() {
	browserHeight := a.height
	if a.showEvents {
		browserHeight -= eventPaneHeight + 1
	}
	a.browser.SetSize(a.width, browserHeight)
	a.form.SetSize(a.width, a.height)
	a.confirm.SetSize(a.width, a.height)
	a.search.SetSize(a.width, a.height)
	a.help.SetSize(a.width, a.height)
	a.log.SetSize(a.width, eventPaneHeight)
}

// View renders the current view
func (a *App) View() string {
	switch a.state {
	case ViewForm:
		return a.form.View()
	case ViewConfirm:
		return a.confirm.View()
	case ViewSearch:
		return a.search.View()
	case ViewHelp:
		return a.help.View()
	}
	if a.showEvents {
		return lipgloss.JoinVertical(lipgloss.Left, a.browser.View(), a.log.View())
	}
	return a.browser.View()
}

// Run starts the TUI on the terminal and blocks until it quits
func Run(ctx context.Context, client Client) error {
	app := NewApp(ctx, client, editor.NewOpener())
	defer app.Close()
	_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
