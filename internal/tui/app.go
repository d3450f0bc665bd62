package tui

import (
	"context"
	"fmt"
	"strings"

	"shoplist/internal/models"
	"shoplist/internal/shopping"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"
)

type SyncStatus int

const (
	SyncConnecting SyncStatus = iota
	SyncConnected
	SyncError
	SyncLocal
)

func (s SyncStatus) String() string {
	switch s {
	case SyncConnecting:
		return "connecting"
	case SyncConnected:
		return "connected"
	case SyncError:
		return "error"
	case SyncLocal:
		return "local only"
	}
	return "unknown"
}

type App struct {
	ctx     context.Context
	state   *shopping.State
	sync    *shopping.Sync
	source  string
	changes <-chan struct{}

	list   ListScreen
	width  int
	height int

	syncStatus SyncStatus
	syncErr    error
}

// NewApp builds the root model. sync may be nil, in which case the list is
// kept in memory only. source names the backend for the header.
func NewApp(ctx context.Context, state *shopping.State, sync *shopping.Sync, source string) *App {
	list := NewListScreen()
	list.SetItems(state.Items())

	status := SyncConnecting
	if sync == nil {
		status = SyncLocal
	}

	return &App{
		ctx:        ctx,
		state:      state,
		sync:       sync,
		source:     source,
		changes:    state.Watch(),
		list:       list,
		syncStatus: status,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.list.Init(),
		a.listenForChanges(),
		a.startSync(),
	)
}

func (a *App) listenForChanges() tea.Cmd {
	return func() tea.Msg {
		if a.changes == nil {
			return nil
		}
		select {
		case _, ok := <-a.changes:
			if !ok {
				return nil
			}
			return StateChangedMsg{}
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) startSync() tea.Cmd {
	if a.sync == nil {
		return nil
	}
	return func() tea.Msg {
		if err := a.sync.Start(a.ctx); err != nil {
			return SyncStatusMsg{Status: SyncError, Err: err}
		}
		return SyncStatusMsg{Status: SyncConnected}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}

	case StateChangedMsg:
		a.list.SetItems(a.state.Items())
		return a, a.listenForChanges()

	case SyncStatusMsg:
		a.syncStatus = msg.Status
		a.syncErr = msg.Err
		if msg.Err != nil {
			glog.Warningf("[tui] sync: %v", msg.Err)
			return a, func() tea.Msg {
				return StatusMsg{Message: "Sync failed: " + msg.Err.Error(), IsError: true}
			}
		}
		return a, nil

	case AddItemMsg:
		item, ok := models.NewItem(msg.Label)
		if !ok {
			return a, nil
		}
		a.list.SetItems(a.state.Add(item))
		return a, nil

	case CompleteItemMsg:
		a.list.SetItems(a.state.Edit(msg.Item, models.Completed()))
		return a, nil

	case DeleteItemMsg:
		a.list.SetItems(a.state.Delete(msg.Item))
		return a, nil
	}

	var cmd tea.Cmd
	a.list, cmd = a.list.Update(msg)
	return a, cmd
}

func (a App) View() string {
	var b strings.Builder

	b.WriteString(logoStyle.Render(logo))
	b.WriteString("\n")
	b.WriteString(a.renderSyncStatus())
	b.WriteString("\n\n")
	b.WriteString(a.list.View())
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("ctrl+c quit"))

	return b.String()
}

func (a App) renderSyncStatus() string {
	var line string
	switch a.syncStatus {
	case SyncConnected:
		line = successStyle.Render("● " + a.syncStatus.String())
		if last := a.sync.LastSnapshot(); !last.IsZero() {
			line += mutedStyle.Render(fmt.Sprintf(" · last update %s", last.Format("15:04:05")))
		}
	case SyncError:
		line = errorStyle.Render("● " + a.syncStatus.String())
	case SyncConnecting:
		line = warnStyle.Render("○ " + a.syncStatus.String())
	default:
		line = mutedStyle.Render("○ " + a.syncStatus.String())
	}

	if a.source != "" {
		line += mutedStyle.Render("  " + a.source)
	}
	return line
}

// Items is the list as currently rendered, in view order.
func (a App) Items() []models.Item {
	return models.CloneItems(a.list.rows)
}
