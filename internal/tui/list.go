package tui

import (
	"fmt"
	"strings"
	"time"

	"shoplist/internal/models"
	"shoplist/internal/shopping"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"
)

type listFocus int

const (
	focusInput listFocus = iota
	focusList
)

// ListScreen renders the shopping list in view order. Each row can be
// swiped open to reveal its complete and delete actions; at most one row
// is open at a time.
type ListScreen struct {
	rows   []models.Item
	cursor int
	swiped string
	focus  listFocus
	input  textinput.Model
	width  int
	height int

	statusMsg     string
	statusIsError bool
}

func NewListScreen() ListScreen {
	input := textinput.New()
	input.Placeholder = "Add a new item to the list..."
	input.CharLimit = 200
	input.Width = 40
	input.Focus()

	return ListScreen{
		input: input,
		focus: focusInput,
	}
}

// SetItems replaces the rows, keeping the cursor and any open swipe on the
// same item when it still exists.
func (l *ListScreen) SetItems(items []models.Item) {
	var selected string
	if l.cursor < len(l.rows) {
		selected = l.rows[l.cursor].ID
	}

	l.rows = shopping.ViewOrder(items)

	l.cursor = 0
	for i, row := range l.rows {
		if row.ID == selected {
			l.cursor = i
			break
		}
	}
	if l.indexOf(l.swiped) < 0 {
		l.swiped = ""
	}
}

func (l ListScreen) Init() tea.Cmd {
	return textinput.Blink
}

func (l ListScreen) Update(msg tea.Msg) (ListScreen, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		l.width = msg.Width
		l.height = msg.Height
		return l, nil

	case StatusMsg:
		l.statusMsg = msg.Message
		l.statusIsError = msg.IsError
		return l, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return ClearStatusMsg{}
		})

	case ClearStatusMsg:
		l.statusMsg = ""
		return l, nil

	case tea.KeyMsg:
		if l.focus == focusInput {
			return l.updateInput(msg)
		}
		return l.updateList(msg)
	}

	var cmd tea.Cmd
	if l.focus == focusInput {
		l.input, cmd = l.input.Update(msg)
	}
	return l, cmd
}

func (l ListScreen) updateInput(msg tea.KeyMsg) (ListScreen, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return l.submit()
	case "tab", "esc", "down":
		if len(l.rows) == 0 {
			return l, nil
		}
		l.focus = focusList
		l.input.Blur()
		return l, nil
	}

	var cmd tea.Cmd
	l.input, cmd = l.input.Update(msg)
	return l, cmd
}

func (l ListScreen) submit() (ListScreen, tea.Cmd) {
	label := strings.TrimSpace(l.input.Value())
	glog.V(2).Infof("[tui] submitted %q", l.input.Value())
	if label == "" {
		return l, nil
	}

	l.input.SetValue("")
	return l, func() tea.Msg {
		return AddItemMsg{Label: label}
	}
}

func (l ListScreen) updateList(msg tea.KeyMsg) (ListScreen, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if l.cursor > 0 {
			l.cursor--
			l.swiped = ""
		}
	case "down", "j":
		if l.cursor < len(l.rows)-1 {
			l.cursor++
			l.swiped = ""
		}
	case "left", "h":
		if row, ok := l.current(); ok {
			l.swiped = row.ID
		}
	case "right", "l", "esc":
		l.swiped = ""
	case " ":
		if row, ok := l.current(); ok {
			if l.swiped == row.ID {
				l.swiped = ""
			} else {
				l.swiped = row.ID
			}
		}
	case "c":
		row, ok := l.openRow()
		if !ok || row.IsCompleted {
			return l, nil
		}
		l.swiped = ""
		return l, func() tea.Msg {
			return CompleteItemMsg{Item: row}
		}
	case "d", "x":
		row, ok := l.openRow()
		if !ok {
			return l, nil
		}
		l.swiped = ""
		return l, func() tea.Msg {
			return DeleteItemMsg{Item: row}
		}
	case "tab", "i", "a":
		l.focus = focusInput
		l.swiped = ""
		return l, l.input.Focus()
	}
	return l, nil
}

func (l ListScreen) current() (models.Item, bool) {
	if l.cursor < 0 || l.cursor >= len(l.rows) {
		return models.Item{}, false
	}
	return l.rows[l.cursor], true
}

// openRow is the cursor row, only while it is swiped open.
func (l ListScreen) openRow() (models.Item, bool) {
	row, ok := l.current()
	if !ok || row.ID != l.swiped {
		return models.Item{}, false
	}
	return row, true
}

func (l ListScreen) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, row := range l.rows {
		if row.ID == id {
			return i
		}
	}
	return -1
}

func (l ListScreen) IsInputActive() bool {
	return l.focus == focusInput
}

func (l ListScreen) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Shopping List"))
	b.WriteString("\n")

	if l.focus == focusInput {
		b.WriteString(focusedInputStyle.Render(l.input.View()))
	} else {
		b.WriteString(inputStyle.Render(l.input.View()))
	}
	b.WriteString("\n\n")

	if len(l.rows) == 0 {
		b.WriteString(mutedStyle.Render("Nothing on the list yet."))
		b.WriteString("\n")
	}

	for i, row := range l.rows {
		b.WriteString(l.renderRow(i, row))
		b.WriteString("\n")
	}

	if l.statusMsg != "" {
		b.WriteString("\n")
		if l.statusIsError {
			b.WriteString(errorStyle.Render("⚠ " + l.statusMsg))
		} else {
			b.WriteString(successStyle.Render("✓ " + l.statusMsg))
		}
		b.WriteString("\n")
	}

	if l.focus == focusInput {
		b.WriteString(helpStyle.Render("enter add • tab go to list"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ navigate • ←/space swipe • c complete • d delete • → close • tab add items"))
	}

	return b.String()
}

func (l ListScreen) renderRow(i int, row models.Item) string {
	cursor := "  "
	style := normalStyle
	if row.IsCompleted {
		style = completedStyle
	}
	if i == l.cursor && l.focus == focusList {
		cursor = "▸ "
		if !row.IsCompleted {
			style = selectedStyle
		}
	}

	line := fmt.Sprintf("%s%s", cursor, style.Render(row.Label))
	if row.ID == l.swiped {
		if !row.IsCompleted {
			line += " " + completeActionStyle.Render("c complete")
		}
		line += " " + deleteActionStyle.Render("d delete")
	}
	return line
}
