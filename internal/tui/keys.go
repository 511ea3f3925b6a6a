package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds every binding the TUI reacts to. It implements help.KeyMap.
type keyMap struct {
	Quit         key.Binding
	NextPane     key.Binding
	PrevPane     key.Binding
	TasksPane    key.Binding
	ProgressPane key.Binding
	Down         key.Binding
	Up           key.Binding
}

var keys = keyMap{
	Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	NextPane:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
	PrevPane:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous pane")),
	TasksPane:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "tasks")),
	ProgressPane: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "progress")),
	Down:         key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "next task")),
	Up:           key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "previous task")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPane, k.TasksPane, k.ProgressPane, k.Down, k.Up, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Down, k.Up},
		{k.NextPane, k.PrevPane, k.TasksPane, k.ProgressPane},
		{k.Quit},
	}
}

// finishedKeys is shown once the run is over and only quitting is useful.
type finishedKeys struct{}

func (finishedKeys) ShortHelp() []key.Binding  { return []key.Binding{keys.Quit} }
func (finishedKeys) FullHelp() [][]key.Binding { return [][]key.Binding{{keys.Quit}} }

var (
	_ help.KeyMap = keyMap{}
	_ help.KeyMap = finishedKeys{}
)
