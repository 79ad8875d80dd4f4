package ui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pickerItem implements list.Item for one option.
type pickerItem struct {
	option Option
}

func (i pickerItem) Title() string       { return i.option.Label }
func (i pickerItem) Description() string { return i.option.Desc }
func (i pickerItem) FilterValue() string { return i.option.Label }

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1)

	pickerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

// pickerModel is the selection model behind Prompter.Select.
type pickerModel struct {
	list     list.Model
	selected *Option
	quitting bool
}

func newPickerModel(title string, options []Option) pickerModel {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = pickerItem{option: o}
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 60, 20)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = pickerTitleStyle

	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(pickerItem); ok {
				o := item.option
				m.selected = &o
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-4)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	if m.selected != nil || m.quitting {
		return ""
	}
	return pickerStyle.Render(m.list.View())
}

// pick runs the picker and returns the chosen option's label.
func pick(title string, options []Option) (string, error) {
	p := tea.NewProgram(newPickerModel(title, options))
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(pickerModel)
	if !ok || m.selected == nil {
		return "", ErrNoSelection
	}
	return m.selected.Label, nil
}
