package tui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves a chooser without picking.
var ErrCancelled = errors.New("selection cancelled")

// Option is one entry of a chooser.
type Option struct {
	Label  string
	Detail string

	index int
}

// Title returns the option label for list display.
func (o Option) Title() string { return o.Label }

// Description returns the detail line for list display.
func (o Option) Description() string { return o.Detail }

// FilterValue returns the value used for filtering in the list.
func (o Option) FilterValue() string { return o.Label }

// Chooser asks the user to pick among options: a Bubble Tea list on a
// terminal, a numbered prompt otherwise.
type Chooser struct {
	Interactive bool
	in          *bufio.Reader
	out         io.Writer
}

// NewChooser creates a Chooser on stdin and stdout.
func NewChooser() *Chooser {
	return &Chooser{Interactive: IsTTY(), in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewPromptChooser creates a numbered-prompt Chooser on in and out.
func NewPromptChooser(in io.Reader, out io.Writer) *Chooser {
	return &Chooser{in: bufio.NewReader(in), out: out}
}

// Choose returns the index of the picked option.
func (c *Chooser) Choose(title string, options []Option) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("nothing to choose for %q", title)
	}
	if c.Interactive {
		return chooseList(title, options)
	}
	return c.chooseNumbered(title, options)
}

type chooserModel struct {
	list   list.Model
	choice int
	done   bool
}

func newChooserModel(title string, options []Option) chooserModel {
	entries := make([]list.Item, len(options))
	for i, o := range options {
		o.index = i
		entries[i] = o
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color(primaryColor)).
		BorderForeground(lipgloss.Color(primaryColor))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("#9CA3AF"))

	l := list.New(entries, delegate, 60, 14)
	l.Title = title
	l.Styles.Title = TitleStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(len(options) > 8)

	return chooserModel{list: l, choice: -1}
}

func (m chooserModel) Init() tea.Cmd {
	return nil
}

func (m chooserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case KeyEnter:
			if o, ok := m.list.SelectedItem().(Option); ok {
				m.choice = o.index
			}
			m.done = true
			return m, tea.Quit
		case KeyCtrlC, KeyEsc, "q":
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m chooserModel) View() string {
	if m.done {
		return ""
	}
	return m.list.View()
}

func chooseList(title string, options []Option) (int, error) {
	final, err := tea.NewProgram(newChooserModel(title, options)).Run()
	if err != nil {
		return -1, err
	}
	m := final.(chooserModel)
	if m.choice < 0 {
		return -1, ErrCancelled
	}
	return m.choice, nil
}
