package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cwoolley/mangafind/internal/search"
	"github.com/cwoolley/mangafind/internal/state"
)

// Store is the part of state.Store the UI drives.
type Store interface {
	Search(ctx context.Context, query, scope string) (*state.SearchState, error)
	Snapshot() *state.SearchState
}

type mode int

const (
	stateInput mode = iota
	stateLoading
	stateResults
)

// searchResultMsg is sent when a search finishes.
type searchResultMsg struct {
	id    int
	state *state.SearchState
	err   error
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	searchInput textinput.Model
	store       Store
	scopes      []string
	scopeIdx    int
	snapshot    *state.SearchState
	cursor      int
	state       mode
	err         error
	cancel      context.CancelFunc
	searchID    int
}

// NewModel creates a TUI over store. connectors are offered as single-source
// scopes after the global one.
func NewModel(store Store, connectors []string) Model {
	ti := textinput.New()
	ti.Placeholder = "Search manga across connectors..."
	ti.Focus()
	ti.Width = 60

	return Model{
		searchInput: ti,
		store:       store,
		scopes:      append([]string{search.Global}, connectors...),
		snapshot:    store.Snapshot(),
		state:       stateInput,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case searchResultMsg:
		return m.handleSearchResult(msg)
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) scope() string {
	return m.scopes[m.scopeIdx]
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case tea.KeyEscape:
		if m.state != stateInput {
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
			}
			m.state = stateInput
			m.searchInput.Focus()
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyTab:
		if m.state == stateInput {
			m.scopeIdx = (m.scopeIdx + 1) % len(m.scopes)
			return m, nil
		}

	case tea.KeyEnter:
		if m.state == stateInput {
			if m.cancel != nil {
				m.cancel()
			}
			ctx, cancel := context.WithCancel(context.Background())
			m.cancel = cancel
			m.searchID++
			m.state = stateLoading
			m.searchInput.Blur()
			return m, m.doSearch(ctx, m.searchID, m.searchInput.Value(), m.scope())
		}

	case tea.KeyUp:
		if m.state == stateResults && m.cursor > 0 {
			m.cursor--
		}

	case tea.KeyDown:
		if m.state == stateResults && m.cursor < len(m.snapshot.Items)-1 {
			m.cursor++
		}
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleSearchResult(msg searchResultMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.searchID || m.state != stateLoading {
		// Superseded or cancelled by the user.
		return m, nil
	}

	m.cancel = nil
	m.cursor = 0
	m.snapshot = m.store.Snapshot()
	if msg.state != nil {
		m.snapshot = msg.state
	}
	// Another reader of the store searched after us; show what it published.
	if errors.Is(msg.err, state.ErrStale) {
		msg.err = nil
	}
	m.err = msg.err
	if msg.err != nil {
		m.state = stateInput
		m.searchInput.Focus()
		return m, nil
	}
	m.state = stateResults
	return m, nil
}

func (m Model) doSearch(ctx context.Context, id int, query, scope string) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		st, err := store.Search(ctx, query, scope)
		return searchResultMsg{id: id, state: st, err: err}
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	scopeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func scopeLabel(scope string) string {
	if scope == search.Global {
		return "all connectors"
	}
	return scope
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("  Search manga"))
	b.WriteString("  " + scopeStyle.Render("["+scopeLabel(m.scope())+"]"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.searchInput.View())
	b.WriteString("\n\n")

	if m.state == stateLoading {
		b.WriteString("  Searching...\n\n")
	}

	// Previous results stay on screen while a new search runs.
	if m.snapshot != nil && m.snapshot.Seq > 0 && (m.state != stateInput || len(m.snapshot.Items) > 0) {
		items := m.snapshot.Items
		if len(items) == 0 {
			b.WriteString("  No results found.\n")
		} else {
			b.WriteString(fmt.Sprintf("  %d results for %q in %s:\n\n", len(items), m.snapshot.Query, scopeLabel(m.snapshot.Scope)))
			for i, it := range items {
				cursor := "  "
				title := titleStyle.Render(it.Title())
				if m.state == stateResults && i == m.cursor {
					cursor = "> "
					title = selectedStyle.Render(it.Title())
				}
				b.WriteString(fmt.Sprintf("  %s%s\n", cursor, title))
				b.WriteString(fmt.Sprintf("     %s\n", keyStyle.Render(it.Key)))
				b.WriteString(fmt.Sprintf("     %s\n\n", sourceStyle.Render("["+strings.Join(it.AvailableSources, ", ")+"]")))
			}
		}
	}

	if m.err != nil {
		b.WriteString(fmt.Sprintf("\n  Error: %s\n", m.err))
	}

	b.WriteString("\n  esc: back • ctrl+c: quit")
	switch m.state {
	case stateInput:
		b.WriteString(" • tab: change connector")
	case stateResults:
		b.WriteString(" • ↑/↓: navigate")
	}
	b.WriteString("\n")

	return b.String()
}
