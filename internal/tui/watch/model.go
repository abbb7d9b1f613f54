package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/marionette/internal/events"
)

// eventLogCap bounds how many events the stream panel retains.
const eventLogCap = 200

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	health   HealthState
	calls    map[string]*CallState
	mocks    map[string]*MockState
	eventLog []events.Event

	// Live indicators
	ticker   Ticker
	activity Activity

	// UI state
	theme    Theme
	eventsVP viewport.Model
	ready    bool

	// Communication
	hubEvents chan events.Event

	// Error display
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		calls:     make(map[string]*CallState),
		mocks:     make(map[string]*MockState),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		activity:  NewActivity(),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		default:
			// Arrow keys and page keys scroll the event stream.
			var cmd tea.Cmd
			m.eventsVP, cmd = m.eventsVP.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 18
		if vpHeight < 4 {
			vpHeight = 4
		}
		if !m.ready {
			m.eventsVP = viewport.New(m.width-8, vpHeight)
			m.ready = true
		} else {
			m.eventsVP.Width = m.width - 8
			m.eventsVP.Height = vpHeight
		}
		m.refreshEventViewport()

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogCap {
			m.eventLog = m.eventLog[:eventLogCap]
		}

		m.activity.OnEvent()

		switch e.Type {
		case events.TypeSessionAttached:
			m.health.SessionAttached = true
		case events.TypeSessionDetached:
			m.health.SessionAttached = false
		}

		updateCallState(m.calls, e)
		updateMockState(m.mocks, e)
		m.refreshEventViewport()

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.SessionAttached = msg.SessionAttached
		m.health.PendingExecutes = msg.PendingExecutes
		m.health.MocksRegistered = msg.MocksRegistered
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// Reconnect after a short delay; the existing receiveNextEvent
		// goroutine is still waiting on the channel and will pick up
		// events from the new subscription.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		// Retry health in 5s
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

// refreshEventViewport re-renders the scrollable event stream content.
func (m *Model) refreshEventViewport() {
	if !m.ready {
		return
	}
	var lines []string
	for _, e := range m.eventLog {
		lines = append(lines, formatEvent(e, m.theme))
	}
	m.eventsVP.SetContent(strings.Join(lines, "\n"))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to marionette..."
	}

	header := renderHeader(m.health, m.ticker, m.activity, m.theme, m.width)
	calls := renderCalls(m.calls, m.theme, m.width)
	mocks := renderMocks(m.mocks, m.theme, m.width)

	streamContent := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(m.eventsVP.View()),
	)
	eventStream := m.theme.Border.Width(m.width - 4).Render(streamContent)

	// Error bar
	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll Events")

	parts := []string{header, calls, mocks, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
