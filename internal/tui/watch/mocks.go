package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/marionette/internal/events"
)

// MockState tracks a registered override discovered from events.
type MockState struct {
	Command string
	SetAt   time.Time
}

// updateMockState processes a mock mutation event. A cleared scope empties
// the whole table since clear, reset and restore all drop every override.
func updateMockState(mocks map[string]*MockState, e events.Event) {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	switch e.Type {
	case events.TypeMockSet:
		command, _ := data["command"].(string)
		if command == "" {
			return
		}
		mocks[command] = &MockState{Command: command, SetAt: e.At}
	case events.TypeMockCleared:
		for k := range mocks {
			delete(mocks, k)
		}
	}
}

func renderMocks(mocks map[string]*MockState, theme Theme, width int) string {
	innerWidth := width - 4

	if len(mocks) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("MOCKS"),
			theme.Dim.Render("  No overrides registered"),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	names := make([]string, 0, len(mocks))
	for name := range mocks {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		m := mocks[name]
		lines = append(lines, fmt.Sprintf("%s %s",
			theme.Highlight.Render(fmt.Sprintf("%-24s", m.Command)),
			theme.Dim.Render("since "+m.SetAt.Format("15:04:05")),
		))
	}

	mocksText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("MOCKS"),
		mocksText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}
