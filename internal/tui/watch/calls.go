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

// CallState tracks one execute call discovered from events.
type CallState struct {
	ID          string
	Fingerprint string
	Status      string // running, ok, failed
	Kind        string
	Error       string
	Started     time.Time
	DurationMs  int64
}

// updateCallState processes an execute lifecycle event.
func updateCallState(calls map[string]*CallState, e events.Event) {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	callID, _ := data["call_id"].(string)
	if callID == "" {
		return
	}

	call, ok := calls[callID]
	if !ok {
		call = &CallState{ID: callID, Started: e.At}
		calls[callID] = call
	}

	if fp, ok := data["fingerprint"].(string); ok {
		call.Fingerprint = fp
	}
	if ms, ok := data["duration_ms"].(float64); ok {
		call.DurationMs = int64(ms)
	}

	switch e.Type {
	case events.TypeExecuteStarted:
		call.Status = "running"
	case events.TypeExecuteCompleted:
		call.Status = "ok"
	case events.TypeExecuteFailed:
		call.Status = "failed"
		if kind, ok := data["kind"].(string); ok {
			call.Kind = kind
		}
		if msg, ok := data["error"].(string); ok {
			call.Error = msg
		}
	}
}

func renderCalls(calls map[string]*CallState, theme Theme, width int) string {
	innerWidth := width - 4

	if len(calls) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EXECUTE CALLS"),
			theme.Dim.Render("  No calls yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	ordered := make([]*CallState, 0, len(calls))
	for _, c := range calls {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Started.After(ordered[j].Started)
	})
	if len(ordered) > 8 {
		ordered = ordered[:8]
	}

	var lines []string
	for _, c := range ordered {
		lines = append(lines, formatCall(c, theme))
	}

	callsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EXECUTE CALLS"),
		callsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatCall(c *CallState, theme Theme) string {
	var statusStyle lipgloss.Style
	switch c.Status {
	case "ok":
		statusStyle = theme.StatusOK
	case "failed":
		statusStyle = theme.StatusFailed
	default:
		statusStyle = theme.StatusRunning
	}

	fp := c.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}

	line := fmt.Sprintf("%s %s %s",
		theme.Dim.Render(c.Started.Format("15:04:05")),
		statusStyle.Render(fmt.Sprintf("%-7s", c.Status)),
		theme.Highlight.Render(fp),
	)
	if c.DurationMs > 0 {
		line += theme.Dim.Render(fmt.Sprintf(" %dms", c.DurationMs))
	}
	if c.Error != "" {
		msg := c.Error
		if len(msg) > 40 {
			msg = msg[:40] + "..."
		}
		line += " " + theme.StatusFailed.Render(msg)
	}
	return line
}
