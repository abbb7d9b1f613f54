package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/marionette/internal/events"
)

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	// Color the event type based on category
	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".completed"), strings.HasSuffix(e.Type, ".attached"):
		typeStyle = theme.StatusOK
	case strings.HasSuffix(e.Type, ".failed"), strings.HasSuffix(e.Type, ".detached"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(e.Type, ".started"):
		typeStyle = theme.StatusRunning
	case strings.HasPrefix(e.Type, "mock."):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))

	desc := extractEventDesc(e)

	return fmt.Sprintf("%s %s %s", ts, typeName, desc)
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if callID, ok := data["call_id"].(string); ok && callID != "" {
		parts = append(parts, fmt.Sprintf("[%s]", callID))
	}

	if command, ok := data["command"].(string); ok && command != "" {
		parts = append(parts, command)
	}

	if scope, ok := data["scope"].(string); ok && scope != "" {
		parts = append(parts, scope)
	}

	if ms, ok := data["duration_ms"].(float64); ok && ms > 0 {
		parts = append(parts, fmt.Sprintf("%dms", int64(ms)))
	}

	if errText, ok := data["error"].(string); ok && errText != "" {
		if len(errText) > 48 {
			errText = errText[:48] + "..."
		}
		parts = append(parts, errText)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
