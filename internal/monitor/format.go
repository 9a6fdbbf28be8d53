package monitor

import (
	"fmt"

	"gardenbot/internal/garden"
)

func entryEmoji(e garden.Entry) string {
	if e.Emoji != "" {
		return e.Emoji
	}
	return "📦"
}

func formatChange(ev garden.ChangeEvent) string {
	switch ev.Kind {
	case garden.EventAppeared:
		return fmt.Sprintf("🆕 New in stock! %s %s (%d available)",
			entryEmoji(ev.Entry), ev.Entry.Name, ev.Entry.Quantity)
	case garden.EventQuantityChanged:
		sign := ""
		if ev.Delta > 0 {
			sign = "+"
		}
		return fmt.Sprintf("📊 Stock update %s %s: %d → %d (%s%d)",
			entryEmoji(ev.Entry), ev.Entry.Name, ev.PreviousQuantity, ev.CurrentQuantity, sign, ev.Delta)
	case garden.EventActivityStarted:
		text := fmt.Sprintf("🌩️ Weather alert! %s has started", ev.Entry.Name)
		if !ev.Entry.WindowEnd.IsZero() {
			text += fmt.Sprintf(" (until %s)", ev.Entry.WindowEnd.Format("15:04:05 MST"))
		}
		return text
	case garden.EventActivityEnded:
		return fmt.Sprintf("☀️ Weather update: %s has ended", ev.Entry.Name)
	default:
		return ""
	}
}

func formatMatch(m garden.MatchEvent) string {
	return fmt.Sprintf("🎯 Watchlist alert! %s %s is now in stock (%d available, %s)",
		entryEmoji(m.Entry), m.Entry.Name, m.Entry.Quantity, m.Category)
}
