package tui

import (
	"fmt"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
)

// formatMinutes formats minutes as "Xh Ym"
func formatMinutes(minutes int64) string {
	h := minutes / 60
	m := minutes % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// formatClock formats an elapsed duration as HH:MM:SS
func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func formatRate(rate *int64) string {
	if rate == nil {
		return "no rate"
	}
	return money.Format(*rate) + "/hr"
}

// truncateStr truncates a string to the specified length with ellipsis
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func renderStatus(status domain.InvoiceStatus) string {
	style, ok := statusStyles[status]
	if !ok {
		return string(status)
	}
	return style.Render(string(status))
}

func clientNames(clients []*domain.Client) map[int64]string {
	names := make(map[int64]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	return names
}

func nameOr(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("Client #%d", id)
}
