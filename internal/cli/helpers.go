package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
)

// resolveClientID resolves a client by ID or name
func resolveClientID(ctx context.Context, idOrName string) (int64, error) {
	owner := appInstance.Owner()
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		client, err := appInstance.Store.Clients().GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if client.UserID != owner {
			return 0, domain.NotFound("client", id)
		}
		return id, nil
	}

	client, err := appInstance.Store.Clients().GetByName(ctx, owner, idOrName)
	if err != nil {
		return 0, err
	}
	return client.ID, nil
}

func clientName(ctx context.Context, id int64) string {
	client, err := appInstance.Store.Clients().GetByID(ctx, id)
	if err != nil {
		return fmt.Sprintf("Client #%d", id)
	}
	return client.Name
}

// resolveInvoiceID accepts an invoice ID or number such as INV-1-2026-004
func resolveInvoiceID(ctx context.Context, idOrNumber string) (int64, error) {
	if id, err := strconv.ParseInt(idOrNumber, 10, 64); err == nil {
		return id, nil
	}
	inv, err := appInstance.Invoices.GetByNumber(ctx, appInstance.Owner(), idOrNumber)
	if err != nil {
		return 0, err
	}
	return inv.ID, nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %w", what, err)
	}
	return id, nil
}

// parseIDs reads IDs from args, accepting "1,2,3" as well as "1 2 3"
func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := parseID(part, what)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// optionalRate reads a major-unit rate flag into cents
func optionalRate(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	cents, err := money.Parse(value)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

func formatRate(rate *int64) string {
	if rate == nil {
		return "-"
	}
	return money.Format(*rate) + "/h"
}

// parseDate parses a date string in various formats
func parseDate(s string) (time.Time, error) {
	switch s {
	case "today":
		return domain.StartOfDay(time.Now()), nil
	case "yesterday":
		return domain.StartOfDay(time.Now().AddDate(0, 0, -1)), nil
	case "tomorrow":
		return domain.StartOfDay(time.Now().AddDate(0, 0, 1)), nil
	default:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected format: YYYY-MM-DD, 'today', 'yesterday' or 'tomorrow'")
		}
		return t, nil
	}
}

// optionalDate parses a date flag, nil when empty
func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDateTime parses a datetime string in various formats
func parseDateTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("expected format: YYYY-MM-DD or YYYY-MM-DD HH:MM:SS")
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	} else if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func confirmPrompt(message string) bool {
	fmt.Printf("%s [y/N] ", message)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}

func repositoryFilter(owner, clientID int64, projectID *int64) repository.EntryFilter {
	return repository.EntryFilter{
		UserID:       owner,
		ClientID:     &clientID,
		ProjectID:    projectID,
		UnbilledOnly: true,
	}
}
