package domain

import "time"

// EntryHistory is one audited field change on an unbilled time entry.
type EntryHistory struct {
	ID           int64
	EntryID      int64
	FieldName    string
	OldValue     string
	NewValue     string
	ChangeReason string
	ChangedAt    time.Time
}

// NewEntryHistory creates a history record for a field change
func NewEntryHistory(entryID int64, fieldName, oldValue, newValue, reason string) *EntryHistory {
	return &EntryHistory{
		EntryID:      entryID,
		FieldName:    fieldName,
		OldValue:     oldValue,
		NewValue:     newValue,
		ChangeReason: reason,
		ChangedAt:    time.Now().UTC(),
	}
}

// DiffEntries lists the audited fields that differ between two versions of
// an entry.
func DiffEntries(before, after *TimeEntry, reason string) []*EntryHistory {
	var out []*EntryHistory
	add := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			out = append(out, NewEntryHistory(after.ID, field, oldValue, newValue, reason))
		}
	}
	add("description", before.Description, after.Description)
	add("start_time", before.StartTime.UTC().Format(time.RFC3339), after.StartTime.UTC().Format(time.RFC3339))
	add("end_time", formatOptionalTime(before.EndTime), formatOptionalTime(after.EndTime))
	add("duration_minutes", formatInt(before.DurationMinutes), formatInt(after.DurationMinutes))
	add("hourly_rate", formatOptionalInt(before.HourlyRate), formatOptionalInt(after.HourlyRate))
	add("project_id", formatOptionalInt(before.ProjectID), formatOptionalInt(after.ProjectID))
	add("is_billable", formatBool(before.IsBillable), formatBool(after.IsBillable))
	return out
}
