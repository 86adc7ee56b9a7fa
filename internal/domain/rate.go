package domain

// ResolveRate picks the hourly rate (cents) for an entry: the entry's own
// rate, then its project's, then the client default. A nil result means the
// entry cannot be billed at a rate.
func ResolveRate(entry *TimeEntry, project *Project, client *Client) *int64 {
	if entry != nil && entry.HourlyRate != nil {
		return entry.HourlyRate
	}
	if project != nil && project.HourlyRate != nil {
		return project.HourlyRate
	}
	if client != nil && client.HourlyRate != nil {
		return client.HourlyRate
	}
	return nil
}
