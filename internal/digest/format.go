package digest

import "time"

// formatDate renders "Monday, 2 June 2025" (en-GB long form).
func formatDate(t time.Time) string {
	return t.Format("Monday, 2 January 2006")
}

// formatDateShort renders "2 June 2025" (no weekday).
func formatDateShort(t time.Time) string {
	return t.Format("2 January 2006")
}
