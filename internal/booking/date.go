package booking

import "time"

// LeadDays is how far ahead the portal opens bookings.
const LeadDays = 21

const dateLabelLayout = "01/02/2006"

// TargetDate returns the calendar day LeadDays after now's local date, as
// midnight UTC. Day arithmetic stays in UTC because local midnight does not
// exist on days where DST starts at 00:00.
func TargetDate(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+LeadDays, 0, 0, 0, 0, time.UTC)
}

// FormatDateLabel renders t the way the portal's date picker expects (MM/DD/YYYY).
func FormatDateLabel(t time.Time) string {
	return t.Format(dateLabelLayout)
}

// DateLabel is FormatDateLabel(TargetDate(now)).
func DateLabel(now time.Time) string {
	return FormatDateLabel(TargetDate(now))
}
