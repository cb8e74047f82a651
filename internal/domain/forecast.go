package domain

import "time"

// NextBusinessDay returns the calendar day after t, skipping Saturday and
// Sunday when skipWeekends is set. Holidays are not considered.
func NextBusinessDay(t time.Time, skipWeekends bool) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	if !skipWeekends {
		return d
	}
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// ForecastDate formats the next business day after t.
func ForecastDate(t time.Time, skipWeekends bool) string {
	return NextBusinessDay(t, skipWeekends).Format(ForecastLayout)
}
