// Package schedule computes standing order execution dates.
package schedule

import (
	"time"

	"github.com/username/standingbank/backend/src/models"
)

// NextOccurrence returns the date one period after anchor. Monthly and yearly
// steps clamp to the last day of the target month when the anchor day does
// not exist there (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28).
func NextOccurrence(anchor time.Time, f models.Frequency) (time.Time, error) {
	d := models.DateOf(anchor)
	switch f {
	case models.FrequencyDaily:
		return d.AddDate(0, 0, 1), nil
	case models.FrequencyWeekly:
		return d.AddDate(0, 0, 7), nil
	case models.FrequencyMonthly:
		return addMonthsClamped(d, 1), nil
	case models.FrequencyYearly:
		return addMonthsClamped(d, 12), nil
	default:
		return time.Time{}, models.NewValidationError("frequency", "%q is not a supported frequency", f)
	}
}

func addMonthsClamped(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	// time.Date normalizes month overflow, day 1 always exists
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RollForward advances next period by period until it is on or after today.
// Occurrences skipped this way are never paid.
func RollForward(next time.Time, f models.Frequency, today time.Time) (time.Time, error) {
	today = models.DateOf(today)
	next = models.DateOf(next)
	for next.Before(today) {
		n, err := NextOccurrence(next, f)
		if err != nil {
			return time.Time{}, err
		}
		next = n
	}
	return next, nil
}
