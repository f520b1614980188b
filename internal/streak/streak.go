// Package streak computes the current consecutive training day streak.
package streak

import "time"

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Current returns the number of consecutive days with at least one completed
// session, counting backward from today, or from yesterday when there is no
// session today yet (an ongoing streak is not broken by "has not trained yet
// today"). Session timestamps are normalized to calendar days in today's
// location, a day with multiple sessions counts once.
func Current(sessionDays []time.Time, today time.Time) int {
	if len(sessionDays) == 0 {
		return 0
	}

	trained := make(map[time.Time]bool, len(sessionDays))
	for _, d := range sessionDays {
		trained[dayOf(d.In(today.Location()))] = true
	}

	day := dayOf(today)
	if !trained[day] {
		day = day.AddDate(0, 0, -1)
		if !trained[day] {
			return 0
		}
	}

	streak := 0
	for trained[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
