package statusquery

import "time"

// kst is Asia/Seoul. Fixed offset; Korea has no daylight saving.
var kst = time.FixedZone("KST", 9*60*60)

// WeekBounds returns the KST week containing the reference time: Monday
// 00:00 KST inclusive through the following Monday exclusive. Computing both
// bounds from one reference time avoids timezone drift within a turn.
func WeekBounds(reference time.Time) (start, end time.Time) {
	local := reference.In(kst)

	weekday := int(local.Weekday())
	// time.Weekday counts Sunday as 0; shift so Monday starts the week.
	daysSinceMonday := (weekday + 6) % 7

	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, kst)
	start = start.AddDate(0, 0, -daysSinceMonday)
	end = start.AddDate(0, 0, 7)
	return start, end
}
