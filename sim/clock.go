package sim

// Simulated time is an int64 count of seconds since the start of the run.
const (
	Second int64 = 1
	Minute       = 60 * Second
	Hour         = 60 * Minute
	Day          = 24 * Hour
)

// maxTime returns the latest of the given timestamps.
func maxTime(t int64, rest ...int64) int64 {
	for _, r := range rest {
		if r > t {
			t = r
		}
	}
	return t
}

// CeilDays converts a duration to whole simulated days, rounding up.
func CeilDays(d int64) int64 {
	if d <= 0 {
		return 0
	}
	return (d + Day - 1) / Day
}
