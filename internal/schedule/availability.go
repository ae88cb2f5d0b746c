package schedule

import "iter"

// Free returns the candidates that overlap none of booked, in candidate order.
// The result is never nil so it encodes as an empty JSON array.
func Free(candidates iter.Seq[TimeRange], booked []TimeRange) []TimeRange {
	free := []TimeRange{}
	for c := range candidates {
		if !overlapsAny(c, booked) {
			free = append(free, c)
		}
	}
	return free
}

// FirstFree returns the first candidate overlapping none of booked.
func FirstFree(candidates iter.Seq[TimeRange], booked []TimeRange) (TimeRange, bool) {
	for c := range candidates {
		if !overlapsAny(c, booked) {
			return c, true
		}
	}
	return TimeRange{}, false
}

func overlapsAny(c TimeRange, booked []TimeRange) bool {
	for _, b := range booked {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}
